/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// entryParams describes a single balance mutation applied inside a unit of work.
type entryParams struct {
	entryType          models.EntryType
	amount             decimal.Decimal
	description        string
	referenceType      models.ReferenceType
	referenceId        string
	externalPaymentRef string
}

// Debit atomically checks and deducts params.Amount. The wallet must already exist.
// A repeated ReferenceId for the same user and reference type returns the
// original entry and applied=false.
func (s *Service) Debit(ctx context.Context, params store.DebitParams) (*models.LedgerEntry, bool, error) {
	if !params.Amount.IsPositive() {
		return nil, false, fmt.Errorf("%w: got %s", store.ErrInvalidAmount, params.Amount.String())
	}

	zap.L().Info("Processing debit",
		zap.String("user_id", params.UserId),
		zap.String("amount", params.Amount.String()),
		zap.String("reference_type", string(params.ReferenceType)),
		zap.String("reference_id", params.ReferenceId))

	var entry *models.LedgerEntry
	applied := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := findDebitByReferenceTx(ctx, tx, params)
		if err != nil {
			return err
		}
		if existing != nil {
			entry, applied = existing, false
			return nil
		}

		wallet, err := getWalletTx(ctx, tx, params.UserId)
		if err != nil {
			return err
		}

		entry, err = applyEntryTx(ctx, tx, wallet, entryParams{
			entryType:     models.EntryTypeDebit,
			amount:        params.Amount,
			description:   params.Description,
			referenceType: params.ReferenceType,
			referenceId:   params.ReferenceId,
		})
		applied = err == nil
		return err
	})
	if errors.Is(err, store.ErrDuplicateTransaction) {
		existing, findErr := findDebitByReferenceTx(ctx, s.db, params)
		if findErr == nil && existing != nil {
			entry, applied, err = existing, false, nil
		}
	}
	if err != nil {
		logMutationFailure("Debit failed", params.UserId, params.Amount, params.ReferenceId, err)
		return nil, false, err
	}

	if !applied {
		zap.L().Warn("Duplicate debit reference, skipping",
			zap.String("user_id", params.UserId),
			zap.String("reference_type", string(params.ReferenceType)),
			zap.String("reference_id", params.ReferenceId),
			zap.Int64("existing_entry_id", entry.Id))
		return entry, false, nil
	}

	zap.L().Info("Debit processed successfully",
		zap.Int64("entry_id", entry.Id),
		zap.String("user_id", params.UserId),
		zap.String("old_balance", entry.BalanceBefore.String()),
		zap.String("new_balance", entry.BalanceAfter.String()))

	return entry, true, nil
}

// Credit adds a confirmed payment to the wallet, creating the wallet if needed.
// A repeated ExternalPaymentRef returns the original entry and applied=false.
func (s *Service) Credit(ctx context.Context, params store.CreditParams) (*models.LedgerEntry, bool, error) {
	if !params.Amount.IsPositive() {
		return nil, false, fmt.Errorf("%w: got %s", store.ErrInvalidAmount, params.Amount.String())
	}

	zap.L().Info("Processing credit",
		zap.String("user_id", params.UserId),
		zap.String("amount", params.Amount.String()),
		zap.String("external_payment_ref", params.ExternalPaymentRef))

	var entry *models.LedgerEntry
	applied := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := findEntryByExternalRefTx(ctx, tx, params.ExternalPaymentRef)
		if err != nil {
			return err
		}
		if existing != nil {
			entry, applied = existing, false
			return nil
		}

		wallet, err := createOrGetWalletTx(ctx, tx, params.UserId, params.Currency)
		if err != nil {
			return err
		}

		entry, err = applyEntryTx(ctx, tx, wallet, entryParams{
			entryType:          models.EntryTypeCredit,
			amount:             params.Amount,
			description:        params.Description,
			referenceType:      params.ReferenceType,
			externalPaymentRef: params.ExternalPaymentRef,
		})
		applied = err == nil
		return err
	})

	return s.finishIdempotent(ctx, "Credit", params.UserId, params.Amount, params.ExternalPaymentRef, entry, applied, err)
}

// Refund returns funds to the payer. It never overdraws the wallet and is
// idempotent on ExternalPaymentRef.
func (s *Service) Refund(ctx context.Context, params store.RefundParams) (*models.LedgerEntry, bool, error) {
	if !params.Amount.IsPositive() {
		return nil, false, fmt.Errorf("%w: got %s", store.ErrInvalidAmount, params.Amount.String())
	}

	zap.L().Info("Processing refund",
		zap.String("user_id", params.UserId),
		zap.String("amount", params.Amount.String()),
		zap.String("external_payment_ref", params.ExternalPaymentRef))

	var entry *models.LedgerEntry
	applied := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := findEntryByExternalRefTx(ctx, tx, params.ExternalPaymentRef)
		if err != nil {
			return err
		}
		if existing != nil {
			entry, applied = existing, false
			return nil
		}

		wallet, err := getWalletTx(ctx, tx, params.UserId)
		if err != nil {
			return err
		}

		entry, err = applyEntryTx(ctx, tx, wallet, entryParams{
			entryType:          models.EntryTypeRefund,
			amount:             params.Amount,
			description:        params.Description,
			referenceType:      models.ReferenceTopUp,
			externalPaymentRef: params.ExternalPaymentRef,
		})
		applied = err == nil
		return err
	})

	return s.finishIdempotent(ctx, "Refund", params.UserId, params.Amount, params.ExternalPaymentRef, entry, applied, err)
}

// finishIdempotent resolves a unique-index race on the external reference into
// a no-op result pointing at the entry that won.
func (s *Service) finishIdempotent(ctx context.Context, op, userId string, amount decimal.Decimal, ref string,
	entry *models.LedgerEntry, applied bool, err error) (*models.LedgerEntry, bool, error) {
	if errors.Is(err, store.ErrDuplicateTransaction) {
		existing, findErr := findEntryByExternalRefTx(ctx, s.db, ref)
		if findErr != nil {
			return nil, false, fmt.Errorf("failed to load existing entry for %s: %w", ref, findErr)
		}
		if existing == nil {
			return nil, false, err
		}
		entry, applied, err = existing, false, nil
	}
	if err != nil {
		logMutationFailure(op+" failed", userId, amount, ref, err)
		return nil, false, err
	}

	if !applied {
		zap.L().Warn("Duplicate external payment reference, skipping",
			zap.String("op", op),
			zap.String("user_id", userId),
			zap.String("external_payment_ref", ref),
			zap.Int64("existing_entry_id", entry.Id))
		return entry, false, nil
	}

	zap.L().Info(op+" processed successfully",
		zap.Int64("entry_id", entry.Id),
		zap.String("user_id", userId),
		zap.String("old_balance", entry.BalanceBefore.String()),
		zap.String("new_balance", entry.BalanceAfter.String()))
	return entry, true, nil
}

// applyEntryTx moves the wallet balance and appends the matching ledger and
// journal rows. Debits and refunds that would go below zero fail with
// *store.InsufficientBalanceError before anything is written.
func applyEntryTx(ctx context.Context, tx *sql.Tx, wallet *models.Wallet, p entryParams) (*models.LedgerEntry, error) {
	balanceBefore := wallet.Balance
	var balanceAfter decimal.Decimal

	switch p.entryType {
	case models.EntryTypeCredit:
		balanceAfter = balanceBefore.Add(p.amount)
	case models.EntryTypeDebit, models.EntryTypeRefund:
		if balanceBefore.LessThan(p.amount) {
			return nil, &store.InsufficientBalanceError{Required: p.amount, Available: balanceBefore}
		}
		balanceAfter = balanceBefore.Sub(p.amount)
	default:
		return nil, fmt.Errorf("unknown entry type %q", p.entryType)
	}

	now := nowUTC()

	// Optimistic lock on top of the immediate write transaction
	result, err := tx.ExecContext(ctx, queryUpdateWalletBalance, balanceAfter.String(), now, wallet.Id, wallet.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	result, err = tx.ExecContext(ctx, queryInsertEntry,
		wallet.Id, wallet.UserId, string(p.entryType), p.amount.String(),
		balanceBefore.String(), balanceAfter.String(), p.description,
		string(p.referenceType), nullString(p.referenceId), nullString(p.externalPaymentRef),
		wallet.Currency, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: ledger reference already exists (reference_id=%q, external_payment_ref=%q)",
				store.ErrDuplicateTransaction, p.referenceId, p.externalPaymentRef)
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	entryId, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger entry id: %w", err)
	}

	entry := &models.LedgerEntry{
		Id:                 entryId,
		WalletId:           wallet.Id,
		UserId:             wallet.UserId,
		Type:               p.entryType,
		Amount:             p.amount,
		BalanceBefore:      balanceBefore,
		BalanceAfter:       balanceAfter,
		Description:        p.description,
		ReferenceType:      p.referenceType,
		ReferenceId:        p.referenceId,
		ExternalPaymentRef: p.externalPaymentRef,
		Currency:           wallet.Currency,
		CreatedAt:          now,
	}

	if err := addJournalEntries(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("failed to add journal entries: %w", err)
	}

	wallet.Balance = balanceAfter
	wallet.Version++
	wallet.UpdatedAt = now

	return entry, nil
}

type journalLine struct {
	accountType  string
	accountId    string
	debitAmount  decimal.Decimal
	creditAmount decimal.Decimal
}

// journalLines returns the double-entry lines for a ledger entry. The wallet is
// a liability: credits increase what the platform owes the user.
func journalLines(entry *models.LedgerEntry) []journalLine {
	wallet := "user_wallet"
	walletAccount := fmt.Sprintf("%s_%s", entry.UserId, entry.Currency)

	switch entry.Type {
	case models.EntryTypeDebit:
		return []journalLine{
			{wallet, walletAccount, entry.Amount, decimal.Zero},
			{"platform_revenue", fmt.Sprintf("revenue:%s", entry.ReferenceType), decimal.Zero, entry.Amount},
		}
	case models.EntryTypeCredit:
		return []journalLine{
			{"processor_clearing", fmt.Sprintf("clearing_%s", entry.Currency), entry.Amount, decimal.Zero},
			{wallet, walletAccount, decimal.Zero, entry.Amount},
		}
	case models.EntryTypeRefund:
		return []journalLine{
			{wallet, walletAccount, entry.Amount, decimal.Zero},
			{"processor_clearing", fmt.Sprintf("clearing_%s", entry.Currency), decimal.Zero, entry.Amount},
		}
	}
	return nil
}

func addJournalEntries(ctx context.Context, tx *sql.Tx, entry *models.LedgerEntry) error {
	for _, line := range journalLines(entry) {
		_, err := tx.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), entry.Id, line.accountType, line.accountId,
			line.debitAmount.String(), line.creditAmount.String(), entry.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findEntryByExternalRefTx(ctx context.Context, q queryer, ref string) (*models.LedgerEntry, error) {
	if ref == "" {
		return nil, nil
	}
	entry, err := scanEntry(q.QueryRowContext(ctx, queryFindEntryByExternalRef, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate payment reference: %w", err)
	}
	return entry, nil
}

func findDebitByReferenceTx(ctx context.Context, q queryer, params store.DebitParams) (*models.LedgerEntry, error) {
	if params.ReferenceId == "" {
		return nil, nil
	}
	entry, err := scanEntry(q.QueryRowContext(ctx, queryFindDebitByReference,
		params.UserId, string(params.ReferenceType), params.ReferenceId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate debit reference: %w", err)
	}
	return entry, nil
}

// GetTransactions returns the user's ledger entries, newest first.
func (s *Service) GetTransactions(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("user_id", userId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer closeRows(rows)

	entries := []models.LedgerEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return entries, nil
}

// ReconcileWallet verifies that the stored balance equals credits minus debits
// minus refunds over the wallet's whole ledger.
func (s *Service) ReconcileWallet(ctx context.Context, userId string) error {
	zap.L().Info("Reconciling wallet", zap.String("user_id", userId))

	wallet, err := s.GetWallet(ctx, userId)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, queryGetWalletEntryAmounts, wallet.Id)
	if err != nil {
		return fmt.Errorf("failed to load ledger amounts: %w", err)
	}
	defer closeRows(rows)

	calculated := decimal.Zero
	for rows.Next() {
		var entryType, amountStr string
		if err := rows.Scan(&entryType, &amountStr); err != nil {
			return fmt.Errorf("failed to scan ledger amount: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		if models.EntryType(entryType) == models.EntryTypeCredit {
			calculated = calculated.Add(amount)
		} else {
			calculated = calculated.Sub(amount)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating ledger rows: %w", err)
	}

	if !wallet.Balance.Equal(calculated) {
		zap.L().Error("Wallet reconciliation failed",
			zap.String("user_id", userId),
			zap.String("current_balance", wallet.Balance.String()),
			zap.String("calculated_balance", calculated.String()),
			zap.String("difference", wallet.Balance.Sub(calculated).String()))
		return fmt.Errorf("%w: current=%s, calculated=%s", store.ErrBalanceMismatch, wallet.Balance.String(), calculated.String())
	}

	zap.L().Info("Wallet reconciliation successful",
		zap.String("user_id", userId),
		zap.String("balance", wallet.Balance.String()))
	return nil
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	var entryType, referenceType, amountStr, beforeStr, afterStr string
	var referenceId, externalRef sql.NullString

	err := row.Scan(&entry.Id, &entry.WalletId, &entry.UserId, &entryType,
		&amountStr, &beforeStr, &afterStr, &entry.Description, &referenceType,
		&referenceId, &externalRef, &entry.Currency, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	entry.Type = models.EntryType(entryType)
	entry.ReferenceType = models.ReferenceType(referenceType)
	entry.ReferenceId = referenceId.String
	entry.ExternalPaymentRef = externalRef.String

	if entry.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	if entry.BalanceBefore, err = decimal.NewFromString(beforeStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance before '%s': %w", beforeStr, err)
	}
	if entry.BalanceAfter, err = decimal.NewFromString(afterStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance after '%s': %w", afterStr, err)
	}
	return &entry, nil
}

func logMutationFailure(msg, userId string, amount decimal.Decimal, ref string, err error) {
	var insufficient *store.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		zap.L().Warn(msg,
			zap.String("user_id", userId),
			zap.String("amount", amount.String()),
			zap.String("reference", ref),
			zap.String("available", insufficient.Available.String()))
		return
	}
	zap.L().Error(msg,
		zap.String("user_id", userId),
		zap.String("amount", amount.String()),
		zap.String("reference", ref),
		zap.Error(err))
}
