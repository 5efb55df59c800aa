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

package api

import (
	"context"
	"errors"
	"fmt"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetBalance returns the user's balance for display. A user without a wallet
// reads as zero with Exists=false. Display reads may be stale.
func (s *LedgerService) GetBalance(ctx context.Context, userId string) (*models.WalletBalance, error) {
	if userId == "" {
		return nil, invalid("user_id is required")
	}

	wallet, err := s.ledger.GetWallet(ctx, userId)
	if errors.Is(err, store.ErrWalletNotFound) {
		return &models.WalletBalance{
			UserId:   userId,
			Balance:  decimal.Zero,
			Currency: s.pricing.Currency,
			Exists:   false,
		}, nil
	}
	if err != nil {
		zap.L().Error("Failed to get wallet balance", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balance: %w", err)
	}

	return &models.WalletBalance{
		UserId:   userId,
		Balance:  wallet.Balance,
		Currency: wallet.Currency,
		Exists:   true,
	}, nil
}

// HasSufficientBalance reports whether the wallet currently covers amount, so a
// caller can block or queue before a communication starts. It is advisory only:
// Debit re-checks inside its transaction.
func (s *LedgerService) HasSufficientBalance(ctx context.Context, userId string, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return false, invalid("amount cannot be negative, got %s", amount.String())
	}
	balance, err := s.GetBalance(ctx, userId)
	if err != nil {
		return false, err
	}
	return balance.Balance.GreaterThanOrEqual(amount), nil
}

// GetTransactions returns the most recent ledger entries, newest first.
// limit defaults to 50 and is capped at 100.
func (s *LedgerService) GetTransactions(ctx context.Context, userId string, limit int) ([]models.TransactionRecord, error) {
	if userId == "" {
		return nil, invalid("user_id is required")
	}

	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}

	entries, err := s.ledger.GetTransactions(ctx, userId, limit, 0)
	if err != nil {
		zap.L().Error("Failed to get transaction history", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}

	result := make([]models.TransactionRecord, len(entries))
	for i, entry := range entries {
		result[i] = models.TransactionRecord{
			Id:                 entry.Id,
			Type:               entry.Type,
			Amount:             entry.Amount,
			BalanceAfter:       entry.BalanceAfter,
			Description:        entry.Description,
			ReferenceType:      entry.ReferenceType,
			ReferenceId:        entry.ReferenceId,
			ExternalPaymentRef: entry.ExternalPaymentRef,
			CreatedAt:          entry.CreatedAt,
		}
	}
	return result, nil
}

func (s *LedgerService) ReconcileWallet(ctx context.Context, userId string) error {
	return s.ledger.ReconcileWallet(ctx, userId)
}
