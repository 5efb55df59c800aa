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
	"time"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// billing_period is stored as the first day of the month.
const periodLayout = "2006-01-02"

const reasonInsufficientBalance = "insufficient balance"

func formatPeriod(period time.Time) string {
	return period.UTC().Format(periodLayout)
}

// RecordUsage stores a metered communication for the monthly sweep. A repeated
// ReferenceId for the same user returns the event recorded first.
func (s *Service) RecordUsage(ctx context.Context, params store.RecordUsageParams) (*models.UsageEvent, error) {
	if params.DurationSeconds < 0 || params.PageCount < 0 {
		return nil, fmt.Errorf("usage duration and page count cannot be negative")
	}

	now := nowUTC()
	occurredAt := params.OccurredAt.UTC()
	if params.OccurredAt.IsZero() {
		occurredAt = now
	}

	event := &models.UsageEvent{
		Id:              uuid.New().String(),
		UserId:          params.UserId,
		Kind:            params.Kind,
		Recipient:       params.Recipient,
		DurationSeconds: params.DurationSeconds,
		PageCount:       params.PageCount,
		ReferenceId:     params.ReferenceId,
		OccurredAt:      occurredAt,
		CreatedAt:       now,
	}

	result, err := s.db.ExecContext(ctx, queryInsertUsageEvent,
		event.Id, event.UserId, string(event.Kind), event.Recipient, event.DurationSeconds,
		event.PageCount, nullString(event.ReferenceId), event.OccurredAt, event.CreatedAt)
	if err != nil {
		zap.L().Error("Failed to record usage", zap.String("user_id", params.UserId), zap.Error(err))
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("unable to get rows affected: %w", err)
	}
	if inserted == 0 && params.ReferenceId != "" {
		zap.L().Warn("Duplicate usage reference, returning existing event",
			zap.String("user_id", params.UserId),
			zap.String("reference_id", params.ReferenceId))
		existing, err := scanUsage(s.db.QueryRowContext(ctx, queryGetUsageEventByReference, params.UserId, params.ReferenceId))
		if err != nil {
			return nil, fmt.Errorf("failed to load existing usage event: %w", err)
		}
		return existing, nil
	}

	zap.L().Debug("Recorded usage",
		zap.String("user_id", params.UserId),
		zap.String("kind", string(params.Kind)),
		zap.String("usage_id", event.Id))
	return event, nil
}

// ListUsage returns the user's usage events with occurred_at in [from, to).
func (s *Service) ListUsage(ctx context.Context, userId string, from, to time.Time) ([]models.UsageEvent, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUsageEvents, userId, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer closeRows(rows)

	var events []models.UsageEvent
	for rows.Next() {
		event, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}
	return events, nil
}

// ListBillableUsers returns users holding a positive balance or usage in [from, to).
func (s *Service) ListBillableUsers(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, queryGetBillableUsers, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query billable users: %w", err)
	}
	defer closeRows(rows)

	var userIds []string
	for rows.Next() {
		var userId string
		if err := rows.Scan(&userId); err != nil {
			return nil, fmt.Errorf("failed to scan billable user: %w", err)
		}
		userIds = append(userIds, userId)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating billable users: %w", err)
	}
	return userIds, nil
}

func (s *Service) GetBillingRecord(ctx context.Context, userId string, period time.Time) (*models.MonthlyBillingRecord, error) {
	record, err := getBillingRecordTx(ctx, s.db, userId, period)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: user %s period %s", store.ErrRecordNotFound, userId, formatPeriod(period))
	}
	return record, nil
}

// SettleMonthlyBilling finalizes one user's period in a single unit of work.
// The monthly debit and the record that marks the period as handled commit
// together, so a retried sweep finds the terminal record and stops.
func (s *Service) SettleMonthlyBilling(ctx context.Context, params store.SettleParams) (*models.MonthlyBillingRecord, store.SettleOutcome, error) {
	var record *models.MonthlyBillingRecord
	var outcome store.SettleOutcome

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getBillingRecordTx(ctx, tx, params.UserId, params.BillingPeriod)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status.Terminal() {
			record, outcome = existing, store.SettleSkipped
			return nil
		}

		wallet, err := createOrGetWalletTx(ctx, tx, params.UserId, params.Currency)
		if err != nil {
			return err
		}

		now := nowUTC()
		next := newBillingRecord(existing, params, now)
		total := params.Usage.TotalAmount

		switch {
		case total.IsZero():
			next.Status = models.BillingStatusProcessed
			next.ProcessedAt = &now
			outcome = store.SettleZero
		case wallet.Balance.GreaterThanOrEqual(total):
			entry, err := applyEntryTx(ctx, tx, wallet, entryParams{
				entryType:     models.EntryTypeDebit,
				amount:        total,
				description:   params.Description,
				referenceType: models.ReferenceMonthlyDeduction,
				referenceId:   next.Id,
			})
			if err != nil {
				return err
			}
			next.Status = models.BillingStatusProcessed
			next.LedgerEntryId = entry.Id
			next.ProcessedAt = &now
			outcome = store.SettleDebited
		default:
			next.Status = models.BillingStatusFailed
			next.FailureReason = reasonInsufficientBalance
			outcome = store.SettleInsufficient
		}

		if err := upsertBillingRecordTx(ctx, tx, next); err != nil {
			return err
		}
		record = next
		return nil
	})
	if err != nil {
		zap.L().Error("Monthly settlement failed",
			zap.String("user_id", params.UserId),
			zap.String("billing_period", formatPeriod(params.BillingPeriod)),
			zap.String("amount", params.Usage.TotalAmount.String()),
			zap.Error(err))
		return nil, "", err
	}

	zap.L().Info("Monthly settlement complete",
		zap.String("user_id", params.UserId),
		zap.String("billing_period", formatPeriod(params.BillingPeriod)),
		zap.String("amount", params.Usage.TotalAmount.String()),
		zap.String("outcome", string(outcome)))
	return record, outcome, nil
}

// RecordBillingFailure marks the period failed unless it already reached a terminal state.
func (s *Service) RecordBillingFailure(ctx context.Context, params store.SettleParams, reason string) (*models.MonthlyBillingRecord, error) {
	var record *models.MonthlyBillingRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := getBillingRecordTx(ctx, tx, params.UserId, params.BillingPeriod)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status.Terminal() {
			record = existing
			return nil
		}

		next := newBillingRecord(existing, params, nowUTC())
		next.Status = models.BillingStatusFailed
		next.FailureReason = reason
		if err := upsertBillingRecordTx(ctx, tx, next); err != nil {
			return err
		}
		record = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record billing failure: %w", err)
	}

	zap.L().Warn("Recorded monthly billing failure",
		zap.String("user_id", params.UserId),
		zap.String("billing_period", formatPeriod(params.BillingPeriod)),
		zap.String("reason", reason))
	return record, nil
}

// GetBillingStatus returns counts and totals for every status in the period,
// including statuses with no records.
func (s *Service) GetBillingStatus(ctx context.Context, period time.Time) ([]models.BillingStatusCount, error) {
	rows, err := s.db.QueryContext(ctx, queryGetBillingAmountsByStatus, formatPeriod(period))
	if err != nil {
		return nil, fmt.Errorf("failed to query billing status: %w", err)
	}
	defer closeRows(rows)

	statuses := []models.BillingStatusCount{
		{Status: models.BillingStatusPending, TotalAmount: decimal.Zero},
		{Status: models.BillingStatusProcessed, TotalAmount: decimal.Zero},
		{Status: models.BillingStatusFailed, TotalAmount: decimal.Zero},
	}

	for rows.Next() {
		var status, amountStr string
		if err := rows.Scan(&status, &amountStr); err != nil {
			return nil, fmt.Errorf("failed to scan billing status: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse total amount '%s': %w", amountStr, err)
		}
		for i := range statuses {
			if string(statuses[i].Status) == status {
				statuses[i].Count++
				statuses[i].TotalAmount = statuses[i].TotalAmount.Add(amount)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating billing status rows: %w", err)
	}
	return statuses, nil
}

func newBillingRecord(existing *models.MonthlyBillingRecord, params store.SettleParams, now time.Time) *models.MonthlyBillingRecord {
	record := &models.MonthlyBillingRecord{
		Id:                 uuid.New().String(),
		UserId:             params.UserId,
		BillingPeriod:      params.BillingPeriod.UTC(),
		TotalCalls:         params.Usage.Calls,
		TotalCallMinutes:   params.Usage.CallMinutes,
		TotalSms:           params.Usage.Sms,
		TotalEmails:        params.Usage.Emails,
		TotalFaxes:         params.Usage.Faxes,
		TotalFaxPages:      params.Usage.FaxPages,
		TotalFileTransfers: params.Usage.FileTransfers,
		TotalAmount:        params.Usage.TotalAmount,
		Status:             models.BillingStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if existing != nil {
		record.Id = existing.Id
		record.CreatedAt = existing.CreatedAt
	}
	return record
}

func upsertBillingRecordTx(ctx context.Context, tx *sql.Tx, record *models.MonthlyBillingRecord) error {
	var ledgerEntryId sql.NullInt64
	if record.LedgerEntryId != 0 {
		ledgerEntryId = sql.NullInt64{Int64: record.LedgerEntryId, Valid: true}
	}
	var processedAt sql.NullTime
	if record.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *record.ProcessedAt, Valid: true}
	}

	result, err := tx.ExecContext(ctx, queryUpsertBillingRecord,
		record.Id, record.UserId, formatPeriod(record.BillingPeriod),
		record.TotalCalls, record.TotalCallMinutes, record.TotalSms, record.TotalEmails,
		record.TotalFaxes, record.TotalFaxPages, record.TotalFileTransfers,
		record.TotalAmount.String(), string(record.Status), nullString(record.FailureReason),
		ledgerEntryId, processedAt, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to write billing record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Another writer finalized the period first
		return fmt.Errorf("billing record update failed - %w", store.ErrConcurrentModification)
	}
	return nil
}

func getBillingRecordTx(ctx context.Context, q queryer, userId string, period time.Time) (*models.MonthlyBillingRecord, error) {
	record, err := scanBillingRecord(q.QueryRowContext(ctx, queryGetBillingRecord, userId, formatPeriod(period)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get billing record: %w", err)
	}
	return record, nil
}

func scanBillingRecord(row rowScanner) (*models.MonthlyBillingRecord, error) {
	var record models.MonthlyBillingRecord
	var periodStr, amountStr, status string
	var failureReason sql.NullString
	var ledgerEntryId sql.NullInt64
	var processedAt sql.NullTime

	err := row.Scan(&record.Id, &record.UserId, &periodStr,
		&record.TotalCalls, &record.TotalCallMinutes, &record.TotalSms, &record.TotalEmails,
		&record.TotalFaxes, &record.TotalFaxPages, &record.TotalFileTransfers,
		&amountStr, &status, &failureReason, &ledgerEntryId, &processedAt,
		&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if record.BillingPeriod, err = time.Parse(periodLayout, periodStr); err != nil {
		return nil, fmt.Errorf("failed to parse billing period '%s': %w", periodStr, err)
	}
	if record.TotalAmount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse total amount '%s': %w", amountStr, err)
	}
	record.Status = models.BillingStatus(status)
	record.FailureReason = failureReason.String
	record.LedgerEntryId = ledgerEntryId.Int64
	if processedAt.Valid {
		t := processedAt.Time
		record.ProcessedAt = &t
	}
	return &record, nil
}

func scanUsage(row rowScanner) (*models.UsageEvent, error) {
	var event models.UsageEvent
	var kind string
	var recipient, referenceId sql.NullString

	err := row.Scan(&event.Id, &event.UserId, &kind, &recipient, &event.DurationSeconds,
		&event.PageCount, &referenceId, &event.OccurredAt, &event.CreatedAt)
	if err != nil {
		return nil, err
	}
	event.Kind = models.CommunicationKind(kind)
	event.Recipient = recipient.String
	event.ReferenceId = referenceId.String
	return &event, nil
}
