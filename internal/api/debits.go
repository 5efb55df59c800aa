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
	"strings"
	"time"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/pricing"
	"prepaid-billing-go/internal/store"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CommunicationEvent is a concluded billable communication reported by a feature handler.
type CommunicationEvent struct {
	UserId          string
	Kind            string
	Recipient       string
	DurationMinutes decimal.Decimal
	DurationSeconds int64
	PageCount       int
	ReferenceId     string
}

// DebitRequest is a validated request to take money from a wallet.
type DebitRequest struct {
	UserId        string
	Amount        decimal.Decimal
	Description   string
	ReferenceType models.ReferenceType
	ReferenceId   string
}

func (r DebitRequest) validate() error {
	if strings.TrimSpace(r.UserId) == "" {
		return invalid("user_id is required")
	}
	if !r.Amount.IsPositive() {
		return invalid("amount must be positive, got %s", r.Amount.String())
	}
	if !r.ReferenceType.Valid() || r.ReferenceType == models.ReferenceTopUp {
		return invalid("unsupported reference type %q", r.ReferenceType)
	}
	return nil
}

// RecordCommunicationCompleted prices the event and debits it immediately.
// Whether a failed debit blocks or queues the communication is the caller's call.
func (s *LedgerService) RecordCommunicationCompleted(ctx context.Context, event CommunicationEvent) (*models.DebitResult, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.RecordCommunicationCompleted")
	defer span.End()

	if strings.TrimSpace(event.UserId) == "" {
		return nil, invalid("user_id is required")
	}

	kind, err := pricing.ParseKind(event.Kind)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("communication.kind", string(kind)))

	details := pricing.Details{DurationMinutes: event.DurationMinutes, PageCount: event.PageCount}
	if event.DurationMinutes.IsZero() && event.DurationSeconds > 0 {
		details = pricing.CallSeconds(event.DurationSeconds)
		details.PageCount = event.PageCount
	}

	amount, err := s.pricing.Price(kind, details)
	if err != nil {
		return nil, err
	}

	// A rate configured as free produces no ledger entry
	if amount.IsZero() {
		balance, err := s.GetBalance(ctx, event.UserId)
		if err != nil {
			return nil, err
		}
		return &models.DebitResult{UserId: event.UserId, Debited: decimal.Zero, NewBalance: balance.Balance}, nil
	}

	return s.Debit(ctx, DebitRequest{
		UserId:        event.UserId,
		Amount:        amount,
		Description:   Describe(kind, event.Recipient, details),
		ReferenceType: kind.ReferenceType(),
		ReferenceId:   event.ReferenceId,
	})
}

// Debit is the single entry point for taking money from a wallet.
func (s *LedgerService) Debit(ctx context.Context, req DebitRequest) (*models.DebitResult, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Debit")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("debit", time.Since(start)) }()

	if err := req.validate(); err != nil {
		return nil, err
	}

	entry, applied, err := s.ledger.Debit(ctx, store.DebitParams{
		UserId:        req.UserId,
		Amount:        req.Amount,
		Description:   req.Description,
		ReferenceType: req.ReferenceType,
		ReferenceId:   req.ReferenceId,
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.IncrDebit(debitResult(err), string(req.ReferenceType), req.Amount)
		return nil, err
	}

	if !applied {
		s.metrics.IncrDebit("duplicate", string(req.ReferenceType), decimal.Zero)
		wallet, err := s.ledger.GetWallet(ctx, req.UserId)
		if err != nil {
			return nil, err
		}
		return &models.DebitResult{
			UserId:     req.UserId,
			Debited:    decimal.Zero,
			NewBalance: wallet.Balance,
			EntryId:    entry.Id,
		}, nil
	}

	s.metrics.IncrDebit("success", string(req.ReferenceType), req.Amount)
	return &models.DebitResult{
		UserId:     req.UserId,
		Debited:    entry.Amount,
		NewBalance: entry.BalanceAfter,
		EntryId:    entry.Id,
		Applied:    true,
	}, nil
}

// UsageRequest is a metered communication deferred to the monthly sweep.
type UsageRequest struct {
	UserId          string
	Kind            string
	Recipient       string
	DurationSeconds int64
	PageCount       int
	ReferenceId     string
	OccurredAt      time.Time
}

// RecordUsage stores usage for monthly billing instead of debiting now.
func (s *LedgerService) RecordUsage(ctx context.Context, req UsageRequest) (*models.UsageEvent, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.RecordUsage")
	defer span.End()

	if strings.TrimSpace(req.UserId) == "" {
		return nil, invalid("user_id is required")
	}
	kind, err := pricing.ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	if req.DurationSeconds < 0 || req.PageCount < 0 {
		return nil, fmt.Errorf("%w: duration and page count cannot be negative", pricing.ErrInvalidDetails)
	}

	return s.billing.RecordUsage(ctx, store.RecordUsageParams{
		UserId:          req.UserId,
		Kind:            kind,
		Recipient:       req.Recipient,
		DurationSeconds: req.DurationSeconds,
		PageCount:       req.PageCount,
		ReferenceId:     req.ReferenceId,
		OccurredAt:      req.OccurredAt,
	})
}

// Describe builds the human-readable ledger description for a communication.
func Describe(kind models.CommunicationKind, recipient string, details pricing.Details) string {
	switch kind {
	case models.KindCall:
		return fmt.Sprintf("Phone call to %s - %d minutes", recipient, details.BillableMinutes())
	case models.KindSms:
		return fmt.Sprintf("SMS to %s", recipient)
	case models.KindEmail:
		return fmt.Sprintf("Email to %s", recipient)
	case models.KindFax:
		return fmt.Sprintf("Fax to %s - %d page(s)", recipient, details.BillablePages())
	case models.KindFileTransfer:
		return fmt.Sprintf("File transfer to %s", recipient)
	}
	return string(kind)
}

func debitResult(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, store.ErrWalletNotFound):
		return "wallet_not_found"
	default:
		zap.L().Debug("Debit failed with unclassified error", zap.Error(err))
		return "error"
	}
}
