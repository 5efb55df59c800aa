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

	"go.uber.org/zap"
)

// GetPaymentCustomer returns the processor customer id for the user, or
// store.ErrRecordNotFound when none has been created yet.
func (s *Service) GetPaymentCustomer(ctx context.Context, userId string) (string, error) {
	var customerId string
	err := s.db.QueryRowContext(ctx, queryGetPaymentCustomer, userId).Scan(&customerId)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: payment customer for user %s", store.ErrRecordNotFound, userId)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get payment customer: %w", err)
	}
	return customerId, nil
}

func (s *Service) SavePaymentCustomer(ctx context.Context, userId, customerId string) error {
	if _, err := s.db.ExecContext(ctx, queryInsertPaymentCustomer, userId, customerId, nowUTC()); err != nil {
		return fmt.Errorf("failed to save payment customer: %w", err)
	}
	zap.L().Info("Saved payment customer", zap.String("user_id", userId), zap.String("customer_id", customerId))
	return nil
}

func (s *Service) SaveTopUpIntent(ctx context.Context, intent models.TopUpIntent) error {
	now := nowUTC()
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, queryInsertTopUpIntent,
		intent.Id, intent.UserId, intent.AmountCents, intent.Currency, string(intent.Status),
		nullString(intent.FailureMessage), intent.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to save top-up intent: %w", err)
	}
	return nil
}

func (s *Service) GetTopUpIntent(ctx context.Context, intentId string) (*models.TopUpIntent, error) {
	var intent models.TopUpIntent
	var status string
	var failureMessage sql.NullString

	err := s.db.QueryRowContext(ctx, queryGetTopUpIntent, intentId).Scan(
		&intent.Id, &intent.UserId, &intent.AmountCents, &intent.Currency, &status,
		&failureMessage, &intent.CreatedAt, &intent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: top-up intent %s", store.ErrRecordNotFound, intentId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get top-up intent: %w", err)
	}

	intent.Status = models.TopUpIntentStatus(status)
	intent.FailureMessage = failureMessage.String
	return &intent, nil
}

func (s *Service) UpdateTopUpIntentStatus(ctx context.Context, intentId string, status models.TopUpIntentStatus, failureMessage string) error {
	result, err := s.db.ExecContext(ctx, queryUpdateTopUpIntentStatus, string(status), nullString(failureMessage), nowUTC(), intentId)
	if err != nil {
		return fmt.Errorf("failed to update top-up intent: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: top-up intent %s", store.ErrRecordNotFound, intentId)
	}
	return nil
}
