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

	"prepaid-billing-go/internal/observability"
	"prepaid-billing-go/internal/pricing"
	"prepaid-billing-go/internal/store"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("prepaid-billing-go/internal/api")

// ErrInvalidRequest is returned for malformed input before any state is touched.
var ErrInvalidRequest = errors.New("invalid request")

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 100
)

// LedgerService is the boundary collaborators call into: it validates input,
// prices communications and runs every debit through the store's unit of work.
type LedgerService struct {
	ledger  store.LedgerStore
	billing store.BillingStore
	pricing pricing.Table
	metrics *observability.Metrics
}

func NewLedgerService(ledger store.LedgerStore, billing store.BillingStore, table pricing.Table, metrics *observability.Metrics) *LedgerService {
	return &LedgerService{
		ledger:  ledger,
		billing: billing,
		pricing: table,
		metrics: metrics,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.ledger.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
