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

package store

import (
	"context"
	"time"

	"prepaid-billing-go/internal/models"

	"github.com/shopspring/decimal"
)

// DebitParams contains the parameters for an atomic check-and-deduct.
type DebitParams struct {
	UserId        string
	Amount        decimal.Decimal
	Description   string
	ReferenceType models.ReferenceType
	ReferenceId   string
}

// CreditParams contains the parameters for crediting a wallet from a confirmed payment.
// ExternalPaymentRef is the idempotency key.
type CreditParams struct {
	UserId             string
	Currency           string
	Amount             decimal.Decimal
	Description        string
	ReferenceType      models.ReferenceType
	ExternalPaymentRef string
}

// RefundParams contains the parameters for returning wallet funds to the payer.
type RefundParams struct {
	UserId             string
	Amount             decimal.Decimal
	Description        string
	ExternalPaymentRef string
}

// SettleParams carries one user's priced usage for a billing period.
type SettleParams struct {
	UserId        string
	Currency      string
	BillingPeriod time.Time
	Usage         models.UsageSummary
	Description   string
}

// SettleOutcome describes what SettleMonthlyBilling did.
type SettleOutcome string

const (
	SettleSkipped      SettleOutcome = "skipped"
	SettleZero         SettleOutcome = "zero"
	SettleDebited      SettleOutcome = "debited"
	SettleInsufficient SettleOutcome = "insufficient"
)

// RecordUsageParams contains a metered communication to be billed by the monthly sweep.
type RecordUsageParams struct {
	UserId          string
	Kind            models.CommunicationKind
	Recipient       string
	DurationSeconds int64
	PageCount       int
	ReferenceId     string
	OccurredAt      time.Time
}

// LedgerStore is the wallet and ledger contract. Every balance mutation goes
// through Debit, Credit or Refund.
type LedgerStore interface {
	// --- Users ---
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, userId, name, email string) (*models.User, error)

	// --- Wallets ---
	CreateOrGetWallet(ctx context.Context, userId, currency string) (*models.Wallet, error)
	GetWallet(ctx context.Context, userId string) (*models.Wallet, error)
	GetWallets(ctx context.Context) ([]models.Wallet, error)

	// --- Ledger ---
	// Debit is idempotent on (UserId, ReferenceType, ReferenceId) when ReferenceId is set.
	Debit(ctx context.Context, params DebitParams) (*models.LedgerEntry, bool, error)
	Credit(ctx context.Context, params CreditParams) (*models.LedgerEntry, bool, error)
	Refund(ctx context.Context, params RefundParams) (*models.LedgerEntry, bool, error)
	GetTransactions(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error)
	ReconcileWallet(ctx context.Context, userId string) error

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}

// BillingStore is the monthly sweep and usage contract.
type BillingStore interface {
	RecordUsage(ctx context.Context, params RecordUsageParams) (*models.UsageEvent, error)
	ListUsage(ctx context.Context, userId string, from, to time.Time) ([]models.UsageEvent, error)
	ListBillableUsers(ctx context.Context, from, to time.Time) ([]string, error)
	GetBillingRecord(ctx context.Context, userId string, period time.Time) (*models.MonthlyBillingRecord, error)
	SettleMonthlyBilling(ctx context.Context, params SettleParams) (*models.MonthlyBillingRecord, SettleOutcome, error)
	RecordBillingFailure(ctx context.Context, params SettleParams, reason string) (*models.MonthlyBillingRecord, error)
	GetBillingStatus(ctx context.Context, period time.Time) ([]models.BillingStatusCount, error)
}

// PaymentStore keeps processor-side bookkeeping. Nothing here touches balances.
type PaymentStore interface {
	GetPaymentCustomer(ctx context.Context, userId string) (string, error)
	SavePaymentCustomer(ctx context.Context, userId, customerId string) error
	SaveTopUpIntent(ctx context.Context, intent models.TopUpIntent) error
	GetTopUpIntent(ctx context.Context, intentId string) (*models.TopUpIntent, error)
	UpdateTopUpIntentStatus(ctx context.Context, intentId string, status models.TopUpIntentStatus, failureMessage string) error
}

// ExportStore feeds committed ledger entries to an external mirror.
type ExportStore interface {
	GetUnexportedEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error)
	MarkEntriesExported(ctx context.Context, ids []int64) error
}
