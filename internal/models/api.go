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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletBalance represents a user's balance for display
type WalletBalance struct {
	UserId   string          `json:"user_id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	Exists   bool            `json:"exists"`
}

// TransactionRecord represents a ledger entry in the user's history
type TransactionRecord struct {
	Id                 int64           `json:"id"`
	Type               EntryType       `json:"type"`
	Amount             decimal.Decimal `json:"amount"`
	BalanceAfter       decimal.Decimal `json:"balance_after"`
	Description        string          `json:"description"`
	ReferenceType      ReferenceType   `json:"reference_type"`
	ReferenceId        string          `json:"reference_id,omitempty"`
	ExternalPaymentRef string          `json:"external_payment_ref,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// DebitResult represents the result of a successful debit
type DebitResult struct {
	UserId     string          `json:"user_id"`
	Debited    decimal.Decimal `json:"debited"`
	NewBalance decimal.Decimal `json:"new_balance"`
	EntryId    int64           `json:"entry_id"`
	// Applied is false when no entry was written: a repeated reference or a free rate
	Applied bool `json:"applied"`
}

// TopUpIntentResult is returned to the payment UI after creating an intent
type TopUpIntentResult struct {
	IntentId     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

// TopUpResult represents the result of applying (or confirming) a top-up
type TopUpResult struct {
	UserId     string          `json:"user_id"`
	IntentId   string          `json:"intent_id"`
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Applied    bool            `json:"applied"`
	Status     string          `json:"status"`
}

// SweepFailure describes one user the sweep could not bill
type SweepFailure struct {
	UserId string `json:"user_id"`
	Reason string `json:"reason"`
}

// SweepResult summarizes one run of the monthly sweep
type SweepResult struct {
	BillingPeriod  string          `json:"billing_period"`
	UsersProcessed int             `json:"users_processed"`
	UsersFailed    int             `json:"users_failed"`
	UsersSkipped   int             `json:"users_skipped"`
	TotalBilled    decimal.Decimal `json:"total_billed"`
	Failures       []SweepFailure  `json:"failures,omitempty"`
}

// BillingStatusReport is the operational view of one billing period
type BillingStatusReport struct {
	BillingPeriod string               `json:"billing_period"`
	Statuses      []BillingStatusCount `json:"statuses"`
}
