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

// EntryType is the direction of a ledger entry
type EntryType string

const (
	EntryTypeCredit EntryType = "credit"
	EntryTypeDebit  EntryType = "debit"
	EntryTypeRefund EntryType = "refund"
)

// Valid reports whether t is one of the known entry types
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeCredit, EntryTypeDebit, EntryTypeRefund:
		return true
	}
	return false
}

// ReferenceType is the category of event that caused a ledger entry
type ReferenceType string

const (
	ReferenceCall             ReferenceType = "call"
	ReferenceSms              ReferenceType = "sms"
	ReferenceEmail            ReferenceType = "email"
	ReferenceFax              ReferenceType = "fax"
	ReferenceFileTransfer     ReferenceType = "file_transfer"
	ReferenceTopUp            ReferenceType = "top_up"
	ReferenceMonthlyDeduction ReferenceType = "monthly_deduction"
)

// Valid reports whether r is one of the known reference types
func (r ReferenceType) Valid() bool {
	switch r {
	case ReferenceCall, ReferenceSms, ReferenceEmail, ReferenceFax, ReferenceFileTransfer,
		ReferenceTopUp, ReferenceMonthlyDeduction:
		return true
	}
	return false
}

// CommunicationKind is a billable communication channel
type CommunicationKind string

const (
	KindCall         CommunicationKind = "call"
	KindSms          CommunicationKind = "sms"
	KindEmail        CommunicationKind = "email"
	KindFax          CommunicationKind = "fax"
	KindFileTransfer CommunicationKind = "file_transfer"
)

// ReferenceType maps a communication kind to the ledger reference type it is billed under
func (k CommunicationKind) ReferenceType() ReferenceType {
	return ReferenceType(k)
}

// BillingStatus is the state of a monthly billing record
type BillingStatus string

const (
	BillingStatusPending   BillingStatus = "pending"
	BillingStatusProcessed BillingStatus = "processed"
	BillingStatusFailed    BillingStatus = "failed"
)

// Terminal reports whether no further transitions are allowed for the period
func (s BillingStatus) Terminal() bool {
	return s == BillingStatusProcessed || s == BillingStatusFailed
}

// User represents a user in the system
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Wallet is a user's prepaid balance (hot data)
type Wallet struct {
	Id        string          `db:"id"`
	UserId    string          `db:"user_id"`
	Balance   decimal.Decimal `db:"balance"`
	Currency  string          `db:"currency"`
	Version   int64           `db:"version"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// LedgerEntry is an immutable wallet transaction (cold data)
type LedgerEntry struct {
	Id                 int64           `db:"id"`
	WalletId           string          `db:"wallet_id"`
	UserId             string          `db:"user_id"`
	Type               EntryType       `db:"type"`
	Amount             decimal.Decimal `db:"amount"`
	BalanceBefore      decimal.Decimal `db:"balance_before"`
	BalanceAfter       decimal.Decimal `db:"balance_after"`
	Description        string          `db:"description"`
	ReferenceType      ReferenceType   `db:"reference_type"`
	ReferenceId        string          `db:"reference_id"`
	ExternalPaymentRef string          `db:"external_payment_ref"`
	Currency           string          `db:"currency"`
	CreatedAt          time.Time       `db:"created_at"`
}

// MonthlyBillingRecord marks a (user, billing period) pair as handled by the sweep
type MonthlyBillingRecord struct {
	Id                 string          `db:"id"`
	UserId             string          `db:"user_id"`
	BillingPeriod      time.Time       `db:"billing_period"`
	TotalCalls         int             `db:"total_calls"`
	TotalCallMinutes   int64           `db:"total_call_minutes"`
	TotalSms           int             `db:"total_sms"`
	TotalEmails        int             `db:"total_emails"`
	TotalFaxes         int             `db:"total_faxes"`
	TotalFaxPages      int             `db:"total_fax_pages"`
	TotalFileTransfers int             `db:"total_file_transfers"`
	TotalAmount        decimal.Decimal `db:"total_amount"`
	Status             BillingStatus   `db:"status"`
	FailureReason      string          `db:"failure_reason"`
	LedgerEntryId      int64           `db:"ledger_entry_id"`
	ProcessedAt        *time.Time      `db:"processed_at"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// UsageEvent is a metered communication recorded for deferred (monthly) billing
type UsageEvent struct {
	Id              string            `db:"id"`
	UserId          string            `db:"user_id"`
	Kind            CommunicationKind `db:"kind"`
	Recipient       string            `db:"recipient"`
	DurationSeconds int64             `db:"duration_seconds"`
	PageCount       int               `db:"page_count"`
	ReferenceId     string            `db:"reference_id"`
	OccurredAt      time.Time         `db:"occurred_at"`
	CreatedAt       time.Time         `db:"created_at"`
}

// UsageSummary aggregates usage events for one user over a billing window
type UsageSummary struct {
	Calls         int
	CallMinutes   int64
	Sms           int
	Emails        int
	Faxes         int
	FaxPages      int
	FileTransfers int
	TotalAmount   decimal.Decimal
}

// TopUpIntentStatus is the processor-side state of a top-up, kept for observation only
type TopUpIntentStatus string

const (
	TopUpIntentCreated   TopUpIntentStatus = "created"
	TopUpIntentSucceeded TopUpIntentStatus = "succeeded"
	TopUpIntentFailed    TopUpIntentStatus = "failed"
	TopUpIntentCanceled  TopUpIntentStatus = "canceled"
)

// TopUpIntent tracks a payment intent created for a wallet top-up
type TopUpIntent struct {
	Id             string            `db:"id"`
	UserId         string            `db:"user_id"`
	AmountCents    int64             `db:"amount_cents"`
	Currency       string            `db:"currency"`
	Status         TopUpIntentStatus `db:"status"`
	FailureMessage string            `db:"failure_message"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
}

// BillingStatusCount is one row of the sweep status report
type BillingStatusCount struct {
	Status      BillingStatus   `db:"status" json:"status"`
	Count       int             `db:"count" json:"count"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
}
