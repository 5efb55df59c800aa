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


// Package topup bridges the external payment processor to the wallet ledger.
// Only a confirmed payment ever credits a wallet.
package topup

import (
	"context"
	"errors"
	"fmt"
)

// Metadata attached to every top-up payment intent.
const (
	MetadataUserId  = "userId"
	MetadataType    = "type"
	TypeWalletTopUp = "wallet_topup"
)

// IntentStatus is the processor-side state of a payment intent.
type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentCanceled              IntentStatus = "canceled"
)

// EventType classifies a verified processor event.
type EventType string

const (
	EventIntentSucceeded EventType = "intent_succeeded"
	EventIntentFailed    EventType = "intent_failed"
	EventIntentCanceled  EventType = "intent_canceled"
	EventChargeRefunded  EventType = "charge_refunded"
	EventIgnored         EventType = "ignored"
)

// Processor is the payment gateway contract.
type Processor interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreatePaymentIntent(ctx context.Context, params IntentParams) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, intentId string) (*PaymentIntent, error)
	// ParseEvent verifies the signature and decodes the event payload.
	ParseEvent(payload []byte, signature string) (*PaymentEvent, error)
}

type CustomerParams struct {
	UserId string
	Email  string
	Name   string
}

type IntentParams struct {
	CustomerId     string
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type PaymentIntent struct {
	Id             string
	ClientSecret   string
	AmountCents    int64
	Currency       string
	Status         IntentStatus
	Metadata       map[string]string
	FailureMessage string
}

// IsWalletTopUp reports whether the intent was created by this service for a wallet.
func (p *PaymentIntent) IsWalletTopUp() bool {
	return p.Metadata[MetadataType] == TypeWalletTopUp
}

// PaymentEvent is a verified webhook event. Refund events carry the refunded
// amount and the intent the charge belonged to.
type PaymentEvent struct {
	Id                string
	Type              EventType
	RawType           string
	Intent            *PaymentIntent
	RefundAmountCents int64
}

var (
	ErrInvalidEvent   = errors.New("invalid payment event")
	ErrUserRequired   = errors.New("user_id is required")
	ErrNotWalletTopUp = errors.New("payment intent is not a wallet top-up")
	ErrIntentNotOwned = errors.New("payment intent belongs to another user")
)

// AmountOutOfRangeError is returned before any processor call when a top-up
// amount falls outside the configured bounds.
type AmountOutOfRangeError struct {
	AmountCents int64
	MinCents    int64
	MaxCents    int64
}

func (e *AmountOutOfRangeError) Error() string {
	return fmt.Sprintf("Invalid amount. Must be between $%s and $%s", centsToDollars(e.MinCents), centsToDollars(e.MaxCents))
}

// PaymentProcessorError wraps any failure talking to the processor. When
// Timeout is set the outcome is unknown and the webhook decides.
type PaymentProcessorError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *PaymentProcessorError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("payment processor %s timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("payment processor %s failed: %v", e.Op, e.Err)
}

func (e *PaymentProcessorError) Unwrap() error { return e.Err }
