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

package topup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/observability"
	"prepaid-billing-go/internal/resilience"
	"prepaid-billing-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("prepaid-billing-go/internal/topup")

type Config struct {
	Currency string
	MinCents int64
	MaxCents int64
	Timeout  time.Duration
}

// Service creates payment intents and applies confirmed payments to wallets.
type Service struct {
	processor Processor
	ledger    store.LedgerStore
	payments  store.PaymentStore
	metrics   *observability.Metrics
	breaker   *gobreaker.CircuitBreaker
	cfg       Config
}

func NewService(processor Processor, ledger store.LedgerStore, payments store.PaymentStore, metrics *observability.Metrics, cfg Config) *Service {
	return &Service{
		processor: processor,
		ledger:    ledger,
		payments:  payments,
		metrics:   metrics,
		breaker:   resilience.NewCircuitBreaker("payment-processor"),
		cfg:       cfg,
	}
}

// CreateTopUp validates the amount and opens a payment intent. It never touches the balance.
// A non-empty idempotencyKey makes client retries return the same intent.
func (s *Service) CreateTopUp(ctx context.Context, userId string, amountCents int64, idempotencyKey string) (*models.TopUpIntentResult, error) {
	ctx, span := tracer.Start(ctx, "topup.CreateTopUp")
	defer span.End()

	if strings.TrimSpace(userId) == "" {
		return nil, ErrUserRequired
	}
	if amountCents < s.cfg.MinCents || amountCents > s.cfg.MaxCents {
		return nil, &AmountOutOfRangeError{AmountCents: amountCents, MinCents: s.cfg.MinCents, MaxCents: s.cfg.MaxCents}
	}

	customerId, err := s.customerFor(ctx, userId)
	if err != nil {
		return nil, err
	}

	currency := s.cfg.Currency
	if wallet, err := s.ledger.GetWallet(ctx, userId); err == nil {
		currency = wallet.Currency
	}

	intent, err := callProcessor(ctx, s, "create_intent", func(ctx context.Context) (*PaymentIntent, error) {
		return s.processor.CreatePaymentIntent(ctx, IntentParams{
			CustomerId:  customerId,
			AmountCents: amountCents,
			Currency:    currency,
			Metadata: map[string]string{
				MetadataUserId: userId,
				MetadataType:   TypeWalletTopUp,
			},
			IdempotencyKey: intentIdempotencyKey(userId, idempotencyKey),
		})
	})
	if err != nil {
		zap.L().Error("Failed to create payment intent",
			zap.String("user_id", userId),
			zap.Int64("amount_cents", amountCents),
			zap.Error(err))
		return nil, err
	}

	if err := s.payments.SaveTopUpIntent(ctx, models.TopUpIntent{
		Id:          intent.Id,
		UserId:      userId,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      models.TopUpIntentCreated,
	}); err != nil {
		zap.L().Warn("Failed to record top-up intent", zap.String("intent_id", intent.Id), zap.Error(err))
	}

	s.metrics.IncrTopUp("intent_created")
	zap.L().Info("Created top-up payment intent",
		zap.String("user_id", userId),
		zap.String("intent_id", intent.Id),
		zap.Int64("amount_cents", amountCents))

	return &models.TopUpIntentResult{
		IntentId:     intent.Id,
		ClientSecret: intent.ClientSecret,
		AmountCents:  amountCents,
		Currency:     currency,
	}, nil
}

// ApplyTopUp credits a confirmed payment. A repeated intentId is a no-op success.
func (s *Service) ApplyTopUp(ctx context.Context, userId string, amountCents int64, intentId string) (*models.TopUpResult, error) {
	ctx, span := tracer.Start(ctx, "topup.ApplyTopUp")
	defer span.End()

	if strings.TrimSpace(userId) == "" {
		return nil, ErrUserRequired
	}
	if intentId == "" || amountCents <= 0 {
		return nil, fmt.Errorf("%w: intent id and a positive amount are required", ErrInvalidEvent)
	}

	amount := decimal.NewFromInt(amountCents).Shift(-2)
	entry, applied, err := s.ledger.Credit(ctx, store.CreditParams{
		UserId:             userId,
		Currency:           s.cfg.Currency,
		Amount:             amount,
		Description:        fmt.Sprintf("Wallet top-up via Stripe - $%s", amount.StringFixed(2)),
		ReferenceType:      models.ReferenceTopUp,
		ExternalPaymentRef: intentId,
	})
	if err != nil {
		s.metrics.IncrTopUp("error")
		zap.L().Error("Failed to apply top-up",
			zap.String("user_id", userId),
			zap.String("amount", amount.String()),
			zap.String("intent_id", intentId),
			zap.Error(err))
		return nil, fmt.Errorf("failed to apply top-up: %w", err)
	}

	newBalance := entry.BalanceAfter
	if applied {
		s.metrics.IncrTopUp("applied")
	} else {
		s.metrics.IncrTopUp("duplicate")
		if wallet, err := s.ledger.GetWallet(ctx, userId); err == nil {
			newBalance = wallet.Balance
		}
	}

	s.recordIntentStatus(ctx, intentId, models.TopUpIntentSucceeded, "")

	return &models.TopUpResult{
		UserId:     userId,
		IntentId:   intentId,
		Amount:     amount,
		NewBalance: newBalance,
		Applied:    applied,
		Status:     string(IntentSucceeded),
	}, nil
}

// ConfirmTopUp re-reads the intent from the processor and credits it only when
// it has succeeded. The processor-reported amount is what gets credited.
func (s *Service) ConfirmTopUp(ctx context.Context, userId, intentId string) (*models.TopUpResult, error) {
	ctx, span := tracer.Start(ctx, "topup.ConfirmTopUp")
	defer span.End()

	if strings.TrimSpace(userId) == "" {
		return nil, ErrUserRequired
	}

	intent, err := callProcessor(ctx, s, "get_intent", func(ctx context.Context) (*PaymentIntent, error) {
		return s.processor.GetPaymentIntent(ctx, intentId)
	})
	if err != nil {
		return nil, err
	}

	if !intent.IsWalletTopUp() {
		return nil, fmt.Errorf("%w: %s", ErrNotWalletTopUp, intentId)
	}
	if intent.Metadata[MetadataUserId] != userId {
		zap.L().Warn("Top-up confirmation for another user's intent",
			zap.String("user_id", userId),
			zap.String("intent_id", intentId))
		return nil, fmt.Errorf("%w: %s", ErrIntentNotOwned, intentId)
	}

	if intent.Status == IntentSucceeded {
		return s.ApplyTopUp(ctx, userId, intent.AmountCents, intent.Id)
	}

	s.observeUnsuccessful(ctx, intent)
	return &models.TopUpResult{
		UserId:     userId,
		IntentId:   intent.Id,
		Amount:     decimal.NewFromInt(intent.AmountCents).Shift(-2),
		NewBalance: s.currentBalance(ctx, userId),
		Applied:    false,
		Status:     string(intent.Status),
	}, nil
}

// HandleEvent processes a signed webhook delivery. A nil result means the
// event was acknowledged without any wallet effect.
func (s *Service) HandleEvent(ctx context.Context, payload []byte, signature string) (*models.TopUpResult, error) {
	ctx, span := tracer.Start(ctx, "topup.HandleEvent")
	defer span.End()

	event, err := s.processor.ParseEvent(payload, signature)
	if err != nil {
		zap.L().Warn("Rejected payment event", zap.Error(err))
		return nil, err
	}

	zap.L().Info("Received payment event",
		zap.String("event_id", event.Id),
		zap.String("event_type", event.RawType))

	switch event.Type {
	case EventIntentSucceeded:
		if !event.Intent.IsWalletTopUp() {
			zap.L().Info("Ignoring non top-up payment intent", zap.String("intent_id", event.Intent.Id))
			return nil, nil
		}
		userId := event.Intent.Metadata[MetadataUserId]
		if userId == "" {
			return nil, fmt.Errorf("%w: intent %s has no user metadata", ErrInvalidEvent, event.Intent.Id)
		}
		return s.ApplyTopUp(ctx, userId, event.Intent.AmountCents, event.Intent.Id)

	case EventIntentFailed, EventIntentCanceled:
		s.observeUnsuccessful(ctx, event.Intent)
		return nil, nil

	case EventChargeRefunded:
		return s.applyRefund(ctx, event)
	}

	zap.L().Debug("Unhandled payment event type", zap.String("event_type", event.RawType))
	return nil, nil
}

// applyRefund debits the wallet for a processor refund, keyed by event id.
// A refund larger than the remaining balance is logged and acknowledged.
func (s *Service) applyRefund(ctx context.Context, event *PaymentEvent) (*models.TopUpResult, error) {
	if event.Intent == nil || event.Intent.Id == "" || event.RefundAmountCents <= 0 {
		zap.L().Info("Ignoring refund without a top-up intent", zap.String("event_id", event.Id))
		return nil, nil
	}

	userId := event.Intent.Metadata[MetadataUserId]
	if stored, err := s.payments.GetTopUpIntent(ctx, event.Intent.Id); err == nil {
		userId = stored.UserId
	}
	if userId == "" {
		zap.L().Info("Ignoring refund for unknown intent", zap.String("intent_id", event.Intent.Id))
		return nil, nil
	}

	amount := decimal.NewFromInt(event.RefundAmountCents).Shift(-2)
	entry, applied, err := s.ledger.Refund(ctx, store.RefundParams{
		UserId:             userId,
		Amount:             amount,
		Description:        fmt.Sprintf("Refund of wallet top-up - $%s", amount.StringFixed(2)),
		ExternalPaymentRef: event.Id,
	})
	if errors.Is(err, store.ErrInsufficientBalance) || errors.Is(err, store.ErrWalletNotFound) {
		s.metrics.IncrTopUp("refund_rejected")
		zap.L().Error("Refund could not be applied to wallet",
			zap.String("user_id", userId),
			zap.String("amount", amount.String()),
			zap.String("intent_id", event.Intent.Id),
			zap.Error(err))
		return &models.TopUpResult{UserId: userId, IntentId: event.Intent.Id, Amount: amount, Status: "refund_rejected"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply refund: %w", err)
	}

	if applied {
		s.metrics.IncrTopUp("refunded")
	}
	return &models.TopUpResult{
		UserId:     userId,
		IntentId:   event.Intent.Id,
		Amount:     amount,
		NewBalance: entry.BalanceAfter,
		Applied:    applied,
		Status:     "refunded",
	}, nil
}

// observeUnsuccessful records processor failure states. Balances are never touched.
func (s *Service) observeUnsuccessful(ctx context.Context, intent *PaymentIntent) {
	status := models.TopUpIntentFailed
	switch intent.Status {
	case IntentCanceled:
		status = models.TopUpIntentCanceled
	case IntentProcessing, IntentRequiresAction:
		return
	case IntentRequiresPaymentMethod:
		if intent.FailureMessage == "" {
			return
		}
	}

	s.metrics.IncrTopUp(string(status))
	zap.L().Warn("Top-up payment did not succeed",
		zap.String("intent_id", intent.Id),
		zap.String("user_id", intent.Metadata[MetadataUserId]),
		zap.Int64("amount_cents", intent.AmountCents),
		zap.String("status", string(intent.Status)),
		zap.String("failure_message", intent.FailureMessage))
	s.recordIntentStatus(ctx, intent.Id, status, intent.FailureMessage)
}

func (s *Service) recordIntentStatus(ctx context.Context, intentId string, status models.TopUpIntentStatus, message string) {
	err := s.payments.UpdateTopUpIntentStatus(ctx, intentId, status, message)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		zap.L().Warn("Failed to update top-up intent status", zap.String("intent_id", intentId), zap.Error(err))
	}
}

func (s *Service) currentBalance(ctx context.Context, userId string) decimal.Decimal {
	wallet, err := s.ledger.GetWallet(ctx, userId)
	if err != nil {
		return decimal.Zero
	}
	return wallet.Balance
}

// customerFor returns the user's processor customer, creating it on first use.
func (s *Service) customerFor(ctx context.Context, userId string) (string, error) {
	customerId, err := s.payments.GetPaymentCustomer(ctx, userId)
	if err == nil {
		return customerId, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return "", err
	}

	params := CustomerParams{UserId: userId}
	if user, err := s.ledger.GetUserById(ctx, userId); err == nil {
		params.Email = user.Email
		params.Name = user.Name
	}

	customerId, err = callProcessor(ctx, s, "create_customer", func(ctx context.Context) (string, error) {
		return s.processor.CreateCustomer(ctx, params)
	})
	if err != nil {
		return "", err
	}

	if err := s.payments.SavePaymentCustomer(ctx, userId, customerId); err != nil {
		return "", err
	}
	// A concurrent first top-up may have stored a different customer first
	return s.payments.GetPaymentCustomer(ctx, userId)
}

// callProcessor runs fn through the circuit breaker with the configured timeout.
func callProcessor[T any](ctx context.Context, s *Service, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return fn(callCtx)
	})
	if err != nil {
		s.metrics.IncrProcessorError(op)
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded)
		return zero, &PaymentProcessorError{Op: op, Err: err, Timeout: timedOut}
	}
	return result.(T), nil
}

func centsToDollars(cents int64) string {
	return decimal.NewFromInt(cents).Shift(-2).StringFixed(2)
}

// intentIdempotencyKey scopes a client key to the user so two users can never
// share a processor-side intent.
func intentIdempotencyKey(userId, clientKey string) string {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		return ""
	}
	return fmt.Sprintf("wallet-topup:%s:%s", userId, clientKey)
}
