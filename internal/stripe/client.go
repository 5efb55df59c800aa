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


// Package stripe implements the top-up payment processor on the Stripe API.
package stripe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/topup"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Client is a topup.Processor backed by Stripe.
type Client struct {
	webhookSecret string
}

var _ topup.Processor = (*Client)(nil)

// NewClient configures the stripe-go globals. A non-empty baseURL points the
// API backend elsewhere, which tests use.
func NewClient(cfg models.StripeConfig, baseURL string) (*Client, error) {
	httpClient, err := createCustomHttpClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	stripe.Key = cfg.SecretKey

	retries := int64(0)
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: &retries,
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if baseURL != "" {
		backendCfg.URL = stripe.String(baseURL)
	}
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg))

	return &Client{webhookSecret: cfg.WebhookSecret}, nil
}

func createCustomHttpClient(timeout time.Duration) (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

func (c *Client) CreateCustomer(ctx context.Context, params topup.CustomerParams) (string, error) {
	customerParams := &stripe.CustomerParams{
		Metadata: map[string]string{topup.MetadataUserId: params.UserId},
	}
	if params.Email != "" {
		customerParams.Email = stripe.String(params.Email)
	}
	if params.Name != "" {
		customerParams.Name = stripe.String(params.Name)
	}
	customerParams.Context = ctx

	cust, err := customer.New(customerParams)
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}

	zap.L().Info("Created Stripe customer",
		zap.String("customer_id", cust.ID),
		zap.String("user_id", params.UserId))
	return cust.ID, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, params topup.IntentParams) (*topup.PaymentIntent, error) {
	intentParams := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.AmountCents),
		Currency: stripe.String(stripeCurrency(params.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: params.Metadata,
	}
	if params.CustomerId != "" {
		intentParams.Customer = stripe.String(params.CustomerId)
	}
	if params.IdempotencyKey != "" {
		intentParams.SetIdempotencyKey(params.IdempotencyKey)
	}
	intentParams.Context = ctx

	pi, err := paymentintent.New(intentParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return toPaymentIntent(pi), nil
}

func (c *Client) GetPaymentIntent(ctx context.Context, intentId string) (*topup.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(intentId, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent %s: %w", intentId, err)
	}
	return toPaymentIntent(pi), nil
}

// ParseEvent verifies the Stripe-Signature header and maps the event onto
// the processor-neutral shape.
func (c *Client) ParseEvent(payload []byte, signature string) (*topup.PaymentEvent, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature", topup.ErrInvalidEvent)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: webhook signature verification failed: %v", topup.ErrInvalidEvent, err)
	}

	result := &topup.PaymentEvent{
		Id:      event.ID,
		RawType: string(event.Type),
		Type:    topup.EventIgnored,
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		var pi stripe.PaymentIntent
		if err := pi.UnmarshalJSON(event.Data.Raw); err != nil {
			return nil, fmt.Errorf("%w: failed to parse payment intent: %v", topup.ErrInvalidEvent, err)
		}
		result.Intent = toPaymentIntent(&pi)
		switch event.Type {
		case stripe.EventTypePaymentIntentSucceeded:
			result.Type = topup.EventIntentSucceeded
		case stripe.EventTypePaymentIntentPaymentFailed:
			result.Type = topup.EventIntentFailed
		default:
			result.Type = topup.EventIntentCanceled
		}

	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := ch.UnmarshalJSON(event.Data.Raw); err != nil {
			return nil, fmt.Errorf("%w: failed to parse charge: %v", topup.ErrInvalidEvent, err)
		}
		result.Type = topup.EventChargeRefunded
		result.RefundAmountCents = refundedSince(&ch, event.Data.PreviousAttributes)
		if ch.PaymentIntent != nil {
			result.Intent = &topup.PaymentIntent{
				Id:          ch.PaymentIntent.ID,
				AmountCents: ch.Amount,
				Currency:    string(ch.Currency),
				Metadata:    ch.Metadata,
			}
		}
	}

	return result, nil
}

// refundedSince is the amount this event refunded. Partial refunds arrive as
// separate events with a growing amount_refunded.
func refundedSince(ch *stripe.Charge, previous map[string]interface{}) int64 {
	if prev, ok := previous["amount_refunded"].(float64); ok {
		return ch.AmountRefunded - int64(prev)
	}
	if ch.Refunds != nil && len(ch.Refunds.Data) > 0 {
		return ch.Refunds.Data[0].Amount
	}
	return ch.AmountRefunded
}

func toPaymentIntent(pi *stripe.PaymentIntent) *topup.PaymentIntent {
	intent := &topup.PaymentIntent{
		Id:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
		Status:       topup.IntentStatus(pi.Status),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		intent.FailureMessage = pi.LastPaymentError.Msg
	}
	return intent
}

func stripeCurrency(currency string) string {
	if currency == "" {
		return string(stripe.CurrencyUSD)
	}
	return strings.ToLower(currency)
}
