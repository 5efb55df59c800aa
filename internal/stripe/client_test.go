package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/topup"
)

const testWebhookSecret = "whsec_unit_test"

func signatureHeader(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", timestamp)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(models.StripeConfig{
		SecretKey:     "sk_test_unit",
		WebhookSecret: testWebhookSecret,
		Timeout:       2 * time.Second,
	}, baseURL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestParseEvent_PaymentIntentSucceeded(t *testing.T) {
	client := newTestClient(t, "")

	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_123",
			"object": "payment_intent",
			"amount": 2500,
			"currency": "usd",
			"status": "succeeded",
			"metadata": {"userId": "user1", "type": "wallet_topup"}
		}}
	}`)

	event, err := client.ParseEvent(payload, signatureHeader(payload, testWebhookSecret, time.Now().Unix()))
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if event.Type != topup.EventIntentSucceeded {
		t.Errorf("Expected intent_succeeded, got %s", event.Type)
	}
	if event.Intent.Id != "pi_123" || event.Intent.AmountCents != 2500 {
		t.Errorf("Unexpected intent: %+v", event.Intent)
	}
	if !event.Intent.IsWalletTopUp() || event.Intent.Metadata[topup.MetadataUserId] != "user1" {
		t.Errorf("Expected wallet top-up metadata, got %v", event.Intent.Metadata)
	}
}

func TestParseEvent_PaymentFailed(t *testing.T) {
	client := newTestClient(t, "")

	payload := []byte(`{
		"id": "evt_2",
		"object": "event",
		"type": "payment_intent.payment_failed",
		"data": {"object": {
			"id": "pi_456",
			"object": "payment_intent",
			"amount": 1000,
			"currency": "usd",
			"status": "requires_payment_method",
			"last_payment_error": {"message": "Your card was declined."},
			"metadata": {"userId": "user1", "type": "wallet_topup"}
		}}
	}`)

	event, err := client.ParseEvent(payload, signatureHeader(payload, testWebhookSecret, time.Now().Unix()))
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if event.Type != topup.EventIntentFailed {
		t.Errorf("Expected intent_failed, got %s", event.Type)
	}
	if event.Intent.FailureMessage != "Your card was declined." {
		t.Errorf("Unexpected failure message: %q", event.Intent.FailureMessage)
	}
}

func TestParseEvent_ChargeRefunded(t *testing.T) {
	client := newTestClient(t, "")

	payload := []byte(`{
		"id": "evt_3",
		"object": "event",
		"type": "charge.refunded",
		"data": {
			"object": {
				"id": "ch_1",
				"object": "charge",
				"amount": 2500,
				"amount_refunded": 1500,
				"currency": "usd",
				"payment_intent": "pi_123",
				"metadata": {"userId": "user1", "type": "wallet_topup"}
			},
			"previous_attributes": {"amount_refunded": 500}
		}
	}`)

	event, err := client.ParseEvent(payload, signatureHeader(payload, testWebhookSecret, time.Now().Unix()))
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if event.Type != topup.EventChargeRefunded {
		t.Errorf("Expected charge_refunded, got %s", event.Type)
	}
	if event.RefundAmountCents != 1000 {
		t.Errorf("Expected refund of 1000 cents, got %d", event.RefundAmountCents)
	}
	if event.Intent == nil || event.Intent.Id != "pi_123" {
		t.Errorf("Expected refund to reference pi_123, got %+v", event.Intent)
	}
}

func TestParseEvent_Unhandled(t *testing.T) {
	client := newTestClient(t, "")

	payload := []byte(`{"id": "evt_4", "object": "event", "type": "customer.created", "data": {"object": {}}}`)
	event, err := client.ParseEvent(payload, signatureHeader(payload, testWebhookSecret, time.Now().Unix()))
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if event.Type != topup.EventIgnored || event.RawType != "customer.created" {
		t.Errorf("Expected ignored customer.created, got %+v", event)
	}
}

func TestParseEvent_InvalidSignature(t *testing.T) {
	client := newTestClient(t, "")
	payload := []byte(`{"id": "evt_5", "object": "event", "type": "payment_intent.succeeded", "data": {"object": {}}}`)

	tests := []struct {
		name      string
		signature string
	}{
		{"missing", ""},
		{"forged", "t=123,v1=deadbeef"},
		{"wrong secret", signatureHeader(payload, "whsec_other", time.Now().Unix())},
		{"stale", signatureHeader(payload, testWebhookSecret, time.Now().Add(-time.Hour).Unix())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ParseEvent(payload, tt.signature)
			if !errors.Is(err, topup.ErrInvalidEvent) {
				t.Errorf("Expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestCreatePaymentIntent(t *testing.T) {
	var form map[string][]string
	var idempotencyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			http.NotFound(w, r)
			return
		}
		idempotencyKey = r.Header.Get("Idempotency-Key")
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse form: %v", err)
		}
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_new","object":"payment_intent","client_secret":"pi_new_secret","amount":2500,"currency":"usd","status":"requires_payment_method","metadata":{"userId":"user1","type":"wallet_topup"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	intent, err := client.CreatePaymentIntent(context.Background(), topup.IntentParams{
		CustomerId:     "cus_1",
		AmountCents:    2500,
		Currency:       "USD",
		Metadata:       map[string]string{topup.MetadataUserId: "user1", topup.MetadataType: topup.TypeWalletTopUp},
		IdempotencyKey: "wallet-topup:user1:req-7",
	})
	if err != nil {
		t.Fatalf("CreatePaymentIntent failed: %v", err)
	}
	if idempotencyKey != "wallet-topup:user1:req-7" {
		t.Errorf("Expected idempotency key to be forwarded, got %q", idempotencyKey)
	}
	if intent.Id != "pi_new" || intent.ClientSecret != "pi_new_secret" {
		t.Errorf("Unexpected intent: %+v", intent)
	}
	if got := form["currency"]; len(got) != 1 || got[0] != "usd" {
		t.Errorf("Expected currency usd, got %v", got)
	}
	if got := form["metadata[type]"]; len(got) != 1 || got[0] != "wallet_topup" {
		t.Errorf("Expected wallet_topup metadata, got %v", got)
	}
	if got := form["automatic_payment_methods[enabled]"]; len(got) != 1 || got[0] != "true" {
		t.Errorf("Expected automatic payment methods enabled, got %v", got)
	}
}
