package topup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"prepaid-billing-go/internal/database"
	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/observability"
	"prepaid-billing-go/internal/store"

	"github.com/shopspring/decimal"
)

type fakeProcessor struct {
	mu        sync.Mutex
	intents   map[string]*PaymentIntent
	customers int
	events    map[string]*PaymentEvent
	createErr error
	delay     time.Duration
	next      int
	lastKey   string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		intents: make(map[string]*PaymentIntent),
		events:  make(map[string]*PaymentEvent),
	}
}

func (f *fakeProcessor) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers++
	return fmt.Sprintf("cus_%d", f.customers), nil
}

func (f *fakeProcessor) CreatePaymentIntent(ctx context.Context, params IntentParams) (*PaymentIntent, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.createErr != nil {
		return nil, f.createErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastKey = params.IdempotencyKey
	f.next++
	intent := &PaymentIntent{
		Id:           fmt.Sprintf("pi_%d", f.next),
		ClientSecret: fmt.Sprintf("pi_%d_secret", f.next),
		AmountCents:  params.AmountCents,
		Currency:     params.Currency,
		Status:       IntentRequiresPaymentMethod,
		Metadata:     params.Metadata,
	}
	f.intents[intent.Id] = intent
	return intent, nil
}

func (f *fakeProcessor) GetPaymentIntent(ctx context.Context, intentId string) (*PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent, ok := f.intents[intentId]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	copied := *intent
	return &copied, nil
}

func (f *fakeProcessor) ParseEvent(payload []byte, signature string) (*PaymentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if signature != "valid" {
		return nil, fmt.Errorf("%w: bad signature", ErrInvalidEvent)
	}
	event, ok := f.events[string(payload)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown payload", ErrInvalidEvent)
	}
	return event, nil
}

func (f *fakeProcessor) succeed(intentId string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[intentId].Status = IntentSucceeded
}

func setupService(t *testing.T) (*Service, *fakeProcessor, *database.Service) {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "topup_test.db"),
		MaxOpenConns:   5,
		MaxIdleConns:   2,
		PingTimeout:    time.Second,
		BusyTimeout:    5 * time.Second,
		TxMaxRetries:   5,
		TxRetryBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(db.Close)

	processor := newFakeProcessor()
	service := NewService(processor, db, db, observability.NewMetrics(), Config{
		Currency: "USD",
		MinCents: 500,
		MaxCents: 50000,
		Timeout:  200 * time.Millisecond,
	})
	return service, processor, db
}

func TestCreateTopUp_IdempotencyKey(t *testing.T) {
	service, processor, _ := setupService(t)
	ctx := context.Background()

	if _, err := service.CreateTopUp(ctx, "user1", 2500, "req-7"); err != nil {
		t.Fatalf("CreateTopUp failed: %v", err)
	}
	if processor.lastKey != "wallet-topup:user1:req-7" {
		t.Errorf("Expected user-scoped idempotency key, got %q", processor.lastKey)
	}

	if _, err := service.CreateTopUp(ctx, "user1", 2500, "  "); err != nil {
		t.Fatalf("CreateTopUp failed: %v", err)
	}
	if processor.lastKey != "" {
		t.Errorf("Expected no idempotency key for a blank client key, got %q", processor.lastKey)
	}
}

func TestCreateTopUp_AmountBounds(t *testing.T) {
	service, processor, _ := setupService(t)

	for _, cents := range []int64{0, 499, 50001} {
		_, err := service.CreateTopUp(context.Background(), "user1", cents, "")
		var rangeErr *AmountOutOfRangeError
		if !errors.As(err, &rangeErr) {
			t.Fatalf("Expected AmountOutOfRangeError for %d cents, got %v", cents, err)
		}
		if rangeErr.Error() != "Invalid amount. Must be between $5.00 and $500.00" {
			t.Errorf("Unexpected message: %s", rangeErr.Error())
		}
	}
	if len(processor.intents) != 0 {
		t.Errorf("Expected no intents created, got %d", len(processor.intents))
	}
}

func TestCreateTopUp_ReusesCustomer(t *testing.T) {
	service, processor, db := setupService(t)
	ctx := context.Background()

	if _, err := db.CreateUser(ctx, "user1", "Ada", "ada@example.com"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	first, err := service.CreateTopUp(ctx, "user1", 2500, "")
	if err != nil {
		t.Fatalf("CreateTopUp failed: %v", err)
	}
	if first.ClientSecret == "" || first.IntentId == "" {
		t.Errorf("Expected intent id and client secret, got %+v", first)
	}
	if _, err := service.CreateTopUp(ctx, "user1", 1000, ""); err != nil {
		t.Fatalf("Second CreateTopUp failed: %v", err)
	}

	if processor.customers != 1 {
		t.Errorf("Expected 1 customer created, got %d", processor.customers)
	}

	intent := processor.intents[first.IntentId]
	if intent.Metadata[MetadataUserId] != "user1" || intent.Metadata[MetadataType] != TypeWalletTopUp {
		t.Errorf("Unexpected intent metadata: %v", intent.Metadata)
	}

	wallet, err := db.GetWallet(ctx, "user1")
	if err == nil && !wallet.Balance.IsZero() {
		t.Errorf("Expected creating an intent to leave the balance untouched, got %s", wallet.Balance)
	}

	stored, err := db.GetTopUpIntent(ctx, first.IntentId)
	if err != nil {
		t.Fatalf("GetTopUpIntent failed: %v", err)
	}
	if stored.Status != models.TopUpIntentCreated {
		t.Errorf("Expected status created, got %s", stored.Status)
	}
}

func TestCreateTopUp_ProcessorTimeout(t *testing.T) {
	service, processor, _ := setupService(t)
	processor.delay = time.Second

	_, err := service.CreateTopUp(context.Background(), "user1", 2500, "")
	var procErr *PaymentProcessorError
	if !errors.As(err, &procErr) {
		t.Fatalf("Expected PaymentProcessorError, got %v", err)
	}
	if !procErr.Timeout {
		t.Errorf("Expected timeout flag to be set")
	}
}

func TestApplyTopUp_Idempotent(t *testing.T) {
	service, _, db := setupService(t)
	ctx := context.Background()

	first, err := service.ApplyTopUp(ctx, "user1", 2500, "pi_abc")
	if err != nil {
		t.Fatalf("ApplyTopUp failed: %v", err)
	}
	if !first.Applied {
		t.Errorf("Expected first delivery to apply")
	}

	second, err := service.ApplyTopUp(ctx, "user1", 2500, "pi_abc")
	if err != nil {
		t.Fatalf("Duplicate ApplyTopUp failed: %v", err)
	}
	if second.Applied {
		t.Errorf("Expected duplicate delivery not to apply")
	}
	if !second.NewBalance.Equal(decimal.NewFromInt(25)) {
		t.Errorf("Expected balance 25, got %s", second.NewBalance)
	}

	entries, err := db.GetTransactions(ctx, "user1", 10, 0)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 ledger entry, got %d", len(entries))
	}
	if entries[0].Description != "Wallet top-up via Stripe - $25.00" {
		t.Errorf("Unexpected description: %s", entries[0].Description)
	}
}

func TestConfirmTopUp(t *testing.T) {
	service, processor, _ := setupService(t)
	ctx := context.Background()

	created, err := service.CreateTopUp(ctx, "user1", 1000, "")
	if err != nil {
		t.Fatalf("CreateTopUp failed: %v", err)
	}

	pending, err := service.ConfirmTopUp(ctx, "user1", created.IntentId)
	if err != nil {
		t.Fatalf("ConfirmTopUp failed: %v", err)
	}
	if pending.Applied || pending.Status != string(IntentRequiresPaymentMethod) {
		t.Errorf("Expected unapplied requires_payment_method result, got %+v", pending)
	}

	if _, err := service.ConfirmTopUp(ctx, "user2", created.IntentId); !errors.Is(err, ErrIntentNotOwned) {
		t.Errorf("Expected ErrIntentNotOwned, got %v", err)
	}

	processor.succeed(created.IntentId)
	confirmed, err := service.ConfirmTopUp(ctx, "user1", created.IntentId)
	if err != nil {
		t.Fatalf("ConfirmTopUp failed: %v", err)
	}
	if !confirmed.Applied || !confirmed.NewBalance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected applied top-up with balance 10, got %+v", confirmed)
	}
}

func TestHandleEvent(t *testing.T) {
	service, processor, db := setupService(t)
	ctx := context.Background()

	topUp := &PaymentIntent{
		Id:          "pi_hook",
		AmountCents: 2500,
		Status:      IntentSucceeded,
		Metadata:    map[string]string{MetadataUserId: "user1", MetadataType: TypeWalletTopUp},
	}
	processor.events["succeeded"] = &PaymentEvent{Id: "evt_1", Type: EventIntentSucceeded, RawType: "payment_intent.succeeded", Intent: topUp}
	processor.events["other"] = &PaymentEvent{Id: "evt_2", Type: EventIntentSucceeded, RawType: "payment_intent.succeeded",
		Intent: &PaymentIntent{Id: "pi_other", AmountCents: 9900, Status: IntentSucceeded}}
	processor.events["failed"] = &PaymentEvent{Id: "evt_3", Type: EventIntentFailed, RawType: "payment_intent.payment_failed",
		Intent: &PaymentIntent{Id: "pi_fail", Status: IntentRequiresPaymentMethod, FailureMessage: "card declined", Metadata: topUp.Metadata}}
	processor.events["refund"] = &PaymentEvent{Id: "evt_4", Type: EventChargeRefunded, RawType: "charge.refunded", Intent: topUp, RefundAmountCents: 1000}
	processor.events["big_refund"] = &PaymentEvent{Id: "evt_5", Type: EventChargeRefunded, RawType: "charge.refunded", Intent: topUp, RefundAmountCents: 9000}

	if _, err := service.HandleEvent(ctx, []byte("succeeded"), "forged"); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("Expected ErrInvalidEvent for a bad signature, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := service.HandleEvent(ctx, []byte("succeeded"), "valid"); err != nil {
			t.Fatalf("HandleEvent succeeded failed: %v", err)
		}
	}
	result, err := service.HandleEvent(ctx, []byte("other"), "valid")
	if err != nil || result != nil {
		t.Fatalf("Expected non top-up intent to be ignored, got %+v, %v", result, err)
	}
	if _, err := service.HandleEvent(ctx, []byte("failed"), "valid"); err != nil {
		t.Fatalf("HandleEvent failed event: %v", err)
	}

	wallet, err := db.GetWallet(ctx, "user1")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !wallet.Balance.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("Expected balance 25 after duplicate deliveries, got %s", wallet.Balance)
	}

	refund, err := service.HandleEvent(ctx, []byte("refund"), "valid")
	if err != nil {
		t.Fatalf("HandleEvent refund failed: %v", err)
	}
	if !refund.Applied || !refund.NewBalance.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Expected refund applied leaving 15, got %+v", refund)
	}
	if replay, err := service.HandleEvent(ctx, []byte("refund"), "valid"); err != nil || replay.Applied {
		t.Errorf("Expected replayed refund not to apply, got %+v, %v", replay, err)
	}

	rejected, err := service.HandleEvent(ctx, []byte("big_refund"), "valid")
	if err != nil {
		t.Fatalf("Expected an oversized refund to be acknowledged, got %v", err)
	}
	if rejected.Status != "refund_rejected" {
		t.Errorf("Expected refund_rejected, got %s", rejected.Status)
	}

	if err := db.ReconcileWallet(ctx, "user1"); err != nil {
		t.Errorf("ReconcileWallet failed: %v", err)
	}
}

func TestApplyTopUp_RequiresUser(t *testing.T) {
	service, _, _ := setupService(t)

	if _, err := service.ApplyTopUp(context.Background(), " ", 2500, "pi_x"); !errors.Is(err, ErrUserRequired) {
		t.Errorf("Expected ErrUserRequired, got %v", err)
	}
	if _, err := service.ApplyTopUp(context.Background(), "user1", 0, "pi_x"); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("Expected ErrInvalidEvent, got %v", err)
	}
	var _ store.PaymentStore = (*database.Service)(nil)
}
