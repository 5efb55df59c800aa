package api

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"prepaid-billing-go/internal/database"
	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/observability"
	"prepaid-billing-go/internal/pricing"
	"prepaid-billing-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupLedgerService(t *testing.T) (*LedgerService, *database.Service, func()) {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "api_test.db"),
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

	service := NewLedgerService(db, db, pricing.DefaultTable(), observability.NewMetrics())
	return service, db, db.Close
}

func credit(t *testing.T, db *database.Service, userId, amount string) {
	t.Helper()
	_, _, err := db.Credit(context.Background(), store.CreditParams{
		UserId:             userId,
		Currency:           "USD",
		Amount:             decimal.RequireFromString(amount),
		Description:        "Wallet top-up",
		ReferenceType:      models.ReferenceTopUp,
		ExternalPaymentRef: "pi_" + userId + "_" + amount,
	})
	if err != nil {
		t.Fatalf("Failed to credit wallet: %v", err)
	}
}

func TestRecordCommunicationCompleted_Call(t *testing.T) {
	service, db, cleanup := setupLedgerService(t)
	defer cleanup()

	ctx := context.Background()
	credit(t, db, "user1", "10")

	result, err := service.RecordCommunicationCompleted(ctx, CommunicationEvent{
		UserId:          "user1",
		Kind:            "call",
		Recipient:       "+15550100",
		DurationMinutes: decimal.RequireFromString("1.2"),
	})
	if err != nil {
		t.Fatalf("RecordCommunicationCompleted failed: %v", err)
	}
	if !result.Debited.Equal(decimal.RequireFromString("0.20")) {
		t.Errorf("Expected debit 0.20, got %s", result.Debited)
	}
	if !result.NewBalance.Equal(decimal.RequireFromString("9.80")) {
		t.Errorf("Expected new balance 9.80, got %s", result.NewBalance)
	}

	history, err := service.GetTransactions(ctx, "user1", 1)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if history[0].Description != "Phone call to +15550100 - 2 minutes" {
		t.Errorf("Unexpected description %q", history[0].Description)
	}
	if history[0].ReferenceType != models.ReferenceCall {
		t.Errorf("Expected reference type call, got %s", history[0].ReferenceType)
	}
}

func TestRecordCommunicationCompleted_Descriptions(t *testing.T) {
	service, db, cleanup := setupLedgerService(t)
	defer cleanup()

	ctx := context.Background()
	credit(t, db, "user1", "10")

	tests := []struct {
		event       CommunicationEvent
		amount      string
		description string
	}{
		{CommunicationEvent{Kind: "sms", Recipient: "+15550100"}, "0.02", "SMS to +15550100"},
		{CommunicationEvent{Kind: "email", Recipient: "a@example.com"}, "0.01", "Email to a@example.com"},
		{CommunicationEvent{Kind: "fax", Recipient: "+15550199", PageCount: 3}, "0.45", "Fax to +15550199 - 3 page(s)"},
		{CommunicationEvent{Kind: "fax", Recipient: "+15550199"}, "0.15", "Fax to +15550199 - 1 page(s)"},
		{CommunicationEvent{Kind: "file_transfer", Recipient: "b@example.com"}, "0.05", "File transfer to b@example.com"},
		{CommunicationEvent{Kind: "call", Recipient: "+15550100", DurationSeconds: 61}, "0.20", "Phone call to +15550100 - 2 minutes"},
	}

	for _, tt := range tests {
		tt.event.UserId = "user1"
		result, err := service.RecordCommunicationCompleted(ctx, tt.event)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tt.event.Kind, err)
		}
		if !result.Debited.Equal(decimal.RequireFromString(tt.amount)) {
			t.Errorf("%s: expected %s, got %s", tt.event.Kind, tt.amount, result.Debited)
		}

		history, err := service.GetTransactions(ctx, "user1", 1)
		if err != nil {
			t.Fatalf("GetTransactions failed: %v", err)
		}
		if history[0].Description != tt.description {
			t.Errorf("Expected description %q, got %q", tt.description, history[0].Description)
		}
	}

	if err := service.ReconcileWallet(ctx, "user1"); err != nil {
		t.Errorf("Expected wallet to reconcile, got %v", err)
	}
}

func TestRecordCommunicationCompleted_SmsOnEmptyWallet(t *testing.T) {
	service, db, cleanup := setupLedgerService(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := db.CreateOrGetWallet(ctx, "user1", "USD"); err != nil {
		t.Fatalf("CreateOrGetWallet failed: %v", err)
	}

	_, err := service.RecordCommunicationCompleted(ctx, CommunicationEvent{UserId: "user1", Kind: "sms", Recipient: "+15550100"})

	var insufficient *store.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Expected InsufficientBalanceError, got %v", err)
	}
	if insufficient.Error() != "Insufficient balance. Required: $0.02, Available: $0.00" {
		t.Errorf("Unexpected message %q", insufficient.Error())
	}

	history, _ := service.GetTransactions(ctx, "user1", 10)
	if len(history) != 0 {
		t.Errorf("Expected no ledger entries, got %d", len(history))
	}
}

func TestRecordCommunicationCompleted_RepeatedReference(t *testing.T) {
	service, db, cleanup := setupLedgerService(t)
	defer cleanup()

	ctx := context.Background()
	credit(t, db, "user1", "1")

	event := CommunicationEvent{UserId: "user1", Kind: "sms", Recipient: "+15550100", ReferenceId: "sms_42"}
	first, err := service.RecordCommunicationCompleted(ctx, event)
	if err != nil {
		t.Fatalf("RecordCommunicationCompleted failed: %v", err)
	}
	if !first.Applied || !first.NewBalance.Equal(decimal.RequireFromString("0.98")) {
		t.Errorf("Expected applied debit to 0.98, got %+v", first)
	}

	// A retried delivery is acknowledged without a second charge
	second, err := service.RecordCommunicationCompleted(ctx, event)
	if err != nil {
		t.Fatalf("Repeated delivery failed: %v", err)
	}
	if second.Applied || !second.Debited.IsZero() {
		t.Errorf("Expected no charge for repeated delivery, got %+v", second)
	}
	if second.EntryId != first.EntryId {
		t.Errorf("Expected original entry %d, got %d", first.EntryId, second.EntryId)
	}

	balance, err := service.GetBalance(ctx, "user1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Balance.Equal(decimal.RequireFromString("0.98")) {
		t.Errorf("Expected balance 0.98 after two deliveries, got %s", balance.Balance)
	}
}

func TestRecordCommunicationCompleted_InvalidInput(t *testing.T) {
	service, _, cleanup := setupLedgerService(t)
	defer cleanup()

	ctx := context.Background()

	_, err := service.RecordCommunicationCompleted(ctx, CommunicationEvent{UserId: "user1", Kind: "carrier_pigeon"})
	var invalidKind *pricing.InvalidCommunicationTypeError
	if !errors.As(err, &invalidKind) {
		t.Errorf("Expected InvalidCommunicationTypeError, got %v", err)
	}

	if _, err := service.RecordCommunicationCompleted(ctx, CommunicationEvent{Kind: "sms"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for missing user, got %v", err)
	}

	_, err = service.RecordCommunicationCompleted(ctx, CommunicationEvent{UserId: "user1", Kind: "sms"})
	if !errors.Is(err, store.ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestDebit_Validation(t *testing.T) {
	service, _, cleanup := setupLedgerService(t)
	defer cleanup()

	tests := []struct {
		name string
		req  DebitRequest
	}{
		{"missing user", DebitRequest{Amount: decimal.NewFromInt(1), ReferenceType: models.ReferenceSms}},
		{"zero amount", DebitRequest{UserId: "u", Amount: decimal.Zero, ReferenceType: models.ReferenceSms}},
		{"negative amount", DebitRequest{UserId: "u", Amount: decimal.NewFromInt(-1), ReferenceType: models.ReferenceSms}},
		{"unknown reference", DebitRequest{UserId: "u", Amount: decimal.NewFromInt(1), ReferenceType: "lottery"}},
		{"top-up reference", DebitRequest{UserId: "u", Amount: decimal.NewFromInt(1), ReferenceType: models.ReferenceTopUp}},
	}

	for _, tt := range tests {
		if _, err := service.Debit(context.Background(), tt.req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%s: expected ErrInvalidRequest, got %v", tt.name, err)
		}
	}
}

func TestGetBalance(t *testing.T) {
	service, db, cleanup := setupLedgerService(t)
	defer cleanup()

	ctx := context.Background()
	balance, err := service.GetBalance(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Exists || !balance.Balance.IsZero() || balance.Currency != "USD" {
		t.Errorf("Expected empty USD balance, got %+v", balance)
	}

	credit(t, db, "user1", "12.50")
	balance, err = service.GetBalance(ctx, "user1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Exists || !balance.Balance.Equal(decimal.RequireFromString("12.50")) {
		t.Errorf("Expected 12.50, got %+v", balance)
	}
}

func TestHasSufficientBalance(t *testing.T) {
	service, db, cleanup := setupLedgerService(t)
	defer cleanup()

	ctx := context.Background()
	ok, err := service.HasSufficientBalance(ctx, "nobody", decimal.RequireFromString("0.01"))
	if err != nil || ok {
		t.Errorf("Expected no funds without a wallet, got ok=%v err=%v", ok, err)
	}

	credit(t, db, "user1", "0.20")
	tests := []struct {
		amount string
		want   bool
	}{
		{"0", true},
		{"0.20", true},
		{"0.21", false},
	}
	for _, tt := range tests {
		ok, err := service.HasSufficientBalance(ctx, "user1", decimal.RequireFromString(tt.amount))
		if err != nil {
			t.Fatalf("HasSufficientBalance(%s) failed: %v", tt.amount, err)
		}
		if ok != tt.want {
			t.Errorf("HasSufficientBalance(%s) = %v, want %v", tt.amount, ok, tt.want)
		}
	}

	if _, err := service.HasSufficientBalance(ctx, "user1", decimal.NewFromInt(-1)); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for negative amount, got %v", err)
	}
}

func TestGetTransactions_LimitClamp(t *testing.T) {
	service, db, cleanup := setupLedgerService(t)
	defer cleanup()

	ctx := context.Background()
	credit(t, db, "user1", "5")
	for i := 0; i < 3; i++ {
		if _, err := service.RecordCommunicationCompleted(ctx, CommunicationEvent{UserId: "user1", Kind: "email", Recipient: "a@example.com"}); err != nil {
			t.Fatalf("RecordCommunicationCompleted failed: %v", err)
		}
	}

	for _, limit := range []int{0, -5, 1000} {
		history, err := service.GetTransactions(ctx, "user1", limit)
		if err != nil {
			t.Fatalf("GetTransactions(%d) failed: %v", limit, err)
		}
		if len(history) != 4 {
			t.Errorf("Expected 4 entries for limit %d, got %d", limit, len(history))
		}
	}
}

func TestRecordUsage(t *testing.T) {
	service, db, cleanup := setupLedgerService(t)
	defer cleanup()

	ctx := context.Background()
	occurred := time.Date(2024, time.February, 10, 12, 0, 0, 0, time.UTC)

	event, err := service.RecordUsage(ctx, UsageRequest{
		UserId: "user1", Kind: "call", Recipient: "+15550100", DurationSeconds: 125, ReferenceId: "call-9", OccurredAt: occurred,
	})
	if err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	if event.Kind != models.KindCall {
		t.Errorf("Expected call usage, got %s", event.Kind)
	}

	if _, err := service.RecordUsage(ctx, UsageRequest{UserId: "user1", Kind: "telegram"}); !errors.Is(err, pricing.ErrInvalidCommunicationType) {
		t.Errorf("Expected ErrInvalidCommunicationType, got %v", err)
	}
	if _, err := service.RecordUsage(ctx, UsageRequest{UserId: "user1", Kind: "fax", PageCount: -1}); !errors.Is(err, pricing.ErrInvalidDetails) {
		t.Errorf("Expected ErrInvalidDetails, got %v", err)
	}

	// Deferred usage never moves the balance
	if _, err := db.GetWallet(ctx, "user1"); !errors.Is(err, store.ErrWalletNotFound) {
		t.Errorf("Expected no wallet after usage recording, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	service, _, cleanup := setupLedgerService(t)
	defer cleanup()

	if err := service.HealthCheck(context.Background()); err != nil {
		t.Errorf("Expected healthy database, got %v", err)
	}
}
