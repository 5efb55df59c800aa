package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/store"

	"github.com/shopspring/decimal"
)

var testPeriod = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func settleParams(userId, total string) store.SettleParams {
	return store.SettleParams{
		UserId:        userId,
		Currency:      "USD",
		BillingPeriod: testPeriod,
		Usage: models.UsageSummary{
			Calls:       2,
			CallMinutes: 7,
			Sms:         3,
			TotalAmount: decimal.RequireFromString(total),
		},
		Description: "Monthly usage charge for 2024-03",
	}
}

func TestSettleMonthlyBilling_Debited(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	fundWallet(t, service, "user1", "50", "pi_fund")

	record, outcome, err := service.SettleMonthlyBilling(ctx, settleParams("user1", "12.34"))
	if err != nil {
		t.Fatalf("SettleMonthlyBilling failed: %v", err)
	}
	if outcome != store.SettleDebited {
		t.Errorf("Expected outcome debited, got %s", outcome)
	}
	if record.Status != models.BillingStatusProcessed {
		t.Errorf("Expected status processed, got %s", record.Status)
	}
	if record.LedgerEntryId == 0 || record.ProcessedAt == nil {
		t.Errorf("Expected ledger entry and processed_at, got %d / %v", record.LedgerEntryId, record.ProcessedAt)
	}

	wallet, err := service.GetWallet(ctx, "user1")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("37.66")) {
		t.Errorf("Expected balance 37.66, got %s", wallet.Balance)
	}

	entries, err := service.GetTransactions(ctx, "user1", 1, 0)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if entries[0].ReferenceType != models.ReferenceMonthlyDeduction {
		t.Errorf("Expected monthly_deduction entry, got %s", entries[0].ReferenceType)
	}
	if entries[0].Id != record.LedgerEntryId {
		t.Errorf("Expected record to point at entry %d, got %d", entries[0].Id, record.LedgerEntryId)
	}

	stored, err := service.GetBillingRecord(ctx, "user1", testPeriod)
	if err != nil {
		t.Fatalf("GetBillingRecord failed: %v", err)
	}
	if !stored.BillingPeriod.Equal(testPeriod) {
		t.Errorf("Expected billing period %s, got %s", testPeriod, stored.BillingPeriod)
	}
	if stored.TotalCallMinutes != 7 || stored.TotalSms != 3 {
		t.Errorf("Expected stored usage totals, got minutes=%d sms=%d", stored.TotalCallMinutes, stored.TotalSms)
	}

	// Re-running the same period must not charge again
	_, outcome, err = service.SettleMonthlyBilling(ctx, settleParams("user1", "12.34"))
	if err != nil {
		t.Fatalf("Second settlement failed: %v", err)
	}
	if outcome != store.SettleSkipped {
		t.Errorf("Expected second settlement to skip, got %s", outcome)
	}

	wallet, _ = service.GetWallet(ctx, "user1")
	if !wallet.Balance.Equal(decimal.RequireFromString("37.66")) {
		t.Errorf("Expected balance to stay 37.66, got %s", wallet.Balance)
	}
}

func TestSettleMonthlyBilling_InsufficientBalance(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	fundWallet(t, service, "user1", "5", "pi_fund")

	record, outcome, err := service.SettleMonthlyBilling(ctx, settleParams("user1", "12.34"))
	if err != nil {
		t.Fatalf("SettleMonthlyBilling failed: %v", err)
	}
	if outcome != store.SettleInsufficient {
		t.Errorf("Expected outcome insufficient, got %s", outcome)
	}
	if record.Status != models.BillingStatusFailed || record.FailureReason != "insufficient balance" {
		t.Errorf("Expected failed/insufficient balance, got %s/%s", record.Status, record.FailureReason)
	}
	if record.LedgerEntryId != 0 {
		t.Errorf("Expected no ledger entry, got %d", record.LedgerEntryId)
	}

	wallet, _ := service.GetWallet(ctx, "user1")
	if !wallet.Balance.Equal(decimal.NewFromInt(5)) {
		t.Errorf("Expected balance to stay 5.00, got %s", wallet.Balance)
	}

	entries, _ := service.GetTransactions(ctx, "user1", 10, 0)
	if len(entries) != 1 {
		t.Errorf("Expected only the funding entry, got %d entries", len(entries))
	}

	// A failed period is terminal
	_, outcome, _ = service.SettleMonthlyBilling(ctx, settleParams("user1", "1.00"))
	if outcome != store.SettleSkipped {
		t.Errorf("Expected failed period to be skipped, got %s", outcome)
	}
}

func TestSettleMonthlyBilling_ZeroUsageCreatesWallet(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	record, outcome, err := service.SettleMonthlyBilling(ctx, settleParams("user2", "0"))
	if err != nil {
		t.Fatalf("SettleMonthlyBilling failed: %v", err)
	}
	if outcome != store.SettleZero || record.Status != models.BillingStatusProcessed {
		t.Errorf("Expected zero/processed, got %s/%s", outcome, record.Status)
	}

	wallet, err := service.GetWallet(ctx, "user2")
	if err != nil {
		t.Fatalf("Expected wallet to be created, got %v", err)
	}
	if !wallet.Balance.IsZero() {
		t.Errorf("Expected zero balance, got %s", wallet.Balance)
	}
}

func TestRecordBillingFailure(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	record, err := service.RecordBillingFailure(ctx, settleParams("user1", "3.00"), "usage lookup failed")
	if err != nil {
		t.Fatalf("RecordBillingFailure failed: %v", err)
	}
	if record.Status != models.BillingStatusFailed || record.FailureReason != "usage lookup failed" {
		t.Errorf("Expected failed record with reason, got %s/%s", record.Status, record.FailureReason)
	}

	// A terminal record is never overwritten
	fundWallet(t, service, "user3", "10", "pi_fund")
	if _, _, err := service.SettleMonthlyBilling(ctx, settleParams("user3", "1.00")); err != nil {
		t.Fatalf("SettleMonthlyBilling failed: %v", err)
	}
	record, err = service.RecordBillingFailure(ctx, settleParams("user3", "1.00"), "late failure")
	if err != nil {
		t.Fatalf("RecordBillingFailure failed: %v", err)
	}
	if record.Status != models.BillingStatusProcessed {
		t.Errorf("Expected processed record to be kept, got %s", record.Status)
	}
}

func TestGetBillingRecord_NotFound(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	_, err := service.GetBillingRecord(context.Background(), "nobody", testPeriod)
	if !errors.Is(err, store.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestGetBillingStatus(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	fundWallet(t, service, "rich", "50", "pi_rich")
	fundWallet(t, service, "poor", "1", "pi_poor")

	if _, _, err := service.SettleMonthlyBilling(ctx, settleParams("rich", "12.34")); err != nil {
		t.Fatalf("Settle rich failed: %v", err)
	}
	if _, _, err := service.SettleMonthlyBilling(ctx, settleParams("poor", "2.00")); err != nil {
		t.Fatalf("Settle poor failed: %v", err)
	}

	statuses, err := service.GetBillingStatus(ctx, testPeriod)
	if err != nil {
		t.Fatalf("GetBillingStatus failed: %v", err)
	}
	if len(statuses) != 3 {
		t.Fatalf("Expected all three statuses, got %d", len(statuses))
	}

	byStatus := map[models.BillingStatus]models.BillingStatusCount{}
	for _, s := range statuses {
		byStatus[s.Status] = s
	}
	if byStatus[models.BillingStatusProcessed].Count != 1 ||
		!byStatus[models.BillingStatusProcessed].TotalAmount.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("Unexpected processed row: %+v", byStatus[models.BillingStatusProcessed])
	}
	if byStatus[models.BillingStatusFailed].Count != 1 {
		t.Errorf("Expected 1 failed record, got %d", byStatus[models.BillingStatusFailed].Count)
	}
	if byStatus[models.BillingStatusPending].Count != 0 {
		t.Errorf("Expected 0 pending records, got %d", byStatus[models.BillingStatusPending].Count)
	}
}

func TestUsage_RecordListAndBillableUsers(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	from := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	inside := from.Add(36 * time.Hour)

	params := store.RecordUsageParams{
		UserId:          "caller",
		Kind:            models.KindCall,
		Recipient:       "+15550100",
		DurationSeconds: 90,
		ReferenceId:     "call-abc",
		OccurredAt:      inside,
	}
	first, err := service.RecordUsage(ctx, params)
	if err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
	second, err := service.RecordUsage(ctx, params)
	if err != nil {
		t.Fatalf("Duplicate RecordUsage failed: %v", err)
	}
	if second.Id != first.Id {
		t.Errorf("Expected duplicate reference to return event %s, got %s", first.Id, second.Id)
	}

	// Reference ids are scoped to the user
	borrowed := params
	borrowed.UserId = "other"
	third, err := service.RecordUsage(ctx, borrowed)
	if err != nil {
		t.Fatalf("RecordUsage for other user failed: %v", err)
	}
	if third.Id == first.Id || third.UserId != "other" {
		t.Errorf("Expected a separate event for other user, got %+v", third)
	}
	if otherEvents, err := service.ListUsage(ctx, "other", from, testPeriod); err != nil || len(otherEvents) != 1 {
		t.Errorf("Expected 1 event for other user, got %d (err %v)", len(otherEvents), err)
	}

	// Outside the window
	if _, err := service.RecordUsage(ctx, store.RecordUsageParams{
		UserId: "caller", Kind: models.KindSms, Recipient: "+15550100", OccurredAt: testPeriod.Add(time.Hour),
	}); err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}

	events, err := service.ListUsage(ctx, "caller", from, testPeriod)
	if err != nil {
		t.Fatalf("ListUsage failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event in window, got %d", len(events))
	}
	if events[0].DurationSeconds != 90 || events[0].Kind != models.KindCall {
		t.Errorf("Unexpected event: %+v", events[0])
	}

	fundWallet(t, service, "saver", "5", "pi_saver")
	if _, err := service.CreateOrGetWallet(ctx, "idle", "USD"); err != nil {
		t.Fatalf("CreateOrGetWallet failed: %v", err)
	}

	users, err := service.ListBillableUsers(ctx, from, testPeriod)
	if err != nil {
		t.Fatalf("ListBillableUsers failed: %v", err)
	}
	if len(users) != 3 || users[0] != "caller" || users[1] != "other" || users[2] != "saver" {
		t.Errorf("Expected [caller other saver], got %v", users)
	}
}
