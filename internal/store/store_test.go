package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

// Compile-time checks that the interfaces are importable and usable.
func TestStoreInterfacesExist(t *testing.T) {
	_ = ErrDuplicateTransaction
	_ = ErrConcurrentModification
	_ = ErrWalletNotFound
	_ = DebitParams{}

	var _ LedgerStore
	var _ BillingStore
	var _ PaymentStore
	var _ ExportStore
}

func TestInsufficientBalanceError(t *testing.T) {
	err := fmt.Errorf("debit failed: %w", &InsufficientBalanceError{
		Required:  decimal.RequireFromString("0.02"),
		Available: decimal.Zero,
	})

	if !errors.Is(err, ErrInsufficientBalance) {
		t.Error("Expected wrapped error to match ErrInsufficientBalance")
	}

	var typed *InsufficientBalanceError
	if !errors.As(err, &typed) {
		t.Fatal("Expected errors.As to find InsufficientBalanceError")
	}
	if !typed.Required.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("Expected required 0.02, got %s", typed.Required)
	}

	want := "debit failed: Insufficient balance. Required: $0.02, Available: $0.00"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}
