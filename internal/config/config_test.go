package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "billing.db" {
		t.Errorf("Expected default database path billing.db, got %s", cfg.Database.Path)
	}
	if cfg.Stripe.MinTopUpCents != 500 || cfg.Stripe.MaxTopUpCents != 50000 {
		t.Errorf("Expected top-up bounds 500..50000, got %d..%d", cfg.Stripe.MinTopUpCents, cfg.Stripe.MaxTopUpCents)
	}
	if cfg.Billing.Currency != "USD" {
		t.Errorf("Expected currency USD, got %s", cfg.Billing.Currency)
	}
	if cfg.Stripe.Enabled() {
		t.Error("Expected Stripe to be disabled without a secret key")
	}
	if cfg.Formance.Enabled() {
		t.Error("Expected Formance mirror to be disabled without a stack URL")
	}
	if !cfg.Server.MetricsEnabled {
		t.Error("Expected metrics to be enabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/tmp/other.db")
	t.Setenv("DB_BUSY_TIMEOUT", "250ms")
	t.Setenv("TOPUP_MIN_CENTS", "1000")
	t.Setenv("TOPUP_MAX_CENTS", "20000")
	t.Setenv("SWEEP_CONCURRENCY", "8")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "/tmp/other.db" {
		t.Errorf("Expected database path override, got %s", cfg.Database.Path)
	}
	if cfg.Database.BusyTimeout != 250*time.Millisecond {
		t.Errorf("Expected busy timeout 250ms, got %s", cfg.Database.BusyTimeout)
	}
	if cfg.Stripe.MinTopUpCents != 1000 || cfg.Stripe.MaxTopUpCents != 20000 {
		t.Errorf("Expected top-up bounds 1000..20000, got %d..%d", cfg.Stripe.MinTopUpCents, cfg.Stripe.MaxTopUpCents)
	}
	if cfg.Billing.SweepConcurrency != 8 {
		t.Errorf("Expected sweep concurrency 8, got %d", cfg.Billing.SweepConcurrency)
	}
	if !cfg.Stripe.Enabled() {
		t.Error("Expected Stripe to be enabled with a secret key")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "DB_PING_TIMEOUT", "five seconds"},
		{"inverted bounds", "TOPUP_MAX_CENTS", "100"},
		{"zero concurrency", "SWEEP_CONCURRENCY", "0"},
		{"bad currency", "WALLET_CURRENCY", "DOLLARS"},
		{"zero stripe timeout", "STRIPE_TIMEOUT", "0s"},
		{"negative stripe timeout", "STRIPE_TIMEOUT", "-5s"},
		{"zero busy timeout", "DB_BUSY_TIMEOUT", "0"},
		{"negative polling interval", "EXPORT_POLLING_INTERVAL", "-1m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
