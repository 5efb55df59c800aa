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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"prepaid-billing-go/internal/models"
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	busyTimeout, err := getEnvDuration("DB_BUSY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	readTimeout, err := getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	txRetryBackoff, err := getEnvDuration("DB_TX_RETRY_BACKOFF", 10*time.Millisecond)
	if err != nil {
		return nil, err
	}

	stripeTimeout, err := getEnvDuration("STRIPE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	pollingInterval, err := getEnvDuration("EXPORT_POLLING_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		LogLevel: getEnvString("LOG_LEVEL", "info"),
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "billing.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			BusyTimeout:     busyTimeout,
			TxMaxRetries:    getEnvInt("DB_TX_MAX_RETRIES", 5),
			TxRetryBackoff:  txRetryBackoff,
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("HTTP_ADDR", ":8080"),
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		},
		Billing: models.BillingConfig{
			Currency:         getEnvString("WALLET_CURRENCY", "USD"),
			PricingFile:      getEnvString("PRICING_FILE", ""),
			CronToken:        getEnvString("BILLING_CRON_TOKEN", ""),
			SweepConcurrency: getEnvInt("SWEEP_CONCURRENCY", 4),
		},
		Stripe: models.StripeConfig{
			SecretKey:     getEnvString("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnvString("STRIPE_WEBHOOK_SECRET", ""),
			Timeout:       stripeTimeout,
			MinTopUpCents: getEnvInt64("TOPUP_MIN_CENTS", 500),
			MaxTopUpCents: getEnvInt64("TOPUP_MAX_CENTS", 50000),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "prepaid-wallets"),
		},
		Export: models.ExportConfig{
			PollingInterval: pollingInterval,
			BatchSize:       getEnvInt("EXPORT_BATCH_SIZE", 100),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	if cfg.Stripe.MinTopUpCents <= 0 {
		return fmt.Errorf("TOPUP_MIN_CENTS must be positive, got %d", cfg.Stripe.MinTopUpCents)
	}
	if cfg.Stripe.MaxTopUpCents < cfg.Stripe.MinTopUpCents {
		return fmt.Errorf("TOPUP_MAX_CENTS (%d) must not be below TOPUP_MIN_CENTS (%d)",
			cfg.Stripe.MaxTopUpCents, cfg.Stripe.MinTopUpCents)
	}
	if cfg.Billing.SweepConcurrency < 1 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be at least 1, got %d", cfg.Billing.SweepConcurrency)
	}
	if cfg.Database.TxMaxRetries < 0 {
		return fmt.Errorf("DB_TX_MAX_RETRIES must not be negative, got %d", cfg.Database.TxMaxRetries)
	}
	if len(cfg.Billing.Currency) != 3 {
		return fmt.Errorf("WALLET_CURRENCY must be an ISO 4217 code, got %q", cfg.Billing.Currency)
	}

	// Zero here would expire every call before it starts
	durations := []struct {
		key   string
		value time.Duration
	}{
		{"STRIPE_TIMEOUT", cfg.Stripe.Timeout},
		{"DB_PING_TIMEOUT", cfg.Database.PingTimeout},
		{"DB_BUSY_TIMEOUT", cfg.Database.BusyTimeout},
		{"HTTP_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout},
		{"EXPORT_POLLING_INTERVAL", cfg.Export.PollingInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.value)
		}
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
