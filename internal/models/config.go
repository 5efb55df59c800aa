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

package models

import "time"

// Config represents the application configuration
type Config struct {
	LogLevel string
	Database DatabaseConfig
	Server   ServerConfig
	Billing  BillingConfig
	Stripe   StripeConfig
	Formance FormanceConfig
	Export   ExportConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
	TxMaxRetries    int
	TxRetryBackoff  time.Duration
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
}

// BillingConfig holds wallet, debit and sweep settings
type BillingConfig struct {
	Currency         string
	PricingFile      string
	CronToken        string
	SweepConcurrency int
}

// StripeConfig holds payment processor settings
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	MinTopUpCents int64
	MaxTopUpCents int64
}

// Enabled reports whether a processor secret key is configured
func (c StripeConfig) Enabled() bool {
	return c.SecretKey != ""
}

// FormanceConfig holds the optional external ledger mirror settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// Enabled reports whether the mirror is configured
func (c FormanceConfig) Enabled() bool {
	return c.StackURL != ""
}

// ExportConfig holds mirror export loop settings
type ExportConfig struct {
	PollingInterval time.Duration
	BatchSize       int
}
