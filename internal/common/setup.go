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

package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"prepaid-billing-go/internal/api"
	"prepaid-billing-go/internal/database"
	"prepaid-billing-go/internal/formance"
	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/observability"
	"prepaid-billing-go/internal/pricing"
	"prepaid-billing-go/internal/stripe"
	"prepaid-billing-go/internal/sweep"
	"prepaid-billing-go/internal/topup"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services is the wired application. TopUps and Mirror are nil when their
// external system is not configured.
type Services struct {
	DbService *database.Service
	Pricing   pricing.Table
	Metrics   *observability.Metrics
	Ledger    *api.LedgerService
	Sweeper   *sweep.Sweeper
	TopUps    *topup.Service
	Mirror    *formance.Service
}

func InitializeLogger(level string) (*zap.Logger, func()) {
	logger, err := observability.NewLogger(level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// LoadPricing returns the configured price table, or the defaults when no file is set.
func LoadPricing(cfg *models.Config) (pricing.Table, error) {
	if cfg.Billing.PricingFile == "" {
		table := pricing.DefaultTable()
		table.Currency = cfg.Billing.Currency
		return table, nil
	}
	table, err := pricing.LoadTable(cfg.Billing.PricingFile)
	if err != nil {
		return pricing.Table{}, fmt.Errorf("failed to load pricing: %w", err)
	}
	zap.L().Info("Loaded pricing table", zap.String("file", cfg.Billing.PricingFile))
	return table, nil
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	table, err := LoadPricing(cfg)
	if err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()
	svcs := &Services{
		DbService: dbService,
		Pricing:   table,
		Metrics:   metrics,
		Ledger:    api.NewLedgerService(dbService, dbService, table, metrics),
		Sweeper: sweep.NewSweeper(dbService, table, metrics, sweep.Config{
			Currency:    cfg.Billing.Currency,
			Concurrency: cfg.Billing.SweepConcurrency,
		}),
	}

	if cfg.Stripe.Enabled() {
		zap.L().Info("Configuring Stripe payment processor")
		client, err := stripe.NewClient(cfg.Stripe, "")
		if err != nil {
			dbService.Close()
			return nil, err
		}
		svcs.TopUps = topup.NewService(client, dbService, dbService, metrics, topup.Config{
			Currency: cfg.Billing.Currency,
			MinCents: cfg.Stripe.MinTopUpCents,
			MaxCents: cfg.Stripe.MaxTopUpCents,
			Timeout:  cfg.Stripe.Timeout,
		})
	} else {
		zap.L().Warn("STRIPE_SECRET_KEY not set, top-ups are disabled")
	}

	if cfg.Formance.Enabled() {
		mirror, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		svcs.Mirror = mirror
	}

	return svcs, nil
}

// InitializeDatabaseOnly initializes just the database service without any external system.
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.Mirror != nil {
		cs.Mirror.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
