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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"prepaid-billing-go/internal/common"
	"prepaid-billing-go/internal/config"
	"prepaid-billing-go/internal/database"
	"prepaid-billing-go/internal/formance"
	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/store"

	"go.uber.org/zap"
)

const recentEntries = 5

type balanceStats struct {
	totalUsers      int
	usersWithWallet int
	mismatches      int
}

func printUserHeader(user models.User, wallet *models.Wallet) {
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s\n", user.Id)
	fmt.Printf("│  Balance: %s (v%d, updated: %s)\n",
		common.FormatMoney(wallet.Balance, wallet.Currency),
		wallet.Version,
		wallet.UpdatedAt.Format("2006-01-02 15:04:05"))
	common.PrintBoxSeparator(78)
}

func printEntries(entries []models.LedgerEntry, currency string) {
	if len(entries) == 0 {
		fmt.Printf("%s no transactions\n", common.BoxPrefix(true))
		return
	}
	for i, entry := range entries {
		fmt.Printf("%s %-6s %10s -> %10s  %s\n",
			common.BoxPrefix(i == len(entries)-1),
			entry.Type,
			common.FormatMoney(entry.Amount, currency),
			common.FormatMoney(entry.BalanceAfter, currency),
			entry.Description)
	}
}

// reconcile checks the wallet against its own history and, when configured, the mirror.
func reconcile(ctx context.Context, dbService *database.Service, mirror *formance.Service, wallet *models.Wallet) error {
	if err := dbService.ReconcileWallet(ctx, wallet.UserId); err != nil {
		return err
	}
	if mirror != nil {
		return mirror.ReconcileWallet(ctx, *wallet)
	}
	return nil
}

func processUser(ctx context.Context, user models.User, dbService *database.Service, mirror *formance.Service, doReconcile bool) (bool, error) {
	wallet, err := dbService.GetWallet(ctx, user.Id)
	if errors.Is(err, store.ErrWalletNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get wallet: %w", err)
	}

	entries, err := dbService.GetTransactions(ctx, user.Id, recentEntries, 0)
	if err != nil {
		return true, fmt.Errorf("failed to get transactions: %w", err)
	}

	printUserHeader(user, wallet)
	printEntries(entries, wallet.Currency)

	if doReconcile {
		if err := reconcile(ctx, dbService, mirror, wallet); err != nil {
			fmt.Printf("   ✗ reconciliation failed: %v\n", err)
			return true, err
		}
		fmt.Println("   ✓ reconciled")
	}
	return true, nil
}

func main() {
	emailFlag := flag.String("email", "", "Filter by specific user email (optional)")
	reconcileFlag := flag.Bool("reconcile", false, "Verify each wallet against its ledger (and the Formance mirror when configured)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	ctx := context.Background()

	logger.Info("Starting balance query")

	// Read-only, no payment processor needed
	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	var mirror *formance.Service
	if *reconcileFlag && cfg.Formance.Enabled() {
		mirror, err = formance.NewService(ctx, cfg.Formance)
		if err != nil {
			logger.Fatal("Failed to connect to Formance", zap.Error(err))
		}
		defer mirror.Close()
	}

	users, err := common.SelectUsers(ctx, dbService, *emailFlag, logger)
	if err != nil {
		logger.Fatal("Failed to select users", zap.Error(err))
	}

	common.PrintHeader("WALLET BALANCE REPORT", common.DefaultWidth)

	stats := balanceStats{}
	for _, user := range users {
		stats.totalUsers++
		hasWallet, err := processUser(ctx, user, dbService, mirror, *reconcileFlag)
		if hasWallet {
			stats.usersWithWallet++
		}
		if err != nil {
			if errors.Is(err, store.ErrBalanceMismatch) {
				stats.mismatches++
			}
			logger.Error("Failed to process user",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d of %d users have wallets", stats.usersWithWallet, stats.totalUsers)
	if *reconcileFlag {
		summary += fmt.Sprintf(", %d balance mismatches", stats.mismatches)
	}
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_wallet", stats.usersWithWallet),
		zap.Int("mismatches", stats.mismatches))
}
