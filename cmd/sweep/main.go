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
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prepaid-billing-go/internal/common"
	"prepaid-billing-go/internal/config"
	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/sweep"

	"go.uber.org/zap"
)

func printResult(result *models.SweepResult, currency string) {
	common.PrintHeader(fmt.Sprintf("MONTHLY BILLING %s", result.BillingPeriod), common.DefaultWidth)
	fmt.Printf("Processed:    %d\n", result.UsersProcessed)
	fmt.Printf("Skipped:      %d\n", result.UsersSkipped)
	fmt.Printf("Failed:       %d\n", result.UsersFailed)
	fmt.Printf("Total billed: %s\n", common.FormatMoney(result.TotalBilled, currency))
	if len(result.Failures) > 0 {
		fmt.Println()
		fmt.Println("Failures:")
		for i, failure := range result.Failures {
			fmt.Printf("%s %s: %s\n", common.BoxPrefix(i == len(result.Failures)-1), failure.UserId, failure.Reason)
		}
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func printStatus(report *models.BillingStatusReport, currency string) {
	common.PrintHeader(fmt.Sprintf("BILLING STATUS %s", report.BillingPeriod), common.DefaultWidth)
	if len(report.Statuses) == 0 {
		fmt.Println("No billing records for this period")
	}
	for i, status := range report.Statuses {
		fmt.Printf("%s %-10s %5d  %s\n",
			common.BoxPrefix(i == len(report.Statuses)-1),
			status.Status,
			status.Count,
			common.FormatMoney(status.TotalAmount, currency))
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	asOfFlag := flag.String("as-of", "", "Run the sweep as of this date (YYYY-MM-DD, default: today)")
	statusFlag := flag.String("status", "", "Print billing status for a period (YYYY-MM) instead of sweeping")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	// SIGINT stops scheduling new users; users already in flight finish
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *statusFlag != "" {
		period, err := sweep.ParsePeriod(*statusFlag)
		if err != nil {
			logger.Fatal("Invalid period", zap.String("period", *statusFlag), zap.Error(err))
		}
		report, err := services.Sweeper.Status(ctx, period)
		if err != nil {
			logger.Fatal("Failed to load billing status", zap.Error(err))
		}
		printStatus(report, cfg.Billing.Currency)
		return
	}

	asOf := time.Now().UTC()
	if *asOfFlag != "" {
		asOf, err = time.Parse("2006-01-02", *asOfFlag)
		if err != nil {
			logger.Fatal("Invalid --as-of date, expected YYYY-MM-DD", zap.String("as_of", *asOfFlag))
		}
	}

	logger.Info("Starting monthly billing sweep", zap.Time("as_of", asOf))

	result, err := services.Sweeper.Run(ctx, asOf)
	if result != nil {
		printResult(result, cfg.Billing.Currency)
	}
	if err != nil {
		logger.Fatal("Monthly billing sweep did not complete", zap.Error(err))
	}
	if result.UsersFailed > 0 {
		// Failed users are retried by the next run
		logger.Warn("Monthly billing finished with failures", zap.Int("users_failed", result.UsersFailed))
	}
}
