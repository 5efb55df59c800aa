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


// Package sweep runs the monthly billing pass over every billable user.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/observability"
	"prepaid-billing-go/internal/pricing"
	"prepaid-billing-go/internal/store"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("prepaid-billing-go/internal/sweep")

const periodLabelLayout = "2006-01"

// UserFailure is one user the sweep could not settle. It never aborts the run.
type UserFailure struct {
	UserId string
	Err    error
}

func (e *UserFailure) Error() string {
	return fmt.Sprintf("monthly billing failed for user %s: %v", e.UserId, e.Err)
}

func (e *UserFailure) Unwrap() error { return e.Err }

type Config struct {
	Currency    string
	Concurrency int
}

type Sweeper struct {
	billing     store.BillingStore
	pricing     pricing.Table
	metrics     *observability.Metrics
	currency    string
	concurrency int
}

func NewSweeper(billing store.BillingStore, table pricing.Table, metrics *observability.Metrics, cfg Config) *Sweeper {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		billing:     billing,
		pricing:     table,
		metrics:     metrics,
		currency:    cfg.Currency,
		concurrency: concurrency,
	}
}

// BillingPeriod is the first day of asOf's month in UTC.
func BillingPeriod(asOf time.Time) time.Time {
	asOf = asOf.UTC()
	return time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// UsageWindow is the previous calendar month, [from, to).
func UsageWindow(period time.Time) (time.Time, time.Time) {
	return period.AddDate(0, -1, 0), period
}

// ParsePeriod accepts YYYY-MM and returns the first day of that month.
func ParsePeriod(raw string) (time.Time, error) {
	t, err := time.Parse(periodLabelLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid billing period %q, expected YYYY-MM: %w", raw, err)
	}
	return BillingPeriod(t), nil
}

// Run settles every billable user for asOf's billing period. Only a failure
// to list users is returned as an error; per-user failures land in the result.
func (s *Sweeper) Run(ctx context.Context, asOf time.Time) (*models.SweepResult, error) {
	ctx, span := tracer.Start(ctx, "sweep.Run")
	defer span.End()
	start := time.Now()

	period := BillingPeriod(asOf)
	from, to := UsageWindow(period)
	label := period.Format(periodLabelLayout)
	span.SetAttributes(attribute.String("billing_period", label))

	userIds, err := s.billing.ListBillableUsers(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list billable users: %w", err)
	}

	zap.L().Info("Starting monthly billing sweep",
		zap.String("billing_period", label),
		zap.Int("users", len(userIds)),
		zap.Int("concurrency", s.concurrency))

	result := &models.SweepResult{
		BillingPeriod: label,
		TotalBilled:   decimal.Zero,
		Failures:      []models.SweepFailure{},
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, userId := range userIds {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, amount, err := s.settleUser(ctx, userId, period, from, to)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.UsersFailed++
				result.Failures = append(result.Failures, models.SweepFailure{UserId: userId, Reason: err.Error()})
				s.metrics.IncrSweepUser("error")
			case outcome == store.SettleSkipped:
				result.UsersSkipped++
				s.metrics.IncrSweepUser(string(outcome))
			case outcome == store.SettleInsufficient:
				result.UsersFailed++
				result.Failures = append(result.Failures, models.SweepFailure{UserId: userId, Reason: store.ErrInsufficientBalance.Error()})
				s.metrics.IncrSweepUser(string(outcome))
			default:
				result.UsersProcessed++
				result.TotalBilled = result.TotalBilled.Add(amount)
				s.metrics.IncrSweepUser(string(outcome))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].UserId < result.Failures[j].UserId
	})
	s.metrics.ObserveSweep(time.Since(start))

	zap.L().Info("Monthly billing sweep complete",
		zap.String("billing_period", label),
		zap.Int("processed", result.UsersProcessed),
		zap.Int("failed", result.UsersFailed),
		zap.Int("skipped", result.UsersSkipped),
		zap.String("total_billed", result.TotalBilled.String()),
		zap.Duration("elapsed", time.Since(start)))

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("monthly billing sweep interrupted: %w", err)
	}
	return result, nil
}

// settleUser bills one user. Any error is recorded as a failed period so the
// next run does not retry a user operators need to look at.
func (s *Sweeper) settleUser(ctx context.Context, userId string, period, from, to time.Time) (store.SettleOutcome, decimal.Decimal, error) {
	existing, err := s.billing.GetBillingRecord(ctx, userId, period)
	if err == nil && existing.Status.Terminal() {
		zap.L().Debug("Billing period already handled",
			zap.String("user_id", userId),
			zap.String("status", string(existing.Status)))
		return store.SettleSkipped, decimal.Zero, nil
	}
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return "", decimal.Zero, &UserFailure{UserId: userId, Err: err}
	}

	params := store.SettleParams{
		UserId:        userId,
		Currency:      s.currency,
		BillingPeriod: period,
		Description:   fmt.Sprintf("Monthly usage charge for %s", period.Format(periodLabelLayout)),
	}

	outcome, amount, err := s.settle(ctx, &params, from, to)
	if err == nil {
		return outcome, amount, nil
	}

	failure := &UserFailure{UserId: userId, Err: err}
	zap.L().Error("Monthly billing failed for user",
		zap.String("user_id", userId),
		zap.String("billing_period", period.Format(periodLabelLayout)),
		zap.String("amount", params.Usage.TotalAmount.String()),
		zap.Error(err))
	if _, recErr := s.billing.RecordBillingFailure(ctx, params, err.Error()); recErr != nil {
		zap.L().Error("Failed to record billing failure", zap.String("user_id", userId), zap.Error(recErr))
	}
	return "", decimal.Zero, failure
}

// settle fills params.Usage before settling so a failure record carries the totals.
func (s *Sweeper) settle(ctx context.Context, params *store.SettleParams, from, to time.Time) (store.SettleOutcome, decimal.Decimal, error) {
	events, err := s.billing.ListUsage(ctx, params.UserId, from, to)
	if err != nil {
		return "", decimal.Zero, err
	}

	summary, err := Summarize(s.pricing, events)
	if err != nil {
		return "", decimal.Zero, err
	}
	params.Usage = summary

	_, outcome, err := s.billing.SettleMonthlyBilling(ctx, *params)
	if err != nil {
		return "", decimal.Zero, err
	}
	if outcome == store.SettleDebited {
		return outcome, summary.TotalAmount, nil
	}
	return outcome, decimal.Zero, nil
}

// Summarize prices each usage event with the same table as immediate debits
// and aggregates the per-kind counts.
func Summarize(table pricing.Table, events []models.UsageEvent) (models.UsageSummary, error) {
	summary := models.UsageSummary{TotalAmount: decimal.Zero}
	for _, event := range events {
		var details pricing.Details
		switch event.Kind {
		case models.KindCall:
			details = pricing.CallSeconds(event.DurationSeconds)
			summary.Calls++
			summary.CallMinutes += details.BillableMinutes()
		case models.KindFax:
			details = pricing.Details{PageCount: event.PageCount}
			summary.Faxes++
			summary.FaxPages += details.BillablePages()
		case models.KindSms:
			summary.Sms++
		case models.KindEmail:
			summary.Emails++
		case models.KindFileTransfer:
			summary.FileTransfers++
		}

		amount, err := table.Price(event.Kind, details)
		if err != nil {
			return models.UsageSummary{}, fmt.Errorf("failed to price usage event %s: %w", event.Id, err)
		}
		summary.TotalAmount = summary.TotalAmount.Add(amount)
	}
	return summary, nil
}

// Status reports per-status counts and totals for a billing period.
func (s *Sweeper) Status(ctx context.Context, period time.Time) (*models.BillingStatusReport, error) {
	period = BillingPeriod(period)
	statuses, err := s.billing.GetBillingStatus(ctx, period)
	if err != nil {
		return nil, err
	}
	return &models.BillingStatusReport{
		BillingPeriod: period.Format(periodLabelLayout),
		Statuses:      statuses,
	}, nil
}
