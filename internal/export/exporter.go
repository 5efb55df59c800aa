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


// Package export pushes committed ledger entries to the external mirror.
package export

import (
	"context"
	"fmt"
	"time"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/observability"
	"prepaid-billing-go/internal/store"

	"go.uber.org/zap"
)

// Mirror receives ledger entries in commit order. PostEntry returns false for
// an entry the mirror already holds.
type Mirror interface {
	PostEntry(ctx context.Context, entry models.LedgerEntry) (bool, error)
}

type Exporter struct {
	source          store.ExportStore
	mirror          Mirror
	metrics         *observability.Metrics
	pollingInterval time.Duration
	batchSize       int
	stopChan        chan struct{}
	doneChan        chan struct{}
}

func NewExporter(source store.ExportStore, mirror Mirror, metrics *observability.Metrics, cfg models.ExportConfig) *Exporter {
	interval := cfg.PollingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Exporter{
		source:          source,
		mirror:          mirror,
		metrics:         metrics,
		pollingInterval: interval,
		batchSize:       batchSize,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start launches the export loop in the background.
func (e *Exporter) Start(ctx context.Context) {
	go e.pollLoop(ctx)

	zap.L().Info("Ledger exporter started",
		zap.Duration("polling_interval", e.pollingInterval),
		zap.Int("batch_size", e.batchSize))
}

// Stop gracefully stops the export loop
func (e *Exporter) Stop() {
	zap.L().Info("Stopping ledger exporter")
	close(e.stopChan)
	<-e.doneChan
	zap.L().Info("Ledger exporter stopped")
}

func (e *Exporter) pollLoop(ctx context.Context) {
	defer close(e.doneChan)

	ticker := time.NewTicker(e.pollingInterval)
	defer ticker.Stop()

	e.export(ctx)

	for {
		select {
		case <-ticker.C:
			e.export(ctx)
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Exporter) export(ctx context.Context) {
	exported, err := e.RunOnce(ctx)
	if err != nil {
		zap.L().Error("Ledger export pass failed", zap.Int("exported", exported), zap.Error(err))
		return
	}
	if exported > 0 {
		zap.L().Info("Ledger export pass complete", zap.Int("exported", exported))
	}
}

// RunOnce drains unexported entries in id order. It stops at the first entry
// the mirror rejects so later entries never overtake it.
func (e *Exporter) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		entries, err := e.source.GetUnexportedEntries(ctx, e.batchSize)
		if err != nil {
			return total, fmt.Errorf("failed to load unexported entries: %w", err)
		}
		if len(entries) == 0 {
			return total, nil
		}

		done := make([]int64, 0, len(entries))
		var postErr error
		for _, entry := range entries {
			posted, err := e.mirror.PostEntry(ctx, entry)
			if err != nil {
				postErr = err
				zap.L().Error("Failed to mirror ledger entry",
					zap.Int64("entry_id", entry.Id),
					zap.String("user_id", entry.UserId),
					zap.String("amount", entry.Amount.String()),
					zap.Error(err))
				break
			}
			if !posted {
				e.metrics.IncrExport("duplicate", 1)
			}
			done = append(done, entry.Id)
		}

		if err := e.source.MarkEntriesExported(ctx, done); err != nil {
			return total, fmt.Errorf("failed to mark entries exported: %w", err)
		}
		total += len(done)
		e.metrics.IncrExport("exported", len(done))

		if postErr != nil {
			e.metrics.IncrExport("error", 1)
			return total, postErr
		}
		if len(entries) < e.batchSize {
			return total, nil
		}
	}
}
