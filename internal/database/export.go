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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"prepaid-billing-go/internal/models"
)

// GetUnexportedEntries returns up to limit ledger entries not yet mirrored, oldest first.
func (s *Service) GetUnexportedEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, queryGetUnexportedEntries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unexported entries: %w", err)
	}
	defer closeRows(rows)

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unexported entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unexported entries: %w", err)
	}
	return entries, nil
}

func (s *Service) MarkEntriesExported(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowUTC()
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, queryInsertLedgerExport, id, now); err != nil {
				return fmt.Errorf("failed to mark entry %d exported: %w", id, err)
			}
		}
		return nil
	})
}
