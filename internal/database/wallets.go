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
	"errors"
	"fmt"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// CreateOrGetWallet returns the user's wallet, creating an empty one if none exists.
func (s *Service) CreateOrGetWallet(ctx context.Context, userId, currency string) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		wallet, err = createOrGetWalletTx(ctx, tx, userId, currency)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *Service) GetWallet(ctx context.Context, userId string) (*models.Wallet, error) {
	wallet, err := scanWallet(s.db.QueryRowContext(ctx, queryGetWallet, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", store.ErrWalletNotFound, userId)
		}
		zap.L().Error("Failed to get wallet", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return wallet, nil
}

func (s *Service) GetWallets(ctx context.Context) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, queryGetAllWallets)
	if err != nil {
		zap.L().Error("Failed to query wallets", zap.Error(err))
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer closeRows(rows)

	var wallets []models.Wallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, *wallet)
	}

	if err := rows.Err(); err != nil {
		zap.L().Error("Error during wallet row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating wallet rows: %w", err)
	}

	zap.L().Debug("Retrieved wallets", zap.Int("count", len(wallets)))
	return wallets, nil
}

func getWalletTx(ctx context.Context, tx *sql.Tx, userId string) (*models.Wallet, error) {
	wallet, err := scanWallet(tx.QueryRowContext(ctx, queryGetWallet, userId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", store.ErrWalletNotFound, userId)
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return wallet, nil
}

func createOrGetWalletTx(ctx context.Context, tx *sql.Tx, userId, currency string) (*models.Wallet, error) {
	now := nowUTC()
	result, err := tx.ExecContext(ctx, queryInsertWallet, uuid.New().String(), userId, currency, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	if created, err := result.RowsAffected(); err == nil && created > 0 {
		zap.L().Info("Created wallet", zap.String("user_id", userId), zap.String("currency", currency))
	}

	return getWalletTx(ctx, tx, userId)
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var wallet models.Wallet
	var balanceStr string
	err := row.Scan(&wallet.Id, &wallet.UserId, &balanceStr, &wallet.Currency,
		&wallet.Version, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		return nil, err
	}

	wallet.Balance, err = decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
	}
	return &wallet, nil
}
