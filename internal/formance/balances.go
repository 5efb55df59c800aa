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

package formance

import (
	"context"
	"fmt"
	"math/big"

	"prepaid-billing-go/internal/models"
	"prepaid-billing-go/internal/store"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetWalletBalance returns the mirrored balance of a user's wallet account.
// An account the mirror has never seen has a zero balance.
func (s *Service) GetWalletBalance(ctx context.Context, userId, currency string) (decimal.Decimal, error) {
	address := userAccount(userId)
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to get account %s: %w", address, err)
	}

	bal := volumeBalance(resp.V2AccountResponse.Data.Volumes, formanceAsset(currency))
	return bigIntToDecimal(bal, currency), nil
}

// ReconcileWallet compares the authoritative wallet with its mirrored account.
func (s *Service) ReconcileWallet(ctx context.Context, wallet models.Wallet) error {
	mirrored, err := s.GetWalletBalance(ctx, wallet.UserId, wallet.Currency)
	if err != nil {
		return err
	}
	if !mirrored.Equal(wallet.Balance) {
		zap.L().Warn("Mirror balance differs from wallet",
			zap.String("user_id", wallet.UserId),
			zap.String("wallet_balance", wallet.Balance.String()),
			zap.String("mirror_balance", mirrored.String()))
		return fmt.Errorf("%w: wallet %s, mirror %s", store.ErrBalanceMismatch, wallet.Balance.String(), mirrored.String())
	}
	return nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts a minor-unit amount to a decimal.
func bigIntToDecimal(raw *big.Int, currency string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(currency)))
}
