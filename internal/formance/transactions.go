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
	"strconv"

	"prepaid-billing-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Funds enter from the processor clearing account, which may go negative.
const numscriptWalletCredit = `vars {
  asset $asset
  number $amount
  account $user_id
  account $currency
  string $entry_id
  string $reference_type
  string $external_payment_ref
}

send [$asset $amount] (
  source = @processor:clearing:$currency allowing unbounded overdraft
  destination = @users:$user_id
)

set_tx_meta("event_type", "wallet_credit")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("reference_type", $reference_type)
set_tx_meta("external_payment_ref", $external_payment_ref)
`

// A wallet can never go negative in the mirror either, so a drifted mirror
// rejects the posting instead of silently absorbing it.
const numscriptWalletDebit = `vars {
  asset $asset
  number $amount
  account $user_id
  account $reference_type
  string $entry_id
  string $reference_id
}

send [$asset $amount] (
  source = @users:$user_id
  destination = @platform:revenue:$reference_type
)

set_tx_meta("event_type", "wallet_debit")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("reference_id", $reference_id)
`

const numscriptWalletRefund = `vars {
  asset $asset
  number $amount
  account $user_id
  account $currency
  string $entry_id
  string $external_payment_ref
}

send [$asset $amount] (
  source = @users:$user_id
  destination = @processor:clearing:$currency
)

set_tx_meta("event_type", "wallet_refund")
set_tx_meta("entry_id", $entry_id)
set_tx_meta("external_payment_ref", $external_payment_ref)
`

// entryReference is the mirror's idempotency key for a ledger entry.
func entryReference(entry models.LedgerEntry) string {
	return "entry-" + strconv.FormatInt(entry.Id, 10)
}

// scriptFor builds the Numscript posting for a committed ledger entry.
func scriptFor(entry models.LedgerEntry) (*shared.V2PostTransactionScript, error) {
	if !entry.Amount.IsPositive() {
		return nil, fmt.Errorf("entry %d has non-positive amount %s", entry.Id, entry.Amount)
	}

	vars := map[string]string{
		"asset":    formanceAsset(entry.Currency),
		"amount":   entry.Amount.Shift(int32(precisionFor(entry.Currency))).BigInt().String(),
		"user_id":  accountSegment(entry.UserId),
		"entry_id": strconv.FormatInt(entry.Id, 10),
	}

	switch entry.Type {
	case models.EntryTypeCredit:
		vars["currency"] = accountSegment(entry.Currency)
		vars["reference_type"] = string(entry.ReferenceType)
		vars["external_payment_ref"] = entry.ExternalPaymentRef
		return &shared.V2PostTransactionScript{Plain: numscriptWalletCredit, Vars: vars}, nil
	case models.EntryTypeDebit:
		vars["reference_type"] = accountSegment(string(entry.ReferenceType))
		vars["reference_id"] = entry.ReferenceId
		return &shared.V2PostTransactionScript{Plain: numscriptWalletDebit, Vars: vars}, nil
	case models.EntryTypeRefund:
		vars["currency"] = accountSegment(entry.Currency)
		vars["external_payment_ref"] = entry.ExternalPaymentRef
		return &shared.V2PostTransactionScript{Plain: numscriptWalletRefund, Vars: vars}, nil
	}
	return nil, fmt.Errorf("entry %d has unknown type %q", entry.Id, entry.Type)
}

// PostEntry mirrors one ledger entry. It reports false when the entry was
// already mirrored by an earlier run.
func (s *Service) PostEntry(ctx context.Context, entry models.LedgerEntry) (bool, error) {
	script, err := scriptFor(entry)
	if err != nil {
		return false, err
	}

	timestamp := entry.CreatedAt
	postTx := shared.V2PostTransaction{
		Reference: strPtr(entryReference(entry)),
		Script:    script,
	}
	if !timestamp.IsZero() {
		postTx.Timestamp = &timestamp
	}

	_, err = s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Ledger entry already mirrored", zap.Int64("entry_id", entry.Id))
			return false, nil
		}
		return false, fmt.Errorf("error mirroring ledger entry %d: %w", entry.Id, err)
	}

	zap.L().Debug("Ledger entry mirrored to Formance",
		zap.Int64("entry_id", entry.Id),
		zap.String("user_id", entry.UserId),
		zap.String("type", string(entry.Type)),
		zap.String("amount", entry.Amount.String()))
	return true, nil
}
