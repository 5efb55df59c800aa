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

import "context"

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Wallets (Current State - Hot Data)
	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		balance TEXT NOT NULL DEFAULT '0' CHECK (CAST(balance AS REAL) >= 0),
		currency TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	-- Wallet Transactions (Audit Trail - Cold Data, append-only)
	CREATE TABLE IF NOT EXISTS wallet_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		wallet_id TEXT NOT NULL REFERENCES wallets(id),
		user_id TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('credit', 'debit', 'refund')),
		amount TEXT NOT NULL CHECK (CAST(amount AS REAL) > 0),
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		description TEXT NOT NULL,
		reference_type TEXT NOT NULL,
		reference_id TEXT,
		external_payment_ref TEXT,
		currency TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_wallet_transactions_wallet ON wallet_transactions(wallet_id, id);
	CREATE INDEX IF NOT EXISTS idx_wallet_transactions_user ON wallet_transactions(user_id, id);
	CREATE INDEX IF NOT EXISTS idx_wallet_transactions_reference_type ON wallet_transactions(reference_type);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_transactions_external_ref
		ON wallet_transactions(external_payment_ref) WHERE external_payment_ref IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_transactions_debit_ref
		ON wallet_transactions(user_id, reference_type, reference_id)
		WHERE type = 'debit' AND reference_id IS NOT NULL;

	CREATE TRIGGER IF NOT EXISTS wallet_transactions_no_update
	BEFORE UPDATE ON wallet_transactions
	BEGIN
		SELECT RAISE(ABORT, 'wallet_transactions is append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS wallet_transactions_no_delete
	BEFORE DELETE ON wallet_transactions
	BEGIN
		SELECT RAISE(ABORT, 'wallet_transactions is append-only');
	END;

	-- Journal Entries for Double-Entry Bookkeeping
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		transaction_id INTEGER NOT NULL REFERENCES wallet_transactions(id),
		account_type TEXT NOT NULL,
		account_id TEXT NOT NULL,
		debit_amount TEXT NOT NULL DEFAULT '0',
		credit_amount TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_transaction_id ON journal_entries(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_journal_account ON journal_entries(account_type, account_id);

	-- Monthly Billing (one row per user and period)
	CREATE TABLE IF NOT EXISTS monthly_billings (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		billing_period TEXT NOT NULL,
		total_calls INTEGER NOT NULL DEFAULT 0,
		total_call_minutes INTEGER NOT NULL DEFAULT 0,
		total_sms INTEGER NOT NULL DEFAULT 0,
		total_emails INTEGER NOT NULL DEFAULT 0,
		total_faxes INTEGER NOT NULL DEFAULT 0,
		total_fax_pages INTEGER NOT NULL DEFAULT 0,
		total_file_transfers INTEGER NOT NULL DEFAULT 0,
		total_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL CHECK (status IN ('pending', 'processed', 'failed')),
		failure_reason TEXT,
		ledger_entry_id INTEGER REFERENCES wallet_transactions(id),
		processed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(user_id, billing_period)
	);

	CREATE INDEX IF NOT EXISTS idx_monthly_billings_period_status ON monthly_billings(billing_period, status);

	-- Metered usage billed by the monthly sweep
	CREATE TABLE IF NOT EXISTS usage_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('call', 'sms', 'email', 'fax', 'file_transfer')),
		recipient TEXT,
		duration_seconds INTEGER NOT NULL DEFAULT 0 CHECK (duration_seconds >= 0),
		page_count INTEGER NOT NULL DEFAULT 0 CHECK (page_count >= 0),
		reference_id TEXT,
		occurred_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_events_user_time ON usage_events(user_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_usage_events_time ON usage_events(occurred_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_events_reference
		ON usage_events(user_id, reference_id) WHERE reference_id IS NOT NULL;

	-- Payment processor bookkeeping (never touches balances)
	CREATE TABLE IF NOT EXISTS payment_customers (
		user_id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS topup_intents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		failure_message TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_topup_intents_user ON topup_intents(user_id);

	-- Ledger entries already pushed to the external mirror
	CREATE TABLE IF NOT EXISTS ledger_exports (
		entry_id INTEGER PRIMARY KEY REFERENCES wallet_transactions(id),
		exported_at TIMESTAMP NOT NULL
	);
	`

func (s *Service) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
