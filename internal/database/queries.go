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

const (
	// User queries
	queryGetActiveUsers = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE active = 1
		ORDER BY created_at`

	queryInsertUser = `
		INSERT OR IGNORE INTO users (id, name, email) VALUES (?, ?, ?)`

	queryGetUserById = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ? AND active = 1`

	queryGetUserByEmail = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE email = ? AND active = 1`

	// Wallet queries
	queryGetWallet = `
		SELECT id, user_id, balance, currency, version, created_at, updated_at
		FROM wallets
		WHERE user_id = ?`

	queryGetAllWallets = `
		SELECT id, user_id, balance, currency, version, created_at, updated_at
		FROM wallets
		ORDER BY user_id`

	queryInsertWallet = `
		INSERT INTO wallets (id, user_id, balance, currency, version, created_at, updated_at)
		VALUES (?, ?, '0', ?, 1, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`

	queryUpdateWalletBalance = `
		UPDATE wallets
		SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	// Ledger queries
	queryFindEntryByExternalRef = `
		SELECT id, wallet_id, user_id, type, amount, balance_before, balance_after,
		       description, reference_type, reference_id, external_payment_ref, currency, created_at
		FROM wallet_transactions
		WHERE external_payment_ref = ?`

	queryFindDebitByReference = `
		SELECT id, wallet_id, user_id, type, amount, balance_before, balance_after,
		       description, reference_type, reference_id, external_payment_ref, currency, created_at
		FROM wallet_transactions
		WHERE user_id = ? AND reference_type = ? AND reference_id = ? AND type = 'debit'`

	queryInsertEntry = `
		INSERT INTO wallet_transactions (
			wallet_id, user_id, type, amount, balance_before, balance_after,
			description, reference_type, reference_id, external_payment_ref, currency, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, transaction_id, account_type, account_id, debit_amount, credit_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	queryGetTransactionHistory = `
		SELECT id, wallet_id, user_id, type, amount, balance_before, balance_after,
		       description, reference_type, reference_id, external_payment_ref, currency, created_at
		FROM wallet_transactions
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?`

	queryGetWalletEntryAmounts = `
		SELECT type, amount
		FROM wallet_transactions
		WHERE wallet_id = ?`

	// Usage queries
	queryInsertUsageEvent = `
		INSERT OR IGNORE INTO usage_events (
			id, user_id, kind, recipient, duration_seconds, page_count, reference_id, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetUsageEventByReference = `
		SELECT id, user_id, kind, recipient, duration_seconds, page_count, reference_id, occurred_at, created_at
		FROM usage_events
		WHERE user_id = ? AND reference_id = ?`

	queryGetUsageEvents = `
		SELECT id, user_id, kind, recipient, duration_seconds, page_count, reference_id, occurred_at, created_at
		FROM usage_events
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at`

	queryGetBillableUsers = `
		SELECT user_id FROM wallets WHERE CAST(balance AS REAL) > 0
		UNION
		SELECT user_id FROM usage_events WHERE occurred_at >= ? AND occurred_at < ?
		ORDER BY user_id`

	// Monthly billing queries
	queryGetBillingRecord = `
		SELECT id, user_id, billing_period, total_calls, total_call_minutes, total_sms, total_emails,
		       total_faxes, total_fax_pages, total_file_transfers, total_amount, status,
		       failure_reason, ledger_entry_id, processed_at, created_at, updated_at
		FROM monthly_billings
		WHERE user_id = ? AND billing_period = ?`

	queryUpsertBillingRecord = `
		INSERT INTO monthly_billings (
			id, user_id, billing_period, total_calls, total_call_minutes, total_sms, total_emails,
			total_faxes, total_fax_pages, total_file_transfers, total_amount, status,
			failure_reason, ledger_entry_id, processed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, billing_period) DO UPDATE SET
			total_calls = excluded.total_calls,
			total_call_minutes = excluded.total_call_minutes,
			total_sms = excluded.total_sms,
			total_emails = excluded.total_emails,
			total_faxes = excluded.total_faxes,
			total_fax_pages = excluded.total_fax_pages,
			total_file_transfers = excluded.total_file_transfers,
			total_amount = excluded.total_amount,
			status = excluded.status,
			failure_reason = excluded.failure_reason,
			ledger_entry_id = excluded.ledger_entry_id,
			processed_at = excluded.processed_at,
			updated_at = excluded.updated_at
		WHERE monthly_billings.status = 'pending'`

	queryGetBillingAmountsByStatus = `
		SELECT status, total_amount
		FROM monthly_billings
		WHERE billing_period = ?`

	// Payment processor queries
	queryGetPaymentCustomer = `
		SELECT customer_id FROM payment_customers WHERE user_id = ?`

	queryInsertPaymentCustomer = `
		INSERT INTO payment_customers (user_id, customer_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`

	queryInsertTopUpIntent = `
		INSERT INTO topup_intents (id, user_id, amount_cents, currency, status, failure_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	queryGetTopUpIntent = `
		SELECT id, user_id, amount_cents, currency, status, failure_message, created_at, updated_at
		FROM topup_intents
		WHERE id = ?`

	queryUpdateTopUpIntentStatus = `
		UPDATE topup_intents
		SET status = ?, failure_message = ?, updated_at = ?
		WHERE id = ?`

	// Export queries
	queryGetUnexportedEntries = `
		SELECT t.id, t.wallet_id, t.user_id, t.type, t.amount, t.balance_before, t.balance_after,
		       t.description, t.reference_type, t.reference_id, t.external_payment_ref, t.currency, t.created_at
		FROM wallet_transactions t
		LEFT JOIN ledger_exports e ON e.entry_id = t.id
		WHERE e.entry_id IS NULL
		ORDER BY t.id
		LIMIT ?`

	queryInsertLedgerExport = `
		INSERT OR IGNORE INTO ledger_exports (entry_id, exported_at) VALUES (?, ?)`
)
