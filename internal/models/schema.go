package models

// Schema statements, applied in order. Types are kept to the subset that
// Postgres and SQLite both accept.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS campuses (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cards (
		id BIGINT PRIMARY KEY,
		campus_id BIGINT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		channel_hint VARCHAR(20) NOT NULL DEFAULT '',
		sat BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS debts (
		id VARCHAR(36) PRIMARY KEY,
		campus_id BIGINT NOT NULL,
		student_id VARCHAR(64) NOT NULL DEFAULT '',
		concept TEXT NOT NULL DEFAULT '',
		total_amount NUMERIC(12, 2) NOT NULL,
		paid_amount NUMERIC(12, 2) NOT NULL DEFAULT 0,
		remaining_amount NUMERIC(12, 2) NOT NULL,
		status VARCHAR(20) NOT NULL,
		due_date TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id VARCHAR(36) PRIMARY KEY,
		campus_id BIGINT NOT NULL,
		debt_id VARCHAR(36),
		card_id BIGINT,
		payment_method VARCHAR(20) NOT NULL,
		amount NUMERIC(12, 2) NOT NULL,
		paid BOOLEAN NOT NULL,
		payment_date TIMESTAMP,
		notes TEXT NOT NULL DEFAULT '',
		folio TEXT,
		folio_new TEXT,
		folio_cash BIGINT,
		folio_transfer BIGINT,
		folio_card BIGINT,
		folio_scheme VARCHAR(20) NOT NULL DEFAULT 'none',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_campus_created ON transactions (campus_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_campus_payment ON transactions (campus_id, payment_date)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_campus_folio ON transactions (campus_id, folio)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_debt ON transactions (debt_id)`,
	`CREATE TABLE IF NOT EXISTS folio_counters (
		campus_id BIGINT NOT NULL,
		scope VARCHAR(20) NOT NULL,
		period VARCHAR(7) NOT NULL,
		last_folio BIGINT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (campus_id, scope, period)
	)`,
	`CREATE TABLE IF NOT EXISTS folio_audit_reports (
		id VARCHAR(36) PRIMARY KEY,
		campus_id BIGINT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		processed INTEGER NOT NULL,
		fixed INTEGER NOT NULL,
		diffs TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	)`,
}
