package postgres

import "github.com/jmoiron/sqlx"

// schema mirrors the SQLite layout. seq columns give a stable insertion
// order for rows created within the same second.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS groups (
		id VARCHAR(36) PRIMARY KEY,
		name TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id VARCHAR(36) NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		joined_at BIGINT NOT NULL,
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id VARCHAR(36) PRIMARY KEY,
		seq BIGSERIAL,
		group_id VARCHAR(36) NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		description TEXT NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		paid_by TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS expense_participants (
		expense_id VARCHAR(36) NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		amount_owed DOUBLE PRECISION NOT NULL,
		amount_paid DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (expense_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS settlements (
		id VARCHAR(36) PRIMARY KEY,
		seq BIGSERIAL,
		group_id VARCHAR(36) NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		from_user_id TEXT NOT NULL,
		to_user_id TEXT NOT NULL,
		amount DOUBLE PRECISION NOT NULL CHECK (amount > 0),
		note TEXT,
		created_by TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		CHECK (from_user_id <> to_user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_group_members_user_id ON group_members(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_group_id ON expenses(group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_settlements_group_id ON settlements(group_id)`,
}

func runMigrations(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
