package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT    PRIMARY KEY,
		status      TEXT    NOT NULL,
		mode        TEXT    NOT NULL DEFAULT '',
		transform   TEXT    NOT NULL DEFAULT '',
		workers     INTEGER NOT NULL DEFAULT 0,
		epochs      INTEGER NOT NULL DEFAULT 0,
		started_at  TEXT    NOT NULL,
		finished_at TEXT    NOT NULL DEFAULT '',
		error       TEXT    NOT NULL DEFAULT '',
		stats       TEXT    NOT NULL DEFAULT '{}'
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

	`CREATE TABLE IF NOT EXISTS epochs (
		run_id      TEXT    NOT NULL REFERENCES runs(id),
		number      INTEGER NOT NULL,
		items       INTEGER NOT NULL,
		session     INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		at          TEXT    NOT NULL,
		PRIMARY KEY (run_id, number)
	)`,

	`CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL REFERENCES runs(id),
		seq    INTEGER PRIMARY KEY AUTOINCREMENT,
		at     TEXT NOT NULL,
		stats  TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id, seq)`,
}

// migrate creates or updates the database schema to the latest version.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
