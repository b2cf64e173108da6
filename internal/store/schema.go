// Package store persists estimate runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// migration moves the database from version-1 to version.
type migration struct {
	version int
	name    string
	ddl     string
}

// migrations are applied in order; each runs in its own transaction.
var migrations = []migration{
	{
		version: 1,
		name:    "runs and weekly results",
		ddl: `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    p_small REAL NOT NULL,
    p_big REAL NOT NULL,
    weeks INTEGER NOT NULL,
    simulations INTEGER NOT NULL,
    workers INTEGER NOT NULL DEFAULT 0,
    seed INTEGER NOT NULL,
    first_date TEXT NOT NULL,
    elapsed_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);

CREATE TABLE IF NOT EXISTS run_weeks (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    week INTEGER NOT NULL,
    cancelled INTEGER NOT NULL,
    probability REAL NOT NULL,
    PRIMARY KEY (run_id, week)
);`,
	},
	{
		version: 2,
		name:    "run labels",
		ddl:     `ALTER TABLE runs ADD COLUMN label TEXT;`,
	},
}

// SchemaVersion is the version a fully migrated database reports.
var SchemaVersion = migrations[len(migrations)-1].version

const versionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);`

// InitSchema brings db up to SchemaVersion. Existing databases are
// integrity-checked before any migration runs, and a database written by a
// newer flightbreak is refused.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, versionTable); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := getSchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, SchemaVersion)
	}
	if current > 0 {
		if err := ValidateIntegrity(ctx, db); err != nil {
			return fmt.Errorf("database integrity check failed: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// getSchemaVersion returns the highest applied version, 0 for a new database.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.ddl); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, m.version); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// ValidateIntegrity fails if SQLite's integrity_check reports anything but
// "ok" or foreign_key_check reports any dangling reference.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	var problems []string

	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan integrity_check: %w", err)
		}
		if result != "ok" {
			problems = append(problems, result)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("failed to read integrity_check: %w", err)
	}

	fkRows, err := db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("failed to run foreign_key_check: %w", err)
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := fkRows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("failed to scan foreign_key_check: %w", err)
		}
		problems = append(problems, fmt.Sprintf("%s row %d references missing %s", table, rowid.Int64, parent))
	}
	if err := fkRows.Err(); err != nil {
		return fmt.Errorf("failed to read foreign_key_check: %w", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
