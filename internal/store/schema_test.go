package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInitSchemaFresh(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("getSchemaVersion failed: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("version = %d, want %d", version, SchemaVersion)
	}

	for _, table := range []string{"runs", "run_weeks", "schema_version"} {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestInitSchemaIdempotent(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("first InitSchema failed: %v", err)
	}
	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

func TestInitSchemaRejectsNewerVersion(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, SchemaVersion+1); err != nil {
		t.Fatalf("insert version: %v", err)
	}

	err := InitSchema(ctx, db)
	if err == nil || !strings.Contains(err.Error(), "newer than supported") {
		t.Errorf("error = %v, want newer-version error", err)
	}
}

func TestInitSchemaUpgradesVersionOne(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()

	// A database as the first release left it.
	if _, err := db.ExecContext(ctx, versionTable); err != nil {
		t.Fatal(err)
	}
	if err := applyMigration(ctx, db, migrations[0]); err != nil {
		t.Fatalf("apply v1: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, p_small, p_big, weeks, simulations, seed, first_date)
		VALUES ('old', '2022-04-01T00:00:00.000000000Z', 0.5, 0.2, 15, 100, 1, '2022-04-01')`); err != nil {
		t.Fatalf("insert v1 row: %v", err)
	}

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if version != SchemaVersion {
		t.Errorf("version = %d, want %d", version, SchemaVersion)
	}

	var label sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT label FROM runs WHERE id = 'old'`).Scan(&label); err != nil {
		t.Fatalf("label column missing after upgrade: %v", err)
	}
	if label.Valid {
		t.Errorf("migrated row label = %q, want NULL", label.String)
	}
}

func TestValidateIntegrityReportsDanglingWeeks(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()
	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	// Foreign keys are off by default on a bare connection, so the orphan row sticks.
	if _, err := db.ExecContext(ctx,
		`INSERT INTO run_weeks (run_id, week, cancelled, probability) VALUES ('gone', 0, 0, 0)`); err != nil {
		t.Fatalf("insert orphan: %v", err)
	}

	err := ValidateIntegrity(ctx, db)
	if err == nil || !strings.Contains(err.Error(), "run_weeks") {
		t.Errorf("error = %v, want a run_weeks foreign key problem", err)
	}
}

func TestValidateIntegrity(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()
	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	if err := ValidateIntegrity(ctx, db); err != nil {
		t.Errorf("ValidateIntegrity failed on fresh db: %v", err)
	}
}

func TestValidateIntegrityReportsQueryFailures(t *testing.T) {
	db := openMemoryDB(t)
	if err := InitSchema(context.Background(), db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := ValidateIntegrity(ctx, db); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})

	t.Run("closed database", func(t *testing.T) {
		db.Close()
		if err := ValidateIntegrity(context.Background(), db); err == nil {
			t.Error("expected error from a closed database")
		}
	})
}
