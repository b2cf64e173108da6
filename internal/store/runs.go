package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/flightbreak/internal/constants"
	"github.com/nvandessel/flightbreak/internal/sanitize"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = errors.New("run not found")

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is a persisted estimate.
type Run struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Label       string    `json:"label,omitempty"`
	Small       float64   `json:"p2"`
	Big         float64   `json:"p4"`
	Weeks       int       `json:"weeks"`
	Simulations int       `json:"simulations"`
	Workers     int       `json:"workers"`
	Seed        int64     `json:"seed"`
	FirstDate   string    `json:"first_date"`
	ElapsedMs   int64     `json:"elapsed_ms"`

	// Counts and Series are indexed by week. ListRuns leaves them empty.
	Counts []int     `json:"counts,omitempty"`
	Series []float64 `json:"series,omitempty"`
}

// RunStore keeps estimate history in a SQLite database.
type RunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// Open opens (creating if needed) dir/flightbreak.db.
func Open(dir string) (*RunStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	dbPath := filepath.Join(dir, constants.DBFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &RunStore{db: db, dbPath: dbPath, now: time.Now}, nil
}

// Path returns the database file path.
func (s *RunStore) Path() string {
	return s.dbPath
}

// SaveRun validates run, then inserts it and its weekly results. ID and
// CreatedAt are filled in when empty; the stored run is returned.
func (s *RunStore) SaveRun(ctx context.Context, run Run) (Run, error) {
	if err := run.Validate(); err != nil {
		return Run{}, err
	}
	run.Label = sanitize.Label(run.Label)
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, label, p_small, p_big, weeks, simulations, workers, seed, first_date, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(timeLayout), nullString(run.Label),
		run.Small, run.Big, run.Weeks, run.Simulations, run.Workers, run.Seed,
		run.FirstDate, run.ElapsedMs)
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_weeks (run_id, week, cancelled, probability) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("failed to prepare week insert: %w", err)
	}
	defer stmt.Close()

	for w := range run.Series {
		if _, err := stmt.ExecContext(ctx, run.ID, w, run.Counts[w], run.Series[w]); err != nil {
			return Run{}, fmt.Errorf("failed to insert week %d: %w", w, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("failed to commit run: %w", err)
	}
	return run, nil
}

// GetRun returns a run with its weekly results.
func (s *RunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, label, p_small, p_big, weeks, simulations, workers, seed, first_date, elapsed_ms
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT cancelled, probability FROM run_weeks WHERE run_id = ? ORDER BY week`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query weeks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cancelled int
		var probability float64
		if err := rows.Scan(&cancelled, &probability); err != nil {
			return nil, fmt.Errorf("failed to scan week: %w", err)
		}
		run.Counts = append(run.Counts, cancelled)
		run.Series = append(run.Series, probability)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read weeks: %w", err)
	}

	return run, nil
}

// ListRuns returns the most recent runs first, without weekly results.
// A limit of zero or less returns every run.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, created_at, label, p_small, p_big, weeks, simulations, workers, seed, first_date, elapsed_ms
		FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and its weekly results.
func (s *RunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *RunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		createdAt string
		label     sql.NullString
	)
	err := row.Scan(&run.ID, &createdAt, &label, &run.Small, &run.Big, &run.Weeks,
		&run.Simulations, &run.Workers, &run.Seed, &run.FirstDate, &run.ElapsedMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Label = label.String
	run.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
