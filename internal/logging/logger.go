// Package logging provides leveled logging and a run log for flightbreak.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A RunLogger appending one JSONL record per estimate (.flightbreak/runs.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/flightbreak/internal/constants"
)

// LevelTrace is a custom slog level below Debug. At this level every
// simulated week decision is logged.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// RunRecord is one line of the run log.
type RunRecord struct {
	Time        time.Time `json:"time"`
	Event       string    `json:"event"`
	RunID       string    `json:"run_id,omitempty"`
	Small       float64   `json:"p2"`
	Big         float64   `json:"p4"`
	Weeks       int       `json:"weeks"`
	Simulations int       `json:"simulations"`
	Workers     int       `json:"workers,omitempty"`
	Seed        int64     `json:"seed"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	Series      []float64 `json:"series,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// RunLogger appends RunRecords to a JSONL file.
// It is safe for concurrent use. A nil RunLogger is safe to use;
// all methods are no-ops on nil receiver.
type RunLogger struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewRunLogger creates a run logger writing to dir/runs.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened.
func NewRunLogger(dir string, level string) *RunLogger {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, constants.RunLogFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &RunLogger{file: f, now: time.Now}
}

// Log writes rec as a single JSONL line, stamping Time when it is zero.
func (rl *RunLogger) Log(rec RunRecord) {
	if rl == nil || rl.file == nil {
		return
	}

	if rec.Time.IsZero() {
		rec.Time = rl.now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	data = append(data, '\n')

	rl.mu.Lock()
	defer rl.mu.Unlock()
	_, _ = rl.file.Write(data)
}

// Close closes the underlying file.
func (rl *RunLogger) Close() {
	if rl == nil || rl.file == nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.file.Close()
	rl.file = nil
}
