package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ExportJSONL writes every run, with weekly results, as one JSON object per
// line, oldest first. It returns the number of runs written.
func (s *RunStore) ExportJSONL(ctx context.Context, w io.Writer) (int, error) {
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	n := 0
	for i := len(runs) - 1; i >= 0; i-- {
		run, err := s.GetRun(ctx, runs[i].ID)
		if err != nil {
			return n, err
		}
		if err := enc.Encode(run); err != nil {
			return n, fmt.Errorf("failed to encode run %s: %w", run.ID, err)
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush export: %w", err)
	}
	return n, nil
}

// ImportJSONL reads runs written by ExportJSONL. Runs whose ID already
// exists are skipped. It returns the number of runs imported and skipped.
func (s *RunStore) ImportJSONL(ctx context.Context, r io.Reader) (imported, skipped int, err error) {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for long horizons
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var run Run
		if err := json.Unmarshal(line, &run); err != nil {
			return imported, skipped, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if run.ID != "" {
			_, err := s.GetRun(ctx, run.ID)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return imported, skipped, fmt.Errorf("line %d: %w", lineNum, err)
			}
		}
		if _, err := s.SaveRun(ctx, run); err != nil {
			return imported, skipped, fmt.Errorf("line %d: %w", lineNum, err)
		}
		imported++
	}

	if err := scanner.Err(); err != nil {
		return imported, skipped, fmt.Errorf("scanner error: %w", err)
	}
	return imported, skipped, nil
}
