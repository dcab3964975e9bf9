package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tempo/internal/trace"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, scenario, scenario_hash, digest, final_time, status, engine_version, ir_version`

// ListRuns returns the stored runs without their entries, oldest first.
// When scenarioHash is not empty only the runs of that scenario are
// returned.
//
// Returns an empty slice (not nil) if no run matches.
func (s *Store) ListRuns(ctx context.Context, scenarioHash string) ([]trace.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if scenarioHash != "" {
		query += ` WHERE scenario_hash = ?`
		args = append(args, scenarioHash)
	}
	query += ` ORDER BY id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []trace.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LoadRun returns a run with its entries in sequence order.
func (s *Store) LoadRun(ctx context.Context, id string) (trace.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return trace.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return trace.Run{}, err
	}

	run.Entries, err = s.readEntries(ctx, id)
	if err != nil {
		return trace.Run{}, err
	}
	return run, nil
}

// readEntries returns the entries of a run ordered by seq.
func (s *Store) readEntries(ctx context.Context, runID string) ([]trace.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, t, fiber, kind, ip, detail, progress
		FROM entries
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []trace.Entry{}
	for rows.Next() {
		var e trace.Entry
		if err := rows.Scan(&e.Seq, &e.Time, &e.Fiber, &e.Kind, &e.IP, &e.Detail, &e.Progress); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (trace.Run, error) {
	var run trace.Run
	err := row.Scan(
		&run.ID,
		&run.Scenario,
		&run.ScenarioHash,
		&run.Digest,
		&run.FinalTime,
		&run.Status,
		&run.EngineVersion,
		&run.IRVersion,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return run, err
	}
	if err != nil {
		return run, fmt.Errorf("scan run: %w", err)
	}
	return run, nil
}
