package store

import (
	"context"
	"fmt"

	"github.com/roach88/tempo/internal/trace"
)

// SaveRun inserts a run and its entries in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency - saving a run twice is
// silently ignored. Other constraint violations (e.g., an unknown status)
// still return errors.
func (s *Store) SaveRun(ctx context.Context, run trace.Run) (err error) {
	if run.ID == "" {
		return fmt.Errorf("save run: empty id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, scenario, scenario_hash, digest, final_time, status, entry_count, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Scenario,
		run.ScenarioHash,
		run.Digest,
		run.FinalTime,
		run.Status,
		len(run.Entries),
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already stored: entries are immutable.
		return tx.Commit()
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries
		(run_id, seq, t, fiber, kind, ip, detail, progress)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	defer stmt.Close()

	for _, e := range run.Entries {
		if _, err = stmt.ExecContext(ctx, run.ID, e.Seq, e.Time, e.Fiber, e.Kind, e.IP, e.Detail, e.Progress); err != nil {
			return fmt.Errorf("save run %s: entry %d: %w", run.ID, e.Seq, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save run %s: commit: %w", run.ID, err)
	}
	return nil
}
