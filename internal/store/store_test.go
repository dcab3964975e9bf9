package store

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesSchema(t *testing.T) {
	s := createTestStore(t)

	for _, table := range []string{"runs", "entries"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
	assert.Equal(t, SchemaVersion, userVersion(t, s.db))
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, createTestRun("run-1", "hash-a")))
	require.NoError(t, s.Close())

	for range 2 {
		s, err = Open(path)
		require.NoError(t, err)
		runs, err := s.ListRuns(ctx, "")
		require.NoError(t, err)
		assert.Len(t, runs, 1)
		require.NoError(t, s.Close())
	}
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "runs.db"))
	assert.Error(t, err)
}

func TestOpen_UpgradesOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	// A database written before the scenario index existed.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec("DROP INDEX idx_runs_scenario_hash")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := Open(path, WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	assert.Contains(t, tableIndexes(t, s.db, "runs"), "idx_runs_scenario_hash")
	assert.Equal(t, SchemaVersion, userVersion(t, s.db))
	assert.Contains(t, logs.String(), "upgrading store schema")
}

func TestOpen_CurrentDatabaseIsNotMigrated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err = Open(path, WithLogger(logger))
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, logs.String())
}

func TestClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.NoError(t, (&Store{}).Close())
}

func TestDB(t *testing.T) {
	s := createTestStore(t)
	require.NotNil(t, s.DB())
	assert.NoError(t, s.DB().Ping())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	for _, p := range pragmas {
		t.Run(p.name, func(t *testing.T) {
			var got string
			require.NoError(t, s.db.QueryRow("PRAGMA "+p.name).Scan(&got))
			assert.Equal(t, p.want, got)
		})
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, []string{
		"id", "scenario", "scenario_hash", "digest", "final_time",
		"status", "entry_count", "engine_version", "ir_version",
	}, tableColumns(t, s.db, "runs"))
	assert.Equal(t, []string{
		"run_id", "seq", "t", "fiber", "kind", "ip", "detail", "progress",
	}, tableColumns(t, s.db, "entries"))
}

func TestConstraint_EntriesRequireRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO entries (run_id, seq, t, fiber, kind, ip, detail, progress)
		VALUES ('missing', 1, 0, 1, 'begin', 0, '', 0)
	`)
	assert.Error(t, err)
}

func TestConstraint_RunStatus(t *testing.T) {
	s := createTestStore(t)

	run := createTestRun("run-1", "hash-a")
	run.Status = "running"
	assert.Error(t, s.SaveRun(context.Background(), run))
}

func userVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var v int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&v))
	return v
}

func tableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		columns = append(columns, name)
	}
	require.NoError(t, rows.Err())
	return columns
}

func tableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	require.NoError(t, err)
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	require.NoError(t, rows.Err())
	return indexes
}
