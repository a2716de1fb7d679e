package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS batch_run (
  id           TEXT PRIMARY KEY,
  status       TEXT NOT NULL,
  folders      TEXT NOT NULL,
  commands     TEXT NOT NULL,
  submitted_by TEXT NOT NULL,
  created_at   TEXT NOT NULL,
  started_at   TEXT,
  completed_at TEXT,
  last_error   TEXT
);`,
		`CREATE TABLE IF NOT EXISTS command_result (
  id         TEXT PRIMARY KEY,
  run_id     TEXT NOT NULL,
  folder     TEXT NOT NULL,
  command    TEXT NOT NULL,
  position   INTEGER NOT NULL,
  result     TEXT NOT NULL,
  text_hash  TEXT,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS batch_run_status_created_at_idx ON batch_run(status, created_at);`,
		`CREATE INDEX IF NOT EXISTS command_result_run_id_idx ON command_result(run_id);`,
		`CREATE INDEX IF NOT EXISTS command_result_folder_command_idx ON command_result(folder, command);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
