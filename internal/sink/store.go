// Package sink persists stats command results and batch run records.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/lexstat/internal/stats"
)

// Store reads and writes batch runs and command results in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// CreateRun inserts a batch_run row in running state and returns its ID.
func (s *Store) CreateRun(ctx context.Context, folders []string, commands []stats.CommandType, submittedBy string) (string, error) {
	if submittedBy == "" {
		return "", fmt.Errorf("submitted_by is empty")
	}

	foldersJSON, err := json.Marshal(folders)
	if err != nil {
		return "", fmt.Errorf("marshal folders: %w", err)
	}
	cmdNames := make([]string, 0, len(commands))
	for _, c := range commands {
		cmdNames = append(cmdNames, string(c))
	}
	commandsJSON, err := json.Marshal(cmdNames)
	if err != nil {
		return "", fmt.Errorf("marshal commands: %w", err)
	}

	id := uuid.NewString()
	nowS := s.now().UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx, `
INSERT INTO batch_run(id, status, folders, commands, submitted_by, created_at, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, id, RunRunning, string(foldersJSON), string(commandsJSON), submittedBy, nowS, nowS)
	if err != nil {
		return "", fmt.Errorf("insert batch run: %w", err)
	}
	return id, nil
}

// CompleteRun marks a run terminal.
func (s *Store) CompleteRun(ctx context.Context, runID string, status RunStatus, lastError *string) error {
	if runID == "" {
		return fmt.Errorf("runID is empty")
	}
	if status != RunSucceeded && status != RunFailed {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	completedAt := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE batch_run
SET status = ?, completed_at = ?, last_error = ?
WHERE id = ?;
`, status, completedAt, lastError, runID)
	if err != nil {
		return fmt.Errorf("update run completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// InsertResults appends one command_result row per result line, preserving
// input order via the position column. All rows commit in one transaction.
func (s *Store) InsertResults(ctx context.Context, runID, folder string, cmd stats.CommandType, results []string, textHash string) error {
	if folder == "" {
		return fmt.Errorf("folder is empty")
	}
	if cmd == "" {
		return fmt.Errorf("command is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	nowS := s.now().UTC().Format(time.RFC3339Nano)
	for i, line := range results {
		_, err := tx.ExecContext(ctx, `
INSERT INTO command_result(id, run_id, folder, command, position, result, text_hash, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, uuid.NewString(), runID, folder, cmd, i, line, textHash, nowS)
		if err != nil {
			return fmt.Errorf("insert command result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetRun returns one batch run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, status, folders, commands, submitted_by, created_at, started_at, completed_at, last_error
FROM batch_run
WHERE id = ?;
`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, status, folders, commands, submitted_by, created_at, started_at, completed_at, last_error
FROM batch_run
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// ResultsByRun returns every result row of a run in delivery order.
func (s *Store) ResultsByRun(ctx context.Context, runID string) ([]*Result, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, folder, command, position, result, text_hash, created_at
FROM command_result
WHERE run_id = ?
ORDER BY created_at ASC, rowid ASC;
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results by run: %w", err)
	}
	defer rows.Close()
	return collectResults(rows)
}

// ResultsByFolder returns the most recent result rows for a folder.
func (s *Store) ResultsByFolder(ctx context.Context, folder string, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, run_id, folder, command, position, result, text_hash, created_at
FROM command_result
WHERE folder = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, folder, limit)
	if err != nil {
		return nil, fmt.Errorf("query results by folder: %w", err)
	}
	defer rows.Close()
	return collectResults(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run          Run
		statusS      string
		foldersJSON  string
		commandsJSON string
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
		lastError    sql.NullString
	)
	if err := row.Scan(
		&run.ID, &statusS, &foldersJSON, &commandsJSON, &run.SubmittedBy,
		&createdAtS, &startedAtS, &completedAtS, &lastError,
	); err != nil {
		return nil, err
	}

	run.Status = RunStatus(statusS)
	if err := json.Unmarshal([]byte(foldersJSON), &run.Folders); err != nil {
		return nil, fmt.Errorf("decode folders for run %q: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(commandsJSON), &run.Commands); err != nil {
		return nil, fmt.Errorf("decode commands for run %q: %w", run.ID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		run.CreatedAt = t
	}
	if startedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, startedAtS.String); err == nil {
			run.StartedAt = &t
		}
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			run.CompletedAt = &t
		}
	}
	if lastError.Valid {
		run.LastError = &lastError.String
	}
	return &run, nil
}

func collectResults(rows *sql.Rows) ([]*Result, error) {
	var results []*Result
	for rows.Next() {
		var (
			r          Result
			textHash   sql.NullString
			createdAtS string
		)
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.Folder, &r.Command, &r.Position, &r.Result, &textHash, &createdAtS,
		); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		if textHash.Valid {
			r.TextHash = textHash.String
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			r.CreatedAt = t
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return results, nil
}
