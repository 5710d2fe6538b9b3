// Package history records dispatched commands in a local SQLite log. The
// log is write-only bookkeeping for the human: nothing in boxhand reads it
// back to make decisions.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
)

// Entry is one dispatched command.
type Entry struct {
	ID         string
	ProjectID  string
	Root       string
	Action     string
	Command    string
	Machine    string
	Viewer     string
	Status     Status
	ExitCode   *int
	StartedAt  time.Time
	FinishedAt *time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts a new running entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry id is empty")
	}
	if e.Action == "" {
		return fmt.Errorf("entry action is empty")
	}

	var machine any
	if e.Machine != "" {
		machine = e.Machine
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_log(id, project_id, root, action, command, machine, viewer, status, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.ProjectID, e.Root, e.Action, e.Command, machine, e.Viewer, StatusRunning,
		e.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

// Complete marks an entry as exited with the child's exit code. The code is
// stored for display only and never branched on.
func (s *Store) Complete(ctx context.Context, id string, exitCode int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
UPDATE dispatch_log SET status = ?, exit_code = ?, finished_at = ? WHERE id = ?;
`, StatusExited, exitCode, now, id)
	if err != nil {
		return fmt.Errorf("complete dispatch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("dispatch %s not found", id)
	}
	return nil
}

// Get returns one entry by id, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, project_id, root, action, command, machine, viewer, status, exit_code, started_at, finished_at
FROM dispatch_log WHERE id = ?;
`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dispatch: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, project_id, root, action, command, machine, viewer, status, exit_code, started_at, finished_at
FROM dispatch_log ORDER BY started_at DESC, rowid DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e          Entry
		machine    sql.NullString
		statusS    string
		exitCode   sql.NullInt64
		startedS   string
		finishedS  sql.NullString
	)
	err := row.Scan(&e.ID, &e.ProjectID, &e.Root, &e.Action, &e.Command,
		&machine, &e.Viewer, &statusS, &exitCode, &startedS, &finishedS)
	if err != nil {
		return nil, err
	}

	e.Status = Status(statusS)
	if machine.Valid {
		e.Machine = machine.String
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		e.ExitCode = &code
	}
	if t, err := time.Parse(time.RFC3339Nano, startedS); err == nil {
		e.StartedAt = t
	}
	if finishedS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedS.String); err == nil {
			e.FinishedAt = &t
		}
	}
	return &e, nil
}
