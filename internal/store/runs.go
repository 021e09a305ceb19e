package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/inovacc/labelr/internal/model"
)

// InterruptedError is recorded on runs found unfinished at startup
const InterruptedError = "interrupted"

// CreateRun inserts a queued run. QueuedAt defaults to now.
func (s *Store) CreateRun(ctx context.Context, run *model.Run) error {
	if run.Status == "" {
		run.Status = model.RunQueued
	}

	if run.QueuedAt.IsZero() {
		run.QueuedAt = s.timestamp()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, repo, model, batch, status, error, queued_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, string(run.Kind), run.Repo, nullString(run.Model), run.Batch, string(run.Status),
		nullString(run.Error), run.QueuedAt.UTC(), nullTime(run.StartedAt), nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("creating run %s: %w", run.ID, err)
	}

	return nil
}

// UpdateRunStatus moves a run to status. Entering running stamps
// started_at; entering a terminal status stamps finished_at and records
// errMsg.
func (s *Store) UpdateRunStatus(ctx context.Context, id string, status model.RunStatus, errMsg string) error {
	now := s.timestamp()

	var err error

	switch {
	case status == model.RunRunning:
		_, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, started_at = ? WHERE id = ?",
			string(status), now, id,
		)
	case status.Terminal():
		_, err = s.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?",
			string(status), nullString(errMsg), now, id,
		)
	default:
		_, err = s.db.ExecContext(ctx, "UPDATE runs SET status = ? WHERE id = ?", string(status), id)
	}

	if err != nil {
		return fmt.Errorf("updating run %s: %w", id, err)
	}

	return nil
}

// GetRun returns a run by ID, or nil if none exists
func (s *Store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, repo, model, batch, status, error, queued_at, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}

	return run, nil
}

// ListRuns returns the most recent runs, newest first. A non-positive
// limit returns all runs.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	query := `
		SELECT id, kind, repo, model, batch, status, error, queued_at, started_at, finished_at
		FROM runs ORDER BY queued_at DESC, id
	`

	args := []any{}

	if limit > 0 {
		query += " LIMIT ?"

		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	defer func() { _ = rows.Close() }()

	runs := make([]*model.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// FailInterruptedRuns marks every queued or running run as failed. It is
// called once at startup, when no run of this process can be in flight.
func (s *Store) FailInterruptedRuns(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ?
		WHERE status IN (?, ?)
	`, string(model.RunFailed), InterruptedError, s.timestamp(), string(model.RunQueued), string(model.RunRunning))
	if err != nil {
		return 0, fmt.Errorf("failing interrupted runs: %w", err)
	}

	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*model.Run, error) {
	var (
		run               model.Run
		kind, status      string
		modelRepo, errMsg sql.NullString
		started, finished sql.NullTime
	)

	err := sc.Scan(&run.ID, &kind, &run.Repo, &modelRepo, &run.Batch, &status, &errMsg,
		&run.QueuedAt, &started, &finished)
	if err != nil {
		return nil, err
	}

	run.Kind = model.RunKind(kind)
	run.Status = model.RunStatus(status)
	run.Model = modelRepo.String
	run.Error = errMsg.String

	if started.Valid {
		run.StartedAt = started.Time
	}

	if finished.Valid {
		run.FinishedAt = finished.Time
	}

	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
