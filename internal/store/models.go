package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inovacc/labelr/internal/model"
)

// GetModel returns the registry record for repo, or nil if none exists
func (s *Store) GetModel(ctx context.Context, repo string) (*model.ModelRecord, error) {
	return getModel(ctx, s.db, repo)
}

// UpsertModel creates or overwrites the registry record for repo.
// Creation sets created_at; updated_at always moves to now.
func (s *Store) UpsertModel(ctx context.Context, repo string, ready bool) (*model.ModelRecord, error) {
	now := s.timestamp()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO models (repo, ready, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(repo) DO UPDATE SET
			ready = excluded.ready,
			updated_at = excluded.updated_at
	`, repo, ready, now, now)
	if err != nil {
		return nil, fmt.Errorf("upserting model %s: %w", repo, err)
	}

	return s.GetModel(ctx, repo)
}

// ArmModel records a new training attempt for repo unless one is still
// running. An unready record whose updated_at is within timeout is
// considered running. It returns the record as found before arming and
// whether this call armed it.
func (s *Store) ArmModel(ctx context.Context, repo string, timeout time.Duration) (*model.ModelRecord, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	existing, err := getModel(ctx, tx, repo)
	if err != nil {
		return nil, false, err
	}

	now := s.timestamp()

	if existing != nil {
		if !existing.Ready && now.Sub(existing.UpdatedAt) < timeout {
			return existing, false, nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO models (repo, ready, created_at, updated_at)
		VALUES (?, FALSE, ?, ?)
		ON CONFLICT(repo) DO UPDATE SET
			ready = FALSE,
			updated_at = excluded.updated_at
	`, repo, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("arming model %s: %w", repo, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing model %s: %w", repo, err)
	}

	return existing, true, nil
}

// DisarmModel undoes an ArmModel whose run could not be enqueued: the
// record is restored to prev, or removed when prev is nil. A record that
// became ready in the meantime is left alone.
func (s *Store) DisarmModel(ctx context.Context, repo string, prev *model.ModelRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	current, err := getModel(ctx, tx, repo)
	if err != nil {
		return err
	}

	if current == nil || current.Ready {
		return nil
	}

	if prev != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE models SET ready = ?, updated_at = ? WHERE repo = ?
		`, prev.Ready, prev.UpdatedAt, repo)
		if err != nil {
			return fmt.Errorf("restoring model %s: %w", repo, err)
		}

		return tx.Commit()
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM models
		WHERE repo = ? AND NOT EXISTS (SELECT 1 FROM trainings WHERE trainings.repo = models.repo)
	`, repo)
	if err != nil {
		return fmt.Errorf("removing model %s: %w", repo, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// associations pin the row; expire it instead
		_, err = tx.ExecContext(ctx, `
			UPDATE models SET updated_at = ? WHERE repo = ?
		`, time.Unix(0, 0).UTC(), repo)
		if err != nil {
			return fmt.Errorf("expiring model %s: %w", repo, err)
		}
	}

	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getModel(ctx context.Context, q queryer, repo string) (*model.ModelRecord, error) {
	var m model.ModelRecord

	err := q.QueryRowContext(ctx, `
		SELECT repo, ready, created_at, updated_at
		FROM models WHERE repo = ?
	`, repo).Scan(&m.Repo, &m.Ready, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("getting model %s: %w", repo, err)
	}

	return &m, nil
}
