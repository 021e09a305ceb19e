package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inovacc/labelr/internal/model"
)

// GetClassification returns the ledger record for the target repo, or nil
func (s *Store) GetClassification(ctx context.Context, repo string) (*model.ClassificationRecord, error) {
	return getClassification(ctx, s.db, repo)
}

// UpsertClassification creates or re-arms the ledger record for repo:
// model and username are replaced, classified is reset to false and
// started_at moves to now.
func (s *Store) UpsertClassification(ctx context.Context, repo, modelRepo, username string) (*model.ClassificationRecord, error) {
	if err := upsertClassification(ctx, s.db, repo, modelRepo, username, s.timestamp()); err != nil {
		return nil, err
	}

	return s.GetClassification(ctx, repo)
}

// ArmClassification re-arms the ledger record for repo when there is none,
// when it points at a different model, or when the last attempt started at
// least timeout ago. It returns the record as found before arming and
// whether this call armed it.
func (s *Store) ArmClassification(ctx context.Context, repo, modelRepo, username string, timeout time.Duration) (*model.ClassificationRecord, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	existing, err := getClassification(ctx, tx, repo)
	if err != nil {
		return nil, false, err
	}

	now := s.timestamp()

	if existing != nil && existing.Model == modelRepo && now.Sub(existing.StartedAt) < timeout {
		return existing, false, nil
	}

	if err := upsertClassification(ctx, tx, repo, modelRepo, username, now); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing classification %s: %w", repo, err)
	}

	return existing, true, nil
}

// MarkClassified flags the record for repo as classified by modelRepo.
// It reports false without error when the record vanished or was re-armed
// for another model in the meantime.
func (s *Store) MarkClassified(ctx context.Context, repo, modelRepo string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE classifications
		SET classified = TRUE, completed_at = ?
		WHERE repo = ? AND model = ?
	`, s.timestamp(), repo, modelRepo)
	if err != nil {
		return false, fmt.Errorf("marking %s classified: %w", repo, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marking %s classified: %w", repo, err)
	}

	return n > 0, nil
}

// DisarmClassification undoes an ArmClassification whose run could not be
// enqueued: the record is restored to prev, or removed when prev is nil.
func (s *Store) DisarmClassification(ctx context.Context, repo string, prev *model.ClassificationRecord) error {
	if prev == nil {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM classifications WHERE repo = ?`, repo); err != nil {
			return fmt.Errorf("removing classification %s: %w", repo, err)
		}

		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE classifications
		SET model = ?, username = ?, classified = ?, started_at = ?, completed_at = ?
		WHERE repo = ?
	`, prev.Model, nullString(prev.Username), prev.Classified, prev.StartedAt, nullTime(prev.CompletedAt), repo)
	if err != nil {
		return fmt.Errorf("restoring classification %s: %w", repo, err)
	}

	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertClassification(ctx context.Context, e execer, repo, modelRepo, username string, now time.Time) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO classifications (repo, model, username, classified, started_at, completed_at)
		VALUES (?, ?, ?, FALSE, ?, NULL)
		ON CONFLICT(repo) DO UPDATE SET
			model = excluded.model,
			username = excluded.username,
			classified = FALSE,
			started_at = excluded.started_at,
			completed_at = NULL
	`, repo, modelRepo, username, now)
	if err != nil {
		return fmt.Errorf("upserting classification %s: %w", repo, err)
	}

	return nil
}

func getClassification(ctx context.Context, q queryer, repo string) (*model.ClassificationRecord, error) {
	var (
		c         model.ClassificationRecord
		username  sql.NullString
		completed sql.NullTime
	)

	err := q.QueryRowContext(ctx, `
		SELECT repo, model, username, classified, started_at, completed_at
		FROM classifications WHERE repo = ?
	`, repo).Scan(&c.Repo, &c.Model, &username, &c.Classified, &c.StartedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("getting classification %s: %w", repo, err)
	}

	c.Username = username.String

	if completed.Valid {
		c.CompletedAt = completed.Time
	}

	return &c, nil
}
