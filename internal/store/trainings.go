package store

import (
	"context"
	"fmt"

	"github.com/inovacc/labelr/internal/model"
)

// UpsertTraining associates username with the model at repo.
// Re-inserting an existing pair is a no-op.
func (s *Store) UpsertTraining(ctx context.Context, username, repo string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trainings (username, repo, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(username, repo) DO NOTHING
	`, username, repo, s.timestamp())
	if err != nil {
		return fmt.Errorf("associating %s with %s: %w", username, repo, err)
	}

	return nil
}

// HasTraining reports whether username is associated with repo
func (s *Store) HasTraining(ctx context.Context, username, repo string) (bool, error) {
	var n int

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trainings WHERE username = ? AND repo = ?",
		username, repo,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking training %s/%s: %w", username, repo, err)
	}

	return n > 0, nil
}

// ListTrainings returns every model associated with username and its readiness
func (s *Store) ListTrainings(ctx context.Context, username string) ([]model.TrainedModel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.repo, m.ready
		FROM trainings t
		JOIN models m ON m.repo = t.repo
		WHERE t.username = ?
		ORDER BY m.repo
	`, username)
	if err != nil {
		return nil, fmt.Errorf("listing trainings for %s: %w", username, err)
	}

	defer func() { _ = rows.Close() }()

	out := make([]model.TrainedModel, 0)

	for rows.Next() {
		var tm model.TrainedModel
		if err := rows.Scan(&tm.Name, &tm.Ready); err != nil {
			return nil, fmt.Errorf("scanning training: %w", err)
		}

		out = append(out, tm)
	}

	return out, rows.Err()
}
