// internal/store/features.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/talkto/internal/types"
)

func (s *Store) CreateFeature(ctx context.Context, feature *types.Feature) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feature_requests (id, title, description, status, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(feature.ID), feature.Title, feature.Description, feature.Status,
		string(feature.CreatedBy), formatTime(feature.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert feature: %w", err)
	}
	return nil
}

const featureQuery = `
	SELECT f.id, f.title, f.description, f.status, f.created_by, f.created_at,
	       COALESCE((SELECT SUM(v.vote) FROM feature_votes v WHERE v.feature_id = f.id), 0)
	FROM feature_requests f`

func scanFeature(scanner interface{ Scan(...any) error }) (*types.Feature, error) {
	var f types.Feature
	var id, createdBy, createdAt string
	err := scanner.Scan(&id, &f.Title, &f.Description, &f.Status, &createdBy, &createdAt, &f.VoteCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan feature: %w", err)
	}
	f.ID = types.FeatureID(id)
	f.CreatedBy = types.UserID(createdBy)
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}

func (s *Store) FeatureByID(ctx context.Context, id types.FeatureID) (*types.Feature, error) {
	row := s.db.QueryRowContext(ctx, featureQuery+` WHERE f.id = ?`, string(id))
	return scanFeature(row)
}

// ListFeatures returns features sorted by vote tally, highest first.
// An empty status matches every feature.
func (s *Store) ListFeatures(ctx context.Context, status string) ([]*types.Feature, error) {
	query := featureQuery
	args := []any{}
	if status != "" {
		query += ` WHERE f.status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY 7 DESC, f.created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()

	var features []*types.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// CastVote records the user's vote on the feature, replacing any
// earlier vote by the same user, and returns the recomputed tally.
func (s *Store) CastVote(ctx context.Context, featureID types.FeatureID, userID types.UserID, vote int) (int, error) {
	if vote != 1 && vote != -1 {
		return 0, fmt.Errorf("vote must be +1 or -1, got %d", vote)
	}
	if _, err := s.FeatureByID(ctx, featureID); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin vote: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO feature_votes (feature_id, user_id, vote) VALUES (?, ?, ?)
		 ON CONFLICT(feature_id, user_id) DO UPDATE SET vote = excluded.vote`,
		string(featureID), string(userID), vote,
	)
	if err != nil {
		return 0, fmt.Errorf("cast vote: %w", err)
	}

	var tally int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(vote), 0) FROM feature_votes WHERE feature_id = ?`,
		string(featureID),
	).Scan(&tally)
	if err != nil {
		return 0, fmt.Errorf("tally votes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit vote: %w", err)
	}
	return tally, nil
}
