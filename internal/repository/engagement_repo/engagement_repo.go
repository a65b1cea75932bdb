package engagement_repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type engagementRepository struct {
	db *sql.DB
}

func NewEngagementRepository(db *sql.DB) *engagementRepository {
	return &engagementRepository{db: db}
}

// Like is idempotent: a repeated like keeps the first timestamp.
func (r *engagementRepository) Like(ctx context.Context, userID, trackID int64) error {
	query := `
		INSERT INTO like_tracks (user_id, track_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, track_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID, trackID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to like track %d for user %d: %w", trackID, userID, err)
	}
	return nil
}

func (r *engagementRepository) Unlike(ctx context.Context, userID, trackID int64) error {
	query := `DELETE FROM like_tracks WHERE user_id = $1 AND track_id = $2`
	if _, err := r.db.ExecContext(ctx, query, userID, trackID); err != nil {
		return fmt.Errorf("failed to unlike track %d for user %d: %w", trackID, userID, err)
	}
	return nil
}

func (r *engagementRepository) Listen(ctx context.Context, userID, trackID int64) error {
	query := `INSERT INTO listen_tracks (user_id, track_id, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, userID, trackID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record listen of track %d for user %d: %w", trackID, userID, err)
	}
	return nil
}

func (r *engagementRepository) IsLiked(ctx context.Context, userID, trackID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM like_tracks WHERE user_id = $1 AND track_id = $2)`
	var liked bool
	if err := r.db.QueryRowContext(ctx, query, userID, trackID).Scan(&liked); err != nil {
		return false, fmt.Errorf("failed to check like of track %d for user %d: %w", trackID, userID, err)
	}
	return liked, nil
}

func (r *engagementRepository) CountLikes(ctx context.Context, trackID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM like_tracks WHERE track_id = $1`, trackID)
}

func (r *engagementRepository) CountListens(ctx context.Context, trackID int64) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM listen_tracks WHERE track_id = $1`, trackID)
}

func (r *engagementRepository) count(ctx context.Context, query string, trackID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, trackID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count for track %d: %w", trackID, err)
	}
	return n, nil
}
