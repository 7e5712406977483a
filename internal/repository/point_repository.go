package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lexiread/lexiread-api/internal/models"
)

// PointRepository provides database access for the points ledger. All
// writers go through atomic increments at the storage layer; there is no
// read-then-write path.
type PointRepository struct {
	db *sqlx.DB
}

// NewPointRepository creates a new instance of PointRepository.
func NewPointRepository(db *sqlx.DB) *PointRepository {
	return &PointRepository{db: db}
}

// Get returns the ledger row for a user.
func (r *PointRepository) Get(ctx context.Context, userID string) (*models.Point, error) {
	const query = `SELECT user_id, total_points, updated_at FROM points WHERE user_id = $1 LIMIT 1`
	var point models.Point
	if err := r.db.GetContext(ctx, &point, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get points: %w", err)
	}
	return &point, nil
}

// Credit atomically adjusts a user's total by delta, creating the row when
// absent. Negative deltas are reversals or corrections.
func (r *PointRepository) Credit(ctx context.Context, userID string, delta int, at time.Time) error {
	const query = `INSERT INTO points (user_id, total_points, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET total_points = points.total_points + EXCLUDED.total_points, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, userID, delta, at); err != nil {
		return fmt.Errorf("credit points: %w", err)
	}
	return nil
}

// SetTotal overwrites a user's total, creating the row when absent. Used by
// librarian manual adjustment only.
func (r *PointRepository) SetTotal(ctx context.Context, userID string, total int, at time.Time) error {
	const query = `INSERT INTO points (user_id, total_points, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET total_points = EXCLUDED.total_points, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, userID, total, at); err != nil {
		return fmt.Errorf("set points total: %w", err)
	}
	return nil
}

// Leaderboard returns the top active students by total points.
func (r *PointRepository) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT p.user_id, u.full_name, u.grade, u.class_name, p.total_points
		FROM points p
		JOIN users u ON u.id = p.user_id
		WHERE u.role = $1 AND u.active = TRUE
		ORDER BY p.total_points DESC, u.full_name ASC
		LIMIT $2`
	var entries []models.LeaderboardEntry
	if err := r.db.SelectContext(ctx, &entries, query, models.RoleStudent, limit); err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	return entries, nil
}
