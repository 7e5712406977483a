package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lexiread/lexiread-api/internal/models"
)

// AnnouncementRepository handles persistence for announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository instantiates an announcement repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO announcements (id, message, created_by, created_at) VALUES (:id, :message, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// FindByID returns an announcement by identifier.
func (r *AnnouncementRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	const query = `SELECT id, message, created_by, created_at FROM announcements WHERE id = $1 LIMIT 1`
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find announcement by id: %w", err)
	}
	return &announcement, nil
}

// ListRecent returns the most recent announcements with creator details.
func (r *AnnouncementRepository) ListRecent(ctx context.Context, limit int) ([]models.AnnouncementDetail, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT a.id, a.message, a.created_by, a.created_at, u.full_name AS created_by_name
		FROM announcements a
		JOIN users u ON u.id = a.created_by
		ORDER BY a.created_at DESC
		LIMIT $1`
	var announcements []models.AnnouncementDetail
	if err := r.db.SelectContext(ctx, &announcements, query, limit); err != nil {
		return nil, fmt.Errorf("list announcements: %w", err)
	}
	return announcements, nil
}

// Delete removes an announcement permanently.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}
