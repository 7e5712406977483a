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

const lexileColumns = `id, user_id, term, year, lexile, created_at, updated_at`

// LexileRepository handles persistence for per-term student lexile records.
type LexileRepository struct {
	db *sqlx.DB
}

// NewLexileRepository instantiates a lexile repository.
func NewLexileRepository(db *sqlx.DB) *LexileRepository {
	return &LexileRepository{db: db}
}

// Upsert inserts or overwrites the unique (user, term, year) record.
// Re-running with identical input is a silent overwrite, never an error.
func (r *LexileRepository) Upsert(ctx context.Context, rec *models.StudentLexile) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	const query = `INSERT INTO student_lexiles (id, user_id, term, year, lexile, created_at, updated_at)
		VALUES (:id, :user_id, :term, :year, :lexile, :created_at, :updated_at)
		ON CONFLICT (user_id, term, year) DO UPDATE SET lexile = EXCLUDED.lexile, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("upsert student lexile: %w", err)
	}
	return nil
}

// FindByUser returns all records for a student, most recent first.
func (r *LexileRepository) FindByUser(ctx context.Context, userID string) ([]models.StudentLexile, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_lexiles WHERE user_id = $1 ORDER BY year DESC, term DESC`, lexileColumns)
	var records []models.StudentLexile
	if err := r.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, fmt.Errorf("list student lexiles: %w", err)
	}
	return records, nil
}

// FindExact returns the record for one (user, term, year) if present.
func (r *LexileRepository) FindExact(ctx context.Context, userID string, term, year int) (*models.StudentLexile, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_lexiles WHERE user_id = $1 AND term = $2 AND year = $3 LIMIT 1`, lexileColumns)
	var rec models.StudentLexile
	if err := r.db.GetContext(ctx, &rec, query, userID, term, year); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student lexile: %w", err)
	}
	return &rec, nil
}

// FindLatest returns the most recent record across all history, ordered by
// (year desc, term desc).
func (r *LexileRepository) FindLatest(ctx context.Context, userID string) (*models.StudentLexile, error) {
	query := fmt.Sprintf(`SELECT %s FROM student_lexiles WHERE user_id = $1 ORDER BY year DESC, term DESC LIMIT 1`, lexileColumns)
	var rec models.StudentLexile
	if err := r.db.GetContext(ctx, &rec, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find latest student lexile: %w", err)
	}
	return &rec, nil
}

// FindByUsersAndYear loads all records for a set of students within one
// academic year.
func (r *LexileRepository) FindByUsersAndYear(ctx context.Context, userIDs []string, year int) ([]models.StudentLexile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %s FROM student_lexiles WHERE year = ? AND user_id IN (?)`, lexileColumns), year, userIDs)
	if err != nil {
		return nil, fmt.Errorf("build lexile year query: %w", err)
	}
	query = r.db.Rebind(query)

	var records []models.StudentLexile
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list lexiles by year: %w", err)
	}
	return records, nil
}
