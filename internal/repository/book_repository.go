package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/lexiread/lexiread-api/internal/models"
)

// ErrNotPending signals that a verification transition lost the race: the
// book row no longer satisfies the status = PENDING precondition.
var ErrNotPending = errors.New("book is not pending")

const bookColumns = `id, user_id, title, author, rating, comment, lexile_level, word_count, genres, age_range, cover_url, status, verification_note, verified_at, verified_by, points_awarded, points_awarded_value, created_at, updated_at`

// BookRepository provides database access for book logs.
type BookRepository struct {
	db *sqlx.DB
}

// NewBookRepository creates a new instance of BookRepository.
func NewBookRepository(db *sqlx.DB) *BookRepository {
	return &BookRepository{db: db}
}

// Create inserts a new book log with PENDING status.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	const query = `INSERT INTO books (id, user_id, title, author, rating, comment, lexile_level, word_count, genres, age_range, cover_url, status, points_awarded, points_awarded_value, created_at, updated_at)
		VALUES (:id, :user_id, :title, :author, :rating, :comment, :lexile_level, :word_count, :genres, :age_range, :cover_url, :status, :points_awarded, :points_awarded_value, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// FindByID returns a book by identifier.
func (r *BookRepository) FindByID(ctx context.Context, id string) (*models.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE id = $1 LIMIT 1`, bookColumns)
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find book by id: %w", err)
	}
	return &book, nil
}

// List returns books matching filters with a total count.
func (r *BookRepository) List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	base := "FROM books WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(author) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"title":      true,
		"author":     true,
		"rating":     true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", bookColumns, base, sortBy, order, size, offset)

	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	return books, total, nil
}

// Update modifies the owner-editable fields of a book. Verification state
// is untouched.
func (r *BookRepository) Update(ctx context.Context, book *models.Book) error {
	book.UpdatedAt = time.Now().UTC()
	const query = `UPDATE books SET title = :title, author = :author, rating = :rating, comment = :comment, lexile_level = :lexile_level, word_count = :word_count, genres = :genres, age_range = :age_range, cover_url = :cover_url, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

// Approve transitions a PENDING book to APPROVED and credits the owner's
// points row in one transaction. The UPDATE carries a status precondition;
// a concurrent verifier that lost the race gets ErrNotPending and no rows
// are touched.
func (r *BookRepository) Approve(ctx context.Context, id, verifierID string, points int, note *string, at time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE books SET status = $2, verified_at = $3, verified_by = $4, verification_note = $5, points_awarded = TRUE, points_awarded_value = $6, updated_at = $3 WHERE id = $1 AND status = $7`,
		id, models.BookStatusApproved, at, verifierID, note, points, models.BookStatusPending)
	if err != nil {
		return fmt.Errorf("approve book: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("approve book rows affected: %w", err)
	}
	if affected == 0 {
		err = ErrNotPending
		return err
	}

	var ownerID string
	if err = tx.GetContext(ctx, &ownerID, `SELECT user_id FROM books WHERE id = $1`, id); err != nil {
		return fmt.Errorf("load book owner: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO points (user_id, total_points, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET total_points = points.total_points + EXCLUDED.total_points, updated_at = EXCLUDED.updated_at`,
		ownerID, points, at); err != nil {
		return fmt.Errorf("credit points: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit approve tx: %w", err)
	}
	return nil
}

// Reject transitions a PENDING book to REJECTED with mandatory feedback.
// The ledger is not touched.
func (r *BookRepository) Reject(ctx context.Context, id, verifierID, note string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE books SET status = $2, verified_at = $3, verified_by = $4, verification_note = $5, updated_at = $3 WHERE id = $1 AND status = $6`,
		id, models.BookStatusRejected, at, verifierID, note, models.BookStatusPending)
	if err != nil {
		return fmt.Errorf("reject book: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reject book rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotPending
	}
	return nil
}

// Delete removes a book and, when points were awarded, reverses exactly
// points_awarded_value from the owner's ledger in the same transaction.
func (r *BookRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var deleted struct {
		UserID             string `db:"user_id"`
		PointsAwarded      bool   `db:"points_awarded"`
		PointsAwardedValue int    `db:"points_awarded_value"`
	}
	if err = tx.GetContext(ctx, &deleted, `DELETE FROM books WHERE id = $1 RETURNING user_id, points_awarded, points_awarded_value`, id); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("delete book: %w", err)
	}

	if deleted.PointsAwarded && deleted.PointsAwardedValue != 0 {
		if _, err = tx.ExecContext(ctx,
			`UPDATE points SET total_points = total_points - $2, updated_at = $3 WHERE user_id = $1`,
			deleted.UserID, deleted.PointsAwardedValue, time.Now().UTC()); err != nil {
			return fmt.Errorf("reverse awarded points: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

// SetWordCountIfMissing writes a word count only when the book has none.
// Enrichment must never clobber existing data.
func (r *BookRepository) SetWordCountIfMissing(ctx context.Context, id string, wordCount int) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE books SET word_count = $2, updated_at = $3 WHERE id = $1 AND word_count IS NULL`,
		id, wordCount, time.Now().UTC()); err != nil {
		return fmt.Errorf("set word count: %w", err)
	}
	return nil
}

// SetGenres overwrites the genre list. Callers are expected to pass the
// merged set; see the enrichment service's grow-only policy.
func (r *BookRepository) SetGenres(ctx context.Context, id string, genres []string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE books SET genres = $2, updated_at = $3 WHERE id = $1`,
		id, pq.StringArray(genres), time.Now().UTC()); err != nil {
		return fmt.Errorf("set genres: %w", err)
	}
	return nil
}

// CountByStatus returns per-status totals for a user's books.
func (r *BookRepository) CountByStatus(ctx context.Context, userID string) (map[models.BookStatus]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT status, COUNT(*) AS total FROM books WHERE user_id = $1 GROUP BY status`, userID)
	if err != nil {
		return nil, fmt.Errorf("count books by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.BookStatus]int)
	for rows.Next() {
		var status models.BookStatus
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = total
	}
	return counts, rows.Err()
}
