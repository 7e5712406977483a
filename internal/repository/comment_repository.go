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

// CommentRepository handles persistence for teacher comments on book logs.
type CommentRepository struct {
	db *sqlx.DB
}

// NewCommentRepository instantiates a comment repository.
func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create inserts a new comment.
func (r *CommentRepository) Create(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO comments (id, book_id, user_id, content, reactions, created_at) VALUES (:id, :book_id, :user_id, :content, :reactions, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// FindByID returns a comment by identifier.
func (r *CommentRepository) FindByID(ctx context.Context, id string) (*models.Comment, error) {
	const query = `SELECT id, book_id, user_id, content, reactions, created_at FROM comments WHERE id = $1 LIMIT 1`
	var comment models.Comment
	if err := r.db.GetContext(ctx, &comment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find comment by id: %w", err)
	}
	return &comment, nil
}

// ListByBook returns all comments on a book with author details, oldest
// first.
func (r *CommentRepository) ListByBook(ctx context.Context, bookID string) ([]models.CommentDetail, error) {
	const query = `SELECT c.id, c.book_id, c.user_id, c.content, c.reactions, c.created_at, u.full_name AS author_name, u.role AS author_role
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.book_id = $1
		ORDER BY c.created_at ASC`
	var comments []models.CommentDetail
	if err := r.db.SelectContext(ctx, &comments, query, bookID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// React atomically increments the reaction counter and returns the new
// value. No record is kept of who reacted.
func (r *CommentRepository) React(ctx context.Context, id string) (int, error) {
	const query = `UPDATE comments SET reactions = reactions + 1 WHERE id = $1 RETURNING reactions`
	var reactions int
	if err := r.db.GetContext(ctx, &reactions, query, id); err != nil {
		if err == sql.ErrNoRows {
			return 0, err
		}
		return 0, fmt.Errorf("react to comment: %w", err)
	}
	return reactions, nil
}

// Delete removes a comment permanently.
func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
