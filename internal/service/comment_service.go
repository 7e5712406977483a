package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lexiread/lexiread-api/internal/models"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
)

type commentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	FindByID(ctx context.Context, id string) (*models.Comment, error)
	ListByBook(ctx context.Context, bookID string) ([]models.CommentDetail, error)
	React(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

type bookFinder interface {
	FindByID(ctx context.Context, id string) (*models.Book, error)
}

// CommentService manages teacher feedback on book logs.
type CommentService struct {
	repo      commentRepository
	books     bookFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCommentService constructs the service.
func NewCommentService(repo commentRepository, books bookFinder, validate *validator.Validate, logger *zap.Logger) *CommentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentService{repo: repo, books: books, validator: validate, logger: logger}
}

// CreateCommentRequest is a new comment on a book.
type CreateCommentRequest struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
}

// Create adds a comment to a book. Teachers and librarians only.
func (s *CommentService) Create(ctx context.Context, actor *models.JWTClaims, bookID string, req CreateCommentRequest) (*models.Comment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.CanComment() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "commenting requires teacher or librarian access")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}

	if _, err := s.books.FindByID(ctx, bookID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}

	comment := &models.Comment{
		BookID:  bookID,
		UserID:  actor.UserID,
		Content: strings.TrimSpace(req.Content),
	}
	if err := s.repo.Create(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}
	return comment, nil
}

// ListByBook returns a book's comments with author names. The book owner
// and all staff can read them.
func (s *CommentService) ListByBook(ctx context.Context, actor *models.JWTClaims, bookID string) ([]models.CommentDetail, error) {
	book, err := s.books.FindByID(ctx, bookID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	if !canReadBook(actor, book) {
		return nil, appErrors.ErrForbidden
	}

	comments, err := s.repo.ListByBook(ctx, bookID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	if comments == nil {
		comments = []models.CommentDetail{}
	}
	return comments, nil
}

// React increments a comment's reaction counter and returns the new total.
// Any authenticated user may react, repeatedly; reactions are anonymous.
func (s *CommentService) React(ctx context.Context, actor *models.JWTClaims, id string) (int, error) {
	if actor == nil {
		return 0, appErrors.ErrUnauthorized
	}

	count, err := s.repo.React(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to react to comment")
	}
	return count, nil
}

// Delete removes a comment. The author or a librarian may delete.
func (s *CommentService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}

	comment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comment")
	}
	if comment.UserID != actor.UserID && !actor.Role.CanManageRoster() {
		return appErrors.Clone(appErrors.ErrForbidden, "only the author or a librarian can delete a comment")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete comment")
	}
	return nil
}
