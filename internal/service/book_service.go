package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lexiread/lexiread-api/internal/models"
	"github.com/lexiread/lexiread-api/internal/repository"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
)

type bookRepository interface {
	Create(ctx context.Context, book *models.Book) error
	FindByID(ctx context.Context, id string) (*models.Book, error)
	List(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
	Update(ctx context.Context, book *models.Book) error
	Approve(ctx context.Context, id, verifierID string, points int, note *string, at time.Time) error
	Reject(ctx context.Context, id, verifierID, note string, at time.Time) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, userID string) (map[models.BookStatus]int, error)
}

type currentLexileProvider interface {
	CurrentLexile(ctx context.Context, userID string) (*int, error)
}

type enrichmentDispatcher interface {
	EnqueueBook(bookID string)
}

type leaderboardInvalidator interface {
	Invalidate(ctx context.Context)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// BookService owns the submit / verify / award workflow.
type BookService struct {
	repo        bookRepository
	lexiles     currentLexileProvider
	enrichment  enrichmentDispatcher
	leaderboard leaderboardInvalidator
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewBookService constructs the service. enrichment, leaderboard and audit
// are optional collaborators; nil disables the corresponding side effect.
func NewBookService(repo bookRepository, lexiles currentLexileProvider, enrichment enrichmentDispatcher, leaderboard leaderboardInvalidator, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *BookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookService{
		repo:        repo,
		lexiles:     lexiles,
		enrichment:  enrichment,
		leaderboard: leaderboard,
		audit:       audit,
		validator:   validate,
		logger:      logger,
	}
}

// CreateBookRequest is a student's reading log submission.
type CreateBookRequest struct {
	Title       string  `json:"title" validate:"required,min=1,max=300"`
	Author      string  `json:"author" validate:"required,min=1,max=200"`
	Rating      int     `json:"rating" validate:"required,min=1,max=5"`
	Comment     *string `json:"comment" validate:"omitempty,max=2000"`
	LexileLevel *int    `json:"lexile_level" validate:"omitempty,min=0,max=2000"`
	WordCount   *int     `json:"word_count" validate:"omitempty,min=1"`
	Genres      []string `json:"genres" validate:"omitempty,dive,min=1,max=50"`
	AgeRange    *string  `json:"age_range" validate:"omitempty,max=50"`
	CoverURL    *string  `json:"cover_url" validate:"omitempty,url"`
}

// UpdateBookRequest carries the owner-editable fields. Nil means unchanged;
// a non-nil Genres replaces the whole list.
type UpdateBookRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=300"`
	Author      *string  `json:"author" validate:"omitempty,min=1,max=200"`
	Rating      *int     `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment     *string  `json:"comment" validate:"omitempty,max=2000"`
	LexileLevel *int     `json:"lexile_level" validate:"omitempty,min=0,max=2000"`
	WordCount   *int     `json:"word_count" validate:"omitempty,min=1"`
	Genres      []string `json:"genres" validate:"omitempty,dive,min=1,max=50"`
	AgeRange    *string  `json:"age_range" validate:"omitempty,max=50"`
	CoverURL    *string  `json:"cover_url" validate:"omitempty,url"`
}

// VerifyBookRequest carries the librarian's decision. Points applies to
// approvals only; when omitted the service derives a suggestion from the
// lexile comparison. Note is mandatory for rejections.
type VerifyBookRequest struct {
	Status string  `json:"status" validate:"required,oneof=APPROVED REJECTED"`
	Points *int    `json:"points" validate:"omitempty,min=0"`
	Note   *string `json:"note" validate:"omitempty,max=2000"`
}

// ListBooksRequest captures list query parameters.
type ListBooksRequest struct {
	UserID    string
	Status    string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// BookSummary aggregates a student's workflow counters.
type BookSummary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Create registers a new PENDING book for the acting student and kicks off
// best-effort metadata enrichment.
func (s *BookService) Create(ctx context.Context, actor *models.JWTClaims, req CreateBookRequest) (*models.Book, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can log books")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}

	book := &models.Book{
		UserID:      actor.UserID,
		Title:       strings.TrimSpace(req.Title),
		Author:      strings.TrimSpace(req.Author),
		Rating:      req.Rating,
		Comment:     req.Comment,
		LexileLevel: req.LexileLevel,
		WordCount:   req.WordCount,
		Genres:      req.Genres,
		AgeRange:    req.AgeRange,
		CoverURL:    req.CoverURL,
		Status:      models.BookStatusPending,
	}
	if err := s.repo.Create(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create book")
	}

	if s.enrichment != nil {
		s.enrichment.EnqueueBook(book.ID)
	}

	return book, nil
}

// Get returns one book. Students only see their own.
func (s *BookService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Book, error) {
	book, err := s.findBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canReadBook(actor, book) {
		return nil, appErrors.ErrForbidden
	}
	return book, nil
}

// List returns books with pagination. Student scope is forced to own books
// regardless of the requested filter.
func (s *BookService) List(ctx context.Context, actor *models.JWTClaims, req ListBooksRequest) ([]models.Book, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}

	filter := models.BookFilter{
		UserID:    req.UserID,
		Search:    req.Search,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	if actor.Role == models.RoleStudent {
		filter.UserID = actor.UserID
	}
	if req.Status != "" {
		status := models.BookStatus(strings.ToUpper(req.Status))
		if !status.Valid() {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "status must be PENDING, APPROVED or REJECTED")
		}
		filter.Status = &status
	}

	books, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list books")
	}
	return books, total, nil
}

// Update modifies the owner-editable fields. Edits after verification are
// allowed and leave the verification state untouched.
func (s *BookService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateBookRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}

	book, err := s.findBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor == nil || book.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner can edit a book")
	}

	if req.Title != nil {
		book.Title = strings.TrimSpace(*req.Title)
	}
	if req.Author != nil {
		book.Author = strings.TrimSpace(*req.Author)
	}
	if req.Rating != nil {
		book.Rating = *req.Rating
	}
	if req.Comment != nil {
		book.Comment = req.Comment
	}
	if req.LexileLevel != nil {
		book.LexileLevel = req.LexileLevel
	}
	if req.WordCount != nil {
		book.WordCount = req.WordCount
	}
	if req.Genres != nil {
		book.Genres = req.Genres
	}
	if req.AgeRange != nil {
		book.AgeRange = req.AgeRange
	}
	if req.CoverURL != nil {
		book.CoverURL = req.CoverURL
	}

	if err := s.repo.Update(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update book")
	}
	return book, nil
}

// Verify applies a librarian decision to a PENDING book. Approval credits
// the awarded points atomically with the status flip; a book that already
// left PENDING yields a conflict so the caller sees the lost race.
func (s *BookService) Verify(ctx context.Context, actor *models.JWTClaims, id string, req VerifyBookRequest) (*models.Book, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.CanVerifyBooks() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "verification requires librarian access")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verification payload")
	}

	book, err := s.findBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if book.Status.Terminal() {
		return nil, appErrors.ErrAlreadyVerified
	}

	now := time.Now().UTC()
	status := models.BookStatus(req.Status)

	switch status {
	case models.BookStatusApproved:
		points, err := s.resolvePoints(ctx, book, req.Points)
		if err != nil {
			return nil, err
		}
		if err := s.repo.Approve(ctx, id, actor.UserID, points, req.Note, now); err != nil {
			if errors.Is(err, repository.ErrNotPending) {
				return nil, appErrors.ErrAlreadyVerified
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve book")
		}
		s.invalidateLeaderboard(ctx)
	case models.BookStatusRejected:
		if req.Note == nil || strings.TrimSpace(*req.Note) == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "a note is required when rejecting a book")
		}
		if err := s.repo.Reject(ctx, id, actor.UserID, strings.TrimSpace(*req.Note), now); err != nil {
			if errors.Is(err, repository.ErrNotPending) {
				return nil, appErrors.ErrAlreadyVerified
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject book")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be APPROVED or REJECTED")
	}

	s.recordAudit(ctx, actor, models.AuditActionBookVerify, "books", id)

	return s.findBook(ctx, id)
}

// SuggestPoints derives the award from the book's difficulty relative to
// the student's current level. Returns nil when either side is unknown.
func SuggestPoints(bookLexile, studentLexile *int) *int {
	if bookLexile == nil || studentLexile == nil {
		return nil
	}
	points := 1
	switch {
	case *bookLexile > *studentLexile:
		points = 3
	case *bookLexile >= *studentLexile-50:
		points = 2
	}
	return &points
}

// Delete removes a book; awarded points are reversed inside the repository
// transaction. Owners and librarians may delete.
func (s *BookService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	book, err := s.findBook(ctx, id)
	if err != nil {
		return err
	}
	if actor == nil || (book.UserID != actor.UserID && !actor.Role.CanVerifyBooks()) {
		return appErrors.Clone(appErrors.ErrForbidden, "only the owner or a librarian can delete a book")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete book")
	}

	if book.PointsAwarded {
		s.invalidateLeaderboard(ctx)
	}
	return nil
}

// Summary returns per-status counts for a student's books. Students can
// only request their own summary.
func (s *BookService) Summary(ctx context.Context, actor *models.JWTClaims, userID string) (*BookSummary, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if userID == "" {
		userID = actor.UserID
	}
	if actor.Role == models.RoleStudent && userID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}

	counts, err := s.repo.CountByStatus(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise books")
	}

	summary := &BookSummary{
		Pending:  counts[models.BookStatusPending],
		Approved: counts[models.BookStatusApproved],
		Rejected: counts[models.BookStatusRejected],
	}
	summary.Total = summary.Pending + summary.Approved + summary.Rejected
	return summary, nil
}

func (s *BookService) resolvePoints(ctx context.Context, book *models.Book, requested *int) (int, error) {
	if requested != nil {
		return *requested, nil
	}

	var studentLexile *int
	if s.lexiles != nil {
		current, err := s.lexiles.CurrentLexile(ctx, book.UserID)
		if err != nil {
			return 0, err
		}
		studentLexile = current
	}

	if suggested := SuggestPoints(book.LexileLevel, studentLexile); suggested != nil {
		return *suggested, nil
	}
	return 0, appErrors.Clone(appErrors.ErrValidation, "points are required when no lexile comparison is available")
}

func (s *BookService) findBook(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	return book, nil
}

func (s *BookService) invalidateLeaderboard(ctx context.Context) {
	if s.leaderboard != nil {
		s.leaderboard.Invalidate(ctx)
	}
}

func (s *BookService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resource, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func canReadBook(actor *models.JWTClaims, book *models.Book) bool {
	if actor == nil {
		return false
	}
	if actor.Role != models.RoleStudent {
		return true
	}
	return book.UserID == actor.UserID
}
