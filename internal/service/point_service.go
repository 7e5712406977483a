package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/lexiread/lexiread-api/internal/models"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
)

type pointRepository interface {
	Get(ctx context.Context, userID string) (*models.Point, error)
	SetTotal(ctx context.Context, userID string, total int, at time.Time) error
}

// PointService exposes ledger reads and the librarian's manual adjustment.
// Workflow credits and reversals happen inside the book repository
// transactions; this service never performs read-then-write arithmetic.
type PointService struct {
	repo        pointRepository
	roster      studentRoster
	leaderboard leaderboardInvalidator
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPointService constructs the service.
func NewPointService(repo pointRepository, roster studentRoster, leaderboard leaderboardInvalidator, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *PointService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PointService{
		repo:        repo,
		roster:      roster,
		leaderboard: leaderboard,
		audit:       audit,
		validator:   validate,
		logger:      logger,
	}
}

// AdjustPointsRequest overwrites a student's total.
type AdjustPointsRequest struct {
	TotalPoints int `json:"total_points" validate:"min=0"`
}

// Get returns a user's ledger row. Students see their own; staff see any.
// A missing row reads as zero points, not an error.
func (s *PointService) Get(ctx context.Context, actor *models.JWTClaims, userID string) (*models.Point, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if userID == "" {
		userID = actor.UserID
	}
	if actor.Role == models.RoleStudent && userID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}

	point, err := s.repo.Get(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.Point{UserID: userID}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load points")
	}
	return point, nil
}

// Adjust overwrites a student's total. Librarian only; audited.
func (s *PointService) Adjust(ctx context.Context, actor *models.JWTClaims, userID string, req AdjustPointsRequest) (*models.Point, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.CanManageRoster() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "points adjustment requires librarian access")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid points payload")
	}

	student, err := s.roster.FindByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "points can only be adjusted for students")
	}

	now := time.Now().UTC()
	if err := s.repo.SetTotal(ctx, userID, req.TotalPoints, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to adjust points")
	}

	if s.leaderboard != nil {
		s.leaderboard.Invalidate(ctx)
	}
	if s.audit != nil {
		log := &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionPointsAdjust,
			Resource:   "points",
			ResourceID: &userID,
		}
		if err := s.audit.CreateAuditLog(ctx, log); err != nil {
			s.logger.Warn("audit log write failed", zap.String("action", models.AuditActionPointsAdjust), zap.Error(err))
		}
	}

	return &models.Point{UserID: userID, TotalPoints: req.TotalPoints, UpdatedAt: now}, nil
}
