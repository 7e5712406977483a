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

// EventAnnouncementCreated is broadcast when a new announcement is posted.
const EventAnnouncementCreated = "announcement_created"

type announcementRepository interface {
	Create(ctx context.Context, announcement *models.Announcement) error
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	ListRecent(ctx context.Context, limit int) ([]models.AnnouncementDetail, error)
	Delete(ctx context.Context, id string) error
}

// AnnouncementService manages school-wide messages.
type AnnouncementService struct {
	repo      announcementRepository
	hub       Broadcaster
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs the service. hub is optional.
func NewAnnouncementService(repo announcementRepository, hub Broadcaster, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{repo: repo, hub: hub, validator: validate, logger: logger}
}

// CreateAnnouncementRequest is a new school-wide message.
type CreateAnnouncementRequest struct {
	Message string `json:"message" validate:"required,min=1,max=2000"`
}

// List returns the most recent announcements, newest first.
func (s *AnnouncementService) List(ctx context.Context, limit int) ([]models.AnnouncementDetail, error) {
	announcements, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	if announcements == nil {
		announcements = []models.AnnouncementDetail{}
	}
	return announcements, nil
}

// Create posts an announcement and notifies live clients. Librarian only.
func (s *AnnouncementService) Create(ctx context.Context, actor *models.JWTClaims, req CreateAnnouncementRequest) (*models.Announcement, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.CanManageRoster() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "announcements require librarian access")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}

	announcement := &models.Announcement{
		Message:   strings.TrimSpace(req.Message),
		CreatedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}

	if s.hub != nil {
		s.hub.Broadcast(EventAnnouncementCreated, announcement)
	}
	return announcement, nil
}

// Delete removes an announcement. Librarian only.
func (s *AnnouncementService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.CanManageRoster() {
		return appErrors.Clone(appErrors.ErrForbidden, "announcements require librarian access")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	return nil
}
