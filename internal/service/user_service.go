package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lexiread/lexiread-api/internal/models"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UserService manages the school roster.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validator: validate, logger: logger}
}

// CreateUserRequest registers a roster member.
type CreateUserRequest struct {
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required,min=6"`
	FullName    string  `json:"full_name" validate:"required,min=1,max=200"`
	Role        string  `json:"role" validate:"required,oneof=STUDENT TEACHER LIBRARIAN"`
	Grade       *string `json:"grade" validate:"omitempty,max=20"`
	ClassName   *string `json:"class_name" validate:"omitempty,max=50"`
	LexileLevel *int    `json:"lexile_level" validate:"omitempty,min=0,max=2000"`
}

// UpdateUserRequest modifies roster fields. Nil means unchanged.
type UpdateUserRequest struct {
	FullName    *string `json:"full_name" validate:"omitempty,min=1,max=200"`
	Grade       *string `json:"grade" validate:"omitempty,max=20"`
	ClassName   *string `json:"class_name" validate:"omitempty,max=50"`
	LexileLevel *int    `json:"lexile_level" validate:"omitempty,min=0,max=2000"`
	Active      *bool   `json:"active"`
}

// ListUsersRequest captures list query parameters.
type ListUsersRequest struct {
	Role      string
	Grade     string
	ClassName string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Get returns one user. Students only see themselves.
func (s *UserService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleStudent && id != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return s.findUser(ctx, id)
}

// List returns roster members with pagination. Staff only.
func (s *UserService) List(ctx context.Context, actor *models.JWTClaims, req ListUsersRequest) ([]models.User, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	if !actor.Role.CanViewClassOverview() {
		return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "listing users requires staff access")
	}

	filter := models.UserFilter{
		Grade:     req.Grade,
		ClassName: req.ClassName,
		Active:    req.Active,
		Search:    req.Search,
		Page:      req.Page,
		PageSize:  req.PageSize,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}
	if req.Role != "" {
		role := models.UserRole(strings.ToUpper(req.Role))
		if !role.Valid() {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "role must be STUDENT, TEACHER or LIBRARIAN")
		}
		filter.Role = &role
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}

// Create registers a new user. Librarian only. Students get a points row in
// the same transaction so the leaderboard never sees a missing ledger.
func (s *UserService) Create(ctx context.Context, actor *models.JWTClaims, req CreateUserRequest) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.CanManageRoster() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "creating users requires librarian access")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         models.UserRole(req.Role),
		Grade:        req.Grade,
		ClassName:    req.ClassName,
		LexileLevel:  req.LexileLevel,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.recordAudit(ctx, actor, models.AuditActionUserCreate, user.ID)
	return user, nil
}

// Update modifies roster fields. Librarian only.
func (s *UserService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateUserRequest) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Role.CanManageRoster() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "updating users requires librarian access")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Grade != nil {
		user.Grade = req.Grade
	}
	if req.ClassName != nil {
		user.ClassName = req.ClassName
	}
	if req.LexileLevel != nil {
		user.LexileLevel = req.LexileLevel
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.recordAudit(ctx, actor, models.AuditActionUserUpdate, user.ID)
	return user, nil
}

// Delete removes a user and, via cascades, their books, lexile records and
// ledger. Librarian only; self-deletion is refused.
func (s *UserService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.CanManageRoster() {
		return appErrors.Clone(appErrors.ErrForbidden, "deleting users requires librarian access")
	}
	if id == actor.UserID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete your own account")
	}

	if _, err := s.findUser(ctx, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.recordAudit(ctx, actor, models.AuditActionUserDelete, id)
	return nil
}

func (s *UserService) findUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *UserService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string) {
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "users",
		ResourceID: &resourceID,
	}
	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
