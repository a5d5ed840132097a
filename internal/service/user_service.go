package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/garasku/garasku-api/internal/dto"
	"github.com/garasku/garasku-api/internal/models"
	appErrors "github.com/garasku/garasku-api/pkg/errors"
)

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id string, active bool) error
}

type registrationFiler interface {
	Request(ctx context.Context, req *dto.CreateApprovalRequest, actor *models.JWTClaims) (*models.ApprovalRequest, error)
}

// UserService covers the admin user directory plus merchant staff
// registration, which parks new accounts behind an approval request.
type UserService struct {
	repo      userStore
	approvals registrationFiler
	audit     auditRecorder
	logger    *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(repo userStore, approvals registrationFiler, audit auditRecorder, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, approvals: approvals, audit: audit, logger: logger}
}

// Get loads one user. Non-admins may only fetch themselves.
func (s *UserService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.UserID != id {
		return nil, appErrors.ErrForbidden
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// List returns users matching the filter. Admin only.
func (s *UserService) List(ctx context.Context, filter models.UserFilter, actor *models.JWTClaims) ([]models.User, *models.Pagination, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, nil, appErrors.ErrForbidden
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Create provisions an active account. Admin only; the registration flow for
// merchants' staff goes through RegisterStaff instead.
func (s *UserService) Create(ctx context.Context, req *dto.CreateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	if actor == nil || actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	switch req.Role {
	case models.RoleAdmin, models.RoleMerchant, models.RoleStaff, models.RoleCustomer:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Phone:        req.Phone,
		Role:         req.Role,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.recordUserAction(ctx, actor, models.AuditActionUserCreate, user.ID, map[string]interface{}{"role": user.Role})
	return user, nil
}

// Update patches mutable fields. Admins may edit anyone; users may edit
// their own name and phone but not their active flag.
func (s *UserService) Update(ctx context.Context, id string, req *dto.UpdateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	isAdmin := actor.Role == models.RoleAdmin
	if !isAdmin && actor.UserID != id {
		return nil, appErrors.ErrForbidden
	}
	if !isAdmin && req.Active != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may change account status")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.recordUserAction(ctx, actor, models.AuditActionUserUpdate, user.ID, nil)
	return user, nil
}

// RegisterStaff creates an inactive staff account under the calling merchant
// and files a USER_REGISTRATION request for an admin to resolve.
func (s *UserService) RegisterStaff(ctx context.Context, req *dto.RegisterStaffRequest, actor *models.JWTClaims) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleMerchant {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only merchants may register staff")
	}
	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	merchantID := actor.UserID
	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Phone:        req.Phone,
		Role:         models.RoleStaff,
		MerchantID:   &merchantID,
		Active:       false,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create staff account")
	}

	payload, err := json.Marshal(dto.UserRegistrationPayload{UserID: user.ID, Role: models.RoleStaff})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode registration payload")
	}
	if _, err := s.approvals.Request(ctx, &dto.CreateApprovalRequest{
		Type:         models.ApprovalTypeUserRegistration,
		RelatedID:    user.ID,
		RelatedModel: models.RelatedModelUser,
		Payload:      payload,
	}, actor); err != nil {
		s.logger.Error("failed to file registration approval", zap.String("user_id", user.ID), zap.Error(err))
		return nil, err
	}

	s.recordUserAction(ctx, actor, models.AuditActionUserCreate, user.ID, map[string]interface{}{
		"role":    models.RoleStaff,
		"pending": true,
	})
	return user, nil
}

func (s *UserService) recordUserAction(ctx context.Context, actor *models.JWTClaims, action, userID string, details map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload := []byte("{}")
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			payload = raw
		}
	}
	s.audit.Record(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		TargetType: "user",
		TargetID:   &userID,
		Details:    payload,
	})
}
