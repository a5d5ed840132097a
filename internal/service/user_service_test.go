package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/garasku/garasku-api/internal/dto"
	"github.com/garasku/garasku-api/internal/models"
	appErrors "github.com/garasku/garasku-api/pkg/errors"
)

type userStoreStub struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
}

func newUserStoreStub(users ...*models.User) *userStoreStub {
	stub := &userStoreStub{
		byEmail: make(map[string]*models.User),
		byID:    make(map[string]*models.User),
	}
	for _, u := range users {
		stub.byEmail[u.Email] = u
		stub.byID[u.ID] = u
	}
	return stub
}

func (s *userStoreStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (s *userStoreStub) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users := make([]models.User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (s *userStoreStub) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "user-generated"
	}
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
	return nil
}

func (s *userStoreStub) Update(ctx context.Context, user *models.User) error {
	if _, ok := s.byID[user.ID]; !ok {
		return sql.ErrNoRows
	}
	s.byID[user.ID] = user
	return nil
}

func (s *userStoreStub) SetActive(ctx context.Context, id string, active bool) error {
	u, ok := s.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Active = active
	return nil
}

type registrationFilerStub struct {
	requests []*dto.CreateApprovalRequest
	err      error
}

func (s *registrationFilerStub) Request(ctx context.Context, req *dto.CreateApprovalRequest, actor *models.JWTClaims) (*models.ApprovalRequest, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.requests = append(s.requests, req)
	return &models.ApprovalRequest{ID: "appr-reg", Status: models.ApprovalStatusPending}, nil
}

func TestUserCreateRequiresAdmin(t *testing.T) {
	svc := NewUserService(newUserStoreStub(), &registrationFilerStub{}, nil, nil)

	_, err := svc.Create(context.Background(), &dto.CreateUserRequest{
		Email:    "new@garasku.id",
		Password: "secret123",
		FullName: "New User",
		Role:     models.RoleCustomer,
	}, merchantClaims())
	require.Equal(t, appErrors.ErrForbidden, err)
}

func TestUserCreateRejectsDuplicateEmail(t *testing.T) {
	existing := &models.User{ID: "u1", Email: "taken@garasku.id", Role: models.RoleCustomer}
	svc := NewUserService(newUserStoreStub(existing), &registrationFilerStub{}, nil, nil)

	_, err := svc.Create(context.Background(), &dto.CreateUserRequest{
		Email:    "taken@garasku.id",
		Password: "secret123",
		FullName: "Dup",
		Role:     models.RoleCustomer,
	}, adminClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserRegisterStaffFilesApproval(t *testing.T) {
	store := newUserStoreStub()
	filer := &registrationFilerStub{}
	audit := &auditRecorderStub{}
	svc := NewUserService(store, filer, audit, nil)

	user, err := svc.RegisterStaff(context.Background(), &dto.RegisterStaffRequest{
		Email:    "mech@garasku.id",
		Password: "secret123",
		FullName: "New Mechanic",
	}, merchantClaims())
	require.NoError(t, err)
	require.Equal(t, models.RoleStaff, user.Role)
	require.False(t, user.Active)
	require.NotNil(t, user.MerchantID)
	require.Equal(t, "merch-1", *user.MerchantID)

	require.Len(t, filer.requests, 1)
	require.Equal(t, models.ApprovalTypeUserRegistration, filer.requests[0].Type)
	require.Equal(t, user.ID, filer.requests[0].RelatedID)
	require.Len(t, audit.entries, 1)
}

func TestUserRegisterStaffMerchantOnly(t *testing.T) {
	svc := NewUserService(newUserStoreStub(), &registrationFilerStub{}, nil, nil)

	_, err := svc.RegisterStaff(context.Background(), &dto.RegisterStaffRequest{
		Email:    "mech@garasku.id",
		Password: "secret123",
		FullName: "New Mechanic",
	}, customerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUserUpdateSelfCannotChangeActive(t *testing.T) {
	existing := &models.User{ID: "cust-1", Email: "me@garasku.id", Role: models.RoleCustomer, Active: true}
	svc := NewUserService(newUserStoreStub(existing), &registrationFilerStub{}, nil, nil)

	active := false
	_, err := svc.Update(context.Background(), "cust-1", &dto.UpdateUserRequest{Active: &active}, customerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	name := "Renamed Customer"
	user, err := svc.Update(context.Background(), "cust-1", &dto.UpdateUserRequest{FullName: &name}, customerClaims())
	require.NoError(t, err)
	require.Equal(t, name, user.FullName)
	require.True(t, user.Active)
}

func TestUserGetScoping(t *testing.T) {
	existing := &models.User{ID: "cust-1", Email: "me@garasku.id", Role: models.RoleCustomer}
	svc := NewUserService(newUserStoreStub(existing), &registrationFilerStub{}, nil, nil)

	_, err := svc.Get(context.Background(), "cust-1", &models.JWTClaims{UserID: "cust-2", Role: models.RoleCustomer})
	require.Equal(t, appErrors.ErrForbidden, err)

	user, err := svc.Get(context.Background(), "cust-1", adminClaims())
	require.NoError(t, err)
	require.Equal(t, "cust-1", user.ID)
}
