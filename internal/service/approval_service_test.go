package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/garasku/garasku-api/internal/dto"
	"github.com/garasku/garasku-api/internal/models"
	"github.com/garasku/garasku-api/internal/repository"
	appErrors "github.com/garasku/garasku-api/pkg/errors"
)

type approvalRepoStub struct {
	approvals map[string]*models.ApprovalRequest
}

func newApprovalRepoStub(approvals ...*models.ApprovalRequest) *approvalRepoStub {
	stub := &approvalRepoStub{approvals: make(map[string]*models.ApprovalRequest)}
	for _, a := range approvals {
		stub.approvals[a.ID] = a
	}
	return stub
}

func (s *approvalRepoStub) Create(ctx context.Context, approval *models.ApprovalRequest) error {
	if approval.ID == "" {
		approval.ID = "appr-generated"
	}
	s.approvals[approval.ID] = approval
	return nil
}

func (s *approvalRepoStub) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	if a, ok := s.approvals[id]; ok {
		copy := *a
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalRepoStub) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	result := make([]models.ApprovalRequest, 0, len(s.approvals))
	for _, a := range s.approvals {
		if filter.RequestedBy != "" && a.RequestedBy != filter.RequestedBy {
			continue
		}
		result = append(result, *a)
	}
	return result, nil
}

func (s *approvalRepoStub) Resolve(ctx context.Context, params repository.ResolveParams) error {
	a, ok := s.approvals[params.ID]
	if !ok || a.Status != models.ApprovalStatusPending {
		return sql.ErrNoRows
	}
	a.Status = params.Status
	a.ReviewedBy = &params.ReviewedBy
	a.ReviewedAt = &params.ReviewedAt
	a.Comment = params.Comment
	return nil
}

type approvalUserStub struct {
	users     map[string]*models.User
	activated []string
}

func (s *approvalUserStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalUserStub) SetActive(ctx context.Context, id string, active bool) error {
	if _, ok := s.users[id]; !ok {
		return sql.ErrNoRows
	}
	s.users[id].Active = active
	s.activated = append(s.activated, id)
	return nil
}

func pendingPartApproval(bookingID string) *models.ApprovalRequest {
	payload, _ := json.Marshal(dto.PartReplacementPayload{PartName: "Brake pads", Price: 40, Quantity: 2})
	return &models.ApprovalRequest{
		ID:           "appr-1",
		Type:         models.ApprovalTypePartReplacement,
		Status:       models.ApprovalStatusPending,
		RelatedID:    bookingID,
		RelatedModel: models.RelatedModelBooking,
		Payload:      payload,
		RequestedBy:  "merch-1",
	}
}

func bookingWithPendingPart(id string) *models.Booking {
	b := assignedBooking(id)
	b.Inspection = models.InspectionRecord{
		AdditionalParts: []models.InspectionPart{
			{Name: "Brake pads", Price: 40, Quantity: 2, ApprovalStatus: models.PartPending},
		},
	}
	return b
}

func TestApprovalRequestValidatesPayload(t *testing.T) {
	repo := newApprovalRepoStub()
	svc := NewApprovalService(repo, newBookingRepoStub(), &approvalUserStub{}, nil, &auditRecorderStub{}, nil)

	_, err := svc.Request(context.Background(), &dto.CreateApprovalRequest{
		Type:         models.ApprovalTypePartReplacement,
		RelatedID:    "b1",
		RelatedModel: models.RelatedModelBooking,
		Payload:      json.RawMessage(`{"partName":""}`),
	}, merchantClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	approval, err := svc.Request(context.Background(), &dto.CreateApprovalRequest{
		Type:         models.ApprovalTypePartReplacement,
		RelatedID:    "b1",
		RelatedModel: models.RelatedModelBooking,
		Payload:      json.RawMessage(`{"partName":"Brake pads","price":40,"quantity":2}`),
	}, merchantClaims())
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPending, approval.Status)
	require.Equal(t, "merch-1", approval.RequestedBy)
}

func TestApprovalResolveApprovePartReplacement(t *testing.T) {
	booking := bookingWithPendingPart("b1")
	bookings := newBookingRepoStub(booking)
	repo := newApprovalRepoStub(pendingPartApproval("b1"))
	audit := &auditRecorderStub{}
	svc := NewApprovalService(repo, bookings, &approvalUserStub{}, nil, audit, nil)

	approval, err := svc.Resolve(context.Background(), "appr-1", &dto.ResolveApprovalRequest{
		Decision: models.ApprovalStatusApproved,
	}, customerClaims())
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusApproved, approval.Status)
	require.NotNil(t, approval.ReviewedAt)

	stored := bookings.bookings["b1"]
	require.Equal(t, models.PartApproved, stored.Inspection.AdditionalParts[0].ApprovalStatus)
	require.Len(t, stored.Billing.Parts, 1)
	require.InDelta(t, 80.0, stored.Billing.PartsCost, 1e-9)
	require.Len(t, audit.entries, 1)
}

func TestApprovalResolveRejectLeavesBookingUntouched(t *testing.T) {
	booking := bookingWithPendingPart("b1")
	bookings := newBookingRepoStub(booking)
	repo := newApprovalRepoStub(pendingPartApproval("b1"))
	svc := NewApprovalService(repo, bookings, &approvalUserStub{}, nil, nil, nil)

	comment := "too expensive"
	approval, err := svc.Resolve(context.Background(), "appr-1", &dto.ResolveApprovalRequest{
		Decision: models.ApprovalStatusRejected,
		Comment:  comment,
	}, customerClaims())
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusRejected, approval.Status)
	require.Equal(t, &comment, approval.Comment)

	stored := bookings.bookings["b1"]
	require.Equal(t, models.PartPending, stored.Inspection.AdditionalParts[0].ApprovalStatus)
	require.Empty(t, stored.Billing.Parts)
}

func TestApprovalResolveIsTransitionOnce(t *testing.T) {
	bookings := newBookingRepoStub(bookingWithPendingPart("b1"))
	repo := newApprovalRepoStub(pendingPartApproval("b1"))
	svc := NewApprovalService(repo, bookings, &approvalUserStub{}, nil, nil, nil)

	_, err := svc.Resolve(context.Background(), "appr-1", &dto.ResolveApprovalRequest{
		Decision: models.ApprovalStatusRejected,
	}, customerClaims())
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), "appr-1", &dto.ResolveApprovalRequest{
		Decision: models.ApprovalStatusApproved,
	}, customerClaims())
	require.Equal(t, appErrors.ErrAlreadyResolved, err)
}

func TestApprovalResolveRequiresOwnerOrAdmin(t *testing.T) {
	bookings := newBookingRepoStub(bookingWithPendingPart("b1"))
	repo := newApprovalRepoStub(pendingPartApproval("b1"))
	svc := NewApprovalService(repo, bookings, &approvalUserStub{}, nil, nil, nil)

	_, err := svc.Resolve(context.Background(), "appr-1", &dto.ResolveApprovalRequest{
		Decision: models.ApprovalStatusApproved,
	}, &models.JWTClaims{UserID: "cust-2", Role: models.RoleCustomer})
	require.Equal(t, appErrors.ErrForbidden, err)

	_, err = svc.Resolve(context.Background(), "appr-1", &dto.ResolveApprovalRequest{
		Decision: models.ApprovalStatusApproved,
	}, merchantClaims())
	require.Equal(t, appErrors.ErrForbidden, err, "requesters cannot approve their own filings")
}

func TestApprovalResolveBillEdit(t *testing.T) {
	booking := assignedBooking("b1")
	booking.Billing = models.BillingRecord{InvoiceNo: "INV-1", PartsCost: 80, LabourCost: 50, GST: 18, Total: 148}
	bookings := newBookingRepoStub(booking)

	labour := 70.0
	payload, _ := json.Marshal(dto.BillEditPayload{LabourCost: &labour, Reason: "extra diagnostics"})
	repo := newApprovalRepoStub(&models.ApprovalRequest{
		ID:           "appr-2",
		Type:         models.ApprovalTypeBillEdit,
		Status:       models.ApprovalStatusPending,
		RelatedID:    "b1",
		RelatedModel: models.RelatedModelBooking,
		Payload:      payload,
		RequestedBy:  "merch-1",
	})
	svc := NewApprovalService(repo, bookings, &approvalUserStub{}, nil, nil, nil)

	_, err := svc.Resolve(context.Background(), "appr-2", &dto.ResolveApprovalRequest{
		Decision: models.ApprovalStatusApproved,
	}, customerClaims())
	require.NoError(t, err)

	stored := bookings.bookings["b1"]
	require.InDelta(t, 70.0, stored.Billing.LabourCost, 1e-9)
	require.InDelta(t, 168.0, stored.Billing.Total, 1e-9)
}

func TestApprovalResolveUserRegistrationActivates(t *testing.T) {
	users := &approvalUserStub{users: map[string]*models.User{
		"staff-9": {ID: "staff-9", Role: models.RoleStaff, Active: false},
	}}
	payload, _ := json.Marshal(dto.UserRegistrationPayload{UserID: "staff-9", Role: models.RoleStaff})
	repo := newApprovalRepoStub(&models.ApprovalRequest{
		ID:           "appr-3",
		Type:         models.ApprovalTypeUserRegistration,
		Status:       models.ApprovalStatusPending,
		RelatedID:    "staff-9",
		RelatedModel: models.RelatedModelUser,
		Payload:      payload,
		RequestedBy:  "merch-1",
	})
	svc := NewApprovalService(repo, newBookingRepoStub(), users, nil, nil, nil)

	_, err := svc.Resolve(context.Background(), "appr-3", &dto.ResolveApprovalRequest{
		Decision: models.ApprovalStatusApproved,
	}, adminClaims())
	require.NoError(t, err)
	require.True(t, users.users["staff-9"].Active)
	require.Equal(t, []string{"staff-9"}, users.activated)
}

func TestApprovalListScopesCustomerToOwnBookings(t *testing.T) {
	myBooking := assignedBooking("b1")
	otherBooking := &models.Booking{ID: "b2", CustomerID: "cust-2"}
	bookings := newBookingRepoStub(myBooking, otherBooking)

	mine := pendingPartApproval("b1")
	other := pendingPartApproval("b2")
	other.ID = "appr-other"
	other.RelatedID = "b2"
	repo := newApprovalRepoStub(mine, other)
	svc := NewApprovalService(repo, bookings, &approvalUserStub{}, nil, nil, nil)

	approvals, err := svc.List(context.Background(), &dto.ApprovalQuery{}, customerClaims())
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	require.Equal(t, "appr-1", approvals[0].ID)
}

func TestApprovalFilePartReplacement(t *testing.T) {
	repo := newApprovalRepoStub()
	svc := NewApprovalService(repo, newBookingRepoStub(), &approvalUserStub{}, nil, nil, nil)

	err := svc.FilePartReplacement(context.Background(), "b1", models.InspectionPart{
		Name:     "Brake pads",
		Price:    40,
		Quantity: 2,
	}, merchantClaims())
	require.NoError(t, err)
	require.Len(t, repo.approvals, 1)
	for _, a := range repo.approvals {
		require.Equal(t, models.ApprovalTypePartReplacement, a.Type)
		require.Equal(t, "b1", a.RelatedID)
	}
}
