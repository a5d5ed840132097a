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

type userFinderStub struct {
	users map[string]*models.User
}

func (s *userFinderStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type partFilerStub struct {
	filed []models.InspectionPart
}

func (s *partFilerStub) FilePartReplacement(ctx context.Context, bookingID string, part models.InspectionPart, actor *models.JWTClaims) error {
	s.filed = append(s.filed, part)
	return nil
}

func customerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "cust-1", Role: models.RoleCustomer}
}

func merchantClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "merch-1", Role: models.RoleMerchant}
}

func floatPtr(v float64) *float64 { return &v }

func assignedBooking(id string) *models.Booking {
	merchantID := "merch-1"
	staffID := "staff-1"
	return &models.Booking{
		ID:         id,
		CustomerID: "cust-1",
		MerchantID: &merchantID,
		StaffID:    &staffID,
		Status:     models.StatusVehicleAtMerchant,
	}
}

func TestBookingCreateSetsInitialStatus(t *testing.T) {
	repo := newBookingRepoStub()
	svc := NewBookingService(repo, &userFinderStub{}, nil, &auditRecorderStub{}, nil)

	booking, err := svc.Create(context.Background(), &dto.CreateBookingRequest{
		VehicleMake:    "Toyota",
		VehicleModel:   "Avanza",
		PlateNumber:    "B 1234 XY",
		ServiceType:    "general",
		PickupRequired: true,
	}, customerClaims())
	require.NoError(t, err)
	require.Equal(t, models.StatusCreated, booking.Status)
	require.Equal(t, "cust-1", booking.CustomerID)
	require.True(t, booking.PickupRequired)
}

func TestBookingListScopesToRole(t *testing.T) {
	mine := assignedBooking("b1")
	other := &models.Booking{ID: "b2", CustomerID: "cust-2", Status: models.StatusCreated}
	repo := newBookingRepoStub(mine, other)
	svc := NewBookingService(repo, &userFinderStub{}, nil, nil, nil)

	bookings, err := svc.List(context.Background(), &dto.BookingQuery{}, customerClaims())
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	require.Equal(t, "b1", bookings[0].ID)

	bookings, err = svc.List(context.Background(), &dto.BookingQuery{}, merchantClaims())
	require.NoError(t, err)
	require.Len(t, bookings, 1)

	bookings, err = svc.List(context.Background(), &dto.BookingQuery{}, adminClaims())
	require.NoError(t, err)
	require.Len(t, bookings, 2)
}

func TestBookingGetForbiddenForStrangers(t *testing.T) {
	repo := newBookingRepoStub(assignedBooking("b1"))
	svc := NewBookingService(repo, &userFinderStub{}, nil, nil, nil)

	_, err := svc.Get(context.Background(), "b1", &models.JWTClaims{UserID: "cust-2", Role: models.RoleCustomer})
	require.Equal(t, appErrors.ErrForbidden, err)

	booking, err := svc.Get(context.Background(), "b1", customerClaims())
	require.NoError(t, err)
	require.Equal(t, "b1", booking.ID)
}

func TestBookingAssignValidatesRoles(t *testing.T) {
	merchantID := "merch-1"
	users := &userFinderStub{users: map[string]*models.User{
		"merch-1": {ID: "merch-1", Role: models.RoleMerchant},
		"staff-1": {ID: "staff-1", Role: models.RoleStaff, MerchantID: &merchantID},
		"staff-x": {ID: "staff-x", Role: models.RoleStaff},
		"cust-1":  {ID: "cust-1", Role: models.RoleCustomer},
	}}
	repo := newBookingRepoStub(&models.Booking{ID: "b1", CustomerID: "cust-1", Status: models.StatusCreated})
	svc := NewBookingService(repo, users, nil, &auditRecorderStub{}, nil)

	booking, err := svc.Assign(context.Background(), "b1", &dto.AssignBookingRequest{
		MerchantID: "merch-1",
		StaffID:    "staff-1",
	}, adminClaims())
	require.NoError(t, err)
	require.Equal(t, "merch-1", *booking.MerchantID)
	require.Equal(t, "staff-1", *booking.StaffID)

	_, err = svc.Assign(context.Background(), "b1", &dto.AssignBookingRequest{MerchantID: "cust-1"}, adminClaims())
	require.Error(t, err, "customers cannot be assigned as merchants")

	_, err = svc.Assign(context.Background(), "b1", &dto.AssignBookingRequest{
		MerchantID: "merch-1",
		StaffID:    "staff-x",
	}, adminClaims())
	require.Error(t, err, "staff must belong to the assigned merchant")
}

func TestBookingSubmitInspectionFilesPartApprovals(t *testing.T) {
	repo := newBookingRepoStub(assignedBooking("b1"))
	filer := &partFilerStub{}
	svc := NewBookingService(repo, &userFinderStub{}, nil, nil, nil)
	svc.SetApprovalFiler(filer)

	booking, err := svc.SubmitInspection(context.Background(), "b1", &dto.InspectionRequest{
		DamageReport: "worn brake pads",
		AdditionalParts: []dto.InspectionPartInput{
			{Name: "Brake pads", Price: 80, Quantity: 2},
			{Name: "Wiper blades", Price: 15},
		},
	}, merchantClaims())
	require.NoError(t, err)
	require.Equal(t, "worn brake pads", booking.Inspection.DamageReport)
	require.NotNil(t, booking.Inspection.CompletedAt)
	require.Len(t, booking.Inspection.AdditionalParts, 2)
	for _, part := range booking.Inspection.AdditionalParts {
		require.Equal(t, models.PartPending, part.ApprovalStatus)
	}
	require.Len(t, filer.filed, 2)
	require.Equal(t, 1, filer.filed[1].Quantity, "zero quantity defaults to one")
}

func TestBookingUpdateQCCompletionGate(t *testing.T) {
	repo := newBookingRepoStub(assignedBooking("b1"))
	svc := NewBookingService(repo, &userFinderStub{}, nil, nil, nil)

	_, err := svc.UpdateQC(context.Background(), "b1", &dto.QCRequest{
		VehicleCleaned: true,
		RoadTested:     true,
		Complete:       true,
	}, merchantClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	booking, err := svc.UpdateQC(context.Background(), "b1", &dto.QCRequest{
		VehicleCleaned:  true,
		PartsVerified:   true,
		RoadTested:      true,
		CustomerItemsOK: true,
		Complete:        true,
	}, merchantClaims())
	require.NoError(t, err)
	require.NotNil(t, booking.QC.CompletedAt)
}

func TestBookingUpdateQCDeniedForCustomer(t *testing.T) {
	repo := newBookingRepoStub(assignedBooking("b1"))
	svc := NewBookingService(repo, &userFinderStub{}, nil, nil, nil)

	_, err := svc.UpdateQC(context.Background(), "b1", &dto.QCRequest{}, customerClaims())
	require.Equal(t, appErrors.ErrForbidden, err)
}

func TestBookingUpsertBillingMergesAndRecomputes(t *testing.T) {
	booking := assignedBooking("b1")
	booking.Billing = models.BillingRecord{InvoiceNo: "INV-1", FileURL: "/files/inv-1.pdf"}
	repo := newBookingRepoStub(booking)
	svc := NewBookingService(repo, &userFinderStub{}, nil, nil, nil)

	updated, err := svc.UpsertBilling(context.Background(), "b1", &dto.BillingRequest{
		InvoiceDate: "2026-08-30",
		Parts: []dto.BillingPartInput{
			{Name: "Brake pads", Price: 40, Quantity: 2},
		},
		LabourCost: floatPtr(50),
		GST:        floatPtr(18),
	}, merchantClaims())
	require.NoError(t, err)
	require.Equal(t, "INV-1", updated.Billing.InvoiceNo, "absent fields keep stored values")
	require.Equal(t, "/files/inv-1.pdf", updated.Billing.FileURL)
	require.InDelta(t, 80.0, updated.Billing.PartsCost, 1e-9)
	require.InDelta(t, 148.0, updated.Billing.Total, 1e-9)
	require.NotNil(t, updated.Billing.InvoiceDate)

	_, err = svc.UpsertBilling(context.Background(), "b1", &dto.BillingRequest{InvoiceDate: "30/08/2026"}, merchantClaims())
	require.Error(t, err, "invoice dates must be ISO formatted")
}

func TestBookingUpsertBillingFileOnlyPatchKeepsCosts(t *testing.T) {
	booking := assignedBooking("b1")
	booking.Billing = models.BillingRecord{
		InvoiceNo:  "INV-1",
		PartsCost:  100,
		LabourCost: 50,
		GST:        18,
		Total:      168,
	}
	repo := newBookingRepoStub(booking)
	svc := NewBookingService(repo, &userFinderStub{}, nil, nil, nil)

	updated, err := svc.UpsertBilling(context.Background(), "b1", &dto.BillingRequest{
		FileURL: "/files/inv-1.pdf",
	}, merchantClaims())
	require.NoError(t, err)
	require.Equal(t, "/files/inv-1.pdf", updated.Billing.FileURL)
	require.InDelta(t, 50.0, updated.Billing.LabourCost, 1e-9, "labour cost must survive a fileUrl-only patch")
	require.InDelta(t, 18.0, updated.Billing.GST, 1e-9)
	require.InDelta(t, 168.0, updated.Billing.Total, 1e-9)
}

func TestBookingAddServiceMediaAppends(t *testing.T) {
	repo := newBookingRepoStub(assignedBooking("b1"))
	svc := NewBookingService(repo, &userFinderStub{}, nil, nil, nil)

	booking, err := svc.AddServiceMedia(context.Background(), "b1", &dto.ServiceMediaRequest{
		Phase:     "before",
		PhotoURLs: []string{"/p/1.jpg"},
	}, merchantClaims())
	require.NoError(t, err)
	require.Equal(t, []string{"/p/1.jpg"}, booking.ServiceExecution.BeforePhotos)

	booking, err = svc.AddServiceMedia(context.Background(), "b1", &dto.ServiceMediaRequest{
		Phase:     "before",
		PhotoURLs: []string{"/p/2.jpg"},
	}, merchantClaims())
	require.NoError(t, err)
	require.Len(t, booking.ServiceExecution.BeforePhotos, 2)
}

func TestBookingInvoiceRequiresIssuedInvoice(t *testing.T) {
	repo := newBookingRepoStub(assignedBooking("b1"))
	users := &userFinderStub{users: map[string]*models.User{
		"cust-1":  {ID: "cust-1", FullName: "Jane Customer"},
		"merch-1": {ID: "merch-1", FullName: "Speedy Garage"},
	}}
	svc := NewBookingService(repo, users, nil, nil, nil)

	_, err := svc.Invoice(context.Background(), "b1", customerClaims())
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	repo.bookings["b1"].Billing = models.BillingRecord{
		InvoiceNo:  "INV-9",
		PartsCost:  80,
		LabourCost: 50,
		GST:        18,
		Total:      148,
		Parts:      []models.BillingPart{{Name: "Brake pads", Price: 40, Quantity: 2}},
	}
	invoice, err := svc.Invoice(context.Background(), "b1", customerClaims())
	require.NoError(t, err)
	require.Equal(t, "INV-9", invoice.InvoiceNo)
	require.Equal(t, "Jane Customer", invoice.Customer)
	require.Equal(t, "Speedy Garage", invoice.Merchant)
	require.Len(t, invoice.Lines, 1)
	require.InDelta(t, 148.0, invoice.Total, 1e-9)
}
