package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garasku/garasku-api/internal/models"
	appErrors "github.com/garasku/garasku-api/pkg/errors"
)

type bookingRepoStub struct {
	bookings map[string]*models.Booking
}

func newBookingRepoStub(bookings ...*models.Booking) *bookingRepoStub {
	stub := &bookingRepoStub{bookings: make(map[string]*models.Booking)}
	for _, b := range bookings {
		stub.bookings[b.ID] = b
	}
	return stub
}

func (s *bookingRepoStub) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = "booking-generated"
	}
	s.bookings[booking.ID] = booking
	return nil
}

func (s *bookingRepoStub) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	if b, ok := s.bookings[id]; ok {
		copy := *b
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *bookingRepoStub) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	result := make([]models.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		if filter.CustomerID != "" && b.CustomerID != filter.CustomerID {
			continue
		}
		if filter.MerchantID != "" && (b.MerchantID == nil || *b.MerchantID != filter.MerchantID) {
			continue
		}
		if filter.StaffID != "" && (b.StaffID == nil || *b.StaffID != filter.StaffID) {
			continue
		}
		result = append(result, *b)
	}
	return result, nil
}

func (s *bookingRepoStub) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	b, ok := s.bookings[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.Status = status
	return nil
}

func (s *bookingRepoStub) UpdateStatusAndExecution(ctx context.Context, id string, status models.BookingStatus, exec models.ServiceExecutionRecord) error {
	b, ok := s.bookings[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.Status = status
	b.ServiceExecution = exec
	return nil
}

func (s *bookingRepoStub) UpdateStatusAndDelay(ctx context.Context, id string, status models.BookingStatus, delay models.DelayRecord) error {
	b, ok := s.bookings[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.Status = status
	b.Delay = delay
	return nil
}

func (s *bookingRepoStub) UpdateAssignment(ctx context.Context, id string, merchantID string, staffID *string) error {
	b, ok := s.bookings[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.MerchantID = &merchantID
	b.StaffID = staffID
	return nil
}

func (s *bookingRepoStub) UpdateInspection(ctx context.Context, id string, inspection models.InspectionRecord) error {
	b, ok := s.bookings[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.Inspection = inspection
	return nil
}

func (s *bookingRepoStub) UpdateQC(ctx context.Context, id string, qc models.QCRecord) error {
	b, ok := s.bookings[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.QC = qc
	return nil
}

func (s *bookingRepoStub) UpdateBilling(ctx context.Context, id string, billing models.BillingRecord) error {
	b, ok := s.bookings[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.Billing = billing
	return nil
}

func (s *bookingRepoStub) UpdateServiceExecution(ctx context.Context, id string, exec models.ServiceExecutionRecord) error {
	b, ok := s.bookings[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.ServiceExecution = exec
	return nil
}

type auditRecorderStub struct {
	entries []*models.AuditLog
}

func (a *auditRecorderStub) Record(ctx context.Context, entry *models.AuditLog) {
	a.entries = append(a.entries, entry)
}

type notifierStub struct {
	events [][2]models.BookingStatus
}

func (n *notifierStub) NotifyStatusChange(bookingID string, from, to models.BookingStatus) {
	n.events = append(n.events, [2]models.BookingStatus{from, to})
}

func timePtr(t *testing.T) *time.Time {
	t.Helper()
	ts := time.Now().UTC().Add(-time.Hour)
	return &ts
}

func staffClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func TestWorkflowTransitionAdvancesSequentially(t *testing.T) {
	repo := newBookingRepoStub(&models.Booking{ID: "b1", PickupRequired: true, Status: models.StatusCreated})
	audit := &auditRecorderStub{}
	notifier := &notifierStub{}
	svc := NewWorkflowService(repo, audit, notifier, nil)

	booking, warnings, err := svc.Transition(context.Background(), "b1", models.StatusAssigned, staffClaims())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, models.StatusAssigned, booking.Status)
	require.Len(t, audit.entries, 1)
	require.Equal(t, models.AuditActionStatusChange, audit.entries[0].Action)
	require.Len(t, notifier.events, 1)
	require.Equal(t, models.StatusCreated, notifier.events[0][0])
}

type failingAuditStore struct {
	appendErr error
	attempts  int
}

func (s *failingAuditStore) Append(ctx context.Context, entry *models.AuditLog) error {
	s.attempts++
	return s.appendErr
}

func (s *failingAuditStore) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	return nil, s.appendErr
}

func TestWorkflowTransitionSurvivesAuditStoreFailure(t *testing.T) {
	repo := newBookingRepoStub(&models.Booking{ID: "b1", PickupRequired: true, Status: models.StatusCreated})
	store := &failingAuditStore{appendErr: errors.New("audit store down")}
	svc := NewWorkflowService(repo, NewAuditService(store, nil), nil, nil)

	booking, _, err := svc.Transition(context.Background(), "b1", models.StatusAssigned, staffClaims())
	require.NoError(t, err)
	require.Equal(t, models.StatusAssigned, booking.Status)
	require.Equal(t, models.StatusAssigned, repo.bookings["b1"].Status)
	require.Equal(t, 1, store.attempts, "the append was attempted, its failure swallowed")
}

func TestWorkflowTransitionRejectsSkippedState(t *testing.T) {
	repo := newBookingRepoStub(&models.Booking{ID: "b1", PickupRequired: true, Status: models.StatusCreated})
	svc := NewWorkflowService(repo, nil, nil, nil)

	_, _, err := svc.Transition(context.Background(), "b1", models.StatusServiceStarted, staffClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.Equal(t, models.StatusCreated, repo.bookings["b1"].Status)
}

func TestWorkflowTransitionAdminMayJump(t *testing.T) {
	repo := newBookingRepoStub(&models.Booking{ID: "b1", PickupRequired: true, Status: models.StatusCreated})
	svc := NewWorkflowService(repo, nil, nil, nil)

	booking, _, err := svc.Transition(context.Background(), "b1", models.StatusVehicleAtMerchant, adminClaims())
	require.NoError(t, err)
	require.Equal(t, models.StatusVehicleAtMerchant, booking.Status)
}

func TestWorkflowTransitionRejectsForeignFlowState(t *testing.T) {
	// Direct bookings never pass through the pickup leg.
	repo := newBookingRepoStub(&models.Booking{ID: "b1", PickupRequired: false, Status: models.StatusAccepted})
	svc := NewWorkflowService(repo, nil, nil, nil)

	_, _, err := svc.Transition(context.Background(), "b1", models.StatusReachedCustomer, adminClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWorkflowDirectPathEndToEnd(t *testing.T) {
	repo := newBookingRepoStub(&models.Booking{
		ID:     "b1",
		Status: models.StatusCreated,
		Billing: models.BillingRecord{
			InvoiceNo: "INV-1",
			FileURL:   "/files/inv-1.pdf",
		},
		QC: models.QCRecord{},
	})
	svc := NewWorkflowService(repo, &auditRecorderStub{}, nil, nil)
	actor := staffClaims()

	for _, target := range []models.BookingStatus{
		models.StatusAssigned,
		models.StatusAccepted,
		models.StatusVehicleAtMerchant,
		models.StatusServiceStarted,
	} {
		_, _, err := svc.Transition(context.Background(), "b1", target, actor)
		require.NoError(t, err, "target %s", target)
	}

	booking, warnings, err := svc.Transition(context.Background(), "b1", models.StatusServiceCompleted, actor)
	require.NoError(t, err)
	require.Equal(t, []string{WarningQCIncomplete}, warnings)
	require.NotNil(t, booking.ServiceExecution.JobStartTime)
	require.NotNil(t, booking.ServiceExecution.JobEndTime)

	booking, _, err = svc.Transition(context.Background(), "b1", models.StatusDelivered, actor)
	require.NoError(t, err)
	require.Equal(t, models.StatusDelivered, booking.Status)

	_, _, err = svc.Transition(context.Background(), "b1", models.StatusDelivered, actor)
	require.Error(t, err, "terminal bookings accept no further transitions")
}

func TestWorkflowCompletionRequiresBillFile(t *testing.T) {
	repo := newBookingRepoStub(&models.Booking{ID: "b1", Status: models.StatusServiceStarted})
	svc := NewWorkflowService(repo, nil, nil, nil)

	_, _, err := svc.Transition(context.Background(), "b1", models.StatusServiceCompleted, staffClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	require.Equal(t, models.StatusServiceStarted, repo.bookings["b1"].Status)
}

func TestWorkflowJobStartTimeStampedOnce(t *testing.T) {
	started := timePtr(t)
	repo := newBookingRepoStub(&models.Booking{
		ID:               "b1",
		Status:           models.StatusVehicleAtMerchant,
		ServiceExecution: models.ServiceExecutionRecord{JobStartTime: started},
	})
	svc := NewWorkflowService(repo, nil, nil, nil)

	booking, _, err := svc.Transition(context.Background(), "b1", models.StatusServiceStarted, staffClaims())
	require.NoError(t, err)
	require.Equal(t, started, booking.ServiceExecution.JobStartTime)
}

func TestWorkflowCancelFromAnyActiveState(t *testing.T) {
	repo := newBookingRepoStub(&models.Booking{ID: "b1", PickupRequired: true, Status: models.StatusVehiclePicked})
	svc := NewWorkflowService(repo, nil, nil, nil)

	booking, _, err := svc.Transition(context.Background(), "b1", models.StatusCancelled, staffClaims())
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, booking.Status)

	_, _, err = svc.Transition(context.Background(), "b1", models.StatusAssigned, adminClaims())
	require.Error(t, err)
}

func TestWorkflowDelayAndResume(t *testing.T) {
	repo := newBookingRepoStub(&models.Booking{ID: "b1", PickupRequired: true, Status: models.StatusServiceStarted})
	audit := &auditRecorderStub{}
	svc := NewWorkflowService(repo, audit, nil, nil)

	booking, err := svc.MarkDelayed(context.Background(), "b1", "parts on backorder", "", staffClaims())
	require.NoError(t, err)
	require.Equal(t, models.StatusOnHold, booking.Status)
	require.True(t, booking.Delay.IsDelayed)
	require.Equal(t, models.StatusServiceStarted, booking.Delay.ResumeStatus)

	// Transitions are blocked while on hold.
	_, _, err = svc.Transition(context.Background(), "b1", models.StatusServiceCompleted, staffClaims())
	require.Error(t, err)

	// Double delay conflicts.
	_, err = svc.MarkDelayed(context.Background(), "b1", "again", "", staffClaims())
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	booking, err = svc.Resume(context.Background(), "b1", staffClaims())
	require.NoError(t, err)
	require.Equal(t, models.StatusServiceStarted, booking.Status)
	require.False(t, booking.Delay.IsDelayed)

	_, err = svc.Resume(context.Background(), "b1", staffClaims())
	require.Error(t, err, "resume requires an on-hold booking")
}

func TestWorkflowProgressAnchoredWhileOnHold(t *testing.T) {
	repo := newBookingRepoStub(&models.Booking{
		ID:             "b1",
		PickupRequired: false,
		Status:         models.StatusOnHold,
		Delay:          models.DelayRecord{IsDelayed: true, ResumeStatus: models.StatusServiceStarted},
	})
	svc := NewWorkflowService(repo, nil, nil, nil)

	booking, err := repo.GetByID(context.Background(), "b1")
	require.NoError(t, err)

	steps := svc.Progress(booking)
	require.Len(t, steps, 7)
	var current models.BookingStatus
	completed := 0
	for _, step := range steps {
		if step.Current {
			current = step.Status
		}
		if step.Completed {
			completed++
		}
	}
	require.Equal(t, models.StatusServiceStarted, current)
	require.Equal(t, 4, completed)
}

func TestWorkflowTransitionNotFound(t *testing.T) {
	svc := NewWorkflowService(newBookingRepoStub(), nil, nil, nil)
	_, _, err := svc.Transition(context.Background(), "missing", models.StatusAssigned, staffClaims())
	require.Equal(t, appErrors.ErrNotFound, err)
}
