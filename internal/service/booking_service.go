package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garasku/garasku-api/internal/dto"
	"github.com/garasku/garasku-api/internal/models"
	appErrors "github.com/garasku/garasku-api/pkg/errors"
	"github.com/garasku/garasku-api/pkg/export"
)

type bookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	UpdateAssignment(ctx context.Context, id string, merchantID string, staffID *string) error
	UpdateInspection(ctx context.Context, id string, inspection models.InspectionRecord) error
	UpdateQC(ctx context.Context, id string, qc models.QCRecord) error
	UpdateBilling(ctx context.Context, id string, billing models.BillingRecord) error
	UpdateServiceExecution(ctx context.Context, id string, exec models.ServiceExecutionRecord) error
}

type partApprovalFiler interface {
	FilePartReplacement(ctx context.Context, bookingID string, part models.InspectionPart, actor *models.JWTClaims) error
}

// BookingService owns booking CRUD and the role-specific sub-record updates.
// Status movement lives in WorkflowService; approval resolution lives in
// ApprovalService.
type BookingService struct {
	repo      bookingStore
	users     userFinder
	approvals partApprovalFiler
	cache     *BookingCache
	audit     auditRecorder
	logger    *zap.Logger
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// NewBookingService constructs the service. approvals may be set later via
// SetApprovalFiler to break the construction cycle with ApprovalService.
func NewBookingService(repo bookingStore, users userFinder, cache *BookingCache, audit auditRecorder, logger *zap.Logger) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{repo: repo, users: users, cache: cache, audit: audit, logger: logger}
}

// SetApprovalFiler wires the approval pipeline once both services exist.
func (s *BookingService) SetApprovalFiler(filer partApprovalFiler) {
	s.approvals = filer
}

// Create opens a new booking for the authenticated customer. The initial
// status depends on whether pickup was requested.
func (s *BookingService) Create(ctx context.Context, req *dto.CreateBookingRequest, actor *models.JWTClaims) (*models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	booking := &models.Booking{
		CustomerID:     actor.UserID,
		VehicleMake:    req.VehicleMake,
		VehicleModel:   req.VehicleModel,
		PlateNumber:    req.PlateNumber,
		ServiceType:    req.ServiceType,
		Notes:          req.Notes,
		PickupRequired: req.PickupRequired,
		Status:         models.FlowFor(req.PickupRequired)[0],
	}
	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to create booking")
	}
	s.recordBookingAction(ctx, actor, models.AuditActionBookingCreate, booking.ID, map[string]interface{}{
		"status": booking.Status,
	})
	return booking, nil
}

// Get loads one booking, enforcing that the actor may see it.
func (s *BookingService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Booking, error) {
	if cached := s.cache.Get(ctx, id); cached != nil {
		if err := s.authorizeRead(cached, actor); err != nil {
			return nil, err
		}
		return cached, nil
	}
	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(booking, actor); err != nil {
		return nil, err
	}
	s.cache.Set(ctx, booking)
	return booking, nil
}

// List returns bookings visible to the actor. Customers see their own,
// merchants theirs, staff their assignments; admins see everything.
func (s *BookingService) List(ctx context.Context, query *dto.BookingQuery, actor *models.JWTClaims) ([]models.Booking, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.BookingFilter{
		PickupRequired: query.PickupRequired,
		Page:           query.Page,
		PageSize:       query.PageSize,
	}
	if query.Status != "" {
		status, ok := models.ParseStatus(query.Status)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", query.Status))
		}
		filter.Status = []models.BookingStatus{status}
	}
	switch actor.Role {
	case models.RoleCustomer:
		filter.CustomerID = actor.UserID
	case models.RoleMerchant:
		filter.MerchantID = actor.UserID
	case models.RoleStaff:
		filter.StaffID = actor.UserID
	case models.RoleAdmin:
	default:
		return nil, appErrors.ErrForbidden
	}
	bookings, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to list bookings")
	}
	return bookings, nil
}

// Assign attaches a merchant, and optionally one of that merchant's staff,
// to the booking. Admin only.
func (s *BookingService) Assign(ctx context.Context, id string, req *dto.AssignBookingRequest, actor *models.JWTClaims) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if models.IsTerminal(booking.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("booking is already %s", booking.Status))
	}

	merchant, err := s.users.FindByID(ctx, req.MerchantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "merchant not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to look up merchant")
	}
	if merchant.Role != models.RoleMerchant {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assigned user is not a merchant")
	}

	var staffID *string
	if req.StaffID != "" {
		staff, err := s.users.FindByID(ctx, req.StaffID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "staff member not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to look up staff member")
		}
		if staff.Role != models.RoleStaff || staff.MerchantID == nil || *staff.MerchantID != merchant.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "staff member does not belong to the assigned merchant")
		}
		staffID = &staff.ID
	}

	if err := s.repo.UpdateAssignment(ctx, id, merchant.ID, staffID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to assign booking")
	}

	booking.MerchantID = &merchant.ID
	booking.StaffID = staffID
	s.cache.Invalidate(ctx, id)
	s.recordBookingAction(ctx, actor, models.AuditActionBookingAssign, id, map[string]interface{}{
		"merchant_id": merchant.ID,
		"staff_id":    req.StaffID,
	})
	return booking, nil
}

// SubmitInspection records the damage report. Each additional part starts
// Pending and files a part replacement request for the customer to resolve.
func (s *BookingService) SubmitInspection(ctx context.Context, id string, req *dto.InspectionRequest, actor *models.JWTClaims) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWorkshopWrite(booking, actor); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inspection := booking.Inspection
	inspection.DamageReport = req.DamageReport
	inspection.CompletedAt = &now

	var filed []models.InspectionPart
	for _, in := range req.AdditionalParts {
		qty := in.Quantity
		if qty <= 0 {
			qty = 1
		}
		part := models.InspectionPart{
			Name:           in.Name,
			Price:          in.Price,
			Quantity:       qty,
			ApprovalStatus: models.PartPending,
			BeforeImageURL: in.BeforeImageURL,
			AfterImageURL:  in.AfterImageURL,
		}
		inspection.AdditionalParts = append(inspection.AdditionalParts, part)
		filed = append(filed, part)
	}

	if err := s.repo.UpdateInspection(ctx, id, inspection); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to save inspection")
	}
	booking.Inspection = inspection
	s.cache.Invalidate(ctx, id)

	if s.approvals != nil {
		for _, part := range filed {
			if err := s.approvals.FilePartReplacement(ctx, id, part, actor); err != nil {
				s.logger.Warn("failed to file part replacement request",
					zap.String("booking_id", id),
					zap.String("part", part.Name),
					zap.Error(err))
			}
		}
	}
	return booking, nil
}

// UpdateQC updates the quality checklist. Completion stamps completedAt and
// requires every flag to be checked first.
func (s *BookingService) UpdateQC(ctx context.Context, id string, req *dto.QCRequest, actor *models.JWTClaims) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWorkshopWrite(booking, actor); err != nil {
		return nil, err
	}

	qc := models.QCRecord{
		VehicleCleaned:  req.VehicleCleaned,
		PartsVerified:   req.PartsVerified,
		RoadTested:      req.RoadTested,
		CustomerItemsOK: req.CustomerItemsOK,
		Notes:           req.Notes,
		CompletedAt:     booking.QC.CompletedAt,
	}
	if req.Complete {
		if !qc.AllChecked() {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "all quality checks must pass before completing QC")
		}
		if qc.CompletedAt == nil {
			now := time.Now().UTC()
			qc.CompletedAt = &now
		}
	}

	if err := s.repo.UpdateQC(ctx, id, qc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to save quality checklist")
	}
	booking.QC = qc
	s.cache.Invalidate(ctx, id)
	return booking, nil
}

// UpsertBilling merges invoice fields into the billing record and recomputes
// the total. Fields absent from the request keep their stored values.
func (s *BookingService) UpsertBilling(ctx context.Context, id string, req *dto.BillingRequest, actor *models.JWTClaims) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWorkshopWrite(booking, actor); err != nil {
		return nil, err
	}

	billing := booking.Billing
	if req.InvoiceNo != "" {
		billing.InvoiceNo = req.InvoiceNo
	}
	if req.InvoiceDate != "" {
		parsed, err := time.Parse("2006-01-02", req.InvoiceDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invoiceDate must be formatted YYYY-MM-DD")
		}
		billing.InvoiceDate = &parsed
	}
	if req.Parts != nil {
		parts := make([]models.BillingPart, 0, len(req.Parts))
		for _, in := range req.Parts {
			qty := in.Quantity
			if qty <= 0 {
				qty = 1
			}
			parts = append(parts, models.BillingPart{Name: in.Name, Price: in.Price, Quantity: qty})
		}
		billing.Parts = parts
	}
	if req.LabourCost != nil {
		billing.LabourCost = *req.LabourCost
	}
	if req.GST != nil {
		billing.GST = *req.GST
	}
	if req.FileURL != "" {
		billing.FileURL = req.FileURL
	}
	RecomputeBilling(&billing)

	if err := s.repo.UpdateBilling(ctx, id, billing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to save billing")
	}
	booking.Billing = billing
	s.cache.Invalidate(ctx, id)
	return booking, nil
}

// AddServiceMedia appends photo URLs to the requested execution phase.
func (s *BookingService) AddServiceMedia(ctx context.Context, id string, req *dto.ServiceMediaRequest, actor *models.JWTClaims) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWorkshopWrite(booking, actor); err != nil {
		return nil, err
	}

	exec := booking.ServiceExecution
	switch req.Phase {
	case "before":
		exec.BeforePhotos = append(exec.BeforePhotos, req.PhotoURLs...)
	case "during":
		exec.DuringPhotos = append(exec.DuringPhotos, req.PhotoURLs...)
	case "after":
		exec.AfterPhotos = append(exec.AfterPhotos, req.PhotoURLs...)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "phase must be one of before, during, after")
	}

	if err := s.repo.UpdateServiceExecution(ctx, id, exec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to save service photos")
	}
	booking.ServiceExecution = exec
	s.cache.Invalidate(ctx, id)
	return booking, nil
}

// Invoice builds the renderable invoice for a booking, visible to the same
// audience as the booking itself.
func (s *BookingService) Invoice(ctx context.Context, id string, actor *models.JWTClaims) (*export.Invoice, error) {
	booking, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if booking.Billing.InvoiceNo == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no invoice has been issued for this booking")
	}

	invoice := &export.Invoice{
		InvoiceNo:  booking.Billing.InvoiceNo,
		BookingID:  booking.ID,
		Vehicle:    fmt.Sprintf("%s %s (%s)", booking.VehicleMake, booking.VehicleModel, booking.PlateNumber),
		PartsTotal: booking.Billing.PartsCost,
		LabourCost: booking.Billing.LabourCost,
		GST:        booking.Billing.GST,
		Total:      booking.Billing.Total,
	}
	if booking.Billing.InvoiceDate != nil {
		invoice.InvoiceDate = *booking.Billing.InvoiceDate
	}
	if customer, err := s.users.FindByID(ctx, booking.CustomerID); err == nil {
		invoice.Customer = customer.FullName
	}
	if booking.MerchantID != nil {
		if merchant, err := s.users.FindByID(ctx, *booking.MerchantID); err == nil {
			invoice.Merchant = merchant.FullName
		}
	}
	for _, part := range booking.Billing.Parts {
		invoice.Lines = append(invoice.Lines, export.InvoiceLine{
			Name:     part.Name,
			Quantity: part.Quantity,
			Price:    part.Price,
		})
	}
	return invoice, nil
}

func (s *BookingService) loadBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load booking")
	}
	return booking, nil
}

func (s *BookingService) authorizeRead(booking *models.Booking, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleCustomer:
		if booking.CustomerID == actor.UserID {
			return nil
		}
	case models.RoleMerchant:
		if booking.MerchantID != nil && *booking.MerchantID == actor.UserID {
			return nil
		}
	case models.RoleStaff:
		if booking.StaffID != nil && *booking.StaffID == actor.UserID {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

// authorizeWorkshopWrite guards sub-record updates made at the workshop.
// Merchants and their assigned staff may write; admins always may.
func (s *BookingService) authorizeWorkshopWrite(booking *models.Booking, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleMerchant:
		if booking.MerchantID != nil && *booking.MerchantID == actor.UserID {
			return nil
		}
	case models.RoleStaff:
		if booking.StaffID != nil && *booking.StaffID == actor.UserID {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

func (s *BookingService) recordBookingAction(ctx context.Context, actor *models.JWTClaims, action, bookingID string, details map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}
	s.audit.Record(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		TargetType: "booking",
		TargetID:   &bookingID,
		Details:    payload,
	})
}
