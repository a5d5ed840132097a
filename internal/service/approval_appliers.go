package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/garasku/garasku-api/internal/dto"
	"github.com/garasku/garasku-api/internal/models"
	appErrors "github.com/garasku/garasku-api/pkg/errors"
)

// applyPartReplacement marks the matching inspection part Approved and moves
// it onto the billable parts list, then recomputes the invoice total.
func (s *ApprovalService) applyPartReplacement(ctx context.Context, approval *models.ApprovalRequest) error {
	var payload dto.PartReplacementPayload
	if err := json.Unmarshal(approval.Payload, &payload); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "stored payload is not a valid part replacement")
	}

	booking, err := s.loadRelatedBooking(ctx, approval.RelatedID)
	if err != nil {
		return err
	}

	inspection := booking.Inspection
	matched := false
	for i := range inspection.AdditionalParts {
		part := &inspection.AdditionalParts[i]
		if part.Name == payload.PartName && part.ApprovalStatus == models.PartPending {
			part.ApprovalStatus = models.PartApproved
			matched = true
			break
		}
	}
	if !matched {
		return appErrors.Clone(appErrors.ErrValidation, "no pending inspection part matches this request")
	}

	billing := booking.Billing
	billing.Parts = append(billing.Parts, models.BillingPart{
		Name:     payload.PartName,
		Price:    payload.Price,
		Quantity: payload.Quantity,
	})
	RecomputeBilling(&billing)

	if err := s.bookings.UpdateInspection(ctx, booking.ID, inspection); err != nil {
		return s.wrapBookingWrite(err, "failed to update inspection parts")
	}
	if err := s.bookings.UpdateBilling(ctx, booking.ID, billing); err != nil {
		return s.wrapBookingWrite(err, "failed to update billing")
	}
	s.cache.Invalidate(ctx, booking.ID)
	return nil
}

// applyExtraCost adds the approved amount as a billing line item.
func (s *ApprovalService) applyExtraCost(ctx context.Context, approval *models.ApprovalRequest) error {
	var payload dto.ExtraCostPayload
	if err := json.Unmarshal(approval.Payload, &payload); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "stored payload is not a valid extra cost entry")
	}

	booking, err := s.loadRelatedBooking(ctx, approval.RelatedID)
	if err != nil {
		return err
	}

	billing := booking.Billing
	billing.Parts = append(billing.Parts, models.BillingPart{
		Name:     payload.Description,
		Price:    payload.Amount,
		Quantity: 1,
	})
	RecomputeBilling(&billing)

	if err := s.bookings.UpdateBilling(ctx, booking.ID, billing); err != nil {
		return s.wrapBookingWrite(err, "failed to update billing")
	}
	s.cache.Invalidate(ctx, booking.ID)
	return nil
}

// applyBillEdit applies the approved field deltas and recomputes the total.
func (s *ApprovalService) applyBillEdit(ctx context.Context, approval *models.ApprovalRequest) error {
	var payload dto.BillEditPayload
	if err := json.Unmarshal(approval.Payload, &payload); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "stored payload is not a valid bill edit")
	}

	booking, err := s.loadRelatedBooking(ctx, approval.RelatedID)
	if err != nil {
		return err
	}

	billing := booking.Billing
	if payload.InvoiceNo != nil {
		billing.InvoiceNo = *payload.InvoiceNo
	}
	if payload.LabourCost != nil {
		billing.LabourCost = *payload.LabourCost
	}
	if payload.GST != nil {
		billing.GST = *payload.GST
	}
	RecomputeBilling(&billing)

	if err := s.bookings.UpdateBilling(ctx, booking.ID, billing); err != nil {
		return s.wrapBookingWrite(err, "failed to update billing")
	}
	s.cache.Invalidate(ctx, booking.ID)
	return nil
}

// applyUserRegistration activates the pending account.
func (s *ApprovalService) applyUserRegistration(ctx context.Context, approval *models.ApprovalRequest) error {
	var payload dto.UserRegistrationPayload
	if err := json.Unmarshal(approval.Payload, &payload); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "stored payload is not a valid registration")
	}
	if err := s.users.SetActive(ctx, payload.UserID, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "registered user no longer exists")
		}
		return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to activate user")
	}
	s.logger.Info("user activated via registration approval", zap.String("user_id", payload.UserID))
	return nil
}

func (s *ApprovalService) loadRelatedBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "related booking no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load related booking")
	}
	return booking, nil
}

func (s *ApprovalService) wrapBookingWrite(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrNotFound
	}
	return appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, msg)
}
