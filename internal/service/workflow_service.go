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
)

// WarningQCIncomplete is attached to completion responses when the QC
// checklist has not been closed out. It never blocks the transition.
const WarningQCIncomplete = "quality check is not completed for this booking"

type workflowBookingStore interface {
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error
	UpdateStatusAndExecution(ctx context.Context, id string, status models.BookingStatus, exec models.ServiceExecutionRecord) error
	UpdateStatusAndDelay(ctx context.Context, id string, status models.BookingStatus, delay models.DelayRecord) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// WorkflowService walks bookings through their status flow. All validation
// happens before the single persistence write; the audit entry and the
// client notification are both fire-and-forget.
type WorkflowService struct {
	repo     workflowBookingStore
	audit    auditRecorder
	notifier StatusNotifier
	logger   *zap.Logger
}

// NewWorkflowService constructs the service.
func NewWorkflowService(repo workflowBookingStore, audit auditRecorder, notifier StatusNotifier, logger *zap.Logger) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{repo: repo, audit: audit, notifier: notifier, logger: logger}
}

// NextState returns the state following current in the booking's flow, or
// false when current is terminal or not part of the sequence. Unknown states
// are not an error.
func (s *WorkflowService) NextState(current models.BookingStatus, pickupRequired bool) (models.BookingStatus, bool) {
	return models.NextStatus(current, pickupRequired)
}

// CanAdvanceToCompleted reports whether the completion gate passes, plus
// non-blocking warnings. Only the bill file is mandatory; an open QC
// checklist is surfaced as a warning.
func (s *WorkflowService) CanAdvanceToCompleted(booking *models.Booking) (bool, []string) {
	if booking.Billing.FileURL == "" {
		return false, nil
	}
	var warnings []string
	if booking.QC.CompletedAt == nil {
		warnings = append(warnings, WarningQCIncomplete)
	}
	return true, warnings
}

// Progress renders the booking's status timeline. While on hold the stored
// resume status anchors the progress index, so holds never move it.
func (s *WorkflowService) Progress(booking *models.Booking) []dto.ProgressStep {
	reference := booking.Status
	if booking.Status == models.StatusOnHold && booking.Delay.ResumeStatus != "" {
		reference = booking.Delay.ResumeStatus
	}
	flow := models.FlowFor(booking.PickupRequired)
	steps := make([]dto.ProgressStep, 0, len(flow))
	for _, status := range flow {
		steps = append(steps, dto.ProgressStep{
			Status:    status,
			Label:     status.Label(),
			Completed: models.StageCompleted(status, reference, booking.PickupRequired),
			Current:   status == reference,
		})
	}
	return steps
}

// Transition moves the booking to the target state. Illegal targets yield a
// validation error; an unmet completion gate yields a precondition error, so
// callers can present different messaging for each.
func (s *WorkflowService) Transition(ctx context.Context, bookingID string, target models.BookingStatus, actor *models.JWTClaims) (*models.Booking, []string, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}

	if models.IsTerminal(booking.Status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("booking is already %s", booking.Status))
	}
	if booking.Status == models.StatusOnHold {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "booking is on hold; resume it before changing status")
	}

	if target != models.StatusCancelled {
		if _, ok := models.ProgressIndex(target, booking.PickupRequired); !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("status %s is not part of this booking's flow", target))
		}
		next, hasNext := models.NextStatus(booking.Status, booking.PickupRequired)
		adminOverride := actor != nil && actor.Role == models.RoleAdmin
		if !adminOverride && (!hasNext || next != target) {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot move booking from %s to %s", booking.Status, target))
		}
	}

	var warnings []string
	if target == models.StatusServiceCompleted {
		ok, warns := s.CanAdvanceToCompleted(booking)
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "bill file must be uploaded before completing the service")
		}
		warnings = warns
	}

	from := booking.Status
	exec := booking.ServiceExecution
	stamped := false
	now := time.Now().UTC()
	// Job time stamping is idempotent: first entry only.
	if target == models.StatusServiceStarted && exec.JobStartTime == nil {
		exec.JobStartTime = &now
		stamped = true
	}
	if target == models.StatusServiceCompleted && exec.JobEndTime == nil {
		exec.JobEndTime = &now
		stamped = true
	}

	if stamped {
		err = s.repo.UpdateStatusAndExecution(ctx, booking.ID, target, exec)
	} else {
		err = s.repo.UpdateStatus(ctx, booking.ID, target)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to persist status change")
	}

	booking.Status = target
	booking.ServiceExecution = exec

	s.recordStatusChange(ctx, actor, booking.ID, from, target)
	if s.notifier != nil {
		s.notifier.NotifyStatusChange(booking.ID, from, target)
	}
	return booking, warnings, nil
}

// MarkDelayed places the booking on hold, remembering the state to resume to.
func (s *WorkflowService) MarkDelayed(ctx context.Context, bookingID, reason, note string, actor *models.JWTClaims) (*models.Booking, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminal(booking.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("booking is already %s", booking.Status))
	}
	if booking.Status == models.StatusOnHold {
		return nil, appErrors.Clone(appErrors.ErrConflict, "booking is already on hold")
	}

	now := time.Now().UTC()
	delay := models.DelayRecord{
		IsDelayed:    true,
		Reason:       reason,
		Note:         note,
		StartedAt:    &now,
		ResumeStatus: booking.Status,
	}
	if err := s.repo.UpdateStatusAndDelay(ctx, booking.ID, models.StatusOnHold, delay); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to place booking on hold")
	}

	from := booking.Status
	booking.Status = models.StatusOnHold
	booking.Delay = delay

	s.recordAction(ctx, actor, models.AuditActionBookingDelay, booking.ID, map[string]interface{}{
		"from":   from,
		"reason": reason,
	})
	if s.notifier != nil {
		s.notifier.NotifyStatusChange(booking.ID, from, models.StatusOnHold)
	}
	return booking, nil
}

// Resume lifts a hold and returns the booking to its pre-hold state.
func (s *WorkflowService) Resume(ctx context.Context, bookingID string, actor *models.JWTClaims) (*models.Booking, error) {
	booking, err := s.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusOnHold {
		return nil, appErrors.Clone(appErrors.ErrValidation, "booking is not on hold")
	}
	target := booking.Delay.ResumeStatus
	if target == "" || models.IsOutOfBand(target) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "booking has no valid resume state recorded")
	}

	delay := booking.Delay
	delay.IsDelayed = false
	delay.ResumeStatus = ""
	if err := s.repo.UpdateStatusAndDelay(ctx, booking.ID, target, delay); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to resume booking")
	}

	booking.Status = target
	booking.Delay = delay

	s.recordAction(ctx, actor, models.AuditActionBookingResume, booking.ID, map[string]interface{}{"to": target})
	if s.notifier != nil {
		s.notifier.NotifyStatusChange(booking.ID, models.StatusOnHold, target)
	}
	return booking, nil
}

func (s *WorkflowService) load(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load booking")
	}
	return booking, nil
}

func (s *WorkflowService) recordStatusChange(ctx context.Context, actor *models.JWTClaims, bookingID string, from, to models.BookingStatus) {
	s.recordAction(ctx, actor, models.AuditActionStatusChange, bookingID, map[string]interface{}{
		"from": from,
		"to":   to,
	})
}

func (s *WorkflowService) recordAction(ctx context.Context, actor *models.JWTClaims, action, bookingID string, details map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	payload, err := json.Marshal(details)
	if err != nil {
		s.logger.Warn("failed to encode audit details", zap.Error(err))
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
