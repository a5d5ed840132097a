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
	"github.com/garasku/garasku-api/internal/repository"
	appErrors "github.com/garasku/garasku-api/pkg/errors"
)

type approvalStore interface {
	Create(ctx context.Context, approval *models.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error)
	Resolve(ctx context.Context, params repository.ResolveParams) error
}

// ApprovalApplier mutates the related entity when a request of its type is
// approved. Appliers run before the approval row flips, so a failed side
// effect leaves the request PENDING and retryable.
type ApprovalApplier func(ctx context.Context, approval *models.ApprovalRequest) error

// ApprovalService manages the out-of-band consent workflow: filing requests,
// listing them per role, and applying the side effects of a decision.
type ApprovalService struct {
	repo     approvalStore
	bookings bookingStore
	users    approvalUserStore
	cache    *BookingCache
	audit    auditRecorder
	appliers map[models.ApprovalType]ApprovalApplier
	logger   *zap.Logger
}

type approvalUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// NewApprovalService constructs the service with the built-in appliers
// registered.
func NewApprovalService(repo approvalStore, bookings bookingStore, users approvalUserStore, cache *BookingCache, audit auditRecorder, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ApprovalService{
		repo:     repo,
		bookings: bookings,
		users:    users,
		cache:    cache,
		audit:    audit,
		logger:   logger,
	}
	s.appliers = map[models.ApprovalType]ApprovalApplier{
		models.ApprovalTypePartReplacement:  s.applyPartReplacement,
		models.ApprovalTypeExtraCost:        s.applyExtraCost,
		models.ApprovalTypeBillEdit:         s.applyBillEdit,
		models.ApprovalTypeUserRegistration: s.applyUserRegistration,
	}
	return s
}

// Request files a new approval request. The payload must match the schema of
// its type. Duplicate pending requests for the same entity are allowed; each
// is resolved independently.
func (s *ApprovalService) Request(ctx context.Context, req *dto.CreateApprovalRequest, actor *models.JWTClaims) (*models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := dto.ValidateApprovalPayload(req.Type, req.Payload); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	switch req.RelatedModel {
	case models.RelatedModelBooking, models.RelatedModelUser:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown related model %q", req.RelatedModel))
	}

	approval := &models.ApprovalRequest{
		Type:         req.Type,
		Status:       models.ApprovalStatusPending,
		RelatedID:    req.RelatedID,
		RelatedModel: req.RelatedModel,
		Payload:      []byte(req.Payload),
		RequestedBy:  actor.UserID,
	}
	if err := s.repo.Create(ctx, approval); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to file approval request")
	}

	s.recordApprovalAction(ctx, actor, models.AuditActionApprovalCreate, approval)
	return approval, nil
}

// FilePartReplacement files a PART_REPLACEMENT request for one inspection
// part. Used by the inspection flow; customers resolve these.
func (s *ApprovalService) FilePartReplacement(ctx context.Context, bookingID string, part models.InspectionPart, actor *models.JWTClaims) error {
	payload, err := json.Marshal(dto.PartReplacementPayload{
		PartName:       part.Name,
		Price:          part.Price,
		Quantity:       part.Quantity,
		BeforeImageURL: part.BeforeImageURL,
		AfterImageURL:  part.AfterImageURL,
	})
	if err != nil {
		return err
	}
	_, err = s.Request(ctx, &dto.CreateApprovalRequest{
		Type:         models.ApprovalTypePartReplacement,
		RelatedID:    bookingID,
		RelatedModel: models.RelatedModelBooking,
		Payload:      payload,
	}, actor)
	return err
}

// Get loads one approval request with role scoping.
func (s *ApprovalService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ApprovalRequest, error) {
	approval, err := s.loadApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, approval, actor); err != nil {
		return nil, err
	}
	return approval, nil
}

// List returns approval requests visible to the actor. Non-admin callers see
// only requests tied to entities they own.
func (s *ApprovalService) List(ctx context.Context, query *dto.ApprovalQuery, actor *models.JWTClaims) ([]models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ApprovalFilter{
		Status:    query.Status,
		Type:      query.Type,
		RelatedID: query.RelatedID,
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleMerchant, models.RoleStaff:
		filter.RequestedBy = actor.UserID
	case models.RoleCustomer:
		// Customers review requests against their own bookings; filtered below.
	default:
		return nil, appErrors.ErrForbidden
	}
	approvals, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to list approval requests")
	}
	if actor.Role != models.RoleCustomer {
		return approvals, nil
	}
	visible := make([]models.ApprovalRequest, 0, len(approvals))
	for i := range approvals {
		if s.authorizeView(ctx, &approvals[i], actor) == nil {
			visible = append(visible, approvals[i])
		}
	}
	return visible, nil
}

// Resolve records a review decision. Approval side effects run first; the
// PENDING guard on the persist step makes resolution transition-once even
// under concurrent reviewers.
func (s *ApprovalService) Resolve(ctx context.Context, id string, req *dto.ResolveApprovalRequest, actor *models.JWTClaims) (*models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if req.Decision != models.ApprovalStatusApproved && req.Decision != models.ApprovalStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be APPROVED or REJECTED")
	}

	approval, err := s.loadApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeResolve(ctx, approval, actor); err != nil {
		return nil, err
	}
	if approval.Status != models.ApprovalStatusPending {
		return nil, appErrors.ErrAlreadyResolved
	}

	if req.Decision == models.ApprovalStatusApproved {
		applier, ok := s.appliers[approval.Type]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("no handler for approval type %s", approval.Type))
		}
		if err := applier(ctx, approval); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	params := repository.ResolveParams{
		ID:         approval.ID,
		Status:     req.Decision,
		ReviewedBy: actor.UserID,
		ReviewedAt: now,
	}
	if req.Comment != "" {
		params.Comment = &req.Comment
	}
	if err := s.repo.Resolve(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadyResolved
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to record review decision")
	}

	approval.Status = req.Decision
	approval.ReviewedBy = &actor.UserID
	approval.ReviewedAt = &now
	approval.Comment = params.Comment

	s.recordApprovalAction(ctx, actor, models.AuditActionApprovalResolve, approval)
	return approval, nil
}

func (s *ApprovalService) loadApproval(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	approval, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load approval request")
	}
	return approval, nil
}

// authorizeView lets admins see everything, requesters see their own filings,
// and booking owners see requests filed against their bookings.
func (s *ApprovalService) authorizeView(ctx context.Context, approval *models.ApprovalRequest, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin || approval.RequestedBy == actor.UserID {
		return nil
	}
	if approval.RelatedModel == models.RelatedModelBooking && actor.Role == models.RoleCustomer {
		booking, err := s.bookings.GetByID(ctx, approval.RelatedID)
		if err == nil && booking.CustomerID == actor.UserID {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

// authorizeResolve decides who may review a request. Customers resolve cost
// consent requests against their own bookings; admins resolve registrations
// and everything else.
func (s *ApprovalService) authorizeResolve(ctx context.Context, approval *models.ApprovalRequest, actor *models.JWTClaims) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	switch approval.Type {
	case models.ApprovalTypePartReplacement, models.ApprovalTypeExtraCost, models.ApprovalTypeBillEdit:
		if actor.Role == models.RoleCustomer && approval.RelatedModel == models.RelatedModelBooking {
			booking, err := s.bookings.GetByID(ctx, approval.RelatedID)
			if err == nil && booking.CustomerID == actor.UserID {
				return nil
			}
		}
	}
	return appErrors.ErrForbidden
}

func (s *ApprovalService) recordApprovalAction(ctx context.Context, actor *models.JWTClaims, action string, approval *models.ApprovalRequest) {
	if s.audit == nil {
		return
	}
	details, err := json.Marshal(map[string]interface{}{
		"type":          approval.Type,
		"status":        approval.Status,
		"related_id":    approval.RelatedID,
		"related_model": approval.RelatedModel,
	})
	if err != nil {
		details = []byte("{}")
	}
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	s.audit.Record(ctx, &models.AuditLog{
		UserID:     userID,
		Action:     action,
		TargetType: "approval_request",
		TargetID:   &approval.ID,
		Details:    details,
	})
}
