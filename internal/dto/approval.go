package dto

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garasku/garasku-api/internal/models"
)

// CreateApprovalRequest files a new approval request.
type CreateApprovalRequest struct {
	Type         models.ApprovalType `json:"type" binding:"required"`
	RelatedID    string              `json:"relatedId" binding:"required"`
	RelatedModel string              `json:"relatedModel" binding:"required"`
	Payload      json.RawMessage     `json:"payload" binding:"required"`
}

// ResolveApprovalRequest records the reviewer decision.
type ResolveApprovalRequest struct {
	Decision models.ApprovalStatus `json:"decision" binding:"required"`
	Comment  string                `json:"comment"`
}

// ApprovalQuery filters approval listings.
type ApprovalQuery struct {
	Status    []models.ApprovalStatus
	Type      models.ApprovalType
	RelatedID string
}

// PartReplacementPayload is the typed payload for PART_REPLACEMENT requests.
type PartReplacementPayload struct {
	PartName       string  `json:"partName"`
	Price          float64 `json:"price"`
	Quantity       int     `json:"quantity"`
	BeforeImageURL string  `json:"beforeImageUrl,omitempty"`
	AfterImageURL  string  `json:"afterImageUrl,omitempty"`
}

// ExtraCostPayload is the typed payload for EXTRA_COST requests.
type ExtraCostPayload struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// BillEditPayload is the typed payload for BILL_EDIT requests. Only the
// fields present are applied on approval.
type BillEditPayload struct {
	InvoiceNo  *string  `json:"invoiceNo,omitempty"`
	LabourCost *float64 `json:"labourCost,omitempty"`
	GST        *float64 `json:"gst,omitempty"`
	Reason     string   `json:"reason"`
}

// UserRegistrationPayload is the typed payload for USER_REGISTRATION requests.
type UserRegistrationPayload struct {
	UserID string          `json:"userId"`
	Role   models.UserRole `json:"role"`
}

// ValidateApprovalPayload checks the payload against the schema for its type.
// Each approval type carries its own strongly-typed payload; loosely shaped
// data is rejected at the boundary.
func ValidateApprovalPayload(approvalType models.ApprovalType, raw json.RawMessage) error {
	if len(raw) == 0 || !json.Valid(raw) {
		return fmt.Errorf("payload must be valid JSON")
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()

	switch approvalType {
	case models.ApprovalTypePartReplacement:
		var p PartReplacementPayload
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("invalid part replacement payload: %w", err)
		}
		if p.PartName == "" {
			return fmt.Errorf("partName is required")
		}
		if p.Quantity <= 0 {
			return fmt.Errorf("quantity must be positive")
		}
	case models.ApprovalTypeExtraCost:
		var p ExtraCostPayload
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("invalid extra cost payload: %w", err)
		}
		if p.Description == "" {
			return fmt.Errorf("description is required")
		}
	case models.ApprovalTypeBillEdit:
		var p BillEditPayload
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("invalid bill edit payload: %w", err)
		}
		if p.InvoiceNo == nil && p.LabourCost == nil && p.GST == nil {
			return fmt.Errorf("at least one bill field must be present")
		}
	case models.ApprovalTypeUserRegistration:
		var p UserRegistrationPayload
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("invalid user registration payload: %w", err)
		}
		if p.UserID == "" {
			return fmt.Errorf("userId is required")
		}
	default:
		return fmt.Errorf("unsupported approval type: %s", approvalType)
	}
	return nil
}
