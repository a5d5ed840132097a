package models

import (
	"encoding/json"
	"time"
)

// ApprovalType enumerates the supported approval categories.
type ApprovalType string

const (
	ApprovalTypeUserRegistration ApprovalType = "USER_REGISTRATION"
	ApprovalTypePartReplacement  ApprovalType = "PART_REPLACEMENT"
	ApprovalTypeExtraCost        ApprovalType = "EXTRA_COST"
	ApprovalTypeBillEdit         ApprovalType = "BILL_EDIT"
)

// ApprovalStatus captures the review lifecycle.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// Related entity tags.
const (
	RelatedModelBooking = "booking"
	RelatedModelUser    = "user"
)

// ApprovalRequest is an out-of-band consent record requiring reviewer
// sign-off. Once resolved it is immutable except for the comment.
type ApprovalRequest struct {
	ID           string          `db:"id" json:"id"`
	Type         ApprovalType    `db:"type" json:"type"`
	Status       ApprovalStatus  `db:"status" json:"status"`
	RelatedID    string          `db:"related_id" json:"relatedId"`
	RelatedModel string          `db:"related_model" json:"relatedModel"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	RequestedBy  string          `db:"requested_by" json:"requestedBy"`
	ReviewedBy   *string         `db:"reviewed_by" json:"reviewedBy,omitempty"`
	Comment      *string         `db:"comment" json:"comment,omitempty"`
	RequestedAt  time.Time       `db:"requested_at" json:"requestedAt"`
	ReviewedAt   *time.Time      `db:"reviewed_at" json:"reviewedAt,omitempty"`
}

// ApprovalFilter constrains listing queries.
type ApprovalFilter struct {
	Status       []ApprovalStatus
	Type         ApprovalType
	RelatedID    string
	RelatedModel string
	RequestedBy  string
	Limit        int
	Offset       int
}
