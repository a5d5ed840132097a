package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin           = "LOGIN"
	AuditActionLogout          = "LOGOUT"
	AuditActionPasswordChange  = "PASSWORD_CHANGE"
	AuditActionUserCreate      = "USER_CREATE"
	AuditActionUserUpdate      = "USER_UPDATE"
	AuditActionStatusChange    = "STATUS_CHANGE"
	AuditActionBookingCreate   = "BOOKING_CREATE"
	AuditActionBookingAssign   = "BOOKING_ASSIGN"
	AuditActionBookingDelay    = "BOOKING_DELAY"
	AuditActionBookingResume   = "BOOKING_RESUME"
	AuditActionApprovalCreate  = "APPROVAL_CREATE"
	AuditActionApprovalResolve = "APPROVAL_RESOLVE"
)

// AuditLog represents an append-only audit trail record. Writes are
// fire-and-forget: a failed append never blocks the triggering action.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	TargetType string    `db:"target_type" json:"target_type"`
	TargetID   *string   `db:"target_id" json:"target_id,omitempty"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter constrains audit log listing.
type AuditFilter struct {
	UserID     string
	Action     string
	TargetType string
	TargetID   string
	Limit      int
	Offset     int
}
