package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/garasku/garasku-api/internal/models"
)

const approvalColumns = `id, type, status, related_id, related_model, payload, requested_by, reviewed_by,
       comment, requested_at, reviewed_at`

// ApprovalRepository persists approval workflow data.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a new approval request row.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.ApprovalRequest) error {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.Status == "" {
		approval.Status = models.ApprovalStatusPending
	}
	if approval.RequestedAt.IsZero() {
		approval.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approval_requests
	(id, type, status, related_id, related_model, payload, requested_by, reviewed_by, comment, requested_at, reviewed_at)
	VALUES (:id, :type, :status, :related_id, :related_model, :payload, :requested_by, :reviewed_by, :comment, :requested_at, :reviewed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, approval); err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

// GetByID fetches an approval request by identifier.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE id = $1`
	var approval models.ApprovalRequest
	if err := r.db.GetContext(ctx, &approval, query, id); err != nil {
		return nil, err
	}
	return &approval, nil
}

// List returns approval requests matching the filter (newest first).
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 5)
	builder.WriteString(`SELECT ` + approvalColumns + ` FROM approval_requests`)

	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.RelatedID != "" {
		args = append(args, filter.RelatedID)
		conditions = append(conditions, fmt.Sprintf("related_id = $%d", len(args)))
	}
	if filter.RelatedModel != "" {
		args = append(args, filter.RelatedModel)
		conditions = append(conditions, fmt.Sprintf("related_model = $%d", len(args)))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("requested_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY requested_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var approvals []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &approvals, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	return approvals, nil
}

// ResolveParams groups the columns written by a review decision.
type ResolveParams struct {
	ID         string
	Status     models.ApprovalStatus
	ReviewedBy string
	ReviewedAt time.Time
	Comment    *string
}

// Resolve persists the review outcome. The guard on PENDING makes resolution
// a transition-once operation: a second resolve targets zero rows.
func (r *ApprovalRepository) Resolve(ctx context.Context, params ResolveParams) error {
	query := fmt.Sprintf(`UPDATE approval_requests
	SET status = :status, reviewed_by = :reviewed_by, reviewed_at = :reviewed_at, comment = :comment
	WHERE id = :id AND status = '%s'`, models.ApprovalStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          params.ID,
		"status":      params.Status,
		"reviewed_by": params.ReviewedBy,
		"reviewed_at": params.ReviewedAt,
		"comment":     params.Comment,
	})
	if err != nil {
		return fmt.Errorf("resolve approval request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check approval resolve rows: %w", err)
	}
	if rows == 0 {
		return sqlErrNoRows
	}
	return nil
}
