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

const bookingColumns = `id, customer_id, merchant_id, staff_id, vehicle_make, vehicle_model, plate_number,
       service_type, notes, pickup_required, status, inspection, qc, billing, service_execution, delay,
       created_at, updated_at`

// BookingRepository persists bookings and their workflow sub-documents.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs the repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a new booking row.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.Status == "" {
		booking.Status = models.StatusCreated
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	const query = `INSERT INTO bookings
	(id, customer_id, merchant_id, staff_id, vehicle_make, vehicle_model, plate_number, service_type, notes,
	 pickup_required, status, inspection, qc, billing, service_execution, delay, created_at, updated_at)
	VALUES (:id, :customer_id, :merchant_id, :staff_id, :vehicle_make, :vehicle_model, :plate_number,
	 :service_type, :notes, :pickup_required, :status, :inspection, :qc, :billing, :service_execution,
	 :delay, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, booking); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// GetByID fetches a booking by identifier.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	var booking models.Booking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// List returns bookings matching the filter, newest first.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + bookingColumns + ` FROM bookings`)

	conditions := make([]string, 0, 5)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.MerchantID != "" {
		args = append(args, filter.MerchantID)
		conditions = append(conditions, fmt.Sprintf("merchant_id = $%d", len(args)))
	}
	if filter.StaffID != "" {
		args = append(args, filter.StaffID)
		conditions = append(conditions, fmt.Sprintf("staff_id = $%d", len(args)))
	}
	if filter.PickupRequired != nil {
		args = append(args, *filter.PickupRequired)
		conditions = append(conditions, fmt.Sprintf("pickup_required = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize))

	var bookings []models.Booking
	if err := r.db.SelectContext(ctx, &bookings, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// UpdateStatus persists a status change.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	const query = `UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, "update booking status", query, id, status, time.Now().UTC())
}

// UpdateStatusAndExecution writes the status transition together with the
// stamped service-execution document in a single statement.
func (r *BookingRepository) UpdateStatusAndExecution(ctx context.Context, id string, status models.BookingStatus, exec models.ServiceExecutionRecord) error {
	const query = `UPDATE bookings SET status = $2, service_execution = $3, updated_at = $4 WHERE id = $1`
	return r.execOne(ctx, "update booking status+execution", query, id, status, exec, time.Now().UTC())
}

// UpdateStatusAndDelay writes a hold (or resume) together with its delay
// document in a single statement.
func (r *BookingRepository) UpdateStatusAndDelay(ctx context.Context, id string, status models.BookingStatus, delay models.DelayRecord) error {
	const query = `UPDATE bookings SET status = $2, delay = $3, updated_at = $4 WHERE id = $1`
	return r.execOne(ctx, "update booking status+delay", query, id, status, delay, time.Now().UTC())
}

// UpdateAssignment attaches the merchant and optional staff member.
func (r *BookingRepository) UpdateAssignment(ctx context.Context, id string, merchantID string, staffID *string) error {
	const query = `UPDATE bookings SET merchant_id = $2, staff_id = $3, updated_at = $4 WHERE id = $1`
	return r.execOne(ctx, "update booking assignment", query, id, merchantID, staffID, time.Now().UTC())
}

// Each sub-document below is replaced as a whole column so concurrent writers
// touching different sub-documents cannot clobber each other.

// UpdateInspection replaces the inspection document.
func (r *BookingRepository) UpdateInspection(ctx context.Context, id string, inspection models.InspectionRecord) error {
	const query = `UPDATE bookings SET inspection = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, "update booking inspection", query, id, inspection, time.Now().UTC())
}

// UpdateQC replaces the quality-check document.
func (r *BookingRepository) UpdateQC(ctx context.Context, id string, qc models.QCRecord) error {
	const query = `UPDATE bookings SET qc = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, "update booking qc", query, id, qc, time.Now().UTC())
}

// UpdateBilling replaces the billing document.
func (r *BookingRepository) UpdateBilling(ctx context.Context, id string, billing models.BillingRecord) error {
	const query = `UPDATE bookings SET billing = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, "update booking billing", query, id, billing, time.Now().UTC())
}

// UpdateServiceExecution replaces the service-execution document.
func (r *BookingRepository) UpdateServiceExecution(ctx context.Context, id string, exec models.ServiceExecutionRecord) error {
	const query = `UPDATE bookings SET service_execution = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, "update booking service execution", query, id, exec, time.Now().UTC())
}

func (r *BookingRepository) execOne(ctx context.Context, label, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", label, err)
	}
	if rows == 0 {
		return sqlErrNoRows
	}
	return nil
}
