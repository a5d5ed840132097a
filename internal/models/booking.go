package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PartApprovalStatus tracks reviewer sign-off for an additional part found
// during inspection.
type PartApprovalStatus string

const (
	PartPending  PartApprovalStatus = "Pending"
	PartApproved PartApprovalStatus = "Approved"
	PartRejected PartApprovalStatus = "Rejected"
)

// InspectionPart is an additional part proposed during inspection. It enters
// the billable parts list only after approval.
type InspectionPart struct {
	Name           string             `json:"name"`
	Price          float64            `json:"price"`
	Quantity       int                `json:"quantity"`
	ApprovalStatus PartApprovalStatus `json:"approvalStatus"`
	BeforeImageURL string             `json:"beforeImageUrl,omitempty"`
	AfterImageURL  string             `json:"afterImageUrl,omitempty"`
}

// InspectionRecord holds the damage report captured at the workshop.
type InspectionRecord struct {
	DamageReport    string           `json:"damageReport,omitempty"`
	AdditionalParts []InspectionPart `json:"additionalParts,omitempty"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
}

// QCRecord is the quality-control checklist gating service completion.
// CompletedAt may only be stamped once all four flags are true.
type QCRecord struct {
	VehicleCleaned  bool       `json:"vehicleCleaned"`
	PartsVerified   bool       `json:"partsVerified"`
	RoadTested      bool       `json:"roadTested"`
	CustomerItemsOK bool       `json:"customerItemsOk"`
	Notes           string     `json:"notes,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// AllChecked reports whether every checklist flag is set.
func (q QCRecord) AllChecked() bool {
	return q.VehicleCleaned && q.PartsVerified && q.RoadTested && q.CustomerItemsOK
}

// BillingPart is a billable line item on the invoice.
type BillingPart struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// BillingRecord carries invoice data for a booking. Total is derived and
// recomputed whenever a cost field changes.
type BillingRecord struct {
	InvoiceNo   string        `json:"invoiceNo,omitempty"`
	InvoiceDate *time.Time    `json:"invoiceDate,omitempty"`
	Parts       []BillingPart `json:"parts,omitempty"`
	PartsCost   float64       `json:"partsCost"`
	LabourCost  float64       `json:"labourCost"`
	GST         float64       `json:"gst"`
	Total       float64       `json:"total"`
	FileURL     string        `json:"fileUrl,omitempty"`
}

// ServiceExecutionRecord tracks when the job ran and its photo evidence.
type ServiceExecutionRecord struct {
	JobStartTime *time.Time `json:"jobStartTime,omitempty"`
	JobEndTime   *time.Time `json:"jobEndTime,omitempty"`
	BeforePhotos []string   `json:"beforePhotos,omitempty"`
	DuringPhotos []string   `json:"duringPhotos,omitempty"`
	AfterPhotos  []string   `json:"afterPhotos,omitempty"`
}

// DelayRecord marks a booking placed on hold. ResumeStatus remembers the
// in-flow state to return to so holds never move the progress index.
type DelayRecord struct {
	IsDelayed    bool          `json:"isDelayed"`
	Reason       string        `json:"reason,omitempty"`
	Note         string        `json:"note,omitempty"`
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	ResumeStatus BookingStatus `json:"resumeStatus,omitempty"`
}

// Booking is one customer service order, the central workflow entity. The
// sub-records are stored as independent JSONB documents so different roles can
// update them without overwriting each other.
type Booking struct {
	ID             string        `db:"id" json:"id"`
	CustomerID     string        `db:"customer_id" json:"customerId"`
	MerchantID     *string       `db:"merchant_id" json:"merchantId,omitempty"`
	StaffID        *string       `db:"staff_id" json:"staffId,omitempty"`
	VehicleMake    string        `db:"vehicle_make" json:"vehicleMake"`
	VehicleModel   string        `db:"vehicle_model" json:"vehicleModel"`
	PlateNumber    string        `db:"plate_number" json:"plateNumber"`
	ServiceType    string        `db:"service_type" json:"serviceType"`
	Notes          string        `db:"notes" json:"notes,omitempty"`
	PickupRequired bool          `db:"pickup_required" json:"pickupRequired"`
	Status         BookingStatus `db:"status" json:"status"`

	Inspection       InspectionRecord       `db:"inspection" json:"inspection"`
	QC               QCRecord               `db:"qc" json:"qc"`
	Billing          BillingRecord          `db:"billing" json:"billing"`
	ServiceExecution ServiceExecutionRecord `db:"service_execution" json:"serviceExecution"`
	Delay            DelayRecord            `db:"delay" json:"delay"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// BookingFilter captures filtering criteria for listing bookings.
type BookingFilter struct {
	Status         []BookingStatus
	CustomerID     string
	MerchantID     string
	StaffID        string
	PickupRequired *bool
	Page           int
	PageSize       int
}

func jsonValue(v interface{}) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func jsonScan(dst interface{}, src interface{}) error {
	if src == nil {
		return nil
	}
	switch raw := src.(type) {
	case []byte:
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, dst)
	case string:
		if raw == "" {
			return nil
		}
		return json.Unmarshal([]byte(raw), dst)
	default:
		return fmt.Errorf("cannot scan type %T into %T", src, dst)
	}
}

func (r InspectionRecord) Value() (driver.Value, error) { return jsonValue(r) }

func (r *InspectionRecord) Scan(src interface{}) error { return jsonScan(r, src) }

func (r QCRecord) Value() (driver.Value, error) { return jsonValue(r) }

func (r *QCRecord) Scan(src interface{}) error { return jsonScan(r, src) }

func (r BillingRecord) Value() (driver.Value, error) { return jsonValue(r) }

func (r *BillingRecord) Scan(src interface{}) error { return jsonScan(r, src) }

func (r ServiceExecutionRecord) Value() (driver.Value, error) { return jsonValue(r) }

func (r *ServiceExecutionRecord) Scan(src interface{}) error { return jsonScan(r, src) }

func (r DelayRecord) Value() (driver.Value, error) { return jsonValue(r) }

func (r *DelayRecord) Scan(src interface{}) error { return jsonScan(r, src) }
