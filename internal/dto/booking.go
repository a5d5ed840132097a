package dto

import "github.com/garasku/garasku-api/internal/models"

// CreateBookingRequest is submitted by a customer to open a service order.
type CreateBookingRequest struct {
	VehicleMake    string `json:"vehicleMake" binding:"required"`
	VehicleModel   string `json:"vehicleModel" binding:"required"`
	PlateNumber    string `json:"plateNumber" binding:"required"`
	ServiceType    string `json:"serviceType" binding:"required"`
	Notes          string `json:"notes"`
	PickupRequired bool   `json:"pickupRequired"`
}

// AssignBookingRequest attaches a merchant (and optionally a staff member).
type AssignBookingRequest struct {
	MerchantID string `json:"merchantId" binding:"required"`
	StaffID    string `json:"staffId"`
}

// TransitionRequest moves a booking to a target status.
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// DelayBookingRequest places a booking on hold.
type DelayBookingRequest struct {
	Reason string `json:"reason" binding:"required"`
	Note   string `json:"note"`
}

// InspectionPartInput is one additional part proposed during inspection.
type InspectionPartInput struct {
	Name           string  `json:"name" binding:"required"`
	Price          float64 `json:"price"`
	Quantity       int     `json:"quantity"`
	BeforeImageURL string  `json:"beforeImageUrl"`
	AfterImageURL  string  `json:"afterImageUrl"`
}

// InspectionRequest records the damage report for a booking.
type InspectionRequest struct {
	DamageReport    string                `json:"damageReport"`
	AdditionalParts []InspectionPartInput `json:"additionalParts"`
}

// QCRequest updates the quality-control checklist. Complete requests stamping
// completedAt, which is only legal once every flag is true.
type QCRequest struct {
	VehicleCleaned  bool   `json:"vehicleCleaned"`
	PartsVerified   bool   `json:"partsVerified"`
	RoadTested      bool   `json:"roadTested"`
	CustomerItemsOK bool   `json:"customerItemsOk"`
	Notes           string `json:"notes"`
	Complete        bool   `json:"complete"`
}

// BillingPartInput is one billable line item.
type BillingPartInput struct {
	Name     string  `json:"name" binding:"required"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// BillingRequest upserts invoice data; the total is always recomputed
// server-side. Cost fields are pointers so a partial patch (say, attaching
// the bill file) cannot zero stored amounts.
type BillingRequest struct {
	InvoiceNo   string             `json:"invoiceNo"`
	InvoiceDate string             `json:"invoiceDate"`
	Parts       []BillingPartInput `json:"parts"`
	LabourCost  *float64           `json:"labourCost"`
	GST         *float64           `json:"gst"`
	FileURL     string             `json:"fileUrl"`
}

// ServiceMediaRequest attaches photo evidence to a service phase.
type ServiceMediaRequest struct {
	Phase     string   `json:"phase" binding:"required,oneof=before during after"`
	PhotoURLs []string `json:"photoUrls" binding:"required,min=1"`
}

// BookingQuery filters booking listings.
type BookingQuery struct {
	Status         string `form:"status"`
	PickupRequired *bool  `form:"pickupRequired"`
	Page           int    `form:"page"`
	PageSize       int    `form:"pageSize"`
}

// ProgressStep is one entry of a booking's status timeline.
type ProgressStep struct {
	Status    models.BookingStatus `json:"status"`
	Label     string               `json:"label"`
	Completed bool                 `json:"completed"`
	Current   bool                 `json:"current"`
}
