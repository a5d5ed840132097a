package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garasku/garasku-api/internal/dto"
	"github.com/garasku/garasku-api/internal/models"
	appErrors "github.com/garasku/garasku-api/pkg/errors"
	"github.com/garasku/garasku-api/pkg/export"
	"github.com/garasku/garasku-api/pkg/response"
)

type bookingService interface {
	Create(ctx context.Context, req *dto.CreateBookingRequest, actor *models.JWTClaims) (*models.Booking, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Booking, error)
	List(ctx context.Context, query *dto.BookingQuery, actor *models.JWTClaims) ([]models.Booking, error)
	Assign(ctx context.Context, id string, req *dto.AssignBookingRequest, actor *models.JWTClaims) (*models.Booking, error)
	SubmitInspection(ctx context.Context, id string, req *dto.InspectionRequest, actor *models.JWTClaims) (*models.Booking, error)
	UpdateQC(ctx context.Context, id string, req *dto.QCRequest, actor *models.JWTClaims) (*models.Booking, error)
	UpsertBilling(ctx context.Context, id string, req *dto.BillingRequest, actor *models.JWTClaims) (*models.Booking, error)
	AddServiceMedia(ctx context.Context, id string, req *dto.ServiceMediaRequest, actor *models.JWTClaims) (*models.Booking, error)
	Invoice(ctx context.Context, id string, actor *models.JWTClaims) (*export.Invoice, error)
}

type workflowService interface {
	Transition(ctx context.Context, bookingID string, target models.BookingStatus, actor *models.JWTClaims) (*models.Booking, []string, error)
	MarkDelayed(ctx context.Context, bookingID, reason, note string, actor *models.JWTClaims) (*models.Booking, error)
	Resume(ctx context.Context, bookingID string, actor *models.JWTClaims) (*models.Booking, error)
	Progress(booking *models.Booking) []dto.ProgressStep
}

type invoiceRenderer interface {
	Render(inv export.Invoice) ([]byte, error)
}

// BookingHandler exposes REST endpoints for the booking lifecycle.
type BookingHandler struct {
	bookings bookingService
	workflow workflowService
	exporter invoiceRenderer
}

// NewBookingHandler constructs the handler.
func NewBookingHandler(bookings bookingService, workflow workflowService, exporter invoiceRenderer) *BookingHandler {
	return &BookingHandler{bookings: bookings, workflow: workflow, exporter: exporter}
}

// Create godoc
// @Summary Create a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param payload body dto.CreateBookingRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Router /bookings [post]
func (h *BookingHandler) Create(c *gin.Context) {
	var req dto.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid booking payload"))
		return
	}
	booking, err := h.bookings.Create(c.Request.Context(), &req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, booking, nil)
}

// List godoc
// @Summary List bookings visible to the caller
// @Tags Bookings
// @Produce json
// @Param status query string false "Status filter"
// @Param pickupRequired query bool false "Pickup filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /bookings [get]
func (h *BookingHandler) List(c *gin.Context) {
	query := dto.BookingQuery{Status: c.Query("status")}
	if raw := c.Query("pickupRequired"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "pickupRequired must be a boolean"))
			return
		}
		query.PickupRequired = &v
	}
	query.Page, _ = strconv.Atoi(c.Query("page"))
	query.PageSize, _ = strconv.Atoi(c.Query("pageSize"))

	bookings, err := h.bookings.List(c.Request.Context(), &query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, bookings, nil)
}

// Get godoc
// @Summary Get booking detail
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id} [get]
func (h *BookingHandler) Get(c *gin.Context) {
	booking, err := h.bookings.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Progress godoc
// @Summary Get the booking status timeline
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/progress [get]
func (h *BookingHandler) Progress(c *gin.Context) {
	booking, err := h.bookings.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.workflow.Progress(booking), nil)
}

// UpdateStatus godoc
// @Summary Move a booking to its next status
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/status [patch]
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status payload"))
		return
	}
	target, ok := models.ParseStatus(req.Status)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status)))
		return
	}
	booking, warnings, err := h.workflow.Transition(c.Request.Context(), c.Param("id"), target, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if len(warnings) > 0 {
		response.JSON(c, http.StatusOK, booking, nil, map[string]interface{}{"warnings": warnings})
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Assign godoc
// @Summary Assign a merchant and optional staff member
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.AssignBookingRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/assign [post]
func (h *BookingHandler) Assign(c *gin.Context) {
	var req dto.AssignBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid assignment payload"))
		return
	}
	booking, err := h.bookings.Assign(c.Request.Context(), c.Param("id"), &req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Delay godoc
// @Summary Place a booking on hold
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.DelayBookingRequest true "Delay payload"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/delay [post]
func (h *BookingHandler) Delay(c *gin.Context) {
	var req dto.DelayBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a delay reason is required"))
		return
	}
	booking, err := h.workflow.MarkDelayed(c.Request.Context(), c.Param("id"), req.Reason, req.Note, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Resume godoc
// @Summary Resume a booking from hold
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/resume [post]
func (h *BookingHandler) Resume(c *gin.Context) {
	booking, err := h.workflow.Resume(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// SubmitInspection godoc
// @Summary Record the workshop inspection
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.InspectionRequest true "Inspection payload"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/inspection [put]
func (h *BookingHandler) SubmitInspection(c *gin.Context) {
	var req dto.InspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid inspection payload"))
		return
	}
	booking, err := h.bookings.SubmitInspection(c.Request.Context(), c.Param("id"), &req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// UpdateQC godoc
// @Summary Update the quality checklist
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.QCRequest true "Checklist payload"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/qc [put]
func (h *BookingHandler) UpdateQC(c *gin.Context) {
	var req dto.QCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid checklist payload"))
		return
	}
	booking, err := h.bookings.UpdateQC(c.Request.Context(), c.Param("id"), &req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// UpsertBilling godoc
// @Summary Create or update the invoice
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.BillingRequest true "Billing payload"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/billing [put]
func (h *BookingHandler) UpsertBilling(c *gin.Context) {
	var req dto.BillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid billing payload"))
		return
	}
	booking, err := h.bookings.UpsertBilling(c.Request.Context(), c.Param("id"), &req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// AddServiceMedia godoc
// @Summary Attach service photos to a phase
// @Tags Bookings
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param payload body dto.ServiceMediaRequest true "Media payload"
// @Success 200 {object} response.Envelope
// @Router /bookings/{id}/media [post]
func (h *BookingHandler) AddServiceMedia(c *gin.Context) {
	var req dto.ServiceMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid media payload"))
		return
	}
	booking, err := h.bookings.AddServiceMedia(c.Request.Context(), c.Param("id"), &req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, booking, nil)
}

// Invoice godoc
// @Summary Download the invoice as PDF
// @Tags Bookings
// @Produce application/pdf
// @Param id path string true "Booking ID"
// @Success 200 {file} binary
// @Router /bookings/{id}/invoice [get]
func (h *BookingHandler) Invoice(c *gin.Context) {
	invoice, err := h.bookings.Invoice(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	pdf, err := h.exporter.Render(*invoice)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invoice"))
		return
	}
	filename := fmt.Sprintf("invoice-%s.pdf", invoice.InvoiceNo)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
