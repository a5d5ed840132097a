package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garasku/garasku-api/internal/dto"
	"github.com/garasku/garasku-api/internal/models"
	"github.com/garasku/garasku-api/internal/service"
	appErrors "github.com/garasku/garasku-api/pkg/errors"
	"github.com/garasku/garasku-api/pkg/response"
)

type approvalService interface {
	Request(ctx context.Context, req *dto.CreateApprovalRequest, actor *models.JWTClaims) (*models.ApprovalRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ApprovalRequest, error)
	List(ctx context.Context, query *dto.ApprovalQuery, actor *models.JWTClaims) ([]models.ApprovalRequest, error)
	Resolve(ctx context.Context, id string, req *dto.ResolveApprovalRequest, actor *models.JWTClaims) (*models.ApprovalRequest, error)
}

// ApprovalHandler exposes REST endpoints for the approval workflow.
type ApprovalHandler struct {
	service approvalService
	metrics *service.MetricsService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(svc approvalService, metrics *service.MetricsService) *ApprovalHandler {
	return &ApprovalHandler{service: svc, metrics: metrics}
}

// Create godoc
// @Summary File an approval request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param payload body dto.CreateApprovalRequest true "Approval payload"
// @Success 201 {object} response.Envelope
// @Router /approvals [post]
func (h *ApprovalHandler) Create(c *gin.Context) {
	var req dto.CreateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid approval payload"))
		return
	}
	approval, err := h.service.Request(c.Request.Context(), &req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, approval, nil)
}

// List godoc
// @Summary List approval requests visible to the caller
// @Tags Approvals
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Approval type"
// @Param relatedId query string false "Related entity ID"
// @Success 200 {object} response.Envelope
// @Router /approvals [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	query := dto.ApprovalQuery{RelatedID: c.Query("relatedId")}
	if rawType := c.Query("type"); rawType != "" {
		query.Type = models.ApprovalType(strings.ToUpper(rawType))
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.ApprovalStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ApprovalStatus(part))
		}
		query.Status = statuses
	}
	approvals, err := h.service.List(c.Request.Context(), &query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approvals, nil)
}

// Get godoc
// @Summary Get approval request detail
// @Tags Approvals
// @Produce json
// @Param id path string true "Approval ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id} [get]
func (h *ApprovalHandler) Get(c *gin.Context) {
	approval, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, approval, nil)
}

// Resolve godoc
// @Summary Approve or reject a pending request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval ID"
// @Param payload body dto.ResolveApprovalRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id}/resolve [post]
func (h *ApprovalHandler) Resolve(c *gin.Context) {
	var req dto.ResolveApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	req.Decision = models.ApprovalStatus(strings.ToUpper(string(req.Decision)))
	approval, err := h.service.Resolve(c.Request.Context(), c.Param("id"), &req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.ObserveApprovalDecision(approval.Type, approval.Status)
	response.JSON(c, http.StatusOK, approval, nil)
}
