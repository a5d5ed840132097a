package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garasku/garasku-api/internal/models"
	"github.com/garasku/garasku-api/pkg/response"
)

type auditQueryService interface {
	List(ctx context.Context, filter models.AuditFilter, actor *models.JWTClaims) ([]models.AuditLog, error)
}

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	service auditQueryService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(svc auditQueryService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit log entries
// @Tags Audit
// @Produce json
// @Param userId query string false "Acting user"
// @Param action query string false "Action filter"
// @Param targetType query string false "Target type filter"
// @Param targetId query string false "Target ID filter"
// @Param limit query int false "Max entries"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter := models.AuditFilter{
		UserID:     c.Query("userId"),
		Action:     strings.ToUpper(strings.TrimSpace(c.Query("action"))),
		TargetType: c.Query("targetType"),
		TargetID:   c.Query("targetId"),
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	entries, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
