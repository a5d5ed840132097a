package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garasku/garasku-api/internal/models"
	"github.com/garasku/garasku-api/internal/service"
)

// Audit records an audit log entry after successful requests. Mutation
// endpoints with richer context record their own entries at the service
// layer; this covers the generic trail.
func Audit(auditSvc *service.AuditService, action, targetType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if auditSvc == nil || c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			user := claims.(*models.JWTClaims)
			userID = &user.UserID
		}

		var targetID *string
		if id := c.Param("id"); id != "" {
			targetID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		auditSvc.Record(c.Request.Context(), &models.AuditLog{
			UserID:     userID,
			Action:     action,
			TargetType: targetType,
			TargetID:   targetID,
			Details:    details,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		})
	}
}
