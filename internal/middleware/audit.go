package middleware

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/internal/repository"
)

// Audit creates a middleware that records access log entries after
// successful requests. Handlers that write their own decision audit rows
// inside a transaction do not use this; it covers read-side endpoints and
// the public intake route.
func Audit(repo *repository.AccessLogRepository, action, targetType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var actorID *string
		schoolID := ""
		if claims, ok := c.Get(ContextUserKey); ok {
			user := claims.(*models.JWTClaims)
			actorID = &user.UserID
			schoolID = user.SchoolID
		}

		metadata, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		_ = repo.Create(c.Request.Context(), &models.AccessLog{
			SchoolID:   schoolID,
			ActorID:    actorID,
			Action:     action,
			TargetType: targetType,
			Metadata:   metadata,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		})
	}
}
