package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/internal/service"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

// AccessLogHandler serves the audit trail endpoint.
type AccessLogHandler struct {
	logs *service.AccessLogService
}

// NewAccessLogHandler creates a new handler.
func NewAccessLogHandler(logs *service.AccessLogService) *AccessLogHandler {
	return &AccessLogHandler{logs: logs}
}

// List godoc
// @Summary List access logs
// @Description List audit trail entries for the caller's school, newest first
// @Tags Access Logs
// @Produce json
// @Param action query string false "Filter by action"
// @Param target_type query string false "Filter by target type"
// @Param actor_id query string false "Filter by actor"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /access-logs [get]
func (h *AccessLogHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	filter := models.AccessLogFilter{
		SchoolID:   c.Query("school_id"),
		Action:     c.Query("action"),
		TargetType: c.Query("target_type"),
		ActorID:    c.Query("actor_id"),
		Page:       page,
		PageSize:   pageSize,
	}

	entries, pagination, err := h.logs.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
