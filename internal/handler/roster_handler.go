package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/internal/service"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

// RosterHandler serves read-side endpoints over children and parents.
type RosterHandler struct {
	roster *service.RosterService
}

// NewRosterHandler creates a new handler.
func NewRosterHandler(roster *service.RosterService) *RosterHandler {
	return &RosterHandler{roster: roster}
}

// ListChildren godoc
// @Summary List children
// @Description List enrolled children for the caller's school
// @Tags Roster
// @Produce json
// @Param enrollment_status query string false "Filter by enrollment status"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /children [get]
func (h *RosterHandler) ListChildren(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := models.ChildFilter{
		SchoolID:         c.Query("school_id"),
		EnrollmentStatus: models.ChildEnrollmentStatus(c.Query("enrollment_status")),
		Search:           c.Query("search"),
		Page:             page,
		PageSize:         pageSize,
		SortBy:           c.Query("sort_by"),
		SortOrder:        c.Query("sort_order"),
	}

	children, pagination, err := h.roster.ListChildren(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, children, pagination)
}

// GetChild godoc
// @Summary Get child
// @Description Fetch one child with linked parents
// @Tags Roster
// @Produce json
// @Param id path string true "Child ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /children/{id} [get]
func (h *RosterHandler) GetChild(c *gin.Context) {
	detail, err := h.roster.GetChild(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ListParents godoc
// @Summary List parents
// @Description List parent profiles for the caller's school
// @Tags Roster
// @Produce json
// @Param search query string false "Search by name or email"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /parents [get]
func (h *RosterHandler) ListParents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	filter := models.ParentFilter{
		SchoolID:  c.Query("school_id"),
		Search:    c.Query("search"),
		Page:      page,
		PageSize:  pageSize,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	parents, pagination, err := h.roster.ListParents(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, parents, pagination)
}

// GetParent godoc
// @Summary Get parent
// @Description Fetch one parent with linked children
// @Tags Roster
// @Produce json
// @Param id path string true "Parent ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /parents/{id} [get]
func (h *RosterHandler) GetParent(c *gin.Context) {
	detail, err := h.roster.GetParent(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
