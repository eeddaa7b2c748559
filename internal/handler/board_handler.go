package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-ops-api/internal/dto"
	"github.com/noah-isme/school-ops-api/internal/middleware"
	"github.com/noah-isme/school-ops-api/internal/service"
	appErrors "github.com/noah-isme/school-ops-api/pkg/errors"
	"github.com/noah-isme/school-ops-api/pkg/response"
)

// BoardHandler wires HTTP endpoints to the progress board service.
type BoardHandler struct {
	board *service.BoardService
}

// NewBoardHandler creates a new handler.
func NewBoardHandler(board *service.BoardService) *BoardHandler {
	return &BoardHandler{board: board}
}

// GetBoard godoc
// @Summary Get progress board
// @Description Full board snapshot for the caller's school, optionally filtered to one student
// @Tags Progress Board
// @Produce json
// @Param student_id query string false "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /progress-board [get]
func (h *BoardHandler) GetBoard(c *gin.Context) {
	claims := claimsFromContext(c)
	filter := dto.BoardFilter{StudentID: c.Query("student_id")}
	if claims != nil {
		filter.SchoolID = claims.SchoolID
	}
	if schoolID := c.Query("school_id"); schoolID != "" {
		filter.SchoolID = schoolID
	}

	snapshot, cacheHit, err := h.board.GetBoard(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, snapshot, nil, middleware.ExtractMeta(c))
}

// MoveCard godoc
// @Summary Move progress card
// @Description Move a card to a new column position using its version token
// @Tags Progress Board
// @Accept json
// @Produce json
// @Param id path string true "Card ID"
// @Param payload body dto.MoveCardRequest true "Move payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /progress-board/cards/{id}/move [patch]
func (h *BoardHandler) MoveCard(c *gin.Context) {
	var req dto.MoveCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid move payload"))
		return
	}

	meta := service.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	result, err := h.board.MoveCard(c.Request.Context(), c.Param("id"), req, claimsFromContext(c), meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// LockCard godoc
// @Summary Lock progress card
// @Description Place an advisory lock on a card for the caller
// @Tags Progress Board
// @Produce json
// @Param id path string true "Card ID"
// @Success 200 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /progress-board/cards/{id}/lock [post]
func (h *BoardHandler) LockCard(c *gin.Context) {
	card, err := h.board.LockCard(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// UnlockCard godoc
// @Summary Unlock progress card
// @Description Release an advisory lock held on a card
// @Tags Progress Board
// @Produce json
// @Param id path string true "Card ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /progress-board/cards/{id}/unlock [post]
func (h *BoardHandler) UnlockCard(c *gin.Context) {
	card, err := h.board.UnlockCard(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}
