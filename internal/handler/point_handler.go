package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lexiread/lexiread-api/internal/service"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
	"github.com/lexiread/lexiread-api/pkg/response"
)

// PointHandler wires HTTP endpoints to the point service.
type PointHandler struct {
	service *service.PointService
}

// NewPointHandler creates a new handler.
func NewPointHandler(svc *service.PointService) *PointHandler {
	return &PointHandler{service: svc}
}

// Get godoc
// @Summary Get points
// @Description Returns a user's total points; a missing ledger row reads as zero
// @Tags Points
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /points/{id} [get]
func (h *PointHandler) Get(c *gin.Context) {
	point, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, point, nil)
}

// Adjust godoc
// @Summary Adjust points
// @Description Overwrite a student's total points. Librarian only.
// @Tags Points
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.AdjustPointsRequest true "New total"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /points/{id} [put]
func (h *PointHandler) Adjust(c *gin.Context) {
	var req service.AdjustPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid points payload"))
		return
	}

	point, err := h.service.Adjust(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, point, nil)
}
