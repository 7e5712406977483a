package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lexiread/lexiread-api/internal/service"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
	"github.com/lexiread/lexiread-api/pkg/response"
)

// LexileHandler wires HTTP endpoints to the lexile service.
type LexileHandler struct {
	service *service.LexileService
}

// NewLexileHandler creates a new handler.
func NewLexileHandler(svc *service.LexileService) *LexileHandler {
	return &LexileHandler{service: svc}
}

// GetStudent godoc
// @Summary Student lexile history
// @Description All term records plus the resolved current score
// @Tags Lexile
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lexile/students/{id} [get]
func (h *LexileHandler) GetStudent(c *gin.Context) {
	res, err := h.service.StudentLexiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Upsert godoc
// @Summary Upsert a lexile record
// @Description Write one (student, term, year) score; re-runs overwrite
// @Tags Lexile
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpsertLexileRequest true "Record payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lexile/students/{id} [put]
func (h *LexileHandler) Upsert(c *gin.Context) {
	var req service.UpsertLexileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lexile payload"))
		return
	}

	rec, err := h.service.Upsert(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec, nil)
}

// BulkUpload godoc
// @Summary Bulk lexile upload
// @Description Line-oriented "name, lexile" upload with per-line results
// @Tags Lexile
// @Accept json
// @Produce json
// @Param payload body service.BulkLexileRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lexile/bulk [post]
func (h *LexileHandler) BulkUpload(c *gin.Context) {
	var req service.BulkLexileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk payload"))
		return
	}

	summary, err := h.service.BulkUpsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ClassOverview godoc
// @Summary Class lexile overview
// @Description Term scores, trends and current level per student
// @Tags Lexile
// @Produce json
// @Param grade query string false "Grade filter"
// @Param class query string false "Class filter"
// @Param year query int false "Academic year (defaults to current)"
// @Success 200 {object} response.Envelope
// @Router /lexile/class [get]
func (h *LexileHandler) ClassOverview(c *gin.Context) {
	rows, err := h.service.ClassOverview(c.Request.Context(), c.Query("grade"), c.Query("class"), queryInt(c, "year", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// ExportClassOverview godoc
// @Summary Export class lexile overview
// @Description Download the overview as CSV or PDF
// @Tags Lexile
// @Produce text/csv
// @Produce application/pdf
// @Param grade query string false "Grade filter"
// @Param class query string false "Class filter"
// @Param year query int false "Academic year (defaults to current)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /lexile/class/export [get]
func (h *LexileHandler) ExportClassOverview(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.service.ExportClassOverview(c.Request.Context(), c.Query("grade"), c.Query("class"), queryInt(c, "year", 0), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("class-lexile-overview.%s", format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
