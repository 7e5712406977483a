package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lexiread/lexiread-api/internal/models"
	"github.com/lexiread/lexiread-api/internal/service"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
	"github.com/lexiread/lexiread-api/pkg/response"
)

// BookHandler wires HTTP endpoints to the book service.
type BookHandler struct {
	service *service.BookService
}

// NewBookHandler creates a new handler.
func NewBookHandler(svc *service.BookService) *BookHandler {
	return &BookHandler{service: svc}
}

// Create godoc
// @Summary Log a book
// @Description Submit a finished book for verification
// @Tags Books
// @Accept json
// @Produce json
// @Param payload body service.CreateBookRequest true "Book payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /books [post]
func (h *BookHandler) Create(c *gin.Context) {
	var req service.CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid book payload"))
		return
	}

	book, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, book)
}

// List godoc
// @Summary List books
// @Description List books with filtering and pagination. Students see only their own.
// @Tags Books
// @Produce json
// @Param status query string false "Filter by status"
// @Param userId query string false "Filter by owner (staff only)"
// @Param search query string false "Search in title or author"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /books [get]
func (h *BookHandler) List(c *gin.Context) {
	req := service.ListBooksRequest{
		UserID:    c.Query("userId"),
		Status:    c.Query("status"),
		Search:    c.Query("search"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "pageSize", 20),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}

	books, total, err := h.service.List(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, books, &models.Pagination{
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get a book
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id} [get]
func (h *BookHandler) Get(c *gin.Context) {
	book, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// Update godoc
// @Summary Update a book
// @Description Owner edits; verification state is untouched
// @Tags Books
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param payload body service.UpdateBookRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id} [put]
func (h *BookHandler) Update(c *gin.Context) {
	var req service.UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid book payload"))
		return
	}

	book, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// Verify godoc
// @Summary Verify a book
// @Description Approve or reject a pending book. Approval awards points.
// @Tags Books
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param payload body service.VerifyBookRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /books/{id}/verification [patch]
func (h *BookHandler) Verify(c *gin.Context) {
	var req service.VerifyBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid verification payload"))
		return
	}

	book, err := h.service.Verify(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// Delete godoc
// @Summary Delete a book
// @Description Remove a book; awarded points are reversed
// @Tags Books
// @Produce json
// @Param id path string true "Book ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id} [delete]
func (h *BookHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Summary godoc
// @Summary Book status summary
// @Description Per-status counts for a student's books
// @Tags Books
// @Produce json
// @Param userId query string false "Student ID (defaults to caller)"
// @Success 200 {object} response.Envelope
// @Router /books/summary [get]
func (h *BookHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), claimsFromContext(c), c.Query("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
