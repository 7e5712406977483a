package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lexiread/lexiread-api/internal/service"
	appErrors "github.com/lexiread/lexiread-api/pkg/errors"
	"github.com/lexiread/lexiread-api/pkg/response"
)

// CommentHandler wires HTTP endpoints to the comment service.
type CommentHandler struct {
	service *service.CommentService
}

// NewCommentHandler creates a new handler.
func NewCommentHandler(svc *service.CommentService) *CommentHandler {
	return &CommentHandler{service: svc}
}

// Create godoc
// @Summary Comment on a book
// @Description Teachers and librarians leave feedback on a book log
// @Tags Comments
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param payload body service.CreateCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id}/comments [post]
func (h *CommentHandler) Create(c *gin.Context) {
	var req service.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}

	comment, err := h.service.Create(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// ListByBook godoc
// @Summary List book comments
// @Tags Comments
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /books/{id}/comments [get]
func (h *CommentHandler) ListByBook(c *gin.Context) {
	comments, err := h.service.ListByBook(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments, nil)
}

// React godoc
// @Summary React to a comment
// @Description Increment the anonymous reaction counter
// @Tags Comments
// @Produce json
// @Param id path string true "Comment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /comments/{id}/reactions [post]
func (h *CommentHandler) React(c *gin.Context) {
	count, err := h.service.React(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"reactions": count}, nil)
}

// Delete godoc
// @Summary Delete a comment
// @Tags Comments
// @Produce json
// @Param id path string true "Comment ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /comments/{id} [delete]
func (h *CommentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
