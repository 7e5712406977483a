package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lexiread/lexiread-api/internal/service"
	"github.com/lexiread/lexiread-api/pkg/response"
)

// LeaderboardHandler wires HTTP endpoints to the leaderboard service.
type LeaderboardHandler struct {
	service *service.LeaderboardService
}

// NewLeaderboardHandler creates a new handler.
func NewLeaderboardHandler(svc *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: svc}
}

// Top godoc
// @Summary Points leaderboard
// @Description Top active students by total points
// @Tags Leaderboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /leaderboard [get]
func (h *LeaderboardHandler) Top(c *gin.Context) {
	entries, err := h.service.Top(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
