package controller

import (
	"strconv"

	"codearena/internal/submission/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// StatsController serves the per-problem acceptance statistics.
type StatsController struct {
	statsService *service.StatsService
}

// NewStatsController creates a new StatsController.
func NewStatsController(statsService *service.StatsService) *StatsController {
	return &StatsController{statsService: statsService}
}

// Get returns submission and acceptance counts for one problem.
func (h *StatsController) Get(c *gin.Context) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	stats, err := h.statsService.ProblemStats(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}
