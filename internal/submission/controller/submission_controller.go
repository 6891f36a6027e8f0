package controller

import (
	"strconv"

	"codearena/internal/submission/repository"
	"codearena/internal/submission/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionController handles submission HTTP endpoints.
type SubmissionController struct {
	submitService *service.SubmitService
}

// NewSubmissionController creates a new SubmissionController.
func NewSubmissionController(submitService *service.SubmitService) *SubmissionController {
	return &SubmissionController{submitService: submitService}
}

// Submit evaluates source code against a problem and returns the verdict.
func (h *SubmissionController) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	userID, ok := authUserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}

	summary, err := h.submitService.Evaluate(c.Request.Context(), service.SubmitInput{
		UserID:     userID,
		ProblemID:  req.ProblemID,
		Language:   req.Language,
		SourceCode: req.SourceCode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}

// GetVerdict returns the verdict summary for one submission.
func (h *SubmissionController) GetVerdict(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	summary, err := h.submitService.GetVerdict(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, summary)
}

// History lists the caller's submissions for one problem.
func (h *SubmissionController) History(c *gin.Context) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	userID, ok := authUserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	summaries, err := h.submitService.History(c.Request.Context(), userID, problemID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, HistoryResponse{Items: summaries})
}

// GetSource returns the stored source code of the caller's submission.
func (h *SubmissionController) GetSource(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	userID, ok := authUserID(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}

	source, err := h.submitService.GetSource(c.Request.Context(), userID, submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SourceResponse{SubmissionID: submissionID, SourceCode: source})
}

func authUserID(c *gin.Context) (int64, bool) {
	value, exists := c.Get("auth_user_id")
	if !exists {
		return 0, false
	}
	userID, ok := value.(int64)
	return userID, ok && userID > 0
}

// SubmitRequest defines submission payload.
type SubmitRequest struct {
	ProblemID  int64  `json:"problem_id" binding:"required"`
	Language   string `json:"language" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

// HistoryResponse defines submission history payload.
type HistoryResponse struct {
	Items []repository.VerdictSummary `json:"items"`
}

// SourceResponse defines source query response payload.
type SourceResponse struct {
	SubmissionID string `json:"submission_id"`
	SourceCode   string `json:"source_code"`
}
