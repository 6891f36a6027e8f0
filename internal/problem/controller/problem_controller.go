package controller

import (
	"strconv"

	"codearena/internal/problem/repository"
	"codearena/internal/problem/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProblemController handles problem HTTP endpoints.
type ProblemController struct {
	problemService *service.ProblemService
}

// NewProblemController creates a new ProblemController.
func NewProblemController(problemService *service.ProblemService) *ProblemController {
	return &ProblemController{problemService: problemService}
}

// TestCaseRequest is one authored test case.
type TestCaseRequest struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output" binding:"required"`
	Visible        bool   `json:"visible"`
}

// ReferenceSolutionRequest is one authored reference solution.
type ReferenceSolutionRequest struct {
	Language   string `json:"language" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

// AuthorProblemRequest defines the create/update payload.
type AuthorProblemRequest struct {
	Title              string                     `json:"title" binding:"required"`
	Description        string                     `json:"description" binding:"required"`
	Difficulty         string                     `json:"difficulty" binding:"required"`
	Tags               []string                   `json:"tags"`
	StartCode          map[string]string          `json:"start_code"`
	TestCases          []TestCaseRequest          `json:"test_cases" binding:"required"`
	ReferenceSolutions []ReferenceSolutionRequest `json:"reference_solutions"`
}

// CreateProblemResponse defines the creation response payload.
type CreateProblemResponse struct {
	ID int64 `json:"id"`
}

// Create handles problem creation.
func (h *ProblemController) Create(c *gin.Context) {
	var req AuthorProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	id, err := h.problemService.Create(c.Request.Context(), toAuthorInput(req, creatorID(c)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, CreateProblemResponse{ID: id})
}

// Update handles full problem replacement.
func (h *ProblemController) Update(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}
	var req AuthorProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	if err := h.problemService.Update(c.Request.Context(), problemID, toAuthorInput(req, creatorID(c))); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Delete handles problem deletion.
func (h *ProblemController) Delete(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}
	if err := h.problemService.Delete(c.Request.Context(), problemID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Get handles the user-facing problem detail query.
func (h *ProblemController) Get(c *gin.Context) {
	problemID, ok := parseProblemID(c)
	if !ok {
		return
	}
	view, err := h.problemService.Get(c.Request.Context(), problemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// List handles the paginated problem listing.
func (h *ProblemController) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	summaries, total, err := h.problemService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithPagination(c, summaries, total, page, pageSize)
}

func toAuthorInput(req AuthorProblemRequest, creatorID int64) service.AuthorInput {
	cases := make([]repository.TestCase, len(req.TestCases))
	for i, tc := range req.TestCases {
		cases[i] = repository.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Visible:        tc.Visible,
		}
	}
	solutions := make([]repository.ReferenceSolution, len(req.ReferenceSolutions))
	for i, sol := range req.ReferenceSolutions {
		solutions[i] = repository.ReferenceSolution{
			Language:   sol.Language,
			SourceCode: sol.SourceCode,
		}
	}
	return service.AuthorInput{
		Title:              req.Title,
		Description:        req.Description,
		Difficulty:         req.Difficulty,
		Tags:               req.Tags,
		StartCode:          req.StartCode,
		TestCases:          cases,
		ReferenceSolutions: solutions,
		CreatorID:          creatorID,
	}
}

func parseProblemID(c *gin.Context) (int64, bool) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return 0, false
	}
	return problemID, true
}

func creatorID(c *gin.Context) int64 {
	if v, exists := c.Get("auth_user_id"); exists {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
