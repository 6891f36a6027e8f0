package service

import (
	"context"
	"fmt"

	"codearena/internal/common/db"
	"codearena/internal/judge"
	"codearena/internal/problem/repository"
	pkgerrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Evaluator runs source code against test cases and returns a verdict.
// Satisfied by judge.Runner; tests substitute a fake.
type Evaluator interface {
	Evaluate(ctx context.Context, req judge.EvalRequest) (judge.Verdict, error)
}

// ProblemServiceConfig holds dependencies for ProblemService.
type ProblemServiceConfig struct {
	Repo      repository.ProblemRepository
	DB        db.Database
	Evaluator Evaluator
}

// ProblemService handles problem authoring and reads.
type ProblemService struct {
	repo      repository.ProblemRepository
	db        db.Database
	evaluator Evaluator
}

// NewProblemService creates a new ProblemService, validating required dependencies.
func NewProblemService(cfg ProblemServiceConfig) (*ProblemService, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	return &ProblemService{repo: cfg.Repo, db: cfg.DB, evaluator: cfg.Evaluator}, nil
}

// AuthorInput is the authoring payload for creating or updating a problem.
type AuthorInput struct {
	Title              string
	Description        string
	Difficulty         string
	Tags               []string
	StartCode          map[string]string
	TestCases          []repository.TestCase
	ReferenceSolutions []repository.ReferenceSolution
	CreatorID          int64
}

// Create validates the input, proves every reference solution against the
// visible test cases, and persists the problem transactionally. Nothing
// is written unless validation passes in full.
func (s *ProblemService) Create(ctx context.Context, input AuthorInput) (int64, error) {
	problem, err := s.buildProblem(input)
	if err != nil {
		return 0, err
	}
	if err := s.validateReferenceSolutions(ctx, problem); err != nil {
		return 0, err
	}

	var id int64
	err = s.db.Transaction(ctx, func(tx db.Transaction) error {
		created, err := s.repo.Create(ctx, tx, problem)
		if err != nil {
			return err
		}
		id = created
		return nil
	})
	if err != nil {
		return 0, pkgerrors.Wrap(fmt.Errorf("create problem failed: %w", err), pkgerrors.ProblemCreateFailed)
	}

	logger.Info(ctx, "problem created",
		zap.Int64("problem_id", id),
		zap.Int("test_cases", len(problem.TestCases)),
		zap.Int("reference_solutions", len(problem.ReferenceSolutions)),
	)
	return id, nil
}

// Update revalidates the full payload like Create and replaces the stored
// problem transactionally. The cached copy is invalidated on success.
func (s *ProblemService) Update(ctx context.Context, problemID int64, input AuthorInput) error {
	if problemID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	problem, err := s.buildProblem(input)
	if err != nil {
		return err
	}
	problem.ID = problemID

	if err := s.validateReferenceSolutions(ctx, problem); err != nil {
		return err
	}

	err = s.db.Transaction(ctx, func(tx db.Transaction) error {
		return s.repo.Update(ctx, tx, problem)
	})
	if err != nil {
		if err == repository.ErrProblemNotFound {
			return pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return pkgerrors.Wrap(fmt.Errorf("update problem failed: %w", err), pkgerrors.ProblemUpdateFailed)
	}

	_ = s.repo.InvalidateCache(ctx, problemID)
	logger.Info(ctx, "problem updated", zap.Int64("problem_id", problemID))
	return nil
}

// Delete removes a problem and invalidates its cached copy.
func (s *ProblemService) Delete(ctx context.Context, problemID int64) error {
	if problemID <= 0 {
		return pkgerrors.New(pkgerrors.InvalidParams)
	}
	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		return s.repo.Delete(ctx, tx, problemID)
	})
	if err != nil {
		if err == repository.ErrProblemNotFound {
			return pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return pkgerrors.Wrap(fmt.Errorf("delete problem failed: %w", err), pkgerrors.ProblemDeleteFailed)
	}
	_ = s.repo.InvalidateCache(ctx, problemID)
	return nil
}

// View is the user-facing problem detail: hidden test cases are omitted.
type View struct {
	ID                 int64                          `json:"id"`
	Title              string                         `json:"title"`
	Description        string                         `json:"description"`
	Difficulty         string                         `json:"difficulty"`
	Tags               []string                       `json:"tags"`
	StartCode          map[string]string              `json:"start_code"`
	VisibleTestCases   []repository.TestCase          `json:"visible_test_cases"`
	ReferenceSolutions []repository.ReferenceSolution `json:"reference_solutions"`
}

// Get returns the user-facing detail for a problem. Hidden test case
// content never leaves through this path.
func (s *ProblemService) Get(ctx context.Context, problemID int64) (View, error) {
	if problemID <= 0 {
		return View{}, pkgerrors.New(pkgerrors.InvalidParams)
	}
	problem, err := s.repo.GetByID(ctx, nil, problemID)
	if err != nil {
		if err == repository.ErrProblemNotFound {
			return View{}, pkgerrors.New(pkgerrors.ProblemNotFound)
		}
		return View{}, pkgerrors.Wrap(fmt.Errorf("get problem failed: %w", err), pkgerrors.DatabaseError)
	}
	return View{
		ID:                 problem.ID,
		Title:              problem.Title,
		Description:        problem.Description,
		Difficulty:         problem.Difficulty,
		Tags:               problem.Tags,
		StartCode:          problem.StartCode,
		VisibleTestCases:   problem.VisibleTestCases(),
		ReferenceSolutions: problem.ReferenceSolutions,
	}, nil
}

// List returns problem summaries with pagination.
func (s *ProblemService) List(ctx context.Context, page, pageSize int) ([]repository.Summary, int64, error) {
	summaries, total, err := s.repo.List(ctx, page, pageSize)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(fmt.Errorf("list problems failed: %w", err), pkgerrors.DatabaseError)
	}
	return summaries, total, nil
}

func (s *ProblemService) buildProblem(input AuthorInput) (*repository.Problem, error) {
	if input.Title == "" {
		return nil, pkgerrors.ValidationError("title", "required")
	}
	if input.Description == "" {
		return nil, pkgerrors.ValidationError("description", "required")
	}
	switch input.Difficulty {
	case repository.DifficultyEasy, repository.DifficultyMedium, repository.DifficultyHard:
	default:
		return nil, pkgerrors.ValidationError("difficulty", "must be easy, medium or hard")
	}
	if len(input.TestCases) == 0 {
		return nil, pkgerrors.New(pkgerrors.TestCaseMissing)
	}
	visible := 0
	for i, tc := range input.TestCases {
		if tc.ExpectedOutput == "" {
			return nil, pkgerrors.Newf(pkgerrors.TestCaseInvalid, "test case %d has no expected output", i)
		}
		if tc.Visible {
			visible++
		}
	}
	if visible == 0 {
		return nil, pkgerrors.New(pkgerrors.TestCaseInvalid).WithMessage("at least one visible test case is required")
	}
	for _, sol := range input.ReferenceSolutions {
		if _, err := judge.ResolveLanguage(sol.Language); err != nil {
			return nil, err
		}
		if sol.SourceCode == "" {
			return nil, pkgerrors.ValidationError("reference_solutions", "source code is required")
		}
	}

	return &repository.Problem{
		Title:              input.Title,
		Description:        input.Description,
		Difficulty:         input.Difficulty,
		Tags:               input.Tags,
		StartCode:          input.StartCode,
		TestCases:          input.TestCases,
		ReferenceSolutions: input.ReferenceSolutions,
		CreatorID:          input.CreatorID,
	}, nil
}

// validateReferenceSolutions proves every reference solution against the
// visible test cases concurrently. All must pass; the first failure or
// infrastructure error aborts the whole validation.
func (s *ProblemService) validateReferenceSolutions(ctx context.Context, problem *repository.Problem) error {
	if len(problem.ReferenceSolutions) == 0 {
		return nil
	}

	visible := problem.VisibleTestCases()
	cases := make([]judge.TestCase, len(visible))
	for i, tc := range visible {
		cases[i] = judge.TestCase{Input: tc.Input, ExpectedOutput: tc.ExpectedOutput}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sol := range problem.ReferenceSolutions {
		g.Go(func() error {
			verdict, err := s.evaluator.Evaluate(gctx, judge.EvalRequest{
				Language:   sol.Language,
				SourceCode: sol.SourceCode,
				Cases:      cases,
			})
			if err != nil {
				return pkgerrors.GetError(err).WithDetail("language", sol.Language)
			}
			if !verdict.Passed {
				return pkgerrors.New(pkgerrors.ReferenceSolutionRejected).
					WithDetail("language", sol.Language).
					WithDetail("failing_case", verdict.FirstFailure).
					WithDetail("status_id", verdict.FailureStatusID).
					WithDetail("status", verdict.FailureStatus)
			}
			return nil
		})
	}
	return g.Wait()
}
