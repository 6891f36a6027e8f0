package judge

import (
	"context"
	"time"

	apperrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// TestCase is one input/expected-output pair to evaluate against.
type TestCase struct {
	Input          string
	ExpectedOutput string
}

// EvalRequest describes one evaluation of a piece of source code over an
// ordered list of test cases.
type EvalRequest struct {
	Language   string
	SourceCode string
	Cases      []TestCase
}

// RunnerConfig holds the settings for the evaluation orchestrator.
type RunnerConfig struct {
	Judge        Judge
	PollInterval time.Duration
	PollDeadline time.Duration
}

// Runner orchestrates the full evaluation pipeline: resolve language,
// submit the batch, poll until settled, aggregate the verdict.
type Runner struct {
	judge  Judge
	poller *Poller
}

// NewRunner creates a runner, validating required dependencies.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Judge == nil {
		return nil, apperrors.New(apperrors.InternalServerError).WithMessage("judge is required")
	}
	poller, err := NewPoller(PollerConfig{
		Judge:    cfg.Judge,
		Interval: cfg.PollInterval,
		Deadline: cfg.PollDeadline,
	})
	if err != nil {
		return nil, err
	}
	return &Runner{judge: cfg.Judge, poller: poller}, nil
}

// Evaluate runs the request through the pipeline and returns its verdict.
//
// A request with zero test cases is a configuration error, never a
// vacuous pass. Infrastructure failures (LanguageNotSupported,
// JudgeUnavailable, JudgeRejected, JudgeTimeout, cancellation) abort the
// evaluation with an error; a verdict with Passed=false is data and is
// returned with a nil error.
func (r *Runner) Evaluate(ctx context.Context, req EvalRequest) (Verdict, error) {
	if len(req.Cases) == 0 {
		return Verdict{}, apperrors.New(apperrors.TestCaseMissing)
	}

	languageID, err := ResolveLanguage(req.Language)
	if err != nil {
		return Verdict{}, err
	}

	subs := make([]Submission, len(req.Cases))
	for i, testCase := range req.Cases {
		subs[i] = Submission{
			SourceCode:     req.SourceCode,
			LanguageID:     languageID,
			Stdin:          testCase.Input,
			ExpectedOutput: testCase.ExpectedOutput,
		}
	}

	started := time.Now()
	tokens, err := r.judge.SubmitBatch(ctx, subs)
	if err != nil {
		return Verdict{}, err
	}

	statuses, err := r.poller.Poll(ctx, tokens)
	if err != nil {
		return Verdict{}, err
	}

	verdict := Aggregate(caseResults(statuses))
	logger.Info(ctx, "evaluation finished",
		zap.String("language", req.Language),
		zap.Int("cases", verdict.CasesTotal),
		zap.Int("cases_passed", verdict.CasesPassed),
		zap.Bool("passed", verdict.Passed),
		zap.Duration("elapsed", time.Since(started)),
	)
	return verdict, nil
}
