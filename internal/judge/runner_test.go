package judge

import (
	"context"
	"testing"
	"time"

	apperrors "codearena/pkg/errors"
)

func newTestRunner(t *testing.T, j Judge) *Runner {
	t.Helper()
	runner, err := NewRunner(RunnerConfig{
		Judge:        j,
		PollInterval: time.Millisecond,
		PollDeadline: time.Second,
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return runner
}

func TestEvaluateZeroCasesRejected(t *testing.T) {
	j := &fakeJudge{
		submitFn: func(ctx context.Context, subs []Submission) ([]string, error) {
			t.Fatal("submit should not be reached with zero cases")
			return nil, nil
		},
	}

	_, err := newTestRunner(t, j).Evaluate(context.Background(), EvalRequest{
		Language:   "python",
		SourceCode: "print(1)",
	})
	if !apperrors.Is(err, apperrors.TestCaseMissing) {
		t.Fatalf("expected TestCaseMissing, got %v", err)
	}
}

func TestEvaluateUnsupportedLanguage(t *testing.T) {
	j := &fakeJudge{
		submitFn: func(ctx context.Context, subs []Submission) ([]string, error) {
			t.Fatal("submit should not be reached with bad language")
			return nil, nil
		},
	}

	_, err := newTestRunner(t, j).Evaluate(context.Background(), EvalRequest{
		Language:   "brainfuck",
		SourceCode: "+",
		Cases:      []TestCase{{Input: "1", ExpectedOutput: "1"}},
	})
	if !apperrors.Is(err, apperrors.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestEvaluateBuildsBatchInOrder(t *testing.T) {
	var captured []Submission
	j := &fakeJudge{
		submitFn: func(ctx context.Context, subs []Submission) ([]string, error) {
			captured = append([]Submission(nil), subs...)
			return []string{"t0", "t1", "t2"}, nil
		},
		fetchFn: func(ctx context.Context, tokens []string) ([]CaseStatus, error) {
			statuses := make([]CaseStatus, len(tokens))
			for i, token := range tokens {
				statuses[i] = accepted(token)
			}
			return statuses, nil
		},
	}

	cases := []TestCase{
		{Input: "1 2", ExpectedOutput: "3"},
		{Input: "5 5", ExpectedOutput: "10"},
		{Input: "0 0", ExpectedOutput: "0"},
	}
	verdict, err := newTestRunner(t, j).Evaluate(context.Background(), EvalRequest{
		Language:   "cpp",
		SourceCode: "int main(){}",
		Cases:      cases,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(captured) != 3 {
		t.Fatalf("submitted %d cases, want 3", len(captured))
	}
	for i, sub := range captured {
		if sub.Stdin != cases[i].Input || sub.ExpectedOutput != cases[i].ExpectedOutput {
			t.Errorf("case %d out of order: stdin %q expected %q", i, sub.Stdin, sub.ExpectedOutput)
		}
		if sub.LanguageID != 54 {
			t.Errorf("case %d language id = %d, want 54", i, sub.LanguageID)
		}
	}
	if !verdict.Passed || verdict.CasesPassed != 3 {
		t.Errorf("verdict = %+v, want all passed", verdict)
	}
}

func TestEvaluateFailedVerdictIsDataNotError(t *testing.T) {
	j := &fakeJudge{
		submitFn: func(ctx context.Context, subs []Submission) ([]string, error) {
			return []string{"t0", "t1"}, nil
		},
		fetchFn: func(ctx context.Context, tokens []string) ([]CaseStatus, error) {
			return []CaseStatus{
				accepted("t0"),
				{Token: "t1", StatusID: 4, StatusDescription: "Wrong Answer", TimeSec: 0.3, MemoryKB: 1200},
			}, nil
		},
	}

	verdict, err := newTestRunner(t, j).Evaluate(context.Background(), EvalRequest{
		Language:   "python",
		SourceCode: "print(1)",
		Cases: []TestCase{
			{Input: "a", ExpectedOutput: "a"},
			{Input: "b", ExpectedOutput: "b"},
		},
	})
	if err != nil {
		t.Fatalf("failed verdict must not be an error: %v", err)
	}
	if verdict.Passed {
		t.Error("verdict.Passed = true, want false")
	}
	if verdict.FirstFailure != 1 {
		t.Errorf("FirstFailure = %d, want 1", verdict.FirstFailure)
	}
	if verdict.FailureStatus != "Wrong Answer" {
		t.Errorf("FailureStatus = %q", verdict.FailureStatus)
	}
}

func TestEvaluateSubmitFailurePropagates(t *testing.T) {
	j := &fakeJudge{
		submitFn: func(ctx context.Context, subs []Submission) ([]string, error) {
			return nil, apperrors.New(apperrors.JudgeUnavailable)
		},
	}

	_, err := newTestRunner(t, j).Evaluate(context.Background(), EvalRequest{
		Language:   "go",
		SourceCode: "package main",
		Cases:      []TestCase{{Input: "x", ExpectedOutput: "x"}},
	})
	if !apperrors.Is(err, apperrors.JudgeUnavailable) {
		t.Fatalf("expected JudgeUnavailable, got %v", err)
	}
}

func TestNewRunnerRequiresJudge(t *testing.T) {
	if _, err := NewRunner(RunnerConfig{}); err == nil {
		t.Fatal("NewRunner without judge should fail")
	}
}
