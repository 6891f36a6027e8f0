package judge

import "context"

// Judge status ids as reported by the external executor.
// 1-2 mean the case is still queued or running, 3 means accepted,
// anything above is a terminal failure (wrong answer, TLE, RE, ...).
const (
	StatusInQueue    = 1
	StatusProcessing = 2
	StatusAccepted   = 3
)

// Submission is one test case prepared for the external judge.
type Submission struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int    `json:"language_id"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output"`
}

// CaseStatus is the judge's view of one submitted case at fetch time.
type CaseStatus struct {
	Token             string
	StatusID          int
	StatusDescription string
	Stdout            string
	Stderr            string
	TimeSec           float64
	MemoryKB          int
}

// Settled reports whether the case reached a terminal status.
func (s CaseStatus) Settled() bool {
	return s.StatusID >= StatusAccepted
}

// Judge abstracts the external execution service. The production
// implementation is the HTTP Client; tests substitute a fake.
type Judge interface {
	// SubmitBatch submits all cases in one batch and returns one token per
	// case, in submission order. All-or-nothing: on error no tokens are
	// returned.
	SubmitBatch(ctx context.Context, subs []Submission) ([]string, error)

	// FetchBatch fetches the current status of the given tokens. The judge
	// may answer in any order; results are keyed by token.
	FetchBatch(ctx context.Context, tokens []string) ([]CaseStatus, error)
}
