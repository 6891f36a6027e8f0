package repository

import "time"

// Problem difficulty levels.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Problem is the full authoring view of a coding problem, including
// hidden test cases and reference solutions. Only the admin surface may
// see it whole.
type Problem struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Difficulty  string    `json:"difficulty"`
	Tags        []string  `json:"tags"`
	CreatorID   int64     `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// StartCode maps language name to the editor boilerplate.
	StartCode map[string]string `json:"start_code"`

	TestCases          []TestCase          `json:"test_cases"`
	ReferenceSolutions []ReferenceSolution `json:"reference_solutions"`
}

// TestCase is one input/expected-output pair. Visible cases are shown to
// users and drive reference solution validation; hidden cases are only
// used when judging submissions.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Visible        bool   `json:"visible"`
}

// ReferenceSolution is a known-good solution in one language. Every
// reference solution must pass all visible test cases before the problem
// is persisted.
type ReferenceSolution struct {
	Language   string `json:"language"`
	SourceCode string `json:"source_code"`
}

// VisibleTestCases returns only the user-facing cases, in order.
func (p *Problem) VisibleTestCases() []TestCase {
	visible := make([]TestCase, 0, len(p.TestCases))
	for _, tc := range p.TestCases {
		if tc.Visible {
			visible = append(visible, tc)
		}
	}
	return visible
}

// Summary is the listing view of a problem.
type Summary struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Difficulty string   `json:"difficulty"`
	Tags       []string `json:"tags"`
}
