package judge

// CaseResult is the settled outcome of one test case.
type CaseResult struct {
	Index             int     `json:"index"`
	Token             string  `json:"token"`
	StatusID          int     `json:"status_id"`
	StatusDescription string  `json:"status_description"`
	Passed            bool    `json:"passed"`
	Stdout            string  `json:"stdout,omitempty"`
	Stderr            string  `json:"stderr,omitempty"`
	TimeSec           float64 `json:"time_sec"`
	MemoryKB          int     `json:"memory_kb"`
}

// Verdict is the aggregated outcome of one evaluation over all cases.
type Verdict struct {
	Passed      bool `json:"passed"`
	CasesPassed int  `json:"cases_passed"`
	CasesTotal  int  `json:"cases_total"`

	// FirstFailure is the earliest-index failed case, or -1 when all passed.
	FirstFailure    int    `json:"first_failure"`
	FailureStatusID int    `json:"failure_status_id,omitempty"`
	FailureStatus   string `json:"failure_status,omitempty"`

	MaxTimeSec  float64 `json:"max_time_sec"`
	MaxMemoryKB int     `json:"max_memory_kb"`

	Cases []CaseResult `json:"cases"`
}

// Aggregate folds per-case results into a verdict. It is pure: the
// verdict depends only on the input slice, which must be in original
// case order. An empty input aggregates to a pass with zero cases;
// Runner rejects zero-case evaluations before anything is submitted.
func Aggregate(results []CaseResult) Verdict {
	verdict := Verdict{
		CasesTotal:   len(results),
		FirstFailure: -1,
		Cases:        results,
	}

	for _, result := range results {
		if result.Passed {
			verdict.CasesPassed++
		} else if verdict.FirstFailure == -1 {
			verdict.FirstFailure = result.Index
			verdict.FailureStatusID = result.StatusID
			verdict.FailureStatus = result.StatusDescription
		}
		if result.TimeSec > verdict.MaxTimeSec {
			verdict.MaxTimeSec = result.TimeSec
		}
		if result.MemoryKB > verdict.MaxMemoryKB {
			verdict.MaxMemoryKB = result.MemoryKB
		}
	}

	verdict.Passed = verdict.CasesPassed == len(results)
	return verdict
}

// caseResults pairs settled statuses with their original indices.
func caseResults(statuses []CaseStatus) []CaseResult {
	results := make([]CaseResult, len(statuses))
	for i, status := range statuses {
		results[i] = CaseResult{
			Index:             i,
			Token:             status.Token,
			StatusID:          status.StatusID,
			StatusDescription: status.StatusDescription,
			Passed:            status.StatusID == StatusAccepted,
			Stdout:            status.Stdout,
			Stderr:            status.Stderr,
			TimeSec:           status.TimeSec,
			MemoryKB:          status.MemoryKB,
		}
	}
	return results
}
