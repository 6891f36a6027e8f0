package judge

import "testing"

func TestAggregate(t *testing.T) {
	tests := []struct {
		name            string
		results         []CaseResult
		wantPassed      bool
		wantCasesPassed int
		wantFirstFail   int
		wantMaxTime     float64
		wantMaxMemory   int
	}{
		{
			name:          "no cases passes vacuously",
			results:       nil,
			wantPassed:    true,
			wantFirstFail: -1,
		},
		{
			name: "all accepted",
			results: []CaseResult{
				{Index: 0, StatusID: StatusAccepted, Passed: true, TimeSec: 0.12, MemoryKB: 9000},
				{Index: 1, StatusID: StatusAccepted, Passed: true, TimeSec: 0.50, MemoryKB: 7000},
			},
			wantPassed:      true,
			wantCasesPassed: 2,
			wantFirstFail:   -1,
			wantMaxTime:     0.50,
			wantMaxMemory:   9000,
		},
		{
			name: "first failure is earliest index",
			results: []CaseResult{
				{Index: 0, StatusID: StatusAccepted, Passed: true},
				{Index: 1, StatusID: 4, StatusDescription: "Wrong Answer"},
				{Index: 2, StatusID: 5, StatusDescription: "Time Limit Exceeded", TimeSec: 2.0},
			},
			wantPassed:      false,
			wantCasesPassed: 1,
			wantFirstFail:   1,
			wantMaxTime:     2.0,
		},
		{
			name: "single failing case",
			results: []CaseResult{
				{Index: 0, StatusID: 6, StatusDescription: "Compilation Error"},
			},
			wantPassed:    false,
			wantFirstFail: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := Aggregate(tt.results)
			if verdict.Passed != tt.wantPassed {
				t.Errorf("Passed = %v, want %v", verdict.Passed, tt.wantPassed)
			}
			if verdict.CasesPassed != tt.wantCasesPassed {
				t.Errorf("CasesPassed = %d, want %d", verdict.CasesPassed, tt.wantCasesPassed)
			}
			if verdict.CasesTotal != len(tt.results) {
				t.Errorf("CasesTotal = %d, want %d", verdict.CasesTotal, len(tt.results))
			}
			if verdict.FirstFailure != tt.wantFirstFail {
				t.Errorf("FirstFailure = %d, want %d", verdict.FirstFailure, tt.wantFirstFail)
			}
			if verdict.MaxTimeSec != tt.wantMaxTime {
				t.Errorf("MaxTimeSec = %v, want %v", verdict.MaxTimeSec, tt.wantMaxTime)
			}
			if verdict.MaxMemoryKB != tt.wantMaxMemory {
				t.Errorf("MaxMemoryKB = %d, want %d", verdict.MaxMemoryKB, tt.wantMaxMemory)
			}
		})
	}
}

func TestAggregateFailureStatusCarried(t *testing.T) {
	verdict := Aggregate([]CaseResult{
		{Index: 0, StatusID: StatusAccepted, Passed: true},
		{Index: 1, StatusID: 4, StatusDescription: "Wrong Answer"},
	})
	if verdict.FailureStatusID != 4 {
		t.Errorf("FailureStatusID = %d, want 4", verdict.FailureStatusID)
	}
	if verdict.FailureStatus != "Wrong Answer" {
		t.Errorf("FailureStatus = %q, want %q", verdict.FailureStatus, "Wrong Answer")
	}
}
