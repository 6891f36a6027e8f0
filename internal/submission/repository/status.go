package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codearena/internal/common/cache"
)

const (
	verdictKeyPrefix  = "submission:verdict:"
	solvedKeyPrefix   = "user:solved:"
	defaultVerdictTTL = 24 * time.Hour
)

var (
	ErrVerdictNotCached = errors.New("verdict not cached")
)

// VerdictSummary is the user-facing outcome of a submission. It never
// carries test case content.
type VerdictSummary struct {
	SubmissionID string    `json:"submission_id"`
	ProblemID    int64     `json:"problem_id"`
	Language     string    `json:"language"`
	Passed       bool      `json:"passed"`
	CasesPassed  int       `json:"cases_passed"`
	CasesTotal   int       `json:"cases_total"`
	FirstFailure int       `json:"first_failure"`
	FailureID    int       `json:"failure_status_id,omitempty"`
	Failure      string    `json:"failure_status,omitempty"`
	MaxTimeSec   float64   `json:"max_time_sec"`
	MaxMemoryKB  int       `json:"max_memory_kb"`
	CreatedAt    time.Time `json:"created_at"`
}

// StatusRepository keeps hot verdict summaries and per-user solved sets
// in redis. The MySQL submission table stays the source of truth.
type StatusRepository struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewStatusRepository creates a status repository.
func NewStatusRepository(cacheClient cache.Cache) (*StatusRepository, error) {
	if cacheClient == nil {
		return nil, fmt.Errorf("cache is required")
	}
	return &StatusRepository{cache: cacheClient, ttl: defaultVerdictTTL}, nil
}

// SaveVerdict caches a verdict summary for quick status reads.
func (r *StatusRepository) SaveVerdict(ctx context.Context, summary VerdictSummary) error {
	if summary.SubmissionID == "" {
		return errors.New("submissionID is required")
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return r.cache.Set(ctx, verdictKey(summary.SubmissionID), string(payload), cache.JitterTTL(r.ttl))
}

// GetVerdict reads a cached verdict summary.
func (r *StatusRepository) GetVerdict(ctx context.Context, submissionID string) (VerdictSummary, error) {
	data, err := r.cache.Get(ctx, verdictKey(submissionID))
	if err != nil {
		return VerdictSummary{}, err
	}
	if data == "" {
		return VerdictSummary{}, ErrVerdictNotCached
	}
	var summary VerdictSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return VerdictSummary{}, err
	}
	return summary, nil
}

// MarkSolved adds a problem to the user's solved set.
func (r *StatusRepository) MarkSolved(ctx context.Context, userID, problemID int64) error {
	return r.cache.SAdd(ctx, solvedKey(userID), strconv.FormatInt(problemID, 10))
}

// IsSolved reports whether the user has an accepted submission for the
// problem.
func (r *StatusRepository) IsSolved(ctx context.Context, userID, problemID int64) (bool, error) {
	return r.cache.SIsMember(ctx, solvedKey(userID), strconv.FormatInt(problemID, 10))
}

// SolvedCount returns how many distinct problems the user has solved.
func (r *StatusRepository) SolvedCount(ctx context.Context, userID int64) (int64, error) {
	return r.cache.SCard(ctx, solvedKey(userID))
}

func verdictKey(submissionID string) string {
	return verdictKeyPrefix + submissionID
}

func solvedKey(userID int64) string {
	return solvedKeyPrefix + strconv.FormatInt(userID, 10)
}
