package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"codearena/internal/common/cache"
)

const (
	problemStatsKeyPrefix = "problem:stats:"

	statsFieldSubmissions = "submissions"
	statsFieldAccepted    = "accepted"
	statsLanguagePrefix   = "lang:"
)

// ProblemStats is the live acceptance read model for one problem,
// maintained from final verdict events.
type ProblemStats struct {
	ProblemID   int64            `json:"problem_id"`
	Submissions int64            `json:"submissions"`
	Accepted    int64            `json:"accepted"`
	Languages   map[string]int64 `json:"languages"`
}

// StatsRepository keeps per-problem submission counters in a redis hash.
type StatsRepository struct {
	cache cache.Cache
}

// NewStatsRepository creates a stats repository.
func NewStatsRepository(cacheClient cache.Cache) (*StatsRepository, error) {
	if cacheClient == nil {
		return nil, fmt.Errorf("cache is required")
	}
	return &StatsRepository{cache: cacheClient}, nil
}

// RecordVerdict bumps the counters for one recorded submission.
func (r *StatsRepository) RecordVerdict(ctx context.Context, problemID int64, language string, passed bool) error {
	if problemID <= 0 {
		return fmt.Errorf("problemID is required")
	}
	key := problemStatsKey(problemID)
	if _, err := r.cache.HIncrBy(ctx, key, statsFieldSubmissions, 1); err != nil {
		return err
	}
	if language != "" {
		if _, err := r.cache.HIncrBy(ctx, key, statsLanguagePrefix+language, 1); err != nil {
			return err
		}
	}
	if passed {
		if _, err := r.cache.HIncrBy(ctx, key, statsFieldAccepted, 1); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the counters for a problem. A problem with no recorded
// submissions yields zero stats, not an error.
func (r *StatsRepository) Get(ctx context.Context, problemID int64) (ProblemStats, error) {
	stats := ProblemStats{ProblemID: problemID, Languages: make(map[string]int64)}
	fields, err := r.cache.HGetAll(ctx, problemStatsKey(problemID))
	if err != nil {
		return ProblemStats{}, err
	}
	for field, raw := range fields {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case field == statsFieldSubmissions:
			stats.Submissions = value
		case field == statsFieldAccepted:
			stats.Accepted = value
		case strings.HasPrefix(field, statsLanguagePrefix):
			stats.Languages[strings.TrimPrefix(field, statsLanguagePrefix)] = value
		}
	}
	return stats, nil
}

func problemStatsKey(problemID int64) string {
	return problemStatsKeyPrefix + strconv.FormatInt(problemID, 10)
}
