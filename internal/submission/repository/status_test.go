package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"codearena/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStatusRepo(t *testing.T) *StatusRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient: %v", err)
	}
	repo, err := NewStatusRepository(redisCache)
	if err != nil {
		t.Fatalf("NewStatusRepository: %v", err)
	}
	return repo
}

func TestVerdictCacheRoundTrip(t *testing.T) {
	repo := newStatusRepo(t)
	ctx := context.Background()

	summary := VerdictSummary{
		SubmissionID: "sub-1",
		ProblemID:    7,
		Language:     "go",
		Passed:       false,
		CasesPassed:  2,
		CasesTotal:   3,
		FirstFailure: 2,
		FailureID:    5,
		Failure:      "Time Limit Exceeded",
		MaxTimeSec:   1.5,
		MaxMemoryKB:  20480,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := repo.SaveVerdict(ctx, summary); err != nil {
		t.Fatalf("SaveVerdict: %v", err)
	}

	got, err := repo.GetVerdict(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetVerdict: %v", err)
	}
	if got != summary {
		t.Errorf("GetVerdict = %+v, want %+v", got, summary)
	}
}

func TestGetVerdictMissing(t *testing.T) {
	repo := newStatusRepo(t)
	_, err := repo.GetVerdict(context.Background(), "nope")
	if !errors.Is(err, ErrVerdictNotCached) {
		t.Fatalf("expected ErrVerdictNotCached, got %v", err)
	}
}

func TestSaveVerdictRequiresID(t *testing.T) {
	repo := newStatusRepo(t)
	if err := repo.SaveVerdict(context.Background(), VerdictSummary{}); err == nil {
		t.Fatal("expected error for empty submission id")
	}
}

func TestSolvedSet(t *testing.T) {
	repo := newStatusRepo(t)
	ctx := context.Background()

	solved, err := repo.IsSolved(ctx, 1, 10)
	if err != nil {
		t.Fatalf("IsSolved: %v", err)
	}
	if solved {
		t.Error("unsolved problem reported as solved")
	}

	if err := repo.MarkSolved(ctx, 1, 10); err != nil {
		t.Fatalf("MarkSolved: %v", err)
	}
	// Marking twice keeps the set a set.
	if err := repo.MarkSolved(ctx, 1, 10); err != nil {
		t.Fatalf("MarkSolved: %v", err)
	}
	if err := repo.MarkSolved(ctx, 1, 11); err != nil {
		t.Fatalf("MarkSolved: %v", err)
	}

	solved, err = repo.IsSolved(ctx, 1, 10)
	if err != nil || !solved {
		t.Errorf("IsSolved = (%v, %v), want true", solved, err)
	}
	count, err := repo.SolvedCount(ctx, 1)
	if err != nil || count != 2 {
		t.Errorf("SolvedCount = (%d, %v), want 2", count, err)
	}

	// Another user's set is independent.
	solved, err = repo.IsSolved(ctx, 2, 10)
	if err != nil || solved {
		t.Errorf("IsSolved other user = (%v, %v), want false", solved, err)
	}
}
