package repository

import (
	"context"
	"testing"

	"codearena/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStatsRepo(t *testing.T) *StatsRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient() error = %v", err)
	}
	repo, err := NewStatsRepository(redisCache)
	if err != nil {
		t.Fatalf("NewStatsRepository() error = %v", err)
	}
	return repo
}

func TestStatsRecordAndGet(t *testing.T) {
	repo := newStatsRepo(t)
	ctx := context.Background()

	if err := repo.RecordVerdict(ctx, 1, "python", true); err != nil {
		t.Fatalf("RecordVerdict() error = %v", err)
	}
	if err := repo.RecordVerdict(ctx, 1, "python", false); err != nil {
		t.Fatalf("RecordVerdict() error = %v", err)
	}
	if err := repo.RecordVerdict(ctx, 1, "go", true); err != nil {
		t.Fatalf("RecordVerdict() error = %v", err)
	}
	if err := repo.RecordVerdict(ctx, 2, "go", false); err != nil {
		t.Fatalf("RecordVerdict() error = %v", err)
	}

	stats, err := repo.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stats.ProblemID != 1 {
		t.Errorf("ProblemID = %d, want 1", stats.ProblemID)
	}
	if stats.Submissions != 3 {
		t.Errorf("Submissions = %d, want 3", stats.Submissions)
	}
	if stats.Accepted != 2 {
		t.Errorf("Accepted = %d, want 2", stats.Accepted)
	}
	if stats.Languages["python"] != 2 || stats.Languages["go"] != 1 {
		t.Errorf("Languages = %v, want python=2 go=1", stats.Languages)
	}

	other, err := repo.Get(ctx, 2)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if other.Submissions != 1 || other.Accepted != 0 {
		t.Errorf("problem 2 stats = %+v, want 1 submission 0 accepted", other)
	}
}

func TestStatsGetUnknownProblem(t *testing.T) {
	repo := newStatsRepo(t)

	stats, err := repo.Get(context.Background(), 404)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stats.Submissions != 0 || stats.Accepted != 0 || len(stats.Languages) != 0 {
		t.Errorf("stats = %+v, want zeroes", stats)
	}
}

func TestStatsRecordVerdictRequiresProblemID(t *testing.T) {
	repo := newStatsRepo(t)

	if err := repo.RecordVerdict(context.Background(), 0, "python", true); err == nil {
		t.Fatal("RecordVerdict() error = nil, want error")
	}
}
