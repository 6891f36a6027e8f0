package service

import (
	"context"
	"testing"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/mq"
	"codearena/internal/submission/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type statsEnv struct {
	svc   *StatsService
	queue *fakeQueue
	topic string
}

func newStatsEnv(t *testing.T) *statsEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient() error = %v", err)
	}
	statsRepo, err := repository.NewStatsRepository(redisCache)
	if err != nil {
		t.Fatalf("NewStatsRepository() error = %v", err)
	}

	queue := &fakeQueue{}
	topic := "submission.verdicts"
	svc, err := NewStatsService(StatsServiceConfig{
		Queue: queue,
		Stats: statsRepo,
		Topic: topic,
	})
	if err != nil {
		t.Fatalf("NewStatsService() error = %v", err)
	}
	if err := svc.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	return &statsEnv{svc: svc, queue: queue, topic: topic}
}

func TestStatsServiceBuildsReadModelFromVerdictEvents(t *testing.T) {
	env := newStatsEnv(t)
	ctx := context.Background()

	publisher, err := NewVerdictEventPublisher(env.queue, env.topic)
	if err != nil {
		t.Fatalf("NewVerdictEventPublisher() error = %v", err)
	}
	events := []VerdictEvent{
		{SubmissionID: "sub-1", UserID: 7, ProblemID: 42, Language: "python", Passed: true, CasesPassed: 3, CasesTotal: 3, CreatedAt: time.Now()},
		{SubmissionID: "sub-2", UserID: 8, ProblemID: 42, Language: "c++", Passed: false, CasesPassed: 1, CasesTotal: 3, FailureID: 4, CreatedAt: time.Now()},
	}
	for _, event := range events {
		if err := publisher.PublishFinal(ctx, event); err != nil {
			t.Fatalf("PublishFinal() error = %v", err)
		}
	}
	for _, message := range env.queue.published {
		if err := env.queue.deliver(ctx, env.topic, message); err != nil {
			t.Fatalf("deliver() error = %v", err)
		}
	}

	stats, err := env.svc.ProblemStats(ctx, 42)
	if err != nil {
		t.Fatalf("ProblemStats() error = %v", err)
	}
	if stats.Submissions != 2 {
		t.Errorf("Submissions = %d, want 2", stats.Submissions)
	}
	if stats.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", stats.Accepted)
	}
	if stats.Languages["python"] != 1 || stats.Languages["c++"] != 1 {
		t.Errorf("Languages = %v, want python=1 c++=1", stats.Languages)
	}

	other, err := env.svc.ProblemStats(ctx, 99)
	if err != nil {
		t.Fatalf("ProblemStats() error = %v", err)
	}
	if other.Submissions != 0 || other.Accepted != 0 {
		t.Errorf("unrelated problem stats = %+v, want zeroes", other)
	}
}

func TestStatsServiceDropsMalformedEvents(t *testing.T) {
	env := newStatsEnv(t)
	ctx := context.Background()

	bad := []*mq.Message{
		mq.NewMessage([]byte("not json")),
		mq.NewMessage([]byte(`{"type":"submission.verdict.final","submission_id":"sub-3"}`)),
	}
	for _, message := range bad {
		if err := env.queue.deliver(ctx, env.topic, message); err != nil {
			t.Fatalf("deliver() error = %v, want nil for dropped event", err)
		}
	}

	stats, err := env.svc.ProblemStats(ctx, 42)
	if err != nil {
		t.Fatalf("ProblemStats() error = %v", err)
	}
	if stats.Submissions != 0 {
		t.Errorf("Submissions = %d, want 0 after dropped events", stats.Submissions)
	}
}

func TestStatsServiceSubscribeOptions(t *testing.T) {
	env := newStatsEnv(t)

	opts, ok := env.queue.subOpts[env.topic]
	if !ok {
		t.Fatalf("no subscription recorded on %q", env.topic)
	}
	if opts.ConsumerGroup != "codearena-stats" {
		t.Errorf("ConsumerGroup = %q, want %q", opts.ConsumerGroup, "codearena-stats")
	}
	if opts.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", opts.Concurrency)
	}
}

func TestNewStatsServiceValidation(t *testing.T) {
	queue := &fakeQueue{}
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient() error = %v", err)
	}
	statsRepo, err := repository.NewStatsRepository(redisCache)
	if err != nil {
		t.Fatalf("NewStatsRepository() error = %v", err)
	}

	tests := []struct {
		name string
		cfg  StatsServiceConfig
	}{
		{"missing queue", StatsServiceConfig{Stats: statsRepo, Topic: "t"}},
		{"missing stats", StatsServiceConfig{Queue: queue, Topic: "t"}},
		{"missing topic", StatsServiceConfig{Queue: queue, Stats: statsRepo}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStatsService(tt.cfg); err == nil {
				t.Fatal("NewStatsService() error = nil, want error")
			}
		})
	}
}
