package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	"codearena/internal/judge"
	problemrepo "codearena/internal/problem/repository"
	"codearena/internal/submission/repository"
	pkgerrors "codearena/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
)

type fakeSubmissionRepo struct {
	mu      sync.Mutex
	rows    []repository.Submission
	listErr error
}

func (f *fakeSubmissionRepo) Create(ctx context.Context, tx db.Transaction, submission *repository.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *submission)
	return nil
}

func (f *fakeSubmissionRepo) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*repository.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].SubmissionID == submissionID {
			row := f.rows[i]
			return &row, nil
		}
	}
	return nil, repository.ErrSubmissionNotFound
}

func (f *fakeSubmissionRepo) ListByUserProblem(ctx context.Context, userID, problemID int64, limit int) ([]repository.Submission, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Submission
	for i := range f.rows {
		if f.rows[i].UserID == userID && f.rows[i].ProblemID == problemID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

type fakeProblemRepo struct {
	problems map[int64]*problemrepo.Problem
}

func (f *fakeProblemRepo) Create(ctx context.Context, tx db.Transaction, problem *problemrepo.Problem) (int64, error) {
	return 0, nil
}
func (f *fakeProblemRepo) Update(ctx context.Context, tx db.Transaction, problem *problemrepo.Problem) error {
	return nil
}
func (f *fakeProblemRepo) Delete(ctx context.Context, tx db.Transaction, problemID int64) error {
	return nil
}
func (f *fakeProblemRepo) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*problemrepo.Problem, error) {
	problem, ok := f.problems[problemID]
	if !ok {
		return nil, problemrepo.ErrProblemNotFound
	}
	return problem, nil
}
func (f *fakeProblemRepo) List(ctx context.Context, page, pageSize int) ([]problemrepo.Summary, int64, error) {
	return nil, 0, nil
}
func (f *fakeProblemRepo) InvalidateCache(ctx context.Context, problemID int64) error { return nil }

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.objects[bucket+"/"+objectKey] = data
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) GetObject(ctx context.Context, bucket, objectKey string) (storage.ObjectReader, error) {
	f.mu.Lock()
	data, ok := f.objects[bucket+"/"+objectKey]
	f.mu.Unlock()
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) StatObject(ctx context.Context, bucket, objectKey string) (storage.ObjectStat, error) {
	return storage.ObjectStat{}, nil
}

func (f *fakeStorage) RemoveObjects(ctx context.Context, bucket string, keys []string) error {
	return nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published []*mq.Message
	topics    []string
	handlers  map[string]mq.HandlerFunc
	subOpts   map[string]mq.SubscribeOptions
	started   bool
}

func (f *fakeQueue) Publish(ctx context.Context, topic string, message *mq.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, message)
	f.topics = append(f.topics, topic)
	return nil
}
func (f *fakeQueue) PublishBatch(ctx context.Context, topic string, messages []*mq.Message) error {
	return nil
}
func (f *fakeQueue) Subscribe(ctx context.Context, topic string, handler mq.HandlerFunc) error {
	return f.SubscribeWithOptions(ctx, topic, handler, nil)
}
func (f *fakeQueue) SubscribeWithOptions(ctx context.Context, topic string, handler mq.HandlerFunc, opts *mq.SubscribeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]mq.HandlerFunc)
		f.subOpts = make(map[string]mq.SubscribeOptions)
	}
	f.handlers[topic] = handler
	if opts != nil {
		f.subOpts[topic] = *opts
	}
	return nil
}
func (f *fakeQueue) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}
func (f *fakeQueue) Stop() error                    { return nil }
func (f *fakeQueue) Ping(ctx context.Context) error { return nil }
func (f *fakeQueue) Close() error                   { return nil }

// deliver feeds a message to the handler subscribed on topic.
func (f *fakeQueue) deliver(ctx context.Context, topic string, message *mq.Message) error {
	f.mu.Lock()
	handler := f.handlers[topic]
	f.mu.Unlock()
	if handler == nil {
		return fmt.Errorf("no handler subscribed on %q", topic)
	}
	return handler(ctx, message)
}

type fakeEvaluator struct {
	mu       sync.Mutex
	requests []judge.EvalRequest
	fn       func(req judge.EvalRequest) (judge.Verdict, error)
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, req judge.EvalRequest) (judge.Verdict, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(req)
	}
	results := make([]judge.CaseResult, len(req.Cases))
	for i := range req.Cases {
		results[i] = judge.CaseResult{Index: i, StatusID: judge.StatusAccepted, Passed: true}
	}
	return judge.Aggregate(results), nil
}

type serviceEnv struct {
	svc        *SubmitService
	subRepo    *fakeSubmissionRepo
	statusRepo *repository.StatusRepository
	storage    *fakeStorage
	queue      *fakeQueue
	evaluator  *fakeEvaluator
	cache      cache.Cache
}

func newServiceEnv(t *testing.T, problems map[int64]*problemrepo.Problem, mutate func(*Config)) *serviceEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient: %v", err)
	}
	statusRepo, err := repository.NewStatusRepository(redisCache)
	if err != nil {
		t.Fatalf("NewStatusRepository: %v", err)
	}

	env := &serviceEnv{
		subRepo:    &fakeSubmissionRepo{},
		statusRepo: statusRepo,
		storage:    newFakeStorage(),
		queue:      &fakeQueue{},
		evaluator:  &fakeEvaluator{},
		cache:      redisCache,
	}
	events, err := NewVerdictEventPublisher(env.queue, "submission.verdicts")
	if err != nil {
		t.Fatalf("NewVerdictEventPublisher: %v", err)
	}

	cfg := Config{
		SubmissionRepo: env.subRepo,
		StatusRepo:     statusRepo,
		ProblemRepo:    &fakeProblemRepo{problems: problems},
		Storage:        env.storage,
		Cache:          redisCache,
		Events:         events,
		Evaluator:      env.evaluator,
		SourceBucket:   "submissions",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	env.svc, err = NewSubmitService(cfg)
	if err != nil {
		t.Fatalf("NewSubmitService: %v", err)
	}
	return env
}

func testProblem() *problemrepo.Problem {
	return &problemrepo.Problem{
		ID:    1,
		Title: "Sum",
		TestCases: []problemrepo.TestCase{
			{Input: "1 2", ExpectedOutput: "3", Visible: true},
			{Input: "4 5", ExpectedOutput: "9", Visible: false},
			{Input: "6 7", ExpectedOutput: "13", Visible: false},
		},
	}
}

func validSubmit() SubmitInput {
	return SubmitInput{
		UserID:     9,
		ProblemID:  1,
		Language:   "python",
		SourceCode: "print(sum(map(int, input().split())))",
	}
}

func TestEvaluateAcceptedRecordsEverything(t *testing.T) {
	env := newServiceEnv(t, map[int64]*problemrepo.Problem{1: testProblem()}, nil)
	ctx := context.Background()

	summary, err := env.svc.Evaluate(ctx, validSubmit())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !summary.Passed || summary.CasesPassed != 3 || summary.CasesTotal != 3 {
		t.Errorf("summary = %+v, want 3/3 passed", summary)
	}

	if len(env.evaluator.requests) != 1 {
		t.Fatalf("evaluator called %d times, want 1", len(env.evaluator.requests))
	}
	if got := len(env.evaluator.requests[0].Cases); got != 3 {
		t.Errorf("evaluated %d cases, want all 3 including hidden", got)
	}

	if len(env.subRepo.rows) != 1 {
		t.Fatalf("got %d submission rows, want 1", len(env.subRepo.rows))
	}
	row := env.subRepo.rows[0]
	if row.SubmissionID != summary.SubmissionID {
		t.Errorf("row id %q != summary id %q", row.SubmissionID, summary.SubmissionID)
	}

	// The stored object is zstd-compressed source.
	compressed, ok := env.storage.objects["submissions/"+row.SourceKey]
	if !ok {
		t.Fatalf("source object %q not uploaded", row.SourceKey)
	}
	decoder, _ := zstd.NewReader(nil)
	source, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		t.Fatalf("stored source is not valid zstd: %v", err)
	}
	if string(source) != validSubmit().SourceCode {
		t.Errorf("stored source mismatch")
	}

	solved, err := env.statusRepo.IsSolved(ctx, 9, 1)
	if err != nil || !solved {
		t.Errorf("IsSolved = (%v, %v), want true", solved, err)
	}
	cached, err := env.statusRepo.GetVerdict(ctx, summary.SubmissionID)
	if err != nil || !cached.Passed {
		t.Errorf("GetVerdict = (%+v, %v), want cached passed summary", cached, err)
	}
	if len(env.queue.published) != 1 {
		t.Errorf("published %d events, want 1", len(env.queue.published))
	}
}

func TestEvaluateFailedVerdictIsRecordedNotSolved(t *testing.T) {
	env := newServiceEnv(t, map[int64]*problemrepo.Problem{1: testProblem()}, nil)
	env.evaluator.fn = func(req judge.EvalRequest) (judge.Verdict, error) {
		results := make([]judge.CaseResult, len(req.Cases))
		for i := range req.Cases {
			results[i] = judge.CaseResult{Index: i, StatusID: judge.StatusAccepted, Passed: true}
		}
		results[1] = judge.CaseResult{Index: 1, StatusID: 4, StatusDescription: "Wrong Answer"}
		return judge.Aggregate(results), nil
	}

	summary, err := env.svc.Evaluate(context.Background(), validSubmit())
	if err != nil {
		t.Fatalf("a failed verdict must not be an error, got %v", err)
	}
	if summary.Passed || summary.FirstFailure != 1 || summary.Failure != "Wrong Answer" {
		t.Errorf("summary = %+v, want first failure at case 1", summary)
	}
	if len(env.subRepo.rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(env.subRepo.rows))
	}
	solved, _ := env.statusRepo.IsSolved(context.Background(), 9, 1)
	if solved {
		t.Error("failed submission must not mark the problem solved")
	}
}

func TestEvaluateInfraErrorWritesNothing(t *testing.T) {
	env := newServiceEnv(t, map[int64]*problemrepo.Problem{1: testProblem()}, nil)
	env.evaluator.fn = func(req judge.EvalRequest) (judge.Verdict, error) {
		return judge.Verdict{}, pkgerrors.New(pkgerrors.JudgeTimeout)
	}

	_, err := env.svc.Evaluate(context.Background(), validSubmit())
	if !pkgerrors.Is(err, pkgerrors.JudgeTimeout) {
		t.Fatalf("expected JudgeTimeout, got %v", err)
	}
	if len(env.subRepo.rows) != 0 {
		t.Error("submission row written despite infra error")
	}
	if len(env.storage.objects) != 0 {
		t.Error("source uploaded despite infra error")
	}
	if len(env.queue.published) != 0 {
		t.Error("event published despite infra error")
	}
}

func TestEvaluateValidation(t *testing.T) {
	problem := testProblem()
	empty := &problemrepo.Problem{ID: 2, Title: "Broken"}
	env := newServiceEnv(t, map[int64]*problemrepo.Problem{1: problem, 2: empty}, nil)

	tests := []struct {
		name     string
		mutate   func(*SubmitInput)
		wantCode pkgerrors.ErrorCode
	}{
		{
			name:     "unknown problem",
			mutate:   func(in *SubmitInput) { in.ProblemID = 404 },
			wantCode: pkgerrors.ProblemNotFound,
		},
		{
			name:     "problem without test cases",
			mutate:   func(in *SubmitInput) { in.ProblemID = 2 },
			wantCode: pkgerrors.TestCaseMissing,
		},
		{
			name:     "unsupported language",
			mutate:   func(in *SubmitInput) { in.Language = "brainfuck" },
			wantCode: pkgerrors.LanguageNotSupported,
		},
		{
			name:     "empty source",
			mutate:   func(in *SubmitInput) { in.SourceCode = "   " },
			wantCode: pkgerrors.ValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validSubmit()
			tt.mutate(&input)
			_, err := env.svc.Evaluate(context.Background(), input)
			if !pkgerrors.Is(err, tt.wantCode) {
				t.Fatalf("expected code %d, got %v", tt.wantCode, err)
			}
		})
	}
	if len(env.subRepo.rows) != 0 {
		t.Error("rows written despite invalid inputs")
	}
}

func TestEvaluateCodeTooLarge(t *testing.T) {
	env := newServiceEnv(t, map[int64]*problemrepo.Problem{1: testProblem()}, func(cfg *Config) {
		cfg.MaxCodeBytes = 16
	})
	input := validSubmit()
	_, err := env.svc.Evaluate(context.Background(), input)
	if !pkgerrors.Is(err, pkgerrors.CodeTooLarge) {
		t.Fatalf("expected CodeTooLarge, got %v", err)
	}
}

func TestEvaluateRateLimit(t *testing.T) {
	env := newServiceEnv(t, map[int64]*problemrepo.Problem{1: testProblem()}, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{UserMax: 1, Window: time.Minute}
	})
	ctx := context.Background()

	if _, err := env.svc.Evaluate(ctx, validSubmit()); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := env.svc.Evaluate(ctx, validSubmit())
	if !pkgerrors.Is(err, pkgerrors.SubmitTooFrequently) {
		t.Fatalf("expected SubmitTooFrequently, got %v", err)
	}
}

func TestGetSourceRoundTrip(t *testing.T) {
	env := newServiceEnv(t, map[int64]*problemrepo.Problem{1: testProblem()}, nil)
	ctx := context.Background()

	summary, err := env.svc.Evaluate(ctx, validSubmit())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	source, err := env.svc.GetSource(ctx, 9, summary.SubmissionID)
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if source != validSubmit().SourceCode {
		t.Errorf("source mismatch after storage round trip")
	}

	if _, err := env.svc.GetSource(ctx, 10, summary.SubmissionID); !pkgerrors.Is(err, pkgerrors.Forbidden) {
		t.Errorf("foreign submission source must be Forbidden, got %v", err)
	}
	if _, err := env.svc.GetSource(ctx, 9, "missing"); !pkgerrors.Is(err, pkgerrors.SubmissionNotFound) {
		t.Errorf("expected SubmissionNotFound, got %v", err)
	}
}

func TestHistoryReturnsSummariesOnly(t *testing.T) {
	env := newServiceEnv(t, map[int64]*problemrepo.Problem{1: testProblem()}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.svc.Evaluate(ctx, validSubmit()); err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
	}

	summaries, err := env.svc.History(ctx, 9, 1, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	for _, summary := range summaries {
		if summary.SubmissionID == "" || summary.CasesTotal != 3 {
			t.Errorf("summary = %+v, want populated verdict fields", summary)
		}
	}
}

func TestGetVerdictFallsBackToDatabase(t *testing.T) {
	env := newServiceEnv(t, map[int64]*problemrepo.Problem{1: testProblem()}, nil)
	ctx := context.Background()

	summary, err := env.svc.Evaluate(ctx, validSubmit())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Drop the cache entry; the submission table remains authoritative.
	if err := env.cache.Del(ctx, "submission:verdict:"+summary.SubmissionID); err != nil {
		t.Fatalf("Del: %v", err)
	}
	got, err := env.svc.GetVerdict(ctx, summary.SubmissionID)
	if err != nil {
		t.Fatalf("GetVerdict: %v", err)
	}
	if got.SubmissionID != summary.SubmissionID || !got.Passed {
		t.Errorf("GetVerdict = %+v, want db-backed summary", got)
	}
}
