package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/storage"
	"codearena/internal/judge"
	problemrepo "codearena/internal/problem/repository"
	"codearena/internal/submission/repository"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	rateUserKeyPrefix   = "submit:rate:user:"
	defaultSourcePrefix = "submissions"
	defaultMaxCodeBytes = 256 * 1024
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Evaluator runs source code against a set of test cases and returns a
// verdict. Implemented by judge.Runner.
type Evaluator interface {
	Evaluate(ctx context.Context, req judge.EvalRequest) (judge.Verdict, error)
}

// RateLimitConfig holds per-user throttling configuration.
type RateLimitConfig struct {
	UserMax int
	Window  time.Duration
}

// Config holds submit service dependencies and settings.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	StatusRepo     *repository.StatusRepository
	ProblemRepo    problemrepo.ProblemRepository
	Storage        storage.ObjectStorage
	Cache          cache.Cache
	Events         *VerdictEventPublisher
	Evaluator      Evaluator

	SourceBucket    string
	SourceKeyPrefix string
	MaxCodeBytes    int
	RateLimit       RateLimitConfig
}

// SubmitService accepts user submissions, evaluates them against all of
// a problem's test cases and records the immutable result.
type SubmitService struct {
	submissionRepo repository.SubmissionRepository
	statusRepo     *repository.StatusRepository
	problemRepo    problemrepo.ProblemRepository
	storage        storage.ObjectStorage
	cache          cache.Cache
	events         *VerdictEventPublisher
	evaluator      Evaluator

	sourceBucket    string
	sourceKeyPrefix string
	maxCodeBytes    int
	rateLimit       RateLimitConfig
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	UserID     int64
	ProblemID  int64
	Language   string
	SourceCode string
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.StatusRepo == nil {
		return nil, fmt.Errorf("status repository is required")
	}
	if cfg.ProblemRepo == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.SourceBucket == "" {
		return nil, fmt.Errorf("source bucket is required")
	}
	if cfg.SourceKeyPrefix == "" {
		cfg.SourceKeyPrefix = defaultSourcePrefix
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	return &SubmitService{
		submissionRepo:  cfg.SubmissionRepo,
		statusRepo:      cfg.StatusRepo,
		problemRepo:     cfg.ProblemRepo,
		storage:         cfg.Storage,
		cache:           cfg.Cache,
		events:          cfg.Events,
		evaluator:       cfg.Evaluator,
		sourceBucket:    cfg.SourceBucket,
		sourceKeyPrefix: cfg.SourceKeyPrefix,
		maxCodeBytes:    cfg.MaxCodeBytes,
		rateLimit:       cfg.RateLimit,
	}, nil
}

// Evaluate runs one submission through the judge pipeline against every
// test case of the problem and records the outcome exactly once.
//
// Infrastructure failures (judge unavailable, rejected, timeout,
// cancelled request) abort before anything is written. A failed verdict
// is a normal outcome and is recorded like an accepted one.
func (s *SubmitService) Evaluate(ctx context.Context, input SubmitInput) (repository.VerdictSummary, error) {
	if err := s.validateInput(&input); err != nil {
		return repository.VerdictSummary{}, err
	}
	if err := s.checkRateLimit(ctx, input.UserID); err != nil {
		return repository.VerdictSummary{}, err
	}

	problem, err := s.problemRepo.GetByID(ctx, nil, input.ProblemID)
	if err != nil {
		if errors.Is(err, problemrepo.ErrProblemNotFound) {
			return repository.VerdictSummary{}, appErr.New(appErr.ProblemNotFound)
		}
		return repository.VerdictSummary{}, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}
	if len(problem.TestCases) == 0 {
		return repository.VerdictSummary{}, appErr.New(appErr.TestCaseMissing).
			WithDetail("problem_id", input.ProblemID)
	}

	cases := make([]judge.TestCase, len(problem.TestCases))
	for i, tc := range problem.TestCases {
		cases[i] = judge.TestCase{Input: tc.Input, ExpectedOutput: tc.ExpectedOutput}
	}

	verdict, err := s.evaluator.Evaluate(ctx, judge.EvalRequest{
		Language:   input.Language,
		SourceCode: input.SourceCode,
		Cases:      cases,
	})
	if err != nil {
		return repository.VerdictSummary{}, err
	}

	submissionID := uuid.NewString()
	sourceKey := s.buildSourceKey(submissionID)
	if err := s.uploadSource(ctx, sourceKey, input.SourceCode); err != nil {
		return repository.VerdictSummary{}, err
	}

	submission := &repository.Submission{
		SubmissionID: submissionID,
		UserID:       input.UserID,
		ProblemID:    input.ProblemID,
		Language:     input.Language,
		SourceKey:    sourceKey,
		SourceHash:   hashSource(input.SourceCode),
		Passed:       verdict.Passed,
		CasesPassed:  verdict.CasesPassed,
		CasesTotal:   verdict.CasesTotal,
		FirstFailure: verdict.FirstFailure,
		FailureID:    verdict.FailureStatusID,
		Failure:      verdict.FailureStatus,
		MaxTimeSec:   verdict.MaxTimeSec,
		MaxMemoryKB:  verdict.MaxMemoryKB,
		CreatedAt:    time.Now(),
	}
	if err := s.submissionRepo.Create(ctx, nil, submission); err != nil {
		return repository.VerdictSummary{}, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}

	summary := summarize(submission)
	if err := s.statusRepo.SaveVerdict(ctx, summary); err != nil {
		logger.Warn(ctx, "cache verdict failed", zap.String("submission_id", submissionID), zap.Error(err))
	}
	if verdict.Passed {
		if err := s.statusRepo.MarkSolved(ctx, input.UserID, input.ProblemID); err != nil {
			logger.Warn(ctx, "mark solved failed", zap.Int64("user_id", input.UserID), zap.Error(err))
		}
	}
	s.publishFinalEvent(ctx, submission)

	return summary, nil
}

// GetVerdict returns the verdict summary for one submission, preferring
// the redis cache over the submission table.
func (s *SubmitService) GetVerdict(ctx context.Context, submissionID string) (repository.VerdictSummary, error) {
	if submissionID == "" {
		return repository.VerdictSummary{}, appErr.ValidationError("submission_id", "required")
	}
	summary, err := s.statusRepo.GetVerdict(ctx, submissionID)
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, repository.ErrVerdictNotCached) {
		logger.Warn(ctx, "read verdict cache failed", zap.String("submission_id", submissionID), zap.Error(err))
	}

	submission, err := s.submissionRepo.GetByID(ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return repository.VerdictSummary{}, appErr.New(appErr.SubmissionNotFound)
		}
		return repository.VerdictSummary{}, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return summarize(submission), nil
}

// History lists a user's prior submissions for one problem, newest
// first, without test case content.
func (s *SubmitService) History(ctx context.Context, userID, problemID int64, limit int) ([]repository.VerdictSummary, error) {
	if userID <= 0 {
		return nil, appErr.ValidationError("user_id", "required")
	}
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	submissions, err := s.submissionRepo.ListByUserProblem(ctx, userID, problemID, limit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	summaries := make([]repository.VerdictSummary, len(submissions))
	for i := range submissions {
		summaries[i] = summarize(&submissions[i])
	}
	return summaries, nil
}

// GetSource returns the stored source code of the caller's own
// submission.
func (s *SubmitService) GetSource(ctx context.Context, userID int64, submissionID string) (string, error) {
	if submissionID == "" {
		return "", appErr.ValidationError("submission_id", "required")
	}
	submission, err := s.submissionRepo.GetByID(ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return "", appErr.New(appErr.SubmissionNotFound)
		}
		return "", appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	if submission.UserID != userID {
		return "", appErr.New(appErr.Forbidden)
	}

	reader, err := s.storage.GetObject(ctx, s.sourceBucket, submission.SourceKey)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "read source failed")
	}
	defer reader.Close()
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "read source failed")
	}
	source, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "decompress source failed")
	}
	return string(source), nil
}

func (s *SubmitService) validateInput(input *SubmitInput) error {
	if input.UserID <= 0 {
		return appErr.ValidationError("user_id", "required")
	}
	if input.ProblemID <= 0 {
		return appErr.ValidationError("problem_id", "required")
	}
	input.Language = strings.ToLower(strings.TrimSpace(input.Language))
	if input.Language == "" {
		return appErr.ValidationError("language", "required")
	}
	if _, err := judge.ResolveLanguage(input.Language); err != nil {
		return err
	}
	if strings.TrimSpace(input.SourceCode) == "" {
		return appErr.ValidationError("source_code", "required")
	}
	if len(input.SourceCode) > s.maxCodeBytes {
		return appErr.New(appErr.CodeTooLarge).WithDetail("max_bytes", s.maxCodeBytes)
	}
	return nil
}

func (s *SubmitService) checkRateLimit(ctx context.Context, userID int64) error {
	if s.rateLimit.UserMax <= 0 || s.rateLimit.Window <= 0 {
		return nil
	}
	key := rateUserKeyPrefix + fmt.Sprintf("%d", userID)
	count, err := s.cache.Incr(ctx, key)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	if count == 1 {
		_ = s.cache.Expire(ctx, key, s.rateLimit.Window)
	}
	if int(count) > s.rateLimit.UserMax {
		return appErr.New(appErr.SubmitTooFrequently)
	}
	return nil
}

func (s *SubmitService) uploadSource(ctx context.Context, objectKey, source string) error {
	compressed := zstdEncoder.EncodeAll([]byte(source), nil)
	reader := bytes.NewReader(compressed)
	if err := s.storage.PutObject(ctx, s.sourceBucket, objectKey, reader, int64(len(compressed)), "application/zstd"); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "upload source failed")
	}
	return nil
}

func (s *SubmitService) publishFinalEvent(ctx context.Context, submission *repository.Submission) {
	if s.events == nil {
		return
	}
	err := s.events.PublishFinal(ctx, VerdictEvent{
		SubmissionID: submission.SubmissionID,
		UserID:       submission.UserID,
		ProblemID:    submission.ProblemID,
		Language:     submission.Language,
		Passed:       submission.Passed,
		CasesPassed:  submission.CasesPassed,
		CasesTotal:   submission.CasesTotal,
		FailureID:    submission.FailureID,
		CreatedAt:    submission.CreatedAt,
	})
	if err != nil {
		logger.Warn(ctx, "publish verdict event failed", zap.String("submission_id", submission.SubmissionID), zap.Error(err))
	}
}

func (s *SubmitService) buildSourceKey(submissionID string) string {
	return fmt.Sprintf("%s/%s/source.zst", s.sourceKeyPrefix, submissionID)
}

func summarize(submission *repository.Submission) repository.VerdictSummary {
	return repository.VerdictSummary{
		SubmissionID: submission.SubmissionID,
		ProblemID:    submission.ProblemID,
		Language:     submission.Language,
		Passed:       submission.Passed,
		CasesPassed:  submission.CasesPassed,
		CasesTotal:   submission.CasesTotal,
		FirstFailure: submission.FirstFailure,
		FailureID:    submission.FailureID,
		Failure:      submission.Failure,
		MaxTimeSec:   submission.MaxTimeSec,
		MaxMemoryKB:  submission.MaxMemoryKB,
		CreatedAt:    submission.CreatedAt,
	}
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
