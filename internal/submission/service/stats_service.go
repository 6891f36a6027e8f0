package service

import (
	"context"
	"encoding/json"
	"fmt"

	"codearena/internal/common/mq"
	"codearena/internal/submission/repository"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultStatsConsumerGroup = "codearena-stats"
	defaultStatsConcurrency   = 2
)

// StatsServiceConfig holds configuration for StatsService.
type StatsServiceConfig struct {
	Queue mq.MessageQueue
	Stats *repository.StatsRepository
	Topic string

	// ConsumerGroup defaults to "codearena-stats".
	ConsumerGroup string

	// Concurrency is the number of consumer workers. Default: 2.
	Concurrency int
}

// StatsService maintains the per-problem acceptance read model by
// consuming final verdict events, and serves reads from it.
type StatsService struct {
	queue       mq.MessageQueue
	stats       *repository.StatsRepository
	topic       string
	group       string
	concurrency int
}

// NewStatsService creates a new StatsService.
func NewStatsService(cfg StatsServiceConfig) (*StatsService, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if cfg.Stats == nil {
		return nil, fmt.Errorf("stats repository is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = defaultStatsConsumerGroup
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultStatsConcurrency
	}
	return &StatsService{
		queue:       cfg.Queue,
		stats:       cfg.Stats,
		topic:       cfg.Topic,
		group:       cfg.ConsumerGroup,
		concurrency: cfg.Concurrency,
	}, nil
}

// Subscribe registers the verdict-event consumer on the queue. The
// queue's Start must be called afterwards to begin consuming.
func (s *StatsService) Subscribe(ctx context.Context) error {
	return s.queue.SubscribeWithOptions(ctx, s.topic, s.handleVerdictEvent, &mq.SubscribeOptions{
		ConsumerGroup: s.group,
		Concurrency:   s.concurrency,
	})
}

// ProblemStats returns the acceptance counters for a problem.
func (s *StatsService) ProblemStats(ctx context.Context, problemID int64) (repository.ProblemStats, error) {
	if problemID <= 0 {
		return repository.ProblemStats{}, appErr.New(appErr.InvalidParams)
	}
	stats, err := s.stats.Get(ctx, problemID)
	if err != nil {
		return repository.ProblemStats{}, appErr.Wrapf(err, appErr.CacheError, "get problem stats failed")
	}
	return stats, nil
}

// handleVerdictEvent folds one final verdict event into the counters.
// Malformed events are dropped rather than retried; counter failures
// return an error so the queue redelivers.
func (s *StatsService) handleVerdictEvent(ctx context.Context, message *mq.Message) error {
	var event VerdictEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		logger.Warn(ctx, "dropping malformed verdict event",
			zap.String("message_id", message.ID),
			zap.Error(err))
		return nil
	}
	if event.ProblemID <= 0 {
		logger.Warn(ctx, "dropping verdict event without problem id",
			zap.String("message_id", message.ID),
			zap.String("submission_id", event.SubmissionID))
		return nil
	}
	if err := s.stats.RecordVerdict(ctx, event.ProblemID, event.Language, event.Passed); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "record verdict stats failed")
	}
	return nil
}
