package judge

import (
	"context"
	"time"

	apperrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the fixed wait between poll rounds.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultPollDeadline bounds the total time waiting for a batch.
	DefaultPollDeadline = 20 * time.Second

	// maxConsecutiveFetchFailures bounds tolerated transient fetch errors
	// before the poller gives up on the judge.
	maxConsecutiveFetchFailures = 3
)

// PollerConfig holds the settings for the verdict poller.
type PollerConfig struct {
	Judge    Judge
	Interval time.Duration
	Deadline time.Duration
}

// Poller drives fixed-interval polling of submitted tokens until every
// case settles or the deadline expires.
type Poller struct {
	judge    Judge
	interval time.Duration
	deadline time.Duration
}

// NewPoller creates a poller, validating required dependencies.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Judge == nil {
		return nil, apperrors.New(apperrors.InternalServerError).WithMessage("judge is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultPollDeadline
	}
	return &Poller{judge: cfg.Judge, interval: cfg.Interval, deadline: cfg.Deadline}, nil
}

// Poll fetches statuses for the given tokens until all are settled.
// Only still-pending tokens are re-fetched each round, results are merged
// by token so out-of-order judge responses are fine, and re-polling an
// already settled token never changes its recorded result.
//
// Results are returned in token order. A case that fails is data, not an
// error; Poll errors only for infrastructure reasons: JudgeUnavailable
// when the judge stops answering, JudgeTimeout when the deadline expires
// with unsettled tokens, or the context error on cancellation.
func (p *Poller) Poll(ctx context.Context, tokens []string) ([]CaseStatus, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	settled := make(map[string]CaseStatus, len(tokens))
	pending := make([]string, len(tokens))
	copy(pending, tokens)

	deadline := time.NewTimer(p.deadline)
	defer deadline.Stop()

	fetchFailures := 0
	for {
		statuses, err := p.judge.FetchBatch(ctx, pending)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			fetchFailures++
			logger.Warn(ctx, "judge fetch failed",
				zap.Int("consecutive_failures", fetchFailures),
				zap.Error(err),
			)
			if fetchFailures >= maxConsecutiveFetchFailures {
				return nil, apperrors.Wrap(err, apperrors.JudgeUnavailable)
			}
		} else {
			fetchFailures = 0
			for _, status := range statuses {
				if status.Settled() {
					if _, seen := settled[status.Token]; !seen {
						settled[status.Token] = status
					}
				}
			}
			pending = pending[:0]
			for _, token := range tokens {
				if _, ok := settled[token]; !ok {
					pending = append(pending, token)
				}
			}
			if len(pending) == 0 {
				ordered := make([]CaseStatus, len(tokens))
				for i, token := range tokens {
					ordered[i] = settled[token]
				}
				return ordered, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, apperrors.Newf(apperrors.JudgeTimeout, "%d of %d cases unsettled after %s", len(pending), len(tokens), p.deadline).
				WithDetail("pending_tokens", append([]string(nil), pending...))
		case <-time.After(p.interval):
		}
	}
}
