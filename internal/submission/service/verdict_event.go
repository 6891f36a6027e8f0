package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codearena/internal/common/mq"
	appErr "codearena/pkg/errors"
)

// VerdictEventType marks the event kind on the wire.
const VerdictEventFinal = "submission.verdict.final"

// VerdictEvent is published once per submission after its verdict is
// recorded, for downstream stats and notification consumers.
type VerdictEvent struct {
	Type         string    `json:"type"`
	SubmissionID string    `json:"submission_id"`
	UserID       int64     `json:"user_id"`
	ProblemID    int64     `json:"problem_id"`
	Language     string    `json:"language"`
	Passed       bool      `json:"passed"`
	CasesPassed  int       `json:"cases_passed"`
	CasesTotal   int       `json:"cases_total"`
	FailureID    int       `json:"failure_status_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// VerdictEventPublisher publishes final verdict events to a topic.
type VerdictEventPublisher struct {
	queue mq.MessageQueue
	topic string
}

// NewVerdictEventPublisher creates a publisher for the given topic.
func NewVerdictEventPublisher(queue mq.MessageQueue, topic string) (*VerdictEventPublisher, error) {
	if queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	return &VerdictEventPublisher{queue: queue, topic: topic}, nil
}

// PublishFinal publishes the final verdict event for a submission.
func (p *VerdictEventPublisher) PublishFinal(ctx context.Context, event VerdictEvent) error {
	event.Type = VerdictEventFinal
	body, err := json.Marshal(event)
	if err != nil {
		return appErr.Wrapf(err, appErr.MQError, "encode verdict event failed")
	}
	message := mq.NewMessage(body)
	message.ID = event.SubmissionID
	message.SetHeader("event-type", VerdictEventFinal)
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.MQError, "publish verdict event failed")
	}
	return nil
}
