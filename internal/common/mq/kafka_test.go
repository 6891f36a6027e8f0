package mq

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func newTestQueue(t *testing.T) *KafkaQueue {
	t.Helper()
	queue, err := NewKafkaQueue(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}})
	if err != nil {
		t.Fatalf("NewKafkaQueue() error = %v", err)
	}
	return queue
}

func TestNewKafkaQueueRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaQueue(KafkaConfig{}); err == nil {
		t.Fatal("NewKafkaQueue() error = nil, want error")
	}
}

func TestSubscribeValidation(t *testing.T) {
	queue := newTestQueue(t)
	handler := func(ctx context.Context, message *Message) error { return nil }

	if err := queue.Subscribe(context.Background(), "", handler); err == nil {
		t.Error("Subscribe() with empty topic: error = nil, want error")
	}
	if err := queue.Subscribe(context.Background(), "events", nil); err == nil {
		t.Error("Subscribe() with nil handler: error = nil, want error")
	}
}

func TestSubscribeRegistersBeforeStart(t *testing.T) {
	queue := newTestQueue(t)
	handler := func(ctx context.Context, message *Message) error { return nil }

	if err := queue.Subscribe(context.Background(), "events", handler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if len(queue.subscriptions) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(queue.subscriptions))
	}

	// Consuming has not started, so no reader may exist yet.
	sub := queue.subscriptions[0]
	if sub.reader != nil {
		t.Error("reader created before Start()")
	}
	if sub.opts.ConsumerGroup != "codearena-events" {
		t.Errorf("ConsumerGroup = %q, want %q", sub.opts.ConsumerGroup, "codearena-events")
	}
	if sub.opts.Concurrency != 1 || sub.opts.MaxRetries != 3 || sub.opts.RetryDelay != time.Second {
		t.Errorf("defaults not applied: %+v", sub.opts)
	}
}

func TestSubscribeWithOptionsKeepsGroup(t *testing.T) {
	queue := newTestQueue(t)
	handler := func(ctx context.Context, message *Message) error { return nil }

	err := queue.SubscribeWithOptions(context.Background(), "events", handler, &SubscribeOptions{
		ConsumerGroup: "stats",
		Concurrency:   4,
	})
	if err != nil {
		t.Fatalf("SubscribeWithOptions() error = %v", err)
	}
	sub := queue.subscriptions[0]
	if sub.opts.ConsumerGroup != "stats" {
		t.Errorf("ConsumerGroup = %q, want %q", sub.opts.ConsumerGroup, "stats")
	}
	if sub.opts.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", sub.opts.Concurrency)
	}
}

func TestSubscribeAfterCloseFails(t *testing.T) {
	queue := newTestQueue(t)
	if err := queue.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	handler := func(ctx context.Context, message *Message) error { return nil }
	if err := queue.Subscribe(context.Background(), "events", handler); err == nil {
		t.Fatal("Subscribe() after Close: error = nil, want error")
	}
}

func TestMessageConversionRoundTrip(t *testing.T) {
	message := NewMessage([]byte(`{"passed":true}`))
	message.ID = "sub-1"
	message.SetHeader("event-type", "submission.verdict.final")
	message.RetryCount = 1
	message.MaxRetries = 5

	kmsg := toKafkaMessage("events", message)
	if kmsg.Topic != "events" {
		t.Errorf("Topic = %q, want %q", kmsg.Topic, "events")
	}
	if string(kmsg.Key) != "sub-1" {
		t.Errorf("Key = %q, want %q", kmsg.Key, "sub-1")
	}

	restored := fromKafkaMessage(kmsg)
	if restored.ID != "sub-1" {
		t.Errorf("ID = %q, want %q", restored.ID, "sub-1")
	}
	if string(restored.Body) != `{"passed":true}` {
		t.Errorf("Body = %q", restored.Body)
	}
	if value, ok := restored.GetHeader("event-type"); !ok || value != "submission.verdict.final" {
		t.Errorf("event-type header = %q, %v", value, ok)
	}
	if restored.RetryCount != 1 || restored.MaxRetries != 5 {
		t.Errorf("retry fields = %d/%d, want 1/5", restored.RetryCount, restored.MaxRetries)
	}
	if restored.Timestamp.IsZero() {
		t.Error("Timestamp was not carried")
	}
}

func TestFromKafkaMessageFallsBackToKey(t *testing.T) {
	restored := fromKafkaMessage(kafka.Message{
		Key:   []byte("sub-9"),
		Value: []byte("body"),
	})
	if restored.ID != "sub-9" {
		t.Errorf("ID = %q, want %q", restored.ID, "sub-9")
	}
}
