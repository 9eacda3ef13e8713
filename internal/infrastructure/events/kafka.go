package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"

	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
	"ContentFactory/internal/ports"
)

// EventWorkflowResult is the type of every message written to the results topic.
const EventWorkflowResult = "workflow.result"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ResultEvent is the message envelope.
type ResultEvent struct {
	Type       string                `json:"type"`
	OccurredAt time.Time             `json:"occurred_at"`
	Result     domain.WorkflowResult `json:"result"`
}

// KafkaPublisher emits finalized workflow results to a Kafka topic, keyed by product.
type KafkaPublisher struct {
	writer      messageWriter
	maxAttempts uint
	backoff     time.Duration
}

var _ ports.ResultRecorder = (*KafkaPublisher)(nil)

// NewKafkaPublisher builds a synchronous writer for the configured topic.
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(w), nil
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, maxAttempts: 3, backoff: 100 * time.Millisecond}
}

// Record writes one message per result. Messages for the same product share a partition.
func (p *KafkaPublisher) Record(ctx context.Context, result domain.WorkflowResult) error {
	value, err := json.Marshal(ResultEvent{
		Type:       EventWorkflowResult,
		OccurredAt: result.FinishedAt,
		Result:     result,
	})
	if err != nil {
		return fmt.Errorf("marshal result event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(result.Product.ExternalID),
		Value: value,
		Time:  result.FinishedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventWorkflowResult)},
			{Key: "overall-status", Value: []byte(result.Status)},
		},
	}

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = p.backoff
	schedule.MaxInterval = 2 * time.Second

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	}, backoff.WithBackOff(schedule), backoff.WithMaxTries(p.maxAttempts))
	if err != nil {
		return fmt.Errorf("produce result %s: %w", result.ID, err)
	}
	return nil
}

// Close shuts down the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
