// Package events publishes committed operation outcomes to the analytics
// topic. Publishing happens strictly after the storage commit; a publish
// failure is logged and never rolls the payment back.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// OutcomeEvent is the record emitted after every committed operation.
type OutcomeEvent struct {
	EventID     string    `json:"event_id"`
	Operation   string    `json:"operation"`
	MerchantID  string    `json:"merchant_id"`
	IntentID    string    `json:"intent_id"`
	AttemptID   string    `json:"attempt_id,omitempty"`
	RefundID    string    `json:"refund_id,omitempty"`
	Connector   string    `json:"connector"`
	Status      string    `json:"status"`
	UnifiedPath bool      `json:"unified_path"`
	ErrorCode   string    `json:"error_code,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher is the outbound feed boundary.
type Publisher interface {
	Publish(ctx context.Context, event OutcomeEvent) error
	Close() error
}

// KafkaPublisher writes outcome events to one Kafka topic, keyed by intent
// so per-payment ordering holds within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event OutcomeEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.IntentID),
		Value: value,
	})
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// NoopPublisher drops events; used by tests and local runs without Kafka.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, OutcomeEvent) error { return nil }
func (NoopPublisher) Close() error                                { return nil }
