package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"balloon-service/internal/models"
)

// producer is the subset of client.KafkaProducer used here.
type producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
	Close() error
}

// KafkaSink publishes events as JSON keyed by user name, so one user's
// attempts stay ordered within a partition.
type KafkaSink struct {
	producer producer
	topic    string
}

func NewKafkaSink(p producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Emit(ctx context.Context, ev models.AttemptEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	headers := map[string]string{"outcome": ev.Outcome}
	if ev.RequestID != "" {
		headers["request_id"] = ev.RequestID
	}
	if err := s.producer.ProduceMessage(ctx, s.topic, []byte(ev.UserName), payload, headers); err != nil {
		return fmt.Errorf("kafka audit sink: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
