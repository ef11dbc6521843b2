package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/encounters/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes each encounter as JSON, keyed by the user pair.
// Writes are synchronous so emission order and fail-fast are kept.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: w, timeout: 5 * time.Second}
}

type encounterMessage struct {
	RunID string `json:"run_id,omitempty"`
	models.Encounter
}

func (k *KafkaPublisher) Emit(ctx context.Context, e models.Encounter) error {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	b, err := json.Marshal(encounterMessage{RunID: RunIDFromContext(ctx), Encounter: e})
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.PairKey()), Value: b}); err != nil {
		return fmt.Errorf("publish encounter %s: %w", e.PairKey(), err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
