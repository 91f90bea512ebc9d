// Package notify announces materialized splits to the training side.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event describes a split that is ready to be loaded.
type Event struct {
	Key       string    `json:"key"`
	Scheme    string    `json:"scheme"`
	Level     int       `json:"level"`
	RunID     string    `json:"run_id"`
	Dir       string    `json:"dir"`
	MaxLength int       `json:"max_length"`
	Train     int       `json:"train"`
	Valid     int       `json:"valid"`
	Test      int       `json:"test"`
	Cached    bool      `json:"cached"`
	At        time.Time `json:"at"`
}

// Notifier publishes split events.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
func (Nop) Close() error                        { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes JSON-encoded events keyed by split key.
type Kafka struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafka creates a Kafka notifier for topic.
func NewKafka(brokers []string, topic string) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafka(w, topic)
}

func newKafka(w messageWriter, topic string) *Kafka {
	return &Kafka{
		writer: w,
		logger: slog.Default().With("component", "notify", "topic", topic),
	}
}

// Notify writes e synchronously.
func (k *Kafka) Notify(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.Key),
		Value: value,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.logger.Error("failed to publish split event", "key", e.Key, "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	k.logger.Debug("split event published", "key", e.Key, "run_id", e.RunID)
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
