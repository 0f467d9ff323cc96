package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/frahmantamala/pagepay/internal"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards bus events to a Kafka topic, keyed by PartitionKey so
// events of one order land on one partition.
type KafkaSink struct {
	writer       MessageWriter
	logger       *slog.Logger
	writeTimeout time.Duration
}

func NewKafkaWriter(cfg internal.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  5,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  5 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewKafkaSink(writer MessageWriter, logger *slog.Logger) *KafkaSink {
	return &KafkaSink{
		writer:       writer,
		logger:       logger,
		writeTimeout: 10 * time.Second,
	}
}

type envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

func (s *KafkaSink) Handle(ctx context.Context, event Event) error {
	value, err := json.Marshal(envelope{
		ID:         event.EventID(),
		Type:       event.EventType(),
		OccurredAt: event.OccurredAt(),
		Payload:    event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.EventID(), err)
	}

	key := event.EventID()
	if k, ok := event.(Keyed); ok && k.PartitionKey() != "" {
		key = k.PartitionKey()
	}

	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	err = s.writer.WriteMessages(wctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType())},
		},
	})
	if err != nil {
		return fmt.Errorf("write event %s to kafka: %w", event.EventID(), err)
	}

	s.logger.Debug("event forwarded to kafka", "event_id", event.EventID(), "event_type", event.EventType(), "key", key)
	return nil
}

// Attach subscribes the sink to the given event types.
func (s *KafkaSink) Attach(bus *EventBus, eventTypes ...string) {
	bus.SubscribeMany(s.Handle, eventTypes...)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
