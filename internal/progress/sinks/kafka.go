package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/JakeFAU/frontier-crawler/internal/progress"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every event as a JSON message keyed by URL, so all events
// for one work item land on the same partition.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a sink writing to topic on the given brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("progress.kafka.brokers is required")
	}
	if topic == "" {
		return nil, errors.New("progress.kafka.topic is required")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: false,
		},
	}, nil
}

// NewKafkaSinkWithWriter builds a sink around a custom writer (tests).
func NewKafkaSinkWithWriter(writer messageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

// Name implements progress.NamedSink.
func (s *KafkaSink) Name() string { return "kafka" }

// Consume writes the batch in a single WriteMessages call.
func (s *KafkaSink) Consume(ctx context.Context, batch []progress.Event) error {
	if len(batch) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(batch))
	for _, evt := range batch {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		key := evt.URL
		if key == "" {
			key = string(evt.Stage)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: payload,
			Time:  evt.TS,
			Headers: []kafka.Header{
				{Key: "stage", Value: []byte(evt.Stage)},
			},
		})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write kafka messages: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close(context.Context) error {
	return s.writer.Close()
}
