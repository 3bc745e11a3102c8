package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/frontier-crawler/internal/progress"
)

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

// PubSubSink publishes each event as a JSON Pub/Sub message with a stage attribute.
type PubSubSink struct {
	topic topicPublisher
}

// NewPubSubSink connects to Pub/Sub and publishes to topicID in projectID.
func NewPubSubSink(ctx context.Context, projectID, topicID string) (*PubSubSink, error) {
	if projectID == "" || topicID == "" {
		return nil, errors.New("progress.pubsub.project_id and progress.pubsub.topic_name are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubSink{topic: &gcpTopic{client: client, topic: client.Topic(topicID)}}, nil
}

// NewPubSubSinkWithPublisher builds a sink around a custom publisher (tests).
func NewPubSubSinkWithPublisher(topic topicPublisher) *PubSubSink {
	return &PubSubSink{topic: topic}
}

// Name implements progress.NamedSink.
func (s *PubSubSink) Name() string { return "pubsub" }

// Consume publishes the batch and waits for every server acknowledgement.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	results := make([]publishResult, 0, len(batch))
	for _, evt := range batch {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		attrs := map[string]string{"stage": string(evt.Stage)}
		if evt.URL != "" {
			attrs["url"] = evt.URL
		}
		results = append(results, s.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}))
	}
	var errs []error
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish %d of %d events: %w", len(errs), len(batch), errors.Join(errs...))
	}
	return nil
}

// Close flushes pending publishes.
func (s *PubSubSink) Close(context.Context) error {
	s.topic.Stop()
	return nil
}

type gcpTopic struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func (t *gcpTopic) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return t.topic.Publish(ctx, msg)
}

func (t *gcpTopic) Stop() {
	t.topic.Stop()
	_ = t.client.Close()
}
