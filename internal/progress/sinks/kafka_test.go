package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/frontier-crawler/internal/progress"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkWritesKeyedMessages(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(writer)

	discovered := event(progress.StageDiscovered, "https://example.com/a")
	discovered.ParentURL = "https://example.com"
	discovered.Depth = 1
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		discovered,
		event(progress.StageRunStop, ""),
	}))

	require.Len(t, writer.msgs, 2)
	assert.Equal(t, "https://example.com/a", string(writer.msgs[0].Key))
	assert.Equal(t, "RUN_STOP", string(writer.msgs[1].Key))
	assert.Equal(t, "DISCOVERED", string(writer.msgs[0].Headers[0].Value))

	var got progress.Event
	require.NoError(t, json.Unmarshal(writer.msgs[0].Value, &got))
	assert.Equal(t, discovered.ID, got.ID)
	assert.Equal(t, "https://example.com", got.ParentURL)
	assert.Equal(t, 1, got.Depth)

	require.NoError(t, sink.Close(context.Background()))
	assert.True(t, writer.closed)
}

func TestKafkaSinkPropagatesWriteError(t *testing.T) {
	t.Parallel()

	sink := NewKafkaSinkWithWriter(&fakeWriter{err: errors.New("leader not available")})
	err := sink.Consume(context.Background(), []progress.Event{event(progress.StageSeed, "https://example.com")})
	require.ErrorContains(t, err, "leader not available")
}

func TestNewKafkaSinkValidates(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaSink(nil, "topic")
	require.Error(t, err)
	_, err = NewKafkaSink([]string{"localhost:9092"}, "")
	require.Error(t, err)

	sink, err := NewKafkaSink([]string{"localhost:9092"}, "crawler.progress")
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))
}
