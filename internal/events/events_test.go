package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	event := New(ExpenseCreated, "g1", "e1", "alice")
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "g1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, ExpenseCreated, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event, decoded)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := &KafkaPublisher{writer: w}

	err := p.Publish(context.Background(), New(SettlementCreated, "g1", "s1", "bob"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), SettlementCreated)
}

func TestLogPublisher(t *testing.T) {
	var p Publisher = LogPublisher{}
	assert.NoError(t, p.Publish(context.Background(), New(GroupCreated, "g1", "", "alice")))
	assert.NoError(t, p.Close())
}

func TestNewKafkaPublisher_FlushesEachMessage(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "ledger-events")

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok, "expected a *kafka.Writer, got %T", p.writer)

	assert.Equal(t, "ledger-events", w.Topic)
	assert.Equal(t, 1, w.BatchSize)
	assert.Greater(t, w.BatchTimeout, time.Duration(0))
	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)
	assert.Greater(t, w.WriteTimeout, time.Duration(0))
	assert.False(t, w.Async)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
}
