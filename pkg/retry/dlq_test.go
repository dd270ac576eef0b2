package retry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureProducer struct {
	topic   string
	key     string
	value   any
	headers map[string]string
	err     error
}

func (p *captureProducer) ProduceJSON(ctx context.Context, topic, key string, v any, headers map[string]string) error {
	p.topic, p.key, p.value, p.headers = topic, key, v, headers
	return p.err
}

type recordingDLQ struct {
	letters []*DeadLetter
	err     error
}

func (q *recordingDLQ) Send(ctx context.Context, letter *DeadLetter) error {
	q.letters = append(q.letters, letter)
	return q.err
}

func newTestHandler(dlq DeadLetterQueue) *DLQHandler {
	h := NewDLQHandler(&Config{MaxRetries: 2}, dlq, "reservation-service")
	h.retrier.wait = func(ctx context.Context, d time.Duration) error { return nil }
	return h
}

func TestKafkaDeadLetterQueue_Send(t *testing.T) {
	producer := &captureProducer{}
	q := NewKafkaDeadLetterQueue(producer)

	letter := &DeadLetter{
		Topic:    "reservation-events",
		Key:      "show-1",
		Payload:  json.RawMessage(`{"event_type":"hold.created"}`),
		Headers:  map[string]string{"event_type": "hold.created"},
		Error:    "broker unavailable",
		Attempts: 3,
		Source:   "reservation-service",
	}
	require.NoError(t, q.Send(context.Background(), letter))

	assert.Equal(t, "reservation-events.dlq", producer.topic)
	assert.Equal(t, "show-1", producer.key)
	assert.Same(t, letter, producer.value)
	assert.Equal(t, "3", producer.headers["attempts"])
	assert.Equal(t, "hold.created", producer.headers["original_event_type"])

	assert.Error(t, q.Send(context.Background(), nil))
}

func TestDLQHandler_Deliver(t *testing.T) {
	t.Run("success is not dead lettered", func(t *testing.T) {
		dlq := &recordingDLQ{}
		err := newTestHandler(dlq).Deliver(context.Background(), "topic", "key", []byte(`{}`), nil,
			func(ctx context.Context) error { return nil })

		assert.NoError(t, err)
		assert.Empty(t, dlq.letters)
	})

	t.Run("exhausted delivery goes to dlq", func(t *testing.T) {
		dlq := &recordingDLQ{}
		boom := errors.New("broker unavailable")

		err := newTestHandler(dlq).Deliver(context.Background(), "reservation-events", "show-1", []byte(`{"a":1}`),
			map[string]string{"event_type": "hold.created"},
			func(ctx context.Context) error { return boom })

		assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
		require.Len(t, dlq.letters, 1)
		letter := dlq.letters[0]
		assert.Equal(t, "reservation-events", letter.Topic)
		assert.Equal(t, "show-1", letter.Key)
		assert.Equal(t, 3, letter.Attempts)
		assert.Equal(t, "broker unavailable", letter.Error)
		assert.Equal(t, "reservation-service", letter.Source)
		assert.NotEmpty(t, letter.ID)
		assert.JSONEq(t, `{"a":1}`, string(letter.Payload))
	})

	t.Run("dlq failure is reported", func(t *testing.T) {
		dlq := &recordingDLQ{err: errors.New("dlq down")}
		err := newTestHandler(dlq).Deliver(context.Background(), "topic", "key", nil, nil,
			func(ctx context.Context) error { return errors.New("fail") })

		assert.ErrorContains(t, err, "failed to send to DLQ")
	})

	t.Run("permanent error is dead lettered at once", func(t *testing.T) {
		dlq := &recordingDLQ{}
		calls := 0
		_ = newTestHandler(dlq).Deliver(context.Background(), "topic", "key", nil, nil,
			func(ctx context.Context) error {
				calls++
				return Permanent(errors.New("record too large"))
			})

		assert.Equal(t, 1, calls)
		require.Len(t, dlq.letters, 1)
		assert.Equal(t, "record too large", dlq.letters[0].Error)
	})
}
