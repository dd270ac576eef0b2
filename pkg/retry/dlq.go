package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"go.uber.org/zap"
)

// DefaultDLQSuffix is appended to a topic name to form its dead letter topic
const DefaultDLQSuffix = ".dlq"

// DeadLetter is a message that exhausted its retries
type DeadLetter struct {
	ID             string            `json:"id"`
	Topic          string            `json:"topic"`
	Key            string            `json:"key"`
	Payload        json.RawMessage   `json:"payload"`
	Headers        map[string]string `json:"headers,omitempty"`
	Error          string            `json:"error"`
	Attempts       int               `json:"attempts"`
	FirstAttemptAt time.Time         `json:"first_attempt_at"`
	FailedAt       time.Time         `json:"failed_at"`
	Source         string            `json:"source"`
}

// DeadLetterQueue stores dead letters
type DeadLetterQueue interface {
	Send(ctx context.Context, letter *DeadLetter) error
}

// JSONProducer is the subset of a Kafka producer the DLQ needs
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, v any, headers map[string]string) error
}

// KafkaDeadLetterQueue writes dead letters to "<topic>.dlq"
type KafkaDeadLetterQueue struct {
	producer JSONProducer
	suffix   string
}

// NewKafkaDeadLetterQueue creates a Kafka backed dead letter queue
func NewKafkaDeadLetterQueue(producer JSONProducer) *KafkaDeadLetterQueue {
	return &KafkaDeadLetterQueue{producer: producer, suffix: DefaultDLQSuffix}
}

// Topic returns the dead letter topic of topic
func (q *KafkaDeadLetterQueue) Topic(topic string) string {
	return topic + q.suffix
}

// Send publishes the dead letter with its failure summary in the headers
func (q *KafkaDeadLetterQueue) Send(ctx context.Context, letter *DeadLetter) error {
	if letter == nil {
		return errors.New("dead letter cannot be nil")
	}

	headers := map[string]string{
		"content_type":   "application/json",
		"original_topic": letter.Topic,
		"error":          letter.Error,
		"attempts":       fmt.Sprintf("%d", letter.Attempts),
		"source":         letter.Source,
	}
	for k, v := range letter.Headers {
		headers["original_"+k] = v
	}

	return q.producer.ProduceJSON(ctx, q.Topic(letter.Topic), letter.Key, letter, headers)
}

// NoOpDeadLetterQueue drops dead letters
type NoOpDeadLetterQueue struct{}

func (NoOpDeadLetterQueue) Send(ctx context.Context, letter *DeadLetter) error {
	return nil
}

// DLQHandler retries deliveries and diverts exhausted ones to a dead letter queue
type DLQHandler struct {
	retrier *Retrier
	dlq     DeadLetterQueue
	source  string
	log     *logger.Logger
}

// NewDLQHandler creates a new DLQ handler
func NewDLQHandler(config *Config, dlq DeadLetterQueue, source string) *DLQHandler {
	if dlq == nil {
		dlq = NoOpDeadLetterQueue{}
	}
	return &DLQHandler{
		retrier: New(config),
		dlq:     dlq,
		source:  source,
		log:     logger.Get(),
	}
}

// Deliver runs op with retries. When every attempt fails the payload is sent to
// the dead letter queue and the delivery error is returned.
func (h *DLQHandler) Deliver(ctx context.Context, topic, key string, payload []byte, headers map[string]string, op Operation) error {
	firstAttempt := time.Now()

	result := h.retrier.DoNotify(ctx, op, func(attempt int, err error, wait time.Duration) {
		h.log.Warn(fmt.Sprintf("Delivery to %s failed (attempt %d), retrying in %s: %v", topic, attempt, wait, err))
	})
	if result.Err == nil {
		return nil
	}
	if errors.Is(result.Err, ErrContextCanceled) && result.LastErr == nil {
		return result.Err
	}

	cause := result.Err
	if result.LastErr != nil {
		cause = result.LastErr
	}

	letter := &DeadLetter{
		ID:             uuid.New().String(),
		Topic:          topic,
		Key:            key,
		Payload:        payload,
		Headers:        headers,
		Error:          cause.Error(),
		Attempts:       result.Attempts,
		FirstAttemptAt: firstAttempt,
		FailedAt:       time.Now(),
		Source:         h.source,
	}

	h.log.Error(fmt.Sprintf("Delivery to %s failed after %d attempts, sending to DLQ", topic, result.Attempts),
		zap.String("key", key),
		zap.Error(cause),
	)

	// the DLQ write must not inherit a deadline the delivery already used up
	dlqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.dlq.Send(dlqCtx, letter); err != nil {
		return fmt.Errorf("failed to send to DLQ: %w (delivery error: %v)", err, cause)
	}
	return result.Err
}
