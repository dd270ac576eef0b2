package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/kafka"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/retry"
)

const (
	// DefaultEventTopic receives every reservation event
	DefaultEventTopic = "reservation-events"
)

// EventPublisher defines the interface for publishing reservation events
type EventPublisher interface {
	// Publish publishes a single event
	Publish(ctx context.Context, event *domain.ReservationEvent) error

	// Close closes the event publisher
	Close() error
}

// MessageProducer is the part of the Kafka producer the publisher uses
type MessageProducer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
	ProduceJSON(ctx context.Context, topic, key string, v any, headers map[string]string) error
	Close()
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
	// Retry controls redelivery before an event is dead lettered
	Retry *retry.Config
}

// KafkaEventPublisher implements EventPublisher using Kafka.
// Events that cannot be delivered go to "<topic>.dlq".
type KafkaEventPublisher struct {
	producer    MessageProducer
	dlq         *retry.DLQHandler
	topic       string
	serviceName string
}

// NewKafkaEventPublisher creates a new Kafka event publisher
func NewKafkaEventPublisher(ctx context.Context, cfg *EventPublisherConfig) (*KafkaEventPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("event publisher config is required")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "reservation-service-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewEventPublisherWithProducer(producer, cfg), nil
}

// NewEventPublisherWithProducer wraps an existing producer
func NewEventPublisherWithProducer(producer MessageProducer, cfg *EventPublisherConfig) *KafkaEventPublisher {
	topic := DefaultEventTopic
	serviceName := "reservation-service"
	retryCfg := &retry.Config{
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
	if cfg != nil {
		if cfg.Topic != "" {
			topic = cfg.Topic
		}
		if cfg.ServiceName != "" {
			serviceName = cfg.ServiceName
		}
		if cfg.Retry != nil {
			retryCfg = cfg.Retry
		}
	}

	return &KafkaEventPublisher{
		producer:    producer,
		dlq:         retry.NewDLQHandler(retryCfg, retry.NewKafkaDeadLetterQueue(producer), serviceName),
		topic:       topic,
		serviceName: serviceName,
	}
}

// Topic returns the topic events are published to
func (p *KafkaEventPublisher) Topic() string {
	return p.topic
}

// Publish publishes an event keyed by its group, so one group's events stay ordered
func (p *KafkaEventPublisher) Publish(ctx context.Context, event *domain.ReservationEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := map[string]string{
		"event_type":   string(event.EventType),
		"event_id":     event.EventID,
		"source":       p.serviceName,
		"content_type": "application/json",
	}

	msg := &kafka.Message{
		Topic:     p.topic,
		Key:       []byte(event.Key()),
		Value:     value,
		Headers:   headers,
		Timestamp: event.OccurredAt,
	}

	err = p.dlq.Deliver(ctx, p.topic, event.Key(), value, headers, func(ctx context.Context) error {
		return p.producer.Produce(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.EventType, err)
	}
	return nil
}

// Close closes the event publisher
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

// NoOpEventPublisher is a no-op implementation of EventPublisher
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

// Publish is a no-op
func (p *NoOpEventPublisher) Publish(ctx context.Context, event *domain.ReservationEvent) error {
	return nil
}

// Close is a no-op
func (p *NoOpEventPublisher) Close() error {
	return nil
}

// MultiPublisher publishes every event to all of its publishers
type MultiPublisher struct {
	publishers []EventPublisher
}

// NewMultiPublisher creates a publisher fanning out to publishers
func NewMultiPublisher(publishers ...EventPublisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// Publish tries every publisher and joins their errors
func (m *MultiPublisher) Publish(ctx context.Context, event *domain.ReservationEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher
func (m *MultiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
