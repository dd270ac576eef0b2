package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"go.uber.org/zap"
)

// Observer receives reservation events, typically to notify the requester
type Observer interface {
	Name() string
	Notify(ctx context.Context, event *domain.ReservationEvent) error
}

// ObserverPublisher fans events out to registered observers.
// Observer errors are logged and never returned.
type ObserverPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	log       *logger.Logger
}

// NewObserverPublisher creates a publisher notifying observers
func NewObserverPublisher(observers ...Observer) *ObserverPublisher {
	return &ObserverPublisher{
		observers: observers,
		log:       logger.Get(),
	}
}

// Subscribe adds an observer
func (p *ObserverPublisher) Subscribe(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// Unsubscribe removes the observer with the given name
func (p *ObserverPublisher) Unsubscribe(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, o := range p.observers {
		if o.Name() == name {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			return true
		}
	}
	return false
}

// Publish notifies every observer
func (p *ObserverPublisher) Publish(ctx context.Context, event *domain.ReservationEvent) error {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, o := range observers {
		if err := o.Notify(ctx, event); err != nil {
			p.log.WarnContext(ctx, fmt.Sprintf("Observer %s failed on %s: %v", o.Name(), event.EventType, err),
				zap.String("event_id", event.EventID),
			)
		}
	}
	return nil
}

// Close is a no-op
func (p *ObserverPublisher) Close() error {
	return nil
}

// notifiable are the events a requester is told about
var notifiable = map[domain.ReservationEventType]string{
	domain.EventBookingConfirmed: "Your booking %s is confirmed: %s (%.2f %s)",
	domain.EventBookingCancelled: "Your booking %s was cancelled: %s (%.2f %s)",
	domain.EventBookingLost:      "Your reservation %s expired before payment completed: %s (%.2f %s)",
}

func notificationText(event *domain.ReservationEvent) (string, bool) {
	format, ok := notifiable[event.EventType]
	if !ok {
		return "", false
	}
	id := event.BookingID
	if id == "" {
		id = event.HoldID
	}
	return fmt.Sprintf(format, id, strings.Join(event.ResourceKeys, ", "), event.Amount, event.Currency), true
}

// EmailObserver logs the email that would be sent to the requester
type EmailObserver struct {
	log *logger.Logger
}

func NewEmailObserver() *EmailObserver {
	return &EmailObserver{log: logger.Get()}
}

func (o *EmailObserver) Name() string { return "email" }

func (o *EmailObserver) Notify(ctx context.Context, event *domain.ReservationEvent) error {
	text, ok := notificationText(event)
	if !ok {
		return nil
	}
	o.log.InfoContext(ctx, "Email notification",
		zap.String("to", event.RequesterID),
		zap.String("body", text),
	)
	return nil
}

// SMSObserver logs the text message that would be sent to the requester
type SMSObserver struct {
	log *logger.Logger
}

func NewSMSObserver() *SMSObserver {
	return &SMSObserver{log: logger.Get()}
}

func (o *SMSObserver) Name() string { return "sms" }

func (o *SMSObserver) Notify(ctx context.Context, event *domain.ReservationEvent) error {
	text, ok := notificationText(event)
	if !ok {
		return nil
	}
	o.log.InfoContext(ctx, "SMS notification",
		zap.String("to", event.RequesterID),
		zap.String("body", text),
	)
	return nil
}
