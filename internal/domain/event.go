package domain

import "time"

// ReservationEventType represents the type of reservation lifecycle event
type ReservationEventType string

const (
	EventHoldCreated      ReservationEventType = "hold.created"
	EventHoldReleased     ReservationEventType = "hold.released"
	EventHoldExpired      ReservationEventType = "hold.expired"
	EventBookingConfirmed ReservationEventType = "booking.confirmed"
	EventBookingLost      ReservationEventType = "booking.lost"
	EventBookingCancelled ReservationEventType = "booking.cancelled"
)

// ReservationEvent is published for every state transition of a hold or booking
type ReservationEvent struct {
	EventID       string               `json:"event_id"`
	EventType     ReservationEventType `json:"event_type"`
	GroupID       string               `json:"group_id"`
	HoldID        string               `json:"hold_id,omitempty"`
	BookingID     string               `json:"booking_id,omitempty"`
	RequesterID   string               `json:"requester_id,omitempty"`
	ResourceKeys  []string             `json:"resource_keys"`
	Amount        float64              `json:"amount,omitempty"`
	Currency      string               `json:"currency,omitempty"`
	TransactionID string               `json:"transaction_id,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// Key returns the partition key for the event. Events of one group stay ordered.
func (e *ReservationEvent) Key() string {
	return e.GroupID
}

// NewHoldEvent creates an event describing a hold transition
func NewHoldEvent(eventType ReservationEventType, token *HoldToken, eventID string, at time.Time) *ReservationEvent {
	expiresAt := token.ExpiresAt
	return &ReservationEvent{
		EventID:      eventID,
		EventType:    eventType,
		GroupID:      token.GroupID,
		HoldID:       token.HoldID,
		RequesterID:  token.HolderID,
		ResourceKeys: token.ResourceKeys(),
		ExpiresAt:    &expiresAt,
		OccurredAt:   at,
	}
}

// NewBookingEvent creates an event describing a booking transition
func NewBookingEvent(eventType ReservationEventType, booking *Booking, eventID string, at time.Time) *ReservationEvent {
	return &ReservationEvent{
		EventID:       eventID,
		EventType:     eventType,
		GroupID:       booking.GroupID,
		HoldID:        booking.ID,
		BookingID:     booking.ID,
		RequesterID:   booking.RequesterID,
		ResourceKeys:  append([]string(nil), booking.ResourceKeys...),
		Amount:        booking.TotalPrice,
		Currency:      booking.Currency,
		TransactionID: booking.Payment.TransactionID,
		OccurredAt:    at,
	}
}
