package domain

import "time"

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// PaymentReceipt is the outcome reported by the payment gateway
type PaymentReceipt struct {
	TransactionID string  `json:"transaction_id"`
	Gateway       string  `json:"gateway"`
	Method        string  `json:"method"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
}

// Booking is the durable outcome of a confirmed hold
type Booking struct {
	ID           string         `json:"id"`
	RequesterID  string         `json:"requester_id"`
	GroupID      string         `json:"group_id"`
	ResourceKeys []string       `json:"resource_keys"`
	Resources    []Resource     `json:"-"`
	TotalPrice   float64        `json:"total_price"`
	Currency     string         `json:"currency"`
	Pricing      string         `json:"pricing"`
	Payment      PaymentReceipt `json:"payment"`
	Status       BookingStatus  `json:"status"`
	HeldAt       time.Time      `json:"held_at"`
	ConfirmedAt  time.Time      `json:"confirmed_at"`
	CancelledAt  *time.Time     `json:"cancelled_at,omitempty"`
}

// IsConfirmed returns true if booking is confirmed
func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

// IsCancelled returns true if booking was cancelled
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// BelongsTo checks if the booking belongs to the requester
func (b *Booking) BelongsTo(requesterID string) bool {
	return b.RequesterID == requesterID
}

// MarkCancelled records the cancellation. It is the only mutation a booking allows.
func (b *Booking) MarkCancelled(at time.Time) {
	if b.IsCancelled() {
		return
	}
	b.Status = BookingStatusCancelled
	b.CancelledAt = &at
}

// Clone returns a copy that shares no slices with the original
func (b *Booking) Clone() *Booking {
	c := *b
	c.ResourceKeys = append([]string(nil), b.ResourceKeys...)
	c.Resources = append([]Resource(nil), b.Resources...)
	if b.CancelledAt != nil {
		at := *b.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}

// CancelStatus is the outcome of a cancellation request
type CancelStatus string

const (
	CancelStatusCancelled CancelStatus = "CANCELLED"
	CancelStatusNotFound  CancelStatus = "NOT_FOUND"
)

// CancelResult reports what a cancellation did
type CancelResult struct {
	BookingID string       `json:"booking_id"`
	Status    CancelStatus `json:"status"`
	Released  int          `json:"released"`
}
