package dto

import (
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
)

// ResourceSpecRequest describes one resource of a new group
type ResourceSpecRequest struct {
	Key   string `json:"key" binding:"required"`
	Class string `json:"class,omitempty"`
}

// RegisterGroupRequest represents request to register a resource group
type RegisterGroupRequest struct {
	GroupID   string                `json:"group_id" binding:"required"`
	Resources []ResourceSpecRequest `json:"resources" binding:"required,min=1,dive"`
}

// Specs converts the request into registry specs
func (r *RegisterGroupRequest) Specs() []domain.ResourceSpec {
	specs := make([]domain.ResourceSpec, len(r.Resources))
	for i, res := range r.Resources {
		specs[i] = domain.ResourceSpec{Key: res.Key, Class: domain.ResourceClass(res.Class)}
	}
	return specs
}

// RegisterGroupResponse represents response after registering a group
type RegisterGroupResponse struct {
	GroupID   string `json:"group_id"`
	Resources int    `json:"resources"`
}

// GroupListResponse lists registered groups
type GroupListResponse struct {
	Groups []string `json:"groups"`
}

// ReserveRequest represents request to hold, pay for and confirm resources
type ReserveRequest struct {
	GroupID      string   `json:"group_id" binding:"required"`
	ResourceKeys []string `json:"resource_keys" binding:"required,min=1,max=20"`
	// Pricing is one of standard, weekday, weekend, calendar
	Pricing        string `json:"pricing,omitempty"`
	TTLSeconds     int    `json:"ttl_seconds,omitempty" binding:"omitempty,min=1,max=3600"`
	PaymentMethod  string `json:"payment_method,omitempty"`
	PaymentToken   string `json:"payment_token,omitempty"`
	CustomerEmail  string `json:"customer_email,omitempty" binding:"omitempty,email"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// TTL returns the requested hold TTL, zero when unset
func (r *ReserveRequest) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// PaymentResponse describes the payment of a booking
type PaymentResponse struct {
	TransactionID string `json:"transaction_id"`
	Gateway       string `json:"gateway"`
	Method        string `json:"method,omitempty"`
	Status        string `json:"status"`
}

// BookingResponse represents a booking in API response
type BookingResponse struct {
	ID           string          `json:"id"`
	RequesterID  string          `json:"requester_id"`
	GroupID      string          `json:"group_id"`
	ResourceKeys []string        `json:"resource_keys"`
	Status       string          `json:"status"`
	TotalPrice   float64         `json:"total_price"`
	Currency     string          `json:"currency"`
	Pricing      string          `json:"pricing"`
	Payment      PaymentResponse `json:"payment"`
	HeldAt       time.Time       `json:"held_at"`
	ConfirmedAt  time.Time       `json:"confirmed_at"`
	CancelledAt  *time.Time      `json:"cancelled_at,omitempty"`
}

// FromDomain converts domain Booking to BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	return &BookingResponse{
		ID:           b.ID,
		RequesterID:  b.RequesterID,
		GroupID:      b.GroupID,
		ResourceKeys: b.ResourceKeys,
		Status:       string(b.Status),
		TotalPrice:   b.TotalPrice,
		Currency:     b.Currency,
		Pricing:      b.Pricing,
		Payment: PaymentResponse{
			TransactionID: b.Payment.TransactionID,
			Gateway:       b.Payment.Gateway,
			Method:        b.Payment.Method,
			Status:        b.Payment.Status,
		},
		HeldAt:      b.HeldAt,
		ConfirmedAt: b.ConfirmedAt,
		CancelledAt: b.CancelledAt,
	}
}

// CancelBookingResponse represents response after cancelling a booking
type CancelBookingResponse struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Released  int    `json:"released"`
	Message   string `json:"message"`
}

// FromCancelResult converts a cancellation outcome
func FromCancelResult(r *domain.CancelResult) *CancelBookingResponse {
	msg := "Booking cancelled"
	if r.Status == domain.CancelStatusNotFound {
		msg = "Booking was already cancelled"
	}
	return &CancelBookingResponse{
		BookingID: r.BookingID,
		Status:    string(r.Status),
		Released:  r.Released,
		Message:   msg,
	}
}

// ResourceResponse represents one resource of a group snapshot
type ResourceResponse struct {
	Key       string     `json:"key"`
	Class     string     `json:"class"`
	State     string     `json:"state"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// FromResources converts a snapshot without exposing holder identities
func FromResources(resources []domain.Resource) []ResourceResponse {
	out := make([]ResourceResponse, len(resources))
	for i, r := range resources {
		out[i] = ResourceResponse{
			Key:       r.Key,
			Class:     string(r.Class),
			State:     string(r.State),
			ExpiresAt: r.ExpiresAt,
		}
	}
	return out
}

// PaginatedResponse represents a paginated list
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalItems int         `json:"total_items"`
	TotalPages int         `json:"total_pages"`
}

// NewPaginatedResponse builds the pagination envelope
func NewPaginatedResponse(data interface{}, page, pageSize, total int) *PaginatedResponse {
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return &PaginatedResponse{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: pages,
	}
}

// ConflictDetail names a resource that blocked a reservation
type ConflictDetail struct {
	Key   string `json:"key"`
	State string `json:"state"`
}

// FailureDetails is attached to 402, 409 and 410 responses
type FailureDetails struct {
	Kind          string           `json:"kind"`
	GroupID       string           `json:"group_id,omitempty"`
	HoldID        string           `json:"hold_id,omitempty"`
	Conflicts     []ConflictDetail `json:"conflicts,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Amount        float64          `json:"amount,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	Refunded      bool             `json:"refunded,omitempty"`
}

// FromFailure converts a reservation failure
func FromFailure(f *domain.Failure) *FailureDetails {
	d := &FailureDetails{
		Kind:          string(f.Kind),
		GroupID:       f.GroupID,
		HoldID:        f.HoldID,
		TransactionID: f.TransactionID,
		Amount:        f.Amount,
		Currency:      f.Currency,
		Refunded:      f.Refunded,
	}
	for _, c := range f.Conflicts {
		d.Conflicts = append(d.Conflicts, ConflictDetail{Key: c.Key, State: string(c.State)})
	}
	return d
}
