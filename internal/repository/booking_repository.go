package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingRepository defines the interface for the booking ledger
type BookingRepository interface {
	// Create stores a confirmed booking
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by ID
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetByRequesterID lists a requester's bookings, newest first
	GetByRequesterID(ctx context.Context, requesterID string, limit, offset int) ([]*domain.Booking, int, error)

	// MarkCancelled flags a booking as cancelled
	MarkCancelled(ctx context.Context, id string, at time.Time) (*domain.Booking, error)
}

// MemoryBookingRepository implements BookingRepository in memory.
// Stored bookings are copies; callers never share state with the ledger.
type MemoryBookingRepository struct {
	mu          sync.RWMutex
	bookings    map[string]*domain.Booking
	byRequester map[string][]string
}

// NewMemoryBookingRepository creates a new MemoryBookingRepository
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings:    make(map[string]*domain.Booking),
		byRequester: make(map[string][]string),
	}
}

// Create stores a confirmed booking
func (r *MemoryBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	_, span := telemetry.StartSpan(ctx, "repo.booking.create")
	defer span.End()

	if booking == nil || booking.ID == "" {
		span.SetStatus(codes.Error, "invalid booking")
		return domain.ErrInvalidBooking
	}
	span.SetAttributes(attribute.String("booking_id", booking.ID))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[booking.ID]; ok {
		span.SetStatus(codes.Error, "booking already exists")
		return domain.ErrBookingAlreadyExists
	}
	r.bookings[booking.ID] = booking.Clone()
	r.byRequester[booking.RequesterID] = append(r.byRequester[booking.RequesterID], booking.ID)

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by ID
func (r *MemoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	_, span := telemetry.StartSpan(ctx, "repo.booking.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", id))

	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		span.SetStatus(codes.Error, "booking not found")
		return nil, domain.ErrBookingNotFound
	}
	return b.Clone(), nil
}

// GetByRequesterID lists a requester's bookings, newest first, with the total count
func (r *MemoryBookingRepository) GetByRequesterID(ctx context.Context, requesterID string, limit, offset int) ([]*domain.Booking, int, error) {
	_, span := telemetry.StartSpan(ctx, "repo.booking.get_by_requester_id")
	defer span.End()
	span.SetAttributes(
		attribute.String("requester_id", requesterID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	r.mu.RLock()
	ids := r.byRequester[requesterID]
	all := make([]*domain.Booking, 0, len(ids))
	for _, id := range ids {
		all = append(all, r.bookings[id].Clone())
	}
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].ConfirmedAt.After(all[j].ConfirmedAt)
	})

	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*domain.Booking{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// MarkCancelled flags a booking as cancelled and returns the updated copy
func (r *MemoryBookingRepository) MarkCancelled(ctx context.Context, id string, at time.Time) (*domain.Booking, error) {
	_, span := telemetry.StartSpan(ctx, "repo.booking.mark_cancelled")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", id))

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		span.SetStatus(codes.Error, "booking not found")
		return nil, domain.ErrBookingNotFound
	}
	b.MarkCancelled(at)
	return b.Clone(), nil
}
