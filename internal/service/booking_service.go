package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prohmpiriya/booking-rush-reservation/internal/clock"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/internal/dto"
	"github.com/prohmpiriya/booking-rush-reservation/internal/pricing"
	"github.com/prohmpiriya/booking-rush-reservation/internal/repository"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BookingService defines the interface for requester-facing booking operations
type BookingService interface {
	// Reserve runs the full reservation for a requester and records the booking
	Reserve(ctx context.Context, requesterID string, req *dto.ReserveRequest) (*dto.BookingResponse, error)

	// GetBooking retrieves a booking owned by the requester
	GetBooking(ctx context.Context, bookingID, requesterID string) (*dto.BookingResponse, error)

	// GetRequesterBookings retrieves all bookings of a requester
	GetRequesterBookings(ctx context.Context, requesterID string, page, pageSize int) (*dto.PaginatedResponse, error)

	// CancelBooking cancels a booking owned by the requester
	CancelBooking(ctx context.Context, bookingID, requesterID string) (*dto.CancelBookingResponse, error)
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	// DefaultPricing is used when a request names no policy
	DefaultPricing string
	Clock          clock.Clock
}

type bookingService struct {
	coordinator    ReservationCoordinator
	bookingRepo    repository.BookingRepository
	clock          clock.Clock
	defaultPricing string
}

// NewBookingService creates a new booking service
func NewBookingService(
	coordinator ReservationCoordinator,
	bookingRepo repository.BookingRepository,
	cfg *BookingServiceConfig,
) BookingService {
	s := &bookingService{
		coordinator: coordinator,
		bookingRepo: bookingRepo,
		clock:       clock.NewSystem(),
	}
	if cfg != nil {
		s.defaultPricing = cfg.DefaultPricing
		if cfg.Clock != nil {
			s.clock = cfg.Clock
		}
	}
	return s
}

// Reserve runs the full reservation for a requester and records the booking
func (s *bookingService) Reserve(ctx context.Context, requesterID string, req *dto.ReserveRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.reserve")
	defer span.End()

	if strings.TrimSpace(requesterID) == "" {
		span.SetStatus(codes.Error, "invalid requester")
		return nil, domain.ErrInvalidHolderID
	}
	if req == nil {
		span.SetStatus(codes.Error, "nil request")
		return nil, domain.ErrEmptyResourceSet
	}

	name := req.Pricing
	if name == "" {
		name = s.defaultPricing
	}
	policy, err := pricing.Lookup(name, s.clock)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("requester_id", requesterID),
		attribute.String("group_id", req.GroupID),
		attribute.Int("resources", len(req.ResourceKeys)),
		attribute.String("pricing", policy.Name()),
	)

	booking, err := s.coordinator.ReserveAndBook(ctx, &ReserveRequest{
		RequesterID:  requesterID,
		GroupID:      req.GroupID,
		ResourceKeys: req.ResourceKeys,
		TTL:          req.TTL(),
		Pricing:      policy,
		Payment: PaymentDetails{
			Method:        req.PaymentMethod,
			Token:         req.PaymentToken,
			CustomerEmail: req.CustomerEmail,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// the registry already holds the booking; a ledger failure must not undo it
	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		logger.Get().ErrorContext(ctx, fmt.Sprintf("Failed to record booking %s: %v", booking.ID, err))
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(booking), nil
}

// GetBooking retrieves a booking owned by the requester
func (s *bookingService) GetBooking(ctx context.Context, bookingID, requesterID string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.ownedBooking(ctx, bookingID, requesterID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(booking), nil
}

// GetRequesterBookings retrieves all bookings of a requester
func (s *bookingService) GetRequesterBookings(ctx context.Context, requesterID string, page, pageSize int) (*dto.PaginatedResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	span.SetAttributes(
		attribute.String("requester_id", requesterID),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	bookings, total, err := s.bookingRepo.GetByRequesterID(ctx, requesterID, pageSize, (page-1)*pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	items := make([]*dto.BookingResponse, len(bookings))
	for i, b := range bookings {
		items[i] = dto.FromDomain(b)
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewPaginatedResponse(items, page, pageSize, total), nil
}

// CancelBooking cancels a booking owned by the requester. Cancelling twice
// reports NOT_FOUND the second time.
func (s *bookingService) CancelBooking(ctx context.Context, bookingID, requesterID string) (*dto.CancelBookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	booking, err := s.ownedBooking(ctx, bookingID, requesterID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if booking.IsCancelled() {
		span.SetStatus(codes.Ok, "already cancelled")
		return dto.FromCancelResult(&domain.CancelResult{
			BookingID: booking.ID,
			Status:    domain.CancelStatusNotFound,
		}), nil
	}

	result, err := s.coordinator.CancelBooking(ctx, booking)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if _, err := s.bookingRepo.MarkCancelled(ctx, booking.ID, s.clock.Now()); err != nil {
		logger.Get().ErrorContext(ctx, fmt.Sprintf("Failed to mark booking %s cancelled: %v", booking.ID, err))
	}

	span.SetAttributes(attribute.String("status", string(result.Status)))
	span.SetStatus(codes.Ok, "")
	return dto.FromCancelResult(result), nil
}

func (s *bookingService) ownedBooking(ctx context.Context, bookingID, requesterID string) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, domain.ErrInvalidBooking
	}
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load booking %s: %w", bookingID, err)
	}
	if !booking.BelongsTo(requesterID) {
		return nil, domain.ErrNotBookingOwner
	}
	return booking, nil
}
