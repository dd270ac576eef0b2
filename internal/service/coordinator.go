package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/booking-rush-reservation/internal/clock"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/internal/gateway"
	"github.com/prohmpiriya/booking-rush-reservation/internal/metrics"
	"github.com/prohmpiriya/booking-rush-reservation/internal/pricing"
	"github.com/prohmpiriya/booking-rush-reservation/internal/scheduler"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ResourceRegistry is the resource state store the coordinator drives
type ResourceRegistry interface {
	RegisterGroup(groupID string, specs []domain.ResourceSpec) error
	TryHold(groupID string, keys []string, holderID string, ttl time.Duration) (*domain.HoldToken, error)
	Confirm(token *domain.HoldToken) error
	Release(token *domain.HoldToken) error
	CancelBooking(groupID, bookingID string, keys []string) (int, error)
	Snapshot(groupID string) ([]domain.Resource, error)
	Availability(groupID string) (*domain.Availability, error)
	ExpiredHolds(now time.Time) []*domain.HoldToken
	Groups() []string
}

// ReservationCoordinator runs the hold, pay, confirm protocol
type ReservationCoordinator interface {
	// RegisterGroup creates a group of AVAILABLE resources
	RegisterGroup(ctx context.Context, groupID string, specs []domain.ResourceSpec) error

	// ReserveAndBook holds the resources, charges the requester and confirms the hold.
	// Failed outcomes are returned as *domain.Failure.
	ReserveAndBook(ctx context.Context, req *ReserveRequest) (*domain.Booking, error)

	// CancelBooking releases a booking's resources. Repeated calls report NOT_FOUND.
	CancelBooking(ctx context.Context, booking *domain.Booking) (*domain.CancelResult, error)

	Availability(ctx context.Context, groupID string) (*domain.Availability, error)
	Snapshot(ctx context.Context, groupID string) ([]domain.Resource, error)
	Groups(ctx context.Context) []string

	// ExpireStaleHolds releases every hold past its deadline whose timer has not run
	ExpireStaleHolds(ctx context.Context) (int, error)

	// PendingExpiries returns the number of outstanding expiry timers
	PendingExpiries() int
}

// ReserveRequest is the input of ReserveAndBook
type ReserveRequest struct {
	RequesterID  string
	GroupID      string
	ResourceKeys []string
	// TTL overrides the configured hold TTL when positive
	TTL time.Duration
	// Pricing overrides the configured default policy when set
	Pricing pricing.Policy
	Payment PaymentDetails
}

// PaymentDetails describes how the requester pays
type PaymentDetails struct {
	Method        string
	Token         string
	CustomerEmail string
}

// CoordinatorConfig contains configuration for the coordinator
type CoordinatorConfig struct {
	HoldTTL        time.Duration
	Currency       string
	DefaultPricing pricing.Policy
	PublishTimeout time.Duration
	// AutoRefund refunds payments whose hold expired before confirmation
	AutoRefund bool
	Clock      clock.Clock
}

type coordinator struct {
	registry  ResourceRegistry
	scheduler scheduler.Scheduler
	gateway   gateway.PaymentGateway
	publisher EventPublisher
	clock     clock.Clock
	log       *logger.Logger

	holdTTL        time.Duration
	currency       string
	defaultPricing pricing.Policy
	publishTimeout time.Duration
	autoRefund     bool

	// pending maps hold IDs to their expiry timer
	mu      sync.Mutex
	pending map[string]scheduler.Handle
}

// NewReservationCoordinator creates a new reservation coordinator
func NewReservationCoordinator(
	registry ResourceRegistry,
	sched scheduler.Scheduler,
	gw gateway.PaymentGateway,
	publisher EventPublisher,
	cfg *CoordinatorConfig,
) ReservationCoordinator {
	c := &coordinator{
		registry:       registry,
		scheduler:      sched,
		gateway:        gw,
		publisher:      publisher,
		clock:          clock.NewSystem(),
		log:            logger.Get(),
		holdTTL:        5 * time.Minute,
		currency:       "USD",
		defaultPricing: pricing.NewStandardPricing(),
		publishTimeout: 2 * time.Second,
		pending:        make(map[string]scheduler.Handle),
	}
	if cfg != nil {
		if cfg.HoldTTL > 0 {
			c.holdTTL = cfg.HoldTTL
		}
		if cfg.Currency != "" {
			c.currency = cfg.Currency
		}
		if cfg.DefaultPricing != nil {
			c.defaultPricing = cfg.DefaultPricing
		}
		if cfg.PublishTimeout > 0 {
			c.publishTimeout = cfg.PublishTimeout
		}
		if cfg.Clock != nil {
			c.clock = cfg.Clock
		}
		c.autoRefund = cfg.AutoRefund
	}
	if c.publisher == nil {
		c.publisher = NewNoOpEventPublisher()
	}
	return c
}

// RegisterGroup creates a group of AVAILABLE resources
func (c *coordinator) RegisterGroup(ctx context.Context, groupID string, specs []domain.ResourceSpec) error {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.register_group")
	defer span.End()

	span.SetAttributes(
		attribute.String("group_id", groupID),
		attribute.Int("resources", len(specs)),
	)

	if err := c.registry.RegisterGroup(groupID, specs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.log.InfoContext(ctx, fmt.Sprintf("Registered group %s with %d resources", groupID, len(specs)))
	span.SetStatus(codes.Ok, "")
	return nil
}

// ReserveAndBook holds, prices, charges and confirms in that order.
// No registry lock is held while the payment gateway runs.
func (c *coordinator) ReserveAndBook(ctx context.Context, req *ReserveRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.reserve_and_book")
	defer span.End()

	if req == nil {
		span.SetStatus(codes.Error, "nil request")
		return nil, domain.ErrInvalidBooking
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = c.holdTTL
	}
	policy := req.Pricing
	if policy == nil {
		policy = c.defaultPricing
	}

	span.SetAttributes(
		attribute.String("group_id", req.GroupID),
		attribute.String("requester_id", req.RequesterID),
		attribute.StringSlice("resource_keys", req.ResourceKeys),
		attribute.String("ttl", ttl.String()),
	)

	// Step 1: hold every resource or none
	token, err := c.registry.TryHold(req.GroupID, req.ResourceKeys, req.RequesterID, ttl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var unavailable *domain.UnavailableError
		if errors.As(err, &unavailable) {
			metrics.RecordHoldRejected(ctx, req.GroupID)
			return nil, &domain.Failure{
				Kind:      domain.FailureResourceUnavailable,
				Detail:    unavailable.Error(),
				GroupID:   req.GroupID,
				Conflicts: unavailable.Conflicts,
				Err:       err,
			}
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("hold_id", token.HoldID))

	// Step 2: the hold only counts as granted once its expiry timer exists
	if err := c.scheduleExpiry(token, ttl); err != nil {
		if relErr := c.registry.Release(token); relErr != nil {
			c.log.ErrorContext(ctx, "Failed to release unscheduled hold",
				zap.String("hold_id", token.HoldID),
				zap.Error(relErr),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to schedule hold expiry")
		return nil, fmt.Errorf("failed to schedule hold expiry: %w", err)
	}

	metrics.RecordHoldCreated(ctx, token.GroupID, len(token.Resources))
	c.publish(ctx, domain.NewHoldEvent(domain.EventHoldCreated, token, uuid.New().String(), c.clock.Now()))

	// Step 3: price the held resources
	amount := policy.Price(token.Resources)
	span.SetAttributes(
		attribute.String("pricing", policy.Name()),
		attribute.Float64("amount", amount),
	)

	// Step 4: charge outside every lock; only the timer bounds how long this may take
	receipt, payErr := c.charge(ctx, token, amount, req.Payment)
	if payErr != nil {
		c.cancelExpiry(token.HoldID)
		c.releaseHold(ctx, token, "payment_failed")

		span.RecordError(payErr)
		span.SetStatus(codes.Error, "payment failed")
		return nil, &domain.Failure{
			Kind:          domain.FailurePaymentFailed,
			Detail:        payErr.Error(),
			GroupID:       token.GroupID,
			HoldID:        token.HoldID,
			TransactionID: receipt.TransactionID,
			Amount:        amount,
			Currency:      c.currency,
			Err:           payErr,
		}
	}

	// Step 5: confirm; the registry decides the race with the expiry timer
	confirmErr := c.registry.Confirm(token)
	c.cancelExpiry(token.HoldID)

	switch {
	case confirmErr == nil:
		booking := c.newBooking(token, amount, policy.Name(), receipt)
		metrics.RecordConfirmation(ctx, booking.GroupID, booking.ConfirmedAt.Sub(booking.HeldAt).Seconds())
		c.publish(ctx, domain.NewBookingEvent(domain.EventBookingConfirmed, booking, uuid.New().String(), booking.ConfirmedAt))

		c.log.InfoContext(ctx, fmt.Sprintf("Booking %s confirmed for %s (group: %s, resources: %s, amount: %.2f %s)",
			booking.ID, booking.RequesterID, booking.GroupID, strings.Join(booking.ResourceKeys, ","), amount, c.currency))
		span.SetStatus(codes.Ok, "")
		return booking, nil

	case errors.Is(confirmErr, domain.ErrHoldExpired), errors.Is(confirmErr, domain.ErrHoldNotFound):
		if errors.Is(confirmErr, domain.ErrHoldExpired) {
			// the registry released it; the timer never will
			metrics.RecordHoldExpired(ctx, token.GroupID, 1)
		}
		failure := c.lostBooking(ctx, token, amount, receipt)
		span.RecordError(failure)
		span.SetStatus(codes.Error, "hold expired before confirmation")
		return nil, failure

	default:
		c.releaseHold(ctx, token, "confirm_failed")
		span.RecordError(confirmErr)
		span.SetStatus(codes.Error, confirmErr.Error())
		return nil, fmt.Errorf("failed to confirm hold %s: %w", token.HoldID, confirmErr)
	}
}

// CancelBooking releases a booking's resources back to AVAILABLE
func (c *coordinator) CancelBooking(ctx context.Context, booking *domain.Booking) (*domain.CancelResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.cancel_booking")
	defer span.End()

	if booking == nil || booking.ID == "" {
		span.SetStatus(codes.Error, "invalid booking")
		return nil, domain.ErrInvalidBooking
	}
	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("group_id", booking.GroupID),
	)

	released, err := c.registry.CancelBooking(booking.GroupID, booking.ID, booking.ResourceKeys)
	if errors.Is(err, domain.ErrBookingNotFound) {
		span.SetStatus(codes.Ok, "already cancelled")
		return &domain.CancelResult{BookingID: booking.ID, Status: domain.CancelStatusNotFound}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	cancelled := booking.Clone()
	cancelled.MarkCancelled(c.clock.Now())
	metrics.RecordCancellation(ctx, booking.GroupID)
	c.publish(ctx, domain.NewBookingEvent(domain.EventBookingCancelled, cancelled, uuid.New().String(), *cancelled.CancelledAt))

	c.log.InfoContext(ctx, fmt.Sprintf("Booking %s cancelled, released %d resources", booking.ID, released))
	span.SetStatus(codes.Ok, "")
	return &domain.CancelResult{
		BookingID: booking.ID,
		Status:    domain.CancelStatusCancelled,
		Released:  released,
	}, nil
}

func (c *coordinator) Availability(ctx context.Context, groupID string) (*domain.Availability, error) {
	_, span := telemetry.StartSpan(ctx, "service.reservation.availability")
	defer span.End()
	span.SetAttributes(attribute.String("group_id", groupID))

	av, err := c.registry.Availability(groupID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return av, nil
}

func (c *coordinator) Snapshot(ctx context.Context, groupID string) ([]domain.Resource, error) {
	_, span := telemetry.StartSpan(ctx, "service.reservation.snapshot")
	defer span.End()
	span.SetAttributes(attribute.String("group_id", groupID))

	resources, err := c.registry.Snapshot(groupID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resources, nil
}

func (c *coordinator) Groups(ctx context.Context) []string {
	return c.registry.Groups()
}

// ExpireStaleHolds releases holds whose deadline passed without their timer running
func (c *coordinator) ExpireStaleHolds(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.expire_stale_holds")
	defer span.End()

	tokens := c.registry.ExpiredHolds(c.clock.Now())
	expired := 0
	for _, token := range tokens {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return expired, err
		}
		c.cancelExpiry(token.HoldID)
		if c.expire(ctx, token, "sweeper") {
			expired++
		}
	}

	span.SetAttributes(attribute.Int("expired", expired))
	span.SetStatus(codes.Ok, "")
	return expired, nil
}

func (c *coordinator) PendingExpiries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// scheduleExpiry registers the hold's timer. The handle is stored under c.mu
// before the task can observe the map, so an early firing never leaves a stale entry.
func (c *coordinator) scheduleExpiry(token *domain.HoldToken, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.scheduler.After(ttl, func() { c.onExpiry(token) })
	if err != nil {
		return err
	}
	c.pending[token.HoldID] = h
	return nil
}

// cancelExpiry drops the hold's timer. Cancelling a fired timer is a no-op.
func (c *coordinator) cancelExpiry(holdID string) {
	c.mu.Lock()
	h, ok := c.pending[holdID]
	delete(c.pending, holdID)
	c.mu.Unlock()

	if ok {
		c.scheduler.Cancel(h)
	}
}

// onExpiry is the timer task of a hold
func (c *coordinator) onExpiry(token *domain.HoldToken) {
	c.mu.Lock()
	delete(c.pending, token.HoldID)
	c.mu.Unlock()

	ctx, span := telemetry.StartSpan(context.Background(), "service.reservation.expire_hold")
	defer span.End()
	span.SetAttributes(attribute.String("hold_id", token.HoldID))

	c.expire(ctx, token, "timer")
}

// expire releases an expired hold. Returns false if the hold was already resolved.
func (c *coordinator) expire(ctx context.Context, token *domain.HoldToken, source string) bool {
	if err := c.registry.Release(token); err != nil {
		if !errors.Is(err, domain.ErrHoldNotFound) {
			c.log.ErrorContext(ctx, fmt.Sprintf("Failed to expire hold %s: %v", token.HoldID, err))
		}
		return false
	}

	metrics.RecordHoldExpired(ctx, token.GroupID, 1)
	c.publish(ctx, domain.NewHoldEvent(domain.EventHoldExpired, token, uuid.New().String(), c.clock.Now()))
	c.log.InfoContext(ctx, fmt.Sprintf("Hold %s expired (group: %s, holder: %s, resources: %d)",
		token.HoldID, token.GroupID, token.HolderID, len(token.Resources)),
		zap.String("source", source),
	)
	return true
}

// releaseHold returns a hold's resources after a failed payment or confirm
func (c *coordinator) releaseHold(ctx context.Context, token *domain.HoldToken, reason string) {
	err := c.registry.Release(token)
	if errors.Is(err, domain.ErrHoldNotFound) {
		// the timer got there first
		return
	}
	if err != nil {
		c.log.ErrorContext(ctx, fmt.Sprintf("Failed to release hold %s: %v", token.HoldID, err))
		return
	}

	metrics.RecordHoldReleased(ctx, token.GroupID, reason)
	event := domain.NewHoldEvent(domain.EventHoldReleased, token, uuid.New().String(), c.clock.Now())
	event.Reason = reason
	c.publish(ctx, event)
}

// charge calls the payment gateway. A declined charge and a gateway error both
// come back as an error; the receipt carries whatever the gateway returned.
func (c *coordinator) charge(ctx context.Context, token *domain.HoldToken, amount float64, payment PaymentDetails) (domain.PaymentReceipt, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.charge")
	defer span.End()

	receipt := domain.PaymentReceipt{
		Gateway:  c.gateway.Name(),
		Method:   payment.Method,
		Amount:   amount,
		Currency: c.currency,
	}

	start := time.Now()
	resp, err := c.gateway.Charge(ctx, &gateway.ChargeRequest{
		ReferenceID: token.HoldID,
		Amount:      amount,
		Currency:    c.currency,
		Method:      payment.Method,
		Description: fmt.Sprintf("Reservation %s in %s", token.HoldID, token.GroupID),
		Metadata: map[string]string{
			"group_id":     token.GroupID,
			"requester_id": token.HolderID,
			"resources":    strings.Join(token.ResourceKeys(), ","),
		},
		CardToken:     payment.Token,
		CustomerEmail: payment.CustomerEmail,
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordPayment(ctx, receipt.Gateway, elapsed, false)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		receipt.Status = gateway.StatusFailed
		return receipt, fmt.Errorf("payment gateway error: %w", err)
	}

	receipt.TransactionID = resp.TransactionID
	receipt.Status = resp.Status
	metrics.RecordPayment(ctx, receipt.Gateway, elapsed, resp.Success)

	if !resp.Success {
		reason := resp.FailureReason
		if reason == "" {
			reason = "declined"
		}
		span.SetStatus(codes.Error, reason)
		return receipt, fmt.Errorf("payment declined: %s", reason)
	}

	span.SetAttributes(attribute.String("transaction_id", resp.TransactionID))
	span.SetStatus(codes.Ok, "")
	return receipt, nil
}

// lostBooking reports a payment that went through after its hold expired
func (c *coordinator) lostBooking(ctx context.Context, token *domain.HoldToken, amount float64, receipt domain.PaymentReceipt) *domain.Failure {
	failure := &domain.Failure{
		Kind:          domain.FailureHoldExpired,
		Detail:        fmt.Sprintf("hold %s expired before confirmation; payment %s was taken", token.HoldID, receipt.TransactionID),
		GroupID:       token.GroupID,
		HoldID:        token.HoldID,
		TransactionID: receipt.TransactionID,
		Amount:        amount,
		Currency:      c.currency,
	}

	if c.autoRefund && receipt.TransactionID != "" {
		if err := c.gateway.Refund(ctx, receipt.TransactionID, amount); err != nil {
			c.log.ErrorContext(ctx, fmt.Sprintf("Failed to refund lost booking %s: %v", token.HoldID, err),
				zap.String("transaction_id", receipt.TransactionID),
			)
		} else {
			failure.Refunded = true
		}
	}

	metrics.RecordBookingLost(ctx, token.GroupID)
	event := domain.NewHoldEvent(domain.EventBookingLost, token, uuid.New().String(), c.clock.Now())
	event.Amount = amount
	event.Currency = c.currency
	event.TransactionID = receipt.TransactionID
	event.Reason = "hold_expired"
	c.publish(ctx, event)

	c.log.WarnContext(ctx, fmt.Sprintf("Payment %s succeeded but hold %s expired (refunded: %t)",
		receipt.TransactionID, token.HoldID, failure.Refunded))
	return failure
}

func (c *coordinator) newBooking(token *domain.HoldToken, amount float64, pricingName string, receipt domain.PaymentReceipt) *domain.Booking {
	resources := make([]domain.Resource, len(token.Resources))
	for i, r := range token.Resources {
		r.State = domain.ResourceStateBooked
		r.BookingID = token.HoldID
		r.HoldID = ""
		r.ExpiresAt = nil
		resources[i] = r
	}

	return &domain.Booking{
		ID:           token.HoldID,
		RequesterID:  token.HolderID,
		GroupID:      token.GroupID,
		ResourceKeys: token.ResourceKeys(),
		Resources:    resources,
		TotalPrice:   amount,
		Currency:     c.currency,
		Pricing:      pricingName,
		Payment:      receipt,
		Status:       domain.BookingStatusConfirmed,
		HeldAt:       token.CreatedAt,
		ConfirmedAt:  c.clock.Now(),
	}
}

// publish sends an event without letting its failure affect the operation
func (c *coordinator) publish(ctx context.Context, event *domain.ReservationEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.publishTimeout)
	defer cancel()

	if err := c.publisher.Publish(ctx, event); err != nil {
		metrics.RecordPublishError(ctx, string(event.EventType))
		c.log.WarnContext(ctx, fmt.Sprintf("Failed to publish %s event: %v", event.EventType, err),
			zap.String("group_id", event.GroupID),
			zap.String("hold_id", event.HoldID),
		)
	}
}
