package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/clock"
	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/internal/gateway"
	"github.com/prohmpiriya/booking-rush-reservation/internal/pricing"
	"github.com/prohmpiriya/booking-rush-reservation/internal/registry"
	"github.com/prohmpiriya/booking-rush-reservation/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockGateway is a function-field mock of gateway.PaymentGateway
type MockGateway struct {
	ChargeFunc func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error)
	RefundFunc func(ctx context.Context, transactionID string, amount float64) error

	mu      sync.Mutex
	charges []*gateway.ChargeRequest
}

func (m *MockGateway) Charge(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
	m.mu.Lock()
	m.charges = append(m.charges, req)
	n := len(m.charges)
	m.mu.Unlock()

	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, req)
	}
	return &gateway.ChargeResponse{
		Success:       true,
		TransactionID: fmt.Sprintf("txn-%d", n),
		Status:        gateway.StatusCompleted,
	}, nil
}

func (m *MockGateway) Refund(ctx context.Context, transactionID string, amount float64) error {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, transactionID, amount)
	}
	return nil
}

func (m *MockGateway) GetTransaction(ctx context.Context, transactionID string) (*gateway.TransactionInfo, error) {
	return nil, errors.New("not implemented")
}

func (m *MockGateway) Name() string { return "test" }

func (m *MockGateway) chargeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.charges)
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []*domain.ReservationEvent
	err    error
}

func (m *MockEventPublisher) Publish(ctx context.Context, event *domain.ReservationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

func (m *MockEventPublisher) Types() []domain.ReservationEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ReservationEventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.EventType
	}
	return out
}

type failingScheduler struct{}

func (failingScheduler) After(d time.Duration, task scheduler.Task) (scheduler.Handle, error) {
	return 0, scheduler.ErrSchedulerClosed
}

func (failingScheduler) Cancel(h scheduler.Handle) bool { return false }

type coordinatorFixture struct {
	clock     *clock.Fake
	sched     *scheduler.Manual
	registry  *registry.Registry
	gateway   *MockGateway
	publisher *MockEventPublisher
	coord     ReservationCoordinator
}

type fixtureOption func(*CoordinatorConfig, *coordinatorFixture)

func withAutoRefund() fixtureOption {
	return func(cfg *CoordinatorConfig, _ *coordinatorFixture) { cfg.AutoRefund = true }
}

func newCoordinatorFixture(t *testing.T, keys []string, opts ...fixtureOption) *coordinatorFixture {
	t.Helper()

	// Tuesday
	clk := clock.NewFake(time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC))
	var ids atomic.Int64
	reg := registry.New(&registry.Config{
		Clock:     clk,
		NewHoldID: func() string { return fmt.Sprintf("hold-%d", ids.Add(1)) },
	})

	f := &coordinatorFixture{
		clock:     clk,
		sched:     scheduler.NewManual(clk),
		registry:  reg,
		gateway:   &MockGateway{},
		publisher: &MockEventPublisher{},
	}

	cfg := &CoordinatorConfig{HoldTTL: time.Minute, Clock: clk}
	for _, opt := range opts {
		opt(cfg, f)
	}
	f.coord = NewReservationCoordinator(reg, f.sched, f.gateway, f.publisher, cfg)

	specs := make([]domain.ResourceSpec, len(keys))
	for i, k := range keys {
		specs[i] = domain.ResourceSpec{Key: k}
	}
	require.NoError(t, f.coord.RegisterGroup(context.Background(), "show-1", specs))
	return f
}

func (f *coordinatorFixture) reserve(requester string, keys ...string) (*domain.Booking, error) {
	return f.coord.ReserveAndBook(context.Background(), &ReserveRequest{
		RequesterID:  requester,
		GroupID:      "show-1",
		ResourceKeys: keys,
	})
}

func (f *coordinatorFixture) state(t *testing.T, key string) domain.ResourceState {
	t.Helper()
	resources, err := f.registry.Snapshot("show-1")
	require.NoError(t, err)
	for _, r := range resources {
		if r.Key == key {
			return r.State
		}
	}
	t.Fatalf("resource %s not found", key)
	return ""
}

func TestReserveAndBook_Success(t *testing.T) {
	f := newCoordinatorFixture(t, []string{"A", "B", "C"})

	booking, err := f.reserve("alice", "A", "B")
	require.NoError(t, err)

	assert.Equal(t, "hold-1", booking.ID)
	assert.Equal(t, "alice", booking.RequesterID)
	assert.Equal(t, []string{"A", "B"}, booking.ResourceKeys)
	assert.Equal(t, 100.0, booking.TotalPrice)
	assert.Equal(t, "USD", booking.Currency)
	assert.Equal(t, pricing.NameStandard, booking.Pricing)
	assert.Equal(t, "txn-1", booking.Payment.TransactionID)
	assert.True(t, booking.IsConfirmed())

	assert.Equal(t, domain.ResourceStateBooked, f.state(t, "A"))
	assert.Equal(t, domain.ResourceStateBooked, f.state(t, "B"))
	assert.Equal(t, domain.ResourceStateAvailable, f.state(t, "C"))

	assert.Equal(t, 0, f.coord.PendingExpiries())
	assert.Equal(t, 0, f.sched.Pending())
	assert.Equal(t, []domain.ReservationEventType{domain.EventHoldCreated, domain.EventBookingConfirmed}, f.publisher.Types())
}

func TestReserveAndBook_Overlap(t *testing.T) {
	f := newCoordinatorFixture(t, []string{"A", "B", "C"})

	_, err := f.reserve("alice", "A", "B")
	require.NoError(t, err)

	_, err = f.reserve("bob", "B", "C")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrResourceUnavailable)

	failure, ok := domain.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureResourceUnavailable, failure.Kind)
	assert.Equal(t, []domain.ResourceConflict{{Key: "B", State: domain.ResourceStateBooked}}, failure.Conflicts)

	assert.Equal(t, domain.ResourceStateAvailable, f.state(t, "C"), "rejected hold must not touch C")
	assert.Equal(t, 1, f.gateway.chargeCount(), "rejected requester is never charged")
}

func TestReserveAndBook_ConcurrentOverlap(t *testing.T) {
	f := newCoordinatorFixture(t, []string{"A", "B", "C"})

	const requesters = 20
	var wg sync.WaitGroup
	var successes, unavailable atomic.Int32
	for i := 0; i < requesters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys := []string{"A", "B"}
			if i%2 == 1 {
				keys = []string{"B", "C"}
			}
			_, err := f.reserve(fmt.Sprintf("user-%d", i), keys...)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, domain.ErrResourceUnavailable):
				unavailable.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load(), "B can be booked only once")
	assert.Equal(t, int32(requesters-1), unavailable.Load())
	assert.Equal(t, domain.ResourceStateBooked, f.state(t, "B"))
	assert.Equal(t, 0, f.coord.PendingExpiries())
}

func TestReserveAndBook_HoldExpiresDuringPayment(t *testing.T) {
	tests := []struct {
		name string
		// pay simulates a slow payment of 50ms against a 10ms hold
		pay       func(f *coordinatorFixture)
		wantTypes []domain.ReservationEventType
	}{
		{
			name: "deadline passes before the timer runs",
			pay:  func(f *coordinatorFixture) { f.clock.Advance(50 * time.Millisecond) },
			wantTypes: []domain.ReservationEventType{
				domain.EventHoldCreated, domain.EventBookingLost,
			},
		},
		{
			name: "timer releases the hold first",
			pay:  func(f *coordinatorFixture) { f.sched.Advance(50 * time.Millisecond) },
			wantTypes: []domain.ReservationEventType{
				domain.EventHoldCreated, domain.EventHoldExpired, domain.EventBookingLost,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCoordinatorFixture(t, []string{"A"})
			f.gateway.ChargeFunc = func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
				tt.pay(f)
				return &gateway.ChargeResponse{Success: true, TransactionID: "txn-late", Status: gateway.StatusCompleted}, nil
			}

			_, err := f.coord.ReserveAndBook(context.Background(), &ReserveRequest{
				RequesterID:  "alice",
				GroupID:      "show-1",
				ResourceKeys: []string{"A"},
				TTL:          10 * time.Millisecond,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrHoldExpired)

			failure, ok := domain.AsFailure(err)
			require.True(t, ok)
			assert.Equal(t, domain.FailureHoldExpired, failure.Kind)
			assert.Equal(t, "txn-late", failure.TransactionID)
			assert.Equal(t, 50.0, failure.Amount)
			assert.False(t, failure.Refunded)

			assert.Equal(t, domain.ResourceStateAvailable, f.state(t, "A"))
			assert.Equal(t, 0, f.coord.PendingExpiries())
			assert.Equal(t, 0, f.sched.Pending())
			assert.Equal(t, tt.wantTypes, f.publisher.Types())
		})
	}
}

func TestReserveAndBook_AutoRefund(t *testing.T) {
	f := newCoordinatorFixture(t, []string{"A"}, withAutoRefund())

	var refunded string
	f.gateway.ChargeFunc = func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
		f.clock.Advance(2 * time.Minute)
		return &gateway.ChargeResponse{Success: true, TransactionID: "txn-9", Status: gateway.StatusCompleted}, nil
	}
	f.gateway.RefundFunc = func(ctx context.Context, transactionID string, amount float64) error {
		refunded = transactionID
		return nil
	}

	_, err := f.reserve("alice", "A")
	failure, ok := domain.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureHoldExpired, failure.Kind)
	assert.True(t, failure.Refunded)
	assert.Equal(t, "txn-9", refunded)
}

func TestReserveAndBook_PaymentFailure(t *testing.T) {
	tests := []struct {
		name   string
		charge func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error)
	}{
		{
			name: "declined",
			charge: func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
				return &gateway.ChargeResponse{
					Success:       false,
					TransactionID: "txn-declined",
					Status:        gateway.StatusFailed,
					FailureReason: "Card declined",
				}, nil
			},
		},
		{
			name: "gateway unreachable",
			charge: func(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResponse, error) {
				return nil, errors.New("connection refused")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCoordinatorFixture(t, []string{"A", "B"})
			f.gateway.ChargeFunc = tt.charge

			_, err := f.reserve("alice", "A", "B")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrPaymentFailed)

			failure, ok := domain.AsFailure(err)
			require.True(t, ok)
			assert.Equal(t, domain.FailurePaymentFailed, failure.Kind)
			assert.Equal(t, "hold-1", failure.HoldID)

			assert.Equal(t, domain.ResourceStateAvailable, f.state(t, "A"))
			assert.Equal(t, domain.ResourceStateAvailable, f.state(t, "B"))
			assert.Equal(t, 0, f.coord.PendingExpiries())
			assert.Equal(t, []domain.ReservationEventType{domain.EventHoldCreated, domain.EventHoldReleased}, f.publisher.Types())

			// the released resources can be booked by the next requester
			f.gateway.ChargeFunc = nil
			_, err = f.reserve("bob", "A", "B")
			assert.NoError(t, err)
		})
	}
}

func TestReserveAndBook_SchedulingFailure(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC))
	reg := registry.New(&registry.Config{Clock: clk})
	gw := &MockGateway{}
	coord := NewReservationCoordinator(reg, failingScheduler{}, gw, nil, &CoordinatorConfig{Clock: clk})
	require.NoError(t, coord.RegisterGroup(context.Background(), "show-1", []domain.ResourceSpec{{Key: "A"}}))

	_, err := coord.ReserveAndBook(context.Background(), &ReserveRequest{
		RequesterID:  "alice",
		GroupID:      "show-1",
		ResourceKeys: []string{"A"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, scheduler.ErrSchedulerClosed)
	_, isFailure := domain.AsFailure(err)
	assert.False(t, isFailure)

	av, err := coord.Availability(context.Background(), "show-1")
	require.NoError(t, err)
	assert.Equal(t, 1, av.Available)
	assert.Zero(t, gw.chargeCount())
}

func TestReserveAndBook_Validation(t *testing.T) {
	f := newCoordinatorFixture(t, []string{"A"})
	ctx := context.Background()

	_, err := f.coord.ReserveAndBook(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidBooking)

	_, err = f.coord.ReserveAndBook(ctx, &ReserveRequest{RequesterID: "alice", GroupID: "missing", ResourceKeys: []string{"A"}})
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)

	_, err = f.reserve("alice")
	assert.ErrorIs(t, err, domain.ErrEmptyResourceSet)

	_, err = f.reserve("alice", "Z")
	assert.ErrorIs(t, err, domain.ErrUnknownResource)

	assert.Zero(t, f.gateway.chargeCount())
	assert.Empty(t, f.publisher.Types())
}

func TestReserveAndBook_PricingOverride(t *testing.T) {
	f := newCoordinatorFixture(t, []string{"A", "B"})

	booking, err := f.coord.ReserveAndBook(context.Background(), &ReserveRequest{
		RequesterID:  "alice",
		GroupID:      "show-1",
		ResourceKeys: []string{"A", "B"},
		Pricing:      pricing.NewWeekendPricing(),
	})
	require.NoError(t, err)
	assert.Equal(t, 120.0, booking.TotalPrice)
	assert.Equal(t, pricing.NameWeekend, booking.Pricing)
}

func TestReserveAndBook_PublishErrorsIgnored(t *testing.T) {
	f := newCoordinatorFixture(t, []string{"A"})
	f.publisher.err = errors.New("broker down")

	booking, err := f.reserve("alice", "A")
	require.NoError(t, err)
	assert.True(t, booking.IsConfirmed())
	assert.Equal(t, domain.ResourceStateBooked, f.state(t, "A"))
}

func TestCancelBooking(t *testing.T) {
	f := newCoordinatorFixture(t, []string{"A", "B"})
	ctx := context.Background()

	booking, err := f.reserve("alice", "A")
	require.NoError(t, err)

	result, err := f.coord.CancelBooking(ctx, booking)
	require.NoError(t, err)
	assert.Equal(t, domain.CancelStatusCancelled, result.Status)
	assert.Equal(t, 1, result.Released)
	assert.Equal(t, domain.ResourceStateAvailable, f.state(t, "A"))
	assert.True(t, booking.IsConfirmed(), "caller's booking is not mutated")

	result, err = f.coord.CancelBooking(ctx, booking)
	require.NoError(t, err)
	assert.Equal(t, domain.CancelStatusNotFound, result.Status)

	// the freed resource can be held again
	again, err := f.reserve("bob", "A")
	require.NoError(t, err)
	assert.Equal(t, "bob", again.RequesterID)

	// and the old booking cannot cancel the new one
	result, err = f.coord.CancelBooking(ctx, booking)
	require.NoError(t, err)
	assert.Equal(t, domain.CancelStatusNotFound, result.Status)
	assert.Equal(t, domain.ResourceStateBooked, f.state(t, "A"))

	_, err = f.coord.CancelBooking(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidBooking)

	assert.Contains(t, f.publisher.Types(), domain.EventBookingCancelled)
}

func TestExpireStaleHolds(t *testing.T) {
	f := newCoordinatorFixture(t, []string{"A", "B"})
	ctx := context.Background()

	// a hold created behind the coordinator's back has no timer
	_, err := f.registry.TryHold("show-1", []string{"A"}, "alice", time.Second)
	require.NoError(t, err)

	n, err := f.coord.ExpireStaleHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "hold is still within its deadline")

	f.clock.Advance(2 * time.Second)
	n, err = f.coord.ExpireStaleHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.ResourceStateAvailable, f.state(t, "A"))
	assert.Equal(t, []domain.ReservationEventType{domain.EventHoldExpired}, f.publisher.Types())

	n, err = f.coord.ExpireStaleHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGroupsAndSnapshot(t *testing.T) {
	f := newCoordinatorFixture(t, []string{"A", "B"})
	ctx := context.Background()

	require.NoError(t, f.coord.RegisterGroup(ctx, "show-0", []domain.ResourceSpec{{Key: "X"}}))
	assert.ErrorIs(t, f.coord.RegisterGroup(ctx, "show-0", []domain.ResourceSpec{{Key: "X"}}), domain.ErrGroupAlreadyExists)
	assert.Equal(t, []string{"show-0", "show-1"}, f.coord.Groups(ctx))

	resources, err := f.coord.Snapshot(ctx, "show-1")
	require.NoError(t, err)
	assert.Len(t, resources, 2)

	_, err = f.coord.Snapshot(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)
}
