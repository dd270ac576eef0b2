package di

import (
	"context"
	"testing"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/prohmpiriya/booking-rush-reservation/internal/dto"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "reservation-test", Environment: "development"},
		Reservation: config.ReservationConfig{
			HoldTTL:        time.Minute,
			Currency:       "USD",
			Pricing:        "standard",
			SweepInterval:  time.Hour,
			PublishTimeout: time.Second,
		},
		Payment: config.PaymentConfig{Gateway: "mock", MockSuccessRate: 1, MockDelayMs: 0},
	}
}

func TestNewContainer_RequiresConfig(t *testing.T) {
	_, err := NewContainer(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewContainer_UnknownGateway(t *testing.T) {
	cfg := testConfig()
	cfg.Payment.Gateway = "paypal"

	_, err := NewContainer(context.Background(), &ContainerConfig{Config: cfg})
	assert.Error(t, err)
}

func TestNewContainer_UnknownPricing(t *testing.T) {
	cfg := testConfig()
	cfg.Reservation.Pricing = "surge"

	_, err := NewContainer(context.Background(), &ContainerConfig{Config: cfg})
	assert.ErrorIs(t, err, domain.ErrInvalidPricing)
}

func TestContainer_EndToEnd(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, &ContainerConfig{Config: testConfig()})
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	require.NoError(t, c.Coordinator.RegisterGroup(ctx, "show-1", []domain.ResourceSpec{
		{Key: "A1"}, {Key: "A2"}, {Key: "A3"},
	}))

	booking, err := c.BookingService.Reserve(ctx, "user-1", &dto.ReserveRequest{
		GroupID:      "show-1",
		ResourceKeys: []string{"A1", "A2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "CONFIRMED", booking.Status)
	assert.Equal(t, 0, c.Coordinator.PendingExpiries(), "confirmed hold has no timer")

	_, err = c.BookingService.Reserve(ctx, "user-2", &dto.ReserveRequest{
		GroupID:      "show-1",
		ResourceKeys: []string{"A2", "A3"},
	})
	f, ok := domain.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, domain.FailureResourceUnavailable, f.Kind)

	availability, err := c.Coordinator.Availability(ctx, "show-1")
	require.NoError(t, err)
	assert.Equal(t, 2, availability.Booked)
	assert.Equal(t, 1, availability.Available)

	require.NoError(t, c.Close(ctx))
	assert.False(t, c.HoldSweeper.GetStats().IsRunning)
}
