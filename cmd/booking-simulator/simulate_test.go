package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "booking-simulator", Environment: "development"},
		Reservation: config.ReservationConfig{
			Currency:       "USD",
			Pricing:        "standard",
			SweepInterval:  time.Hour,
			PublishTimeout: time.Second,
		},
	}
}

func TestSimulation_Validate(t *testing.T) {
	valid := simulation{Groups: 1, Seats: 10, Users: 5, SeatsPerUser: 2, TTL: time.Second, SuccessRate: 1}
	require.NoError(t, valid.validate())

	tests := []struct {
		name   string
		mutate func(s *simulation)
	}{
		{name: "no groups", mutate: func(s *simulation) { s.Groups = 0 }},
		{name: "no users", mutate: func(s *simulation) { s.Users = 0 }},
		{name: "too many seats per user", mutate: func(s *simulation) { s.SeatsPerUser = 11 }},
		{name: "zero ttl", mutate: func(s *simulation) { s.TTL = 0 }},
		{name: "bad success rate", mutate: func(s *simulation) { s.SuccessRate = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			assert.Error(t, s.validate())
		})
	}
}

func TestSimulation_PlanIsReproducible(t *testing.T) {
	s := simulation{Groups: 3, Seats: 30, Users: 20, SeatsPerUser: 3, Seed: 7}
	first := s.plan()
	second := s.plan()

	require.Len(t, first, 20)
	assert.Equal(t, first, second)
	for _, a := range first {
		assert.Len(t, a.keys, 3)
	}
}

func TestSimulation_NoDoubleBooking(t *testing.T) {
	s := simulation{
		Groups:       2,
		Seats:        20,
		Users:        60,
		SeatsPerUser: 2,
		Concurrency:  16,
		TTL:          10 * time.Second,
		SuccessRate:  1,
		Seed:         42,
	}

	rep, err := s.run(context.Background(), baseConfig())
	require.NoError(t, err)

	assert.Equal(t, 60, rep.Attempts)
	assert.Equal(t, 0, rep.Errors)
	assert.Equal(t, 0, rep.PaymentFailed)
	assert.Equal(t, 60, rep.Confirmed+rep.Unavailable)
	assert.Greater(t, rep.Confirmed, 0)
	assert.Empty(t, rep.Violations)

	booked := 0
	for _, a := range rep.Availability {
		booked += a.Booked
		assert.Zero(t, a.Held)
	}
	assert.Equal(t, 2*rep.Confirmed, booked)

	var out bytes.Buffer
	rep.print(&out)
	assert.Contains(t, out.String(), "verification passed")
}

func TestSimulation_SlowPaymentsLoseTheirHolds(t *testing.T) {
	s := simulation{
		Groups:       1,
		Seats:        10,
		Users:        10,
		SeatsPerUser: 1,
		Concurrency:  10,
		TTL:          10 * time.Millisecond,
		PaymentDelay: 40 * time.Millisecond,
		SuccessRate:  1,
		Seed:         1,
	}

	rep, err := s.run(context.Background(), baseConfig())
	require.NoError(t, err)

	assert.Zero(t, rep.Confirmed)
	assert.Greater(t, rep.HoldExpired, 0)
	assert.Empty(t, rep.Violations)
	assert.Zero(t, rep.Availability[0].Booked)
	assert.Equal(t, 10, rep.Availability[0].Available)
}

func TestTokenCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--user", "user-42", "--ttl", "1m"})

	require.NoError(t, cmd.Execute())

	claims, err := middleware.ValidateToken(strings.TrimSpace(out.String()), &middleware.AuthConfig{
		Secret: config.DefaultJWTSecret,
		Issuer: "booking-rush",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
}

func TestTokenCmd_RequiresUser(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token"})

	assert.Error(t, cmd.Execute())
}
