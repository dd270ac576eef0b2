package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailure_MatchesKindSentinel(t *testing.T) {
	tests := []struct {
		kind     FailureKind
		sentinel error
	}{
		{FailureResourceUnavailable, ErrResourceUnavailable},
		{FailurePaymentFailed, ErrPaymentFailed},
		{FailureHoldExpired, ErrHoldExpired},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fmt.Errorf("reserve: %w", &Failure{Kind: tt.kind})

			assert.ErrorIs(t, err, tt.sentinel)
			for _, other := range tests {
				if other.kind != tt.kind {
					assert.NotErrorIs(t, err, other.sentinel)
				}
			}

			f, ok := AsFailure(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, f.Kind)
		})
	}
}

func TestFailure_UnwrapsCause(t *testing.T) {
	cause := errors.New("card declined")
	err := &Failure{Kind: FailurePaymentFailed, Detail: "charge rejected", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrPaymentFailed)
	assert.Equal(t, "PAYMENT_FAILED: charge rejected", err.Error())
	assert.Equal(t, "HOLD_EXPIRED", (&Failure{Kind: FailureHoldExpired}).Error())
}

func TestAsFailure_PlainError(t *testing.T) {
	f, ok := AsFailure(ErrGroupNotFound)
	assert.False(t, ok)
	assert.Nil(t, f)
}

func TestUnavailableError(t *testing.T) {
	err := &UnavailableError{
		GroupID: "show-1",
		Conflicts: []ResourceConflict{
			{Key: "A", State: ResourceStateHeld},
			{Key: "B", State: ResourceStateBooked},
		},
	}

	assert.ErrorIs(t, err, ErrResourceUnavailable)
	assert.True(t, IsConflictError(err))
	assert.Equal(t, "group show-1: A is HELD, B is BOOKED", err.Error())
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsNotFoundError(fmt.Errorf("wrap: %w", ErrHoldNotFound)))
	assert.True(t, IsNotFoundError(ErrGroupNotFound))
	assert.False(t, IsNotFoundError(ErrHoldExpired))

	assert.True(t, IsValidationError(ErrUnknownResource))
	assert.True(t, IsValidationError(ErrInvalidPricing))
	assert.False(t, IsValidationError(ErrResourceUnavailable))

	assert.True(t, IsExpiredError(&Failure{Kind: FailureHoldExpired}))
	assert.False(t, IsExpiredError(&Failure{Kind: FailurePaymentFailed}))
}

func TestHoldToken(t *testing.T) {
	created := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	token := &HoldToken{
		Resources: []Resource{{Key: "B"}, {Key: "A"}},
		CreatedAt: created,
		ExpiresAt: created.Add(10 * time.Second),
	}

	assert.Equal(t, []string{"B", "A"}, token.ResourceKeys())
	assert.Equal(t, 10*time.Second, token.TTL())
	assert.False(t, token.IsExpiredAt(created.Add(10*time.Second)))
	assert.True(t, token.IsExpiredAt(created.Add(10*time.Second+time.Nanosecond)))
}

func TestBooking_MarkCancelled(t *testing.T) {
	b := &Booking{ID: "b1", RequesterID: "u1", Status: BookingStatusConfirmed}
	first := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	b.MarkCancelled(first)
	b.MarkCancelled(first.Add(time.Hour))

	assert.True(t, b.IsCancelled())
	require.NotNil(t, b.CancelledAt)
	assert.Equal(t, first, *b.CancelledAt)
	assert.True(t, b.BelongsTo("u1"))
	assert.False(t, b.BelongsTo("u2"))
}

func TestBooking_CloneSharesNothing(t *testing.T) {
	at := time.Now()
	b := &Booking{ResourceKeys: []string{"A"}, Resources: []Resource{{Key: "A"}}, CancelledAt: &at}

	c := b.Clone()
	c.ResourceKeys[0] = "Z"
	c.Resources[0].Key = "Z"
	*c.CancelledAt = at.Add(time.Hour)

	assert.Equal(t, "A", b.ResourceKeys[0])
	assert.Equal(t, "A", b.Resources[0].Key)
	assert.Equal(t, at, *b.CancelledAt)
}
