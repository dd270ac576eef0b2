package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

func newBooking(id, requester string, confirmedAt time.Time) *domain.Booking {
	return &domain.Booking{
		ID:           id,
		RequesterID:  requester,
		GroupID:      "show-1",
		ResourceKeys: []string{"A1", "A2"},
		TotalPrice:   100,
		Currency:     "USD",
		Status:       domain.BookingStatusConfirmed,
		ConfirmedAt:  confirmedAt,
	}
}

func TestMemoryBookingRepository_Create(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()

	b := newBooking("b-1", "alice", base)
	require.NoError(t, repo.Create(ctx, b))

	assert.ErrorIs(t, repo.Create(ctx, b), domain.ErrBookingAlreadyExists)
	assert.ErrorIs(t, repo.Create(ctx, nil), domain.ErrInvalidBooking)
	assert.ErrorIs(t, repo.Create(ctx, &domain.Booking{}), domain.ErrInvalidBooking)

	// the ledger keeps its own copy
	b.ResourceKeys[0] = "Z9"
	got, err := repo.GetByID(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, got.ResourceKeys)
}

func TestMemoryBookingRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	require.NoError(t, repo.Create(ctx, newBooking("b-1", "alice", base)))
	got, err := repo.GetByID(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.RequesterID)

	got.Status = domain.BookingStatusCancelled
	again, _ := repo.GetByID(ctx, "b-1")
	assert.True(t, again.IsConfirmed())
}

func TestMemoryBookingRepository_GetByRequesterID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newBooking(fmt.Sprintf("b-%d", i), "alice", base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.Create(ctx, newBooking("other", "bob", base)))

	tests := []struct {
		name      string
		limit     int
		offset    int
		wantIDs   []string
		wantTotal int
	}{
		{name: "all newest first", limit: 0, offset: 0, wantIDs: []string{"b-4", "b-3", "b-2", "b-1", "b-0"}, wantTotal: 5},
		{name: "first page", limit: 2, offset: 0, wantIDs: []string{"b-4", "b-3"}, wantTotal: 5},
		{name: "last page", limit: 2, offset: 4, wantIDs: []string{"b-0"}, wantTotal: 5},
		{name: "past the end", limit: 2, offset: 10, wantIDs: []string{}, wantTotal: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := repo.GetByRequesterID(ctx, "alice", tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)

			ids := make([]string, len(got))
			for i, b := range got {
				ids[i] = b.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	got, total, err := repo.GetByRequesterID(ctx, "nobody", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, total)
}

func TestMemoryBookingRepository_MarkCancelled(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBookingRepository()
	require.NoError(t, repo.Create(ctx, newBooking("b-1", "alice", base)))

	at := base.Add(time.Hour)
	got, err := repo.MarkCancelled(ctx, "b-1", at)
	require.NoError(t, err)
	assert.True(t, got.IsCancelled())
	require.NotNil(t, got.CancelledAt)
	assert.Equal(t, at, *got.CancelledAt)

	// a second cancellation keeps the first timestamp
	got, err = repo.MarkCancelled(ctx, "b-1", at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, at, *got.CancelledAt)

	_, err = repo.MarkCancelled(ctx, "missing", at)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}
