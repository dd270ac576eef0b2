package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instant returns a retrier that never sleeps and has no jitter
func instant(cfg *Config) *Retrier {
	r := New(cfg)
	r.jitter = func() float64 { return 0.5 }
	r.wait = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return r
}

func TestNew_Defaults(t *testing.T) {
	r := New(&Config{MaxRetries: -1, JitterFactor: 3})
	assert.Equal(t, 0, r.config.MaxRetries)
	assert.Equal(t, time.Second, r.config.InitialInterval)
	assert.Equal(t, 30*time.Second, r.config.MaxInterval)
	assert.Equal(t, 2.0, r.config.Multiplier)
	assert.Equal(t, 1.0, r.config.JitterFactor)

	cfg := &Config{MaxRetries: 2}
	New(cfg)
	assert.Zero(t, cfg.InitialInterval, "caller config must not be mutated")
}

func TestRetrier_Do(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name         string
		failures     int
		err          error
		maxRetries   int
		wantAttempts int
		wantErr      error
	}{
		{name: "first attempt succeeds", failures: 0, maxRetries: 3, wantAttempts: 1},
		{name: "succeeds after retries", failures: 2, err: boom, maxRetries: 3, wantAttempts: 3},
		{name: "exhausts retries", failures: 10, err: boom, maxRetries: 2, wantAttempts: 3, wantErr: ErrMaxRetriesExceeded},
		{name: "permanent error stops", failures: 10, err: Permanent(boom), maxRetries: 5, wantAttempts: 1, wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			res := instant(&Config{MaxRetries: tt.maxRetries}).Do(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})

			assert.Equal(t, tt.wantAttempts, res.Attempts)
			assert.Equal(t, tt.wantAttempts, calls)
			if tt.wantErr == nil {
				assert.NoError(t, res.Err)
				return
			}
			assert.ErrorIs(t, res.Err, tt.wantErr)
			assert.ErrorIs(t, res.LastErr, boom)
		})
	}
}

func TestRetrier_ExhaustedWrapsLastError(t *testing.T) {
	boom := errors.New("broker down")
	res := instant(&Config{MaxRetries: 1}).Do(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, res.Err, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, res.Err, boom)
}

func TestRetrier_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	res := instant(&Config{MaxRetries: 5}).Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, res.Err, ErrContextCanceled)
	assert.Equal(t, 1, calls)
}

func TestRetrier_Notify(t *testing.T) {
	var waits []time.Duration
	r := instant(&Config{MaxRetries: 3, InitialInterval: 100 * time.Millisecond, Multiplier: 2})

	r.DoNotify(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	}, func(attempt int, err error, wait time.Duration) {
		waits = append(waits, wait)
	})

	require.Len(t, waits, 3)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, waits)
}

func TestRetrier_Backoff(t *testing.T) {
	r := New(&Config{InitialInterval: time.Second, MaxInterval: 5 * time.Second, Multiplier: 2, JitterFactor: 0.1})

	r.jitter = func() float64 { return 1 }
	assert.Equal(t, 1100*time.Millisecond, r.Backoff(0))

	r.jitter = func() float64 { return 0 }
	assert.Equal(t, 1800*time.Millisecond, r.Backoff(1))

	assert.Equal(t, 5*time.Second, r.Backoff(10), "capped at max interval")
}

func TestDo_RealSleep(t *testing.T) {
	calls := 0
	err := Do(context.Background(), &Config{MaxRetries: 1, InitialInterval: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}
