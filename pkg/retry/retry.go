package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Common errors
var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrContextCanceled    = errors.New("context canceled during retry")
)

// Config contains retry configuration
type Config struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// InitialInterval is the first backoff interval (default: 1s)
	InitialInterval time.Duration
	// MaxInterval caps the backoff interval (default: 30s)
	MaxInterval time.Duration
	// Multiplier grows the interval after each retry (default: 2.0)
	Multiplier float64
	// JitterFactor spreads each interval by ±factor (0-1)
	JitterFactor float64
}

// DefaultConfig returns default retry configuration: 1s, 2s, 4s, 8s, 16s
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// ConnectConfig is tuned for dependency connections at startup
func ConnectConfig() *Config {
	return &Config{
		MaxRetries:      4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// NotifyFunc is called before waiting for the next attempt
type NotifyFunc func(attempt int, err error, wait time.Duration)

// PermanentError stops the retry loop immediately
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks an error as not retryable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Result describes a finished retry loop
type Result struct {
	// Err is the final error, nil on success
	Err error
	// Attempts counts every call to the operation
	Attempts int
	// Duration includes time spent waiting
	Duration time.Duration
	// LastErr is the error of the last attempt
	LastErr error
}

// Retrier runs operations with exponential backoff
type Retrier struct {
	config *Config
	jitter func() float64
	wait   func(ctx context.Context, d time.Duration) error
}

// New creates a new Retrier. Zero fields of config take their defaults.
func New(config *Config) *Retrier {
	cfg := DefaultConfig()
	if config != nil {
		c := *config
		if c.InitialInterval <= 0 {
			c.InitialInterval = cfg.InitialInterval
		}
		if c.MaxInterval <= 0 {
			c.MaxInterval = cfg.MaxInterval
		}
		if c.Multiplier <= 0 {
			c.Multiplier = cfg.Multiplier
		}
		c.JitterFactor = math.Max(0, math.Min(1, c.JitterFactor))
		if c.MaxRetries < 0 {
			c.MaxRetries = 0
		}
		cfg = &c
	}

	return &Retrier{
		config: cfg,
		jitter: rand.Float64,
		wait:   sleep,
	}
}

// Do executes op with backoff until it succeeds or gives up
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	return r.DoNotify(ctx, op, nil)
}

// DoNotify is Do with a hook invoked before each backoff wait
func (r *Retrier) DoNotify(ctx context.Context, op Operation, notify NotifyFunc) *Result {
	start := time.Now()
	res := &Result{}
	finish := func(err error) *Result {
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return finish(ErrContextCanceled)
		}

		res.Attempts++
		err := op(ctx)
		if err == nil {
			return finish(nil)
		}
		res.LastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			res.LastErr = perm.Err
			return finish(perm.Err)
		}
		if attempt >= r.config.MaxRetries {
			return finish(fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, res.Attempts, err))
		}

		interval := r.Backoff(attempt)
		if notify != nil {
			notify(attempt+1, err, interval)
		}
		if r.wait(ctx, interval) != nil {
			return finish(ErrContextCanceled)
		}
	}
}

// Backoff returns the wait before retry number attempt+1
func (r *Retrier) Backoff(attempt int) time.Duration {
	interval := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))

	if r.config.JitterFactor > 0 {
		spread := interval * r.config.JitterFactor
		interval += (r.jitter()*2 - 1) * spread
	}

	interval = math.Min(interval, float64(r.config.MaxInterval))
	if interval <= 0 {
		interval = float64(r.config.InitialInterval)
	}
	return time.Duration(interval)
}

// Do is a convenience function returning only the final error
func Do(ctx context.Context, config *Config, op Operation) error {
	return New(config).Do(ctx, op).Err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
