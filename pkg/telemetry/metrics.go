package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for service metrics
const MeterName = "reservation-service"

// MetricOpts describes an instrument
type MetricOpts struct {
	Name        string
	Description string
	Unit        string
}

// Counter is a monotonically increasing int64 instrument
type Counter struct {
	c metric.Int64Counter
}

// Histogram records float64 distributions
type Histogram struct {
	h metric.Float64Histogram
}

// UpDownCounter tracks a value that can go up and down
type UpDownCounter struct {
	c metric.Int64UpDownCounter
}

func meter() metric.Meter {
	return otel.Meter(MeterName)
}

// NewCounter creates a counter on the global meter provider
func NewCounter(opts MetricOpts) (*Counter, error) {
	c, err := meter().Int64Counter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Counter{c: c}, nil
}

// NewHistogramWithBuckets creates a histogram with explicit bucket boundaries
func NewHistogramWithBuckets(opts MetricOpts, buckets []float64) (*Histogram, error) {
	h, err := meter().Float64Histogram(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		return nil, err
	}
	return &Histogram{h: h}, nil
}

// NewUpDownCounter creates an up-down counter
func NewUpDownCounter(opts MetricOpts) (*UpDownCounter, error) {
	c, err := meter().Int64UpDownCounter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &UpDownCounter{c: c}, nil
}

func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil || n <= 0 {
		return
	}
	c.c.Add(ctx, n, metric.WithAttributes(attrs...))
}

func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.h.Record(ctx, v, metric.WithAttributes(attrs...))
}

func (c *UpDownCounter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

func (c *UpDownCounter) Dec(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, -1, attrs...)
}

func (c *UpDownCounter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil || n == 0 {
		return
	}
	c.c.Add(ctx, n, metric.WithAttributes(attrs...))
}
