package metrics

import (
	"context"
	"sync"

	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Hold counters
	HoldsCreated  *telemetry.Counter
	HoldsRejected *telemetry.Counter
	HoldsExpired  *telemetry.Counter
	HoldsReleased *telemetry.Counter

	// Booking counters
	BookingsConfirmed *telemetry.Counter
	BookingsLost      *telemetry.Counter
	BookingsCancelled *telemetry.Counter
	PaymentFailures   *telemetry.Counter

	// Event publishing
	EventPublishErrors *telemetry.Counter

	// Histograms
	HoldToConfirmDuration *telemetry.Histogram
	PaymentDuration       *telemetry.Histogram

	// Gauges
	ActiveHolds *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all reservation metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	counters := []struct {
		target **telemetry.Counter
		opts   telemetry.MetricOpts
	}{
		{&HoldsCreated, telemetry.MetricOpts{Name: "reservation_holds_created_total", Description: "Total number of holds granted", Unit: "1"}},
		{&HoldsRejected, telemetry.MetricOpts{Name: "reservation_holds_rejected_total", Description: "Total number of holds rejected for unavailable resources", Unit: "1"}},
		{&HoldsExpired, telemetry.MetricOpts{Name: "reservation_holds_expired_total", Description: "Total number of holds released by their timer", Unit: "1"}},
		{&HoldsReleased, telemetry.MetricOpts{Name: "reservation_holds_released_total", Description: "Total number of holds released explicitly", Unit: "1"}},
		{&BookingsConfirmed, telemetry.MetricOpts{Name: "reservation_bookings_confirmed_total", Description: "Total number of bookings confirmed", Unit: "1"}},
		{&BookingsLost, telemetry.MetricOpts{Name: "reservation_bookings_lost_total", Description: "Total number of paid holds that expired before confirmation", Unit: "1"}},
		{&BookingsCancelled, telemetry.MetricOpts{Name: "reservation_bookings_cancelled_total", Description: "Total number of bookings cancelled", Unit: "1"}},
		{&PaymentFailures, telemetry.MetricOpts{Name: "reservation_payment_failures_total", Description: "Total number of declined or failed payments", Unit: "1"}},
		{&EventPublishErrors, telemetry.MetricOpts{Name: "reservation_event_publish_errors_total", Description: "Total number of events that could not be published", Unit: "1"}},
	}
	for _, c := range counters {
		if *c.target, err = telemetry.NewCounter(c.opts); err != nil {
			return err
		}
	}

	HoldToConfirmDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "reservation_hold_to_confirm_seconds",
		Description: "Duration from hold to confirmation",
		Unit:        "s",
	}, []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 300, 600})
	if err != nil {
		return err
	}

	PaymentDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "reservation_payment_duration_seconds",
		Description: "Duration of payment gateway calls",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
	if err != nil {
		return err
	}

	ActiveHolds, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "reservation_active_holds",
		Description: "Current number of outstanding holds",
		Unit:        "1",
	})
	return err
}

// RecordHoldCreated records a granted hold
func RecordHoldCreated(ctx context.Context, groupID string, resources int) {
	HoldsCreated.Inc(ctx,
		attribute.String("group_id", groupID),
		attribute.Int("resources", resources),
	)
	ActiveHolds.Inc(ctx)
}

// RecordHoldRejected records a hold rejected for unavailable resources
func RecordHoldRejected(ctx context.Context, groupID string) {
	HoldsRejected.Inc(ctx, attribute.String("group_id", groupID))
}

// RecordHoldExpired records holds released by the expiry timer or sweeper
func RecordHoldExpired(ctx context.Context, groupID string, count int64) {
	HoldsExpired.Add(ctx, count, attribute.String("group_id", groupID))
	ActiveHolds.Add(ctx, -count)
}

// RecordHoldReleased records an explicit release
func RecordHoldReleased(ctx context.Context, groupID, reason string) {
	HoldsReleased.Inc(ctx,
		attribute.String("group_id", groupID),
		attribute.String("reason", reason),
	)
	ActiveHolds.Dec(ctx)
}

// RecordConfirmation records a confirmed booking
func RecordConfirmation(ctx context.Context, groupID string, holdSeconds float64) {
	BookingsConfirmed.Inc(ctx, attribute.String("group_id", groupID))
	HoldToConfirmDuration.Record(ctx, holdSeconds, attribute.String("group_id", groupID))
	ActiveHolds.Dec(ctx)
}

// RecordBookingLost records a paid hold that expired before confirmation
func RecordBookingLost(ctx context.Context, groupID string) {
	BookingsLost.Inc(ctx, attribute.String("group_id", groupID))
}

// RecordCancellation records a cancelled booking
func RecordCancellation(ctx context.Context, groupID string) {
	BookingsCancelled.Inc(ctx, attribute.String("group_id", groupID))
}

// RecordPayment records the latency and outcome of a gateway call
func RecordPayment(ctx context.Context, gateway string, seconds float64, success bool) {
	PaymentDuration.Record(ctx, seconds,
		attribute.String("gateway", gateway),
		attribute.Bool("success", success),
	)
	if !success {
		PaymentFailures.Inc(ctx, attribute.String("gateway", gateway))
	}
}

// RecordPublishError records an event that could not be published
func RecordPublishError(ctx context.Context, eventType string) {
	EventPublishErrors.Inc(ctx, attribute.String("event_type", eventType))
}
