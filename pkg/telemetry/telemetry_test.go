package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	InitWithProvider(provider, "test")
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		setGlobal(nil)
	})
	return recorder
}

func TestInit_DisabledAndNilConfig(t *testing.T) {
	defer setGlobal(nil)

	tel, err := Init(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, tel.Tracer())
	assert.NoError(t, Shutdown(context.Background()))

	tel, err = Init(context.Background(), &Config{ServiceName: "svc"})
	require.NoError(t, err)
	assert.Equal(t, "svc", tel.config.ServiceName)
}

func TestStartSpan_WithoutInit(t *testing.T) {
	setGlobal(nil)
	ctx, span := StartSpan(context.Background(), "noop")
	assert.NotNil(t, span)
	assert.Empty(t, GetTraceID(ctx))
}

func TestStartSpan_RecordsErrors(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := StartSpan(context.Background(), "service.reservation.reserve")
	SetSpanError(ctx, errors.New("boom"))
	AddSpanEvent(ctx, "hold.created")
	assert.NotEmpty(t, GetTraceID(ctx))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "service.reservation.reserve", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	require.Len(t, ended[0].Events(), 2)
}

func TestTracingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := installRecorder(t)

	router := gin.New()
	router.Use(TracingMiddleware("test"))
	router.GET("/groups/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/fail", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/groups/show-1", nil))
	assert.NotEmpty(t, w.Header().Get(TraceIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "GET /groups/:id", ended[0].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}

func TestMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()
	var (
		c *Counter
		h *Histogram
		u *UpDownCounter
	)
	assert.NotPanics(t, func() {
		c.Inc(ctx)
		h.Record(ctx, 1.5)
		u.Dec(ctx)
	})

	counter, err := NewCounter(MetricOpts{Name: "test_total", Unit: "1"})
	require.NoError(t, err)
	counter.Inc(ctx)

	hist, err := NewHistogramWithBuckets(MetricOpts{Name: "test_seconds", Unit: "s"}, []float64{0.1, 1})
	require.NoError(t, err)
	hist.Record(ctx, 0.5)

	gauge, err := NewUpDownCounter(MetricOpts{Name: "test_active", Unit: "1"})
	require.NoError(t, err)
	gauge.Inc(ctx)
	gauge.Dec(ctx)
}
