package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is implemented by optional dependencies such as Redis
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ExpiryCounter reports the number of armed expiry timers
type ExpiryCounter interface {
	PendingExpiries() int
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	redis    HealthChecker
	expiries ExpiryCounter
}

// NewHealthHandler creates a new HealthHandler. redis may be nil.
func NewHealthHandler(redis HealthChecker, expiries ExpiryCounter) *HealthHandler {
	return &HealthHandler{
		redis:    redis,
		expiries: expiries,
	}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// Health returns a simple health check (liveness probe)
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready returns a readiness check (readiness probe)
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string)
	allHealthy := true

	if h.redis != nil {
		if err := h.redis.HealthCheck(ctx); err != nil {
			components["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			components["redis"] = "healthy"
		}
	} else {
		components["redis"] = "not configured"
	}

	if h.expiries != nil {
		components["pending_expiries"] = strconv.Itoa(h.expiries.PendingExpiries())
	}

	resp := ReadyResponse{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}

	if allHealthy {
		resp.Status = "ready"
		c.JSON(http.StatusOK, resp)
	} else {
		resp.Status = "not ready"
		c.JSON(http.StatusServiceUnavailable, resp)
	}
}
