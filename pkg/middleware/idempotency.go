package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/response"
	"github.com/redis/go-redis/v9"
)

const (
	// IdempotencyKeyHeader is the header name for idempotency key
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// ContextKeyIdempotencyKey is the context key for idempotency key
	ContextKeyIdempotencyKey = "idempotency_key"
	// DefaultIdempotencyTTL keeps completed responses for client retries
	DefaultIdempotencyTTL = 24 * time.Hour
	// DefaultProcessingTTL bounds how long an in-flight marker blocks retries
	DefaultProcessingTTL = 60 * time.Second
	// IdempotencyKeyPrefix is the redis key prefix for idempotency records
	IdempotencyKeyPrefix = "reservation:idempotency:"
)

// IdempotencyStatus represents the status of an idempotency record
type IdempotencyStatus string

const (
	StatusProcessing IdempotencyStatus = "processing"
	StatusCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord stores the state of an idempotent request
type IdempotencyRecord struct {
	Key          string            `json:"key"`
	Status       IdempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code"`
	ResponseBody string            `json:"response_body"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// RedisClient is the subset of go-redis the middleware needs
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyConfig holds configuration for idempotency middleware
type IdempotencyConfig struct {
	Redis RedisClient
	// TTL for completed records
	TTL time.Duration
	// ProcessingTTL for in-flight records
	ProcessingTTL time.Duration
	// RequireKey rejects requests without a key; otherwise they pass through
	RequireKey bool
	// SkipPaths is a list of paths that skip the check; a trailing * matches a prefix
	SkipPaths []string
	// Methods that are checked (default: POST, PUT, PATCH, DELETE)
	RequiredMethods []string
}

// DefaultIdempotencyConfig returns default configuration
func DefaultIdempotencyConfig(client RedisClient) *IdempotencyConfig {
	return &IdempotencyConfig{
		Redis:           client,
		TTL:             DefaultIdempotencyTTL,
		ProcessingTTL:   DefaultProcessingTTL,
		RequiredMethods: []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
	}
}

// Idempotency replays the stored response of a request already completed with
// the same X-Idempotency-Key. Keys are scoped per user, so two callers never
// see each other's responses. Redis failures fail open.
func Idempotency(config *IdempotencyConfig) gin.HandlerFunc {
	if config.TTL <= 0 {
		config.TTL = DefaultIdempotencyTTL
	}
	if config.ProcessingTTL <= 0 {
		config.ProcessingTTL = DefaultProcessingTTL
	}
	if len(config.RequiredMethods) == 0 {
		config.RequiredMethods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	}
	log := logger.Get()

	return func(c *gin.Context) {
		for _, path := range config.SkipPaths {
			if matchPath(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}
		if !isMethodRequired(c.Request.Method, config.RequiredMethods) {
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" {
			if config.RequireKey {
				c.AbortWithStatusJSON(http.StatusBadRequest, response.ErrorBody("MISSING_IDEMPOTENCY_KEY", "X-Idempotency-Key header is required"))
				return
			}
			c.Next()
			return
		}
		c.Set(ContextKeyIdempotencyKey, key)

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		}

		userID, _ := GetUserID(c)
		redisKey := recordKey(userID, key)
		requestHash := hashRequest(c.Request.Method, c.Request.URL.Path, body)
		ctx := c.Request.Context()

		existing, err := getIdempotencyRecord(ctx, config.Redis, redisKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			log.WarnContext(ctx, "Idempotency lookup failed, continuing without it")
			c.Next()
			return
		}
		if existing != nil {
			replay(c, existing, requestHash)
			return
		}

		record := &IdempotencyRecord{
			Key:         key,
			Status:      StatusProcessing,
			RequestHash: requestHash,
			CreatedAt:   time.Now(),
		}
		if !trySetIdempotencyRecord(ctx, config.Redis, redisKey, record, config.ProcessingTTL) {
			// Lost the race to a concurrent request with the same key
			if existing, _ = getIdempotencyRecord(ctx, config.Redis, redisKey); existing != nil {
				replay(c, existing, requestHash)
				return
			}
		}

		rw := &idempotencyResponseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = rw

		c.Next()

		status := rw.status
		if status == 0 {
			status = http.StatusOK
		}

		// Server errors are not final; let the client retry with the same key
		if status >= http.StatusInternalServerError {
			if err := config.Redis.Del(ctx, redisKey).Err(); err != nil {
				log.WarnContext(ctx, "Failed to clear idempotency record")
			}
			return
		}

		now := time.Now()
		record.Status = StatusCompleted
		record.ResponseCode = status
		record.ResponseBody = rw.body.String()
		record.CompletedAt = &now
		if err := saveIdempotencyRecord(ctx, config.Redis, redisKey, record, config.TTL); err != nil {
			log.WarnContext(ctx, "Failed to store idempotency record")
		}
	}
}

func replay(c *gin.Context, record *IdempotencyRecord, requestHash string) {
	if record.RequestHash != requestHash {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, response.ErrorBody("IDEMPOTENCY_KEY_REUSED", "Idempotency key already used with different request"))
		return
	}
	if record.Status == StatusProcessing {
		c.AbortWithStatusJSON(http.StatusConflict, response.ErrorBody("REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed"))
		return
	}

	c.Header("Idempotent-Replayed", "true")
	c.Data(record.ResponseCode, "application/json; charset=utf-8", []byte(record.ResponseBody))
	c.Abort()
}

// GetIdempotencyKey extracts idempotency key from gin context
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	key, exists := c.Get(ContextKeyIdempotencyKey)
	if !exists {
		return "", false
	}
	k, ok := key.(string)
	return k, ok
}

// idempotencyResponseWriter captures response for caching
type idempotencyResponseWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *idempotencyResponseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func (w *idempotencyResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func recordKey(userID, key string) string {
	if userID == "" {
		userID = "anonymous"
	}
	return IdempotencyKeyPrefix + userID + ":" + key
}

func isMethodRequired(method string, requiredMethods []string) bool {
	for _, m := range requiredMethods {
		if method == m {
			return true
		}
	}
	return false
}

func matchPath(path, pattern string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
	}
	return path == pattern
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func getIdempotencyRecord(ctx context.Context, client RedisClient, key string) (*IdempotencyRecord, error) {
	result, err := client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var record IdempotencyRecord
	if err := json.Unmarshal([]byte(result), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func trySetIdempotencyRecord(ctx context.Context, client RedisClient, key string, record *IdempotencyRecord, ttl time.Duration) bool {
	data, err := json.Marshal(record)
	if err != nil {
		return false
	}

	ok, err := client.SetNX(ctx, key, string(data), ttl).Result()
	if err != nil {
		return false
	}
	return ok
}

func saveIdempotencyRecord(ctx context.Context, client RedisClient, key string, record *IdempotencyRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, string(data), ttl).Err()
}
