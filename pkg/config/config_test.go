package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithPath_Defaults(t *testing.T) {
	cfg, err := LoadWithPath(writeEnv(t, "APP_NAME=reservation-test\n"))
	require.NoError(t, err)

	assert.Equal(t, "reservation-test", cfg.App.Name)
	assert.Equal(t, 8083, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Reservation.HoldTTL)
	assert.Equal(t, "USD", cfg.Reservation.Currency)
	assert.Equal(t, 30*time.Second, cfg.Reservation.SweepInterval)
	assert.Equal(t, 2*time.Second, cfg.Reservation.PublishTimeout)
	assert.Equal(t, "mock", cfg.Payment.Gateway)
	assert.Equal(t, 0.95, cfg.Payment.MockSuccessRate)
	assert.Equal(t, 100, cfg.Payment.MockDelayMs)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.True(t, cfg.Idempotency.Enabled)
	assert.Equal(t, "0.0.0.0:8083", cfg.Server.Addr())
}

func TestLoadWithPath_Overrides(t *testing.T) {
	cfg, err := LoadWithPath(writeEnv(t, `
RESERVATION_HOLD_TTL=90s
RESERVATION_PRICING=calendar
RESERVATION_AUTO_REFUND=true
KAFKA_ENABLED=true
KAFKA_BROKERS=k1:9092, k2:9092
`))
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Reservation.HoldTTL)
	assert.Equal(t, "calendar", cfg.Reservation.Pricing)
	assert.True(t, cfg.Reservation.AutoRefund)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadWithPath_MissingFile(t *testing.T) {
	_, err := LoadWithPath(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:         AppConfig{Name: "svc", Environment: "development"},
			Server:      ServerConfig{Port: 8083},
			JWT:         JWTConfig{Secret: DefaultJWTSecret},
			Reservation: ReservationConfig{HoldTTL: time.Minute, SweepInterval: time.Second},
			Payment:     PaymentConfig{Gateway: "mock", MockSuccessRate: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing app name", mutate: func(c *Config) { c.App.Name = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "default secret in production", mutate: func(c *Config) { c.App.Environment = "production" }, wantErr: true},
		{name: "user header in production", mutate: func(c *Config) {
			c.App.Environment = "production"
			c.JWT.Secret = "s3cret"
			c.JWT.AllowUserHeader = true
		}, wantErr: true},
		{name: "zero hold ttl", mutate: func(c *Config) { c.Reservation.HoldTTL = 0 }, wantErr: true},
		{name: "success rate out of range", mutate: func(c *Config) { c.Payment.MockSuccessRate = 1.5 }, wantErr: true},
		{name: "stripe without key", mutate: func(c *Config) { c.Payment.Gateway = "stripe" }, wantErr: true},
		{name: "unknown gateway", mutate: func(c *Config) { c.Payment.Gateway = "paypal" }, wantErr: true},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Kafka.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
