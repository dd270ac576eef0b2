package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultJWTSecret must be replaced outside development
const DefaultJWTSecret = "your-secret-key-change-in-production"

// Config holds all application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	OTel        OTelConfig        `mapstructure:"otel"`
	Reservation ReservationConfig `mapstructure:"reservation"`
	Payment     PaymentConfig     `mapstructure:"payment"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
	Topic    string   `mapstructure:"topic"`
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	Issuer         string        `mapstructure:"issuer"`
	// AllowUserHeader accepts X-User-ID without a token (development only)
	AllowUserHeader bool `mapstructure:"allow_user_header"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// ReservationConfig holds hold/confirm protocol settings
type ReservationConfig struct {
	HoldTTL        time.Duration `mapstructure:"hold_ttl"`
	Currency       string        `mapstructure:"currency"`
	Pricing        string        `mapstructure:"pricing"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	AutoRefund     bool          `mapstructure:"auto_refund"`
}

// PaymentConfig holds payment gateway settings
type PaymentConfig struct {
	Gateway         string  `mapstructure:"gateway"` // mock, stripe
	StripeSecretKey string  `mapstructure:"stripe_secret_key"`
	MockSuccessRate float64 `mapstructure:"mock_success_rate"`
	MockDelayMs     int     `mapstructure:"mock_delay_ms"`
}

// IdempotencyConfig holds idempotent request settings
type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional; environment variables are enough
	_ = v.ReadInConfig()

	return load(v)
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "reservation-service")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("APP_LOG_LEVEL", "info")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8083)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "15s")

	// Redis defaults
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "reservation-service")
	v.SetDefault("KAFKA_TOPIC", "reservation-events")

	// JWT defaults
	v.SetDefault("JWT_SECRET", DefaultJWTSecret)
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("JWT_ISSUER", "booking-rush")
	v.SetDefault("JWT_ALLOW_USER_HEADER", false)

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "reservation-service")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Reservation defaults
	v.SetDefault("RESERVATION_HOLD_TTL", "5m")
	v.SetDefault("RESERVATION_CURRENCY", "USD")
	v.SetDefault("RESERVATION_PRICING", "standard")
	v.SetDefault("RESERVATION_SWEEP_INTERVAL", "30s")
	v.SetDefault("RESERVATION_PUBLISH_TIMEOUT", "2s")
	v.SetDefault("RESERVATION_AUTO_REFUND", false)

	// Payment defaults
	v.SetDefault("PAYMENT_GATEWAY", "mock")
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("MOCK_GATEWAY_SUCCESS_RATE", 0.95)
	v.SetDefault("MOCK_GATEWAY_DELAY_MS", 100)

	// Idempotency defaults
	v.SetDefault("IDEMPOTENCY_ENABLED", true)
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")
	cfg.App.LogLevel = v.GetString("APP_LOG_LEVEL")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.ShutdownTimeout = v.GetDuration("SERVER_SHUTDOWN_TIMEOUT")

	// Redis
	cfg.Redis.Enabled = v.GetBool("REDIS_ENABLED")
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.Topic = v.GetString("KAFKA_TOPIC")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.AccessTokenTTL = v.GetDuration("JWT_ACCESS_TOKEN_TTL")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")
	cfg.JWT.AllowUserHeader = v.GetBool("JWT_ALLOW_USER_HEADER")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Reservation
	cfg.Reservation.HoldTTL = v.GetDuration("RESERVATION_HOLD_TTL")
	cfg.Reservation.Currency = v.GetString("RESERVATION_CURRENCY")
	cfg.Reservation.Pricing = v.GetString("RESERVATION_PRICING")
	cfg.Reservation.SweepInterval = v.GetDuration("RESERVATION_SWEEP_INTERVAL")
	cfg.Reservation.PublishTimeout = v.GetDuration("RESERVATION_PUBLISH_TIMEOUT")
	cfg.Reservation.AutoRefund = v.GetBool("RESERVATION_AUTO_REFUND")

	// Payment
	cfg.Payment.Gateway = v.GetString("PAYMENT_GATEWAY")
	cfg.Payment.StripeSecretKey = v.GetString("STRIPE_SECRET_KEY")
	cfg.Payment.MockSuccessRate = v.GetFloat64("MOCK_GATEWAY_SUCCESS_RATE")
	cfg.Payment.MockDelayMs = v.GetInt("MOCK_GATEWAY_DELAY_MS")

	// Idempotency
	cfg.Idempotency.Enabled = v.GetBool("IDEMPOTENCY_ENABLED")
	cfg.Idempotency.TTL = v.GetDuration("IDEMPOTENCY_TTL")

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.IsProduction() && c.JWT.Secret == DefaultJWTSecret {
		return fmt.Errorf("JWT secret must be changed in production")
	}

	if c.IsProduction() && c.JWT.AllowUserHeader {
		return fmt.Errorf("JWT_ALLOW_USER_HEADER cannot be enabled in production")
	}

	if c.Reservation.HoldTTL <= 0 {
		return fmt.Errorf("RESERVATION_HOLD_TTL must be positive")
	}

	if c.Reservation.SweepInterval <= 0 {
		return fmt.Errorf("RESERVATION_SWEEP_INTERVAL must be positive")
	}

	switch c.Payment.Gateway {
	case "mock":
		if c.Payment.MockSuccessRate < 0 || c.Payment.MockSuccessRate > 1 {
			return fmt.Errorf("MOCK_GATEWAY_SUCCESS_RATE must be between 0 and 1")
		}
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required for the stripe gateway")
		}
	default:
		return fmt.Errorf("unknown payment gateway: %s", c.Payment.Gateway)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when kafka is enabled")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
