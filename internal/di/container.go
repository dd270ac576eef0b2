package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/prohmpiriya/booking-rush-reservation/internal/clock"
	"github.com/prohmpiriya/booking-rush-reservation/internal/gateway"
	"github.com/prohmpiriya/booking-rush-reservation/internal/handler"
	"github.com/prohmpiriya/booking-rush-reservation/internal/pricing"
	"github.com/prohmpiriya/booking-rush-reservation/internal/registry"
	"github.com/prohmpiriya/booking-rush-reservation/internal/repository"
	"github.com/prohmpiriya/booking-rush-reservation/internal/scheduler"
	"github.com/prohmpiriya/booking-rush-reservation/internal/service"
	"github.com/prohmpiriya/booking-rush-reservation/internal/worker"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/redis"
)

// Container holds all dependencies for the reservation service
type Container struct {
	Config *config.Config

	// Infrastructure
	Redis     *redis.Client
	Registry  *registry.Registry
	Scheduler *scheduler.TimerScheduler
	Gateway   gateway.PaymentGateway

	// Repositories
	BookingRepo repository.BookingRepository

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	Coordinator    service.ReservationCoordinator
	BookingService service.BookingService

	// Workers
	HoldSweeper *worker.HoldSweeper

	// Handlers
	HealthHandler  *handler.HealthHandler
	GroupHandler   *handler.GroupHandler
	BookingHandler *handler.BookingHandler
}

// ContainerConfig contains configuration for building the container.
// Optional fields left nil are built from Config.
type ContainerConfig struct {
	Config *config.Config
	Redis  *redis.Client
	// EventPublisher replaces the Kafka publisher when set
	EventPublisher service.EventPublisher
	// Gateway replaces the configured payment gateway when set
	Gateway gateway.PaymentGateway
	Clock   clock.Clock
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *ContainerConfig) (*Container, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("container config is required")
	}
	appCfg := cfg.Config
	log := logger.Get()

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}

	c := &Container{
		Config:    appCfg,
		Redis:     cfg.Redis,
		Registry:  registry.New(&registry.Config{Clock: clk}),
		Scheduler: scheduler.NewTimerScheduler(),
		Gateway:   cfg.Gateway,
	}

	if c.Gateway == nil {
		gw, err := gateway.NewPaymentGateway(appCfg.Payment.Gateway, &gateway.GatewayConfig{
			SecretKey:       appCfg.Payment.StripeSecretKey,
			Environment:     appCfg.App.Environment,
			MockSuccessRate: appCfg.Payment.MockSuccessRate,
			MockDelayMs:     appCfg.Payment.MockDelayMs,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create payment gateway: %w", err)
		}
		c.Gateway = gw
	}
	log.Info(fmt.Sprintf("Payment gateway: %s", c.Gateway.Name()))

	base := cfg.EventPublisher
	if base == nil {
		base = newEventPublisher(ctx, appCfg)
	}
	notifications := service.NewObserverPublisher(
		service.NewEmailObserver(),
		service.NewSMSObserver(),
	)
	c.EventPublisher = service.NewMultiPublisher(base, notifications)

	defaultPricing, err := pricing.Lookup(appCfg.Reservation.Pricing, clk)
	if err != nil {
		return nil, err
	}

	c.Coordinator = service.NewReservationCoordinator(
		c.Registry,
		c.Scheduler,
		c.Gateway,
		c.EventPublisher,
		&service.CoordinatorConfig{
			HoldTTL:        appCfg.Reservation.HoldTTL,
			Currency:       appCfg.Reservation.Currency,
			DefaultPricing: defaultPricing,
			PublishTimeout: appCfg.Reservation.PublishTimeout,
			AutoRefund:     appCfg.Reservation.AutoRefund,
			Clock:          clk,
		},
	)

	c.BookingRepo = repository.NewMemoryBookingRepository()
	c.BookingService = service.NewBookingService(c.Coordinator, c.BookingRepo, &service.BookingServiceConfig{
		DefaultPricing: appCfg.Reservation.Pricing,
		Clock:          clk,
	})

	c.HoldSweeper = worker.NewHoldSweeper(c.Coordinator, &worker.HoldSweeperConfig{
		ScanInterval: appCfg.Reservation.SweepInterval,
	})

	// a nil *redis.Client must not become a non-nil HealthChecker
	var redisCheck handler.HealthChecker
	if c.Redis != nil {
		redisCheck = c.Redis
	}
	c.HealthHandler = handler.NewHealthHandler(redisCheck, c.Coordinator)
	c.GroupHandler = handler.NewGroupHandler(c.Coordinator)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)

	return c, nil
}

// newEventPublisher connects to Kafka when enabled and falls back to a no-op publisher
func newEventPublisher(ctx context.Context, cfg *config.Config) service.EventPublisher {
	log := logger.Get()
	if !cfg.Kafka.Enabled {
		log.Info("Kafka disabled, reservation events stay in-process")
		return service.NewNoOpEventPublisher()
	}

	publisher, err := service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		ServiceName: cfg.App.Name,
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		log.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
		return service.NewNoOpEventPublisher()
	}

	log.Info(fmt.Sprintf("Kafka event publisher connected (topic: %s)", publisher.Topic()))
	return publisher
}

// Start launches background workers
func (c *Container) Start(ctx context.Context) error {
	return c.HoldSweeper.Start(ctx)
}

// Close stops workers, cancels pending expiry timers and flushes publishers
func (c *Container) Close(ctx context.Context) error {
	c.HoldSweeper.Stop()

	var errs []error
	if err := c.Scheduler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler shutdown: %w", err))
	}
	if err := c.EventPublisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("event publisher close: %w", err))
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	return errors.Join(errs...)
}
