package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/internal/di"
	"github.com/prohmpiriya/booking-rush-reservation/internal/metrics"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/middleware"
	pkgredis "github.com/prohmpiriya/booking-rush-reservation/pkg/redis"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	level := cfg.App.LogLevel
	if level == "" {
		level = cfg.App.Environment
	}
	if err := logger.Init(&logger.Config{
		Level:       level,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Reservation Service...")

	ctx := context.Background()

	// Initialize tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Tracing disabled: %v", err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics disabled: %v", err))
	}

	// Redis only backs idempotency; the registry itself is in-memory
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
		}
		appLog.Info(fmt.Sprintf("Redis connected (%s)", cfg.Redis.Addr()))
	}

	container, err := di.NewContainer(ctx, &di.ContainerConfig{
		Config: cfg,
		Redis:  redisClient,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to build container: %v", err))
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if err := container.Start(workerCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start workers: %v", err))
	}

	router := setupRouter(cfg, container, redisClient)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info(fmt.Sprintf("Reservation Service listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	stopWorkers()
	if err := container.Close(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Failed to release resources: %v", err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Failed to flush traces: %v", err))
	}

	appLog.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, container *di.Container, redisClient *pkgredis.Client) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Get(), "/health", "/ready"))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	auth := middleware.Auth(&middleware.AuthConfig{
		Secret:          cfg.JWT.Secret,
		Issuer:          cfg.JWT.Issuer,
		AllowUserHeader: cfg.JWT.AllowUserHeader,
	})

	// Write operations replay their stored response when Redis is available
	var idempotent gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if redisClient != nil && cfg.Idempotency.Enabled {
		idemCfg := middleware.DefaultIdempotencyConfig(redisClient)
		idemCfg.TTL = cfg.Idempotency.TTL
		idempotent = middleware.Idempotency(idemCfg)
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": cfg.App.Name,
			})
		})

		groups := v1.Group("/groups")
		{
			groups.POST("", auth, container.GroupHandler.RegisterGroup)
			groups.GET("", container.GroupHandler.ListGroups)
			groups.GET("/:id/availability", container.GroupHandler.GetAvailability)
			groups.GET("/:id/resources", container.GroupHandler.GetResources)
		}

		v1.POST("/reservations", auth, idempotent, container.BookingHandler.Reserve)

		bookings := v1.Group("/bookings")
		bookings.Use(auth)
		{
			bookings.GET("", container.BookingHandler.GetUserBookings)
			bookings.GET("/:id", container.BookingHandler.GetBooking)
			bookings.POST("/:id/cancel", idempotent, container.BookingHandler.CancelBooking)
		}
	}

	return router
}
