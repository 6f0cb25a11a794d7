package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"plantwise/internal/api"
	"plantwise/internal/config"
	"plantwise/internal/scheduler"
	"plantwise/internal/services"
	"plantwise/internal/store"
	"plantwise/pkg/client"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting Plantwise watering advisor")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Storage: durable when a database is configured, session-scoped
	// in-memory otherwise.
	var (
		telemetryStore store.TelemetryStore
		registry       store.PlantRegistry
	)
	if cfg.Database.DSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		telemetryStore, err = store.NewGormTelemetryStore(db)
		if err != nil {
			logger.Fatal("Failed to prepare telemetry table", zap.Error(err))
		}
		registry, err = store.NewGormPlantRegistry(db, cfg.Registry.DuplicateCheck)
		if err != nil {
			logger.Fatal("Failed to prepare plant registry", zap.Error(err))
		}
		logger.Info("Using PostgreSQL storage")
	} else {
		telemetryStore = store.NewMemoryTelemetryStore()
		registry = store.NewMemoryPlantRegistry(cfg.Registry.DuplicateCheck)
		logger.Warn("No DATABASE_URL set, readings and plants are session-scoped")
	}

	// Optional InfluxDB mirror for time-series tooling.
	var mirror store.ReadingSink
	if cfg.Influx.URL != "" {
		m, err := store.NewInfluxMirror(store.InfluxConfig{
			URL:         cfg.Influx.URL,
			Token:       cfg.Influx.Token,
			Org:         cfg.Influx.Org,
			Bucket:      cfg.Influx.Bucket,
			Measurement: cfg.Influx.Measurement,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize InfluxDB mirror", zap.Error(err))
		}
		defer m.Close()
		mirror = m
		logger.Info("InfluxDB mirror enabled", zap.String("url", cfg.Influx.URL))
	}

	telemetry := services.NewTelemetryService(telemetryStore, mirror, cfg.Storage.RetryMaxElapsed, logger)

	// Forecast client with circuit breaker + retry, fronted by the TTL cache.
	meteo := client.NewOpenMeteoClient(cfg.Forecast.BaseURL, client.ClientConfig{
		Timeout:        cfg.Forecast.Timeout,
		MaxRetries:     cfg.Retry.MaxRetries,
		RetryDelay:     cfg.Retry.Delay,
		Multiplier:     cfg.Retry.Multiplier,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}, logger)

	cache := services.NewTTLCache(cfg.Cache.MaxSize, logger)
	defer cache.Stop()

	forecasts := services.NewForecastService(meteo, cache, services.ForecastConfig{
		HourlyTTL:        cfg.Forecast.HourlyTTL,
		GridTTL:          cfg.Forecast.GridTTL,
		GridPointTimeout: cfg.Forecast.GridPointTimeout,
		GridConcurrency:  cfg.Forecast.GridConcurrency,
	}, logger)

	advisorCfg := services.DefaultAdvisorConfig()
	advisorCfg.Latitude = cfg.Location.Latitude
	advisorCfg.Longitude = cfg.Location.Longitude
	advisorCfg.Timezone = cfg.Location.Timezone
	advisorCfg.PlanHorizonHours = cfg.Advisor.PlanHorizonHours
	advisorCfg.AdviceHorizonHours = cfg.Advisor.AdviceHorizonHours
	advisorCfg.ProjectionDays = cfg.Advisor.ProjectionDays
	advisorCfg.RainGainPerMM = cfg.Advisor.RainGainPerMM
	advisorCfg.ClampProjection = cfg.Advisor.ClampProjection
	advisorCfg.DefaultHumidity = cfg.Advisor.DefaultHumidity
	advisorCfg.DefaultMoisture = cfg.Advisor.DefaultMoisture
	advisorCfg.DryThreshold = cfg.Advisor.DryThreshold
	advisorCfg.HotThreshold = cfg.Advisor.HotThreshold

	advisor := services.NewAdvisor(advisorCfg, telemetry, forecasts, registry, logger)

	// Standing-plan refresh
	planScheduler := scheduler.NewScheduler(advisor, cfg.Scheduler.PlanRefreshSpec, logger)
	if err := planScheduler.Start(); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: errorHandler,
	})

	handler := api.NewHandler(telemetry, forecasts, advisor, registry, api.Location{
		Latitude:  cfg.Location.Latitude,
		Longitude: cfg.Location.Longitude,
		Timezone:  cfg.Location.Timezone,
	}, api.Thresholds{
		Dry: cfg.Advisor.DryThreshold,
		Hot: cfg.Advisor.HotThreshold,
	}, logger)
	api.SetupRoutes(app, handler, logger)

	// Start server in goroutine
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", zap.String("address", addr))

		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	planScheduler.Stop()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func errorHandler(c *fiber.Ctx, err error) error {
	zap.L().Error("HTTP error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err))

	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   err.Error(),
		"success": false,
	})
}
