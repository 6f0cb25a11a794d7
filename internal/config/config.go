package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Server struct {
		Port         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
	}

	Database struct {
		DSN string // empty = in-memory session-scoped stores
	}

	Influx struct {
		URL         string // empty = mirror disabled
		Token       string
		Org         string
		Bucket      string
		Measurement string
	}

	Location struct {
		Latitude  float64
		Longitude float64
		Timezone  string
	}

	Forecast struct {
		BaseURL          string
		Timeout          time.Duration
		HourlyTTL        time.Duration
		GridTTL          time.Duration
		GridPointTimeout time.Duration
		GridConcurrency  int
	}

	Advisor struct {
		PlanHorizonHours   int
		AdviceHorizonHours int
		ProjectionDays     int
		RainGainPerMM      float64
		ClampProjection    bool
		DefaultHumidity    float64
		DefaultMoisture    float64
		DryThreshold       float64 // m³/m³
		HotThreshold       float64 // °C
	}

	Registry struct {
		DuplicateCheck bool
	}

	Scheduler struct {
		PlanRefreshSpec string // cron spec, e.g. "@every 1h"
	}

	Cache struct {
		MaxSize int
	}

	CircuitBreaker struct {
		Timeout time.Duration
	}

	Retry struct {
		MaxRetries int
		Delay      time.Duration
		Multiplier float64
	}

	Storage struct {
		RetryMaxElapsed time.Duration
	}
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	cfg.Server.Port = getEnv("FIBER_PORT", "8080")
	cfg.Server.ReadTimeout = parseDuration(getEnv("FIBER_READ_TIMEOUT", "10s"))
	cfg.Server.WriteTimeout = parseDuration(getEnv("FIBER_WRITE_TIMEOUT", "10s"))

	cfg.Database.DSN = getEnv("DATABASE_URL", "")

	cfg.Influx.URL = getEnv("INFLUX_URL", "")
	cfg.Influx.Token = getEnv("INFLUX_TOKEN", "")
	cfg.Influx.Org = getEnv("INFLUX_ORG", "org0")
	cfg.Influx.Bucket = getEnv("INFLUX_BUCKET", "db0")
	cfg.Influx.Measurement = getEnv("INFLUX_MEASUREMENT", "sensor_data")

	cfg.Location.Latitude = parseFloat(getEnv("LOCATION_LAT", "48.2085"))
	cfg.Location.Longitude = parseFloat(getEnv("LOCATION_LON", "16.3721"))
	cfg.Location.Timezone = getEnv("LOCATION_TZ", "Europe/Vienna")

	cfg.Forecast.BaseURL = getEnv("OPENMETEO_URL", "https://api.open-meteo.com/v1")
	cfg.Forecast.Timeout = parseDuration(getEnv("FORECAST_TIMEOUT", "10s"))
	cfg.Forecast.HourlyTTL = parseDuration(getEnv("FORECAST_HOURLY_TTL", "1h"))
	cfg.Forecast.GridTTL = parseDuration(getEnv("FORECAST_GRID_TTL", "30m"))
	cfg.Forecast.GridPointTimeout = parseDuration(getEnv("GRID_POINT_TIMEOUT", "5s"))
	cfg.Forecast.GridConcurrency = parseInt(getEnv("GRID_CONCURRENCY", "8"))

	cfg.Advisor.PlanHorizonHours = parseInt(getEnv("PLAN_HORIZON_HOURS", "72"))
	cfg.Advisor.AdviceHorizonHours = parseInt(getEnv("ADVICE_HORIZON_HOURS", "12"))
	cfg.Advisor.ProjectionDays = parseInt(getEnv("PROJECTION_DAYS", "5"))
	cfg.Advisor.RainGainPerMM = parseFloat(getEnv("RAIN_GAIN_PER_MM", "0.5"))
	cfg.Advisor.ClampProjection = parseBool(getEnv("CLAMP_PROJECTION", "false"))
	cfg.Advisor.DefaultHumidity = parseFloat(getEnv("DEFAULT_HUMIDITY", "50"))
	cfg.Advisor.DefaultMoisture = parseFloat(getEnv("DEFAULT_MOISTURE", "30"))
	cfg.Advisor.DryThreshold = parseFloat(getEnv("DRY_THRESHOLD", "0.25"))
	cfg.Advisor.HotThreshold = parseFloat(getEnv("HOT_THRESHOLD", "25"))

	cfg.Registry.DuplicateCheck = parseBool(getEnv("PLANT_DUPLICATE_CHECK", "false"))

	cfg.Scheduler.PlanRefreshSpec = getEnv("PLAN_REFRESH_SPEC", "@every 1h")

	cfg.Cache.MaxSize = parseInt(getEnv("MAX_CACHE_SIZE", "1000"))

	cfg.CircuitBreaker.Timeout = parseDuration(getEnv("CIRCUIT_BREAKER_TIMEOUT", "30s"))

	cfg.Retry.MaxRetries = parseInt(getEnv("MAX_RETRIES", "3"))
	cfg.Retry.Delay = parseDuration(getEnv("RETRY_DELAY", "1s"))
	cfg.Retry.Multiplier = parseFloat(getEnv("RETRY_MULTIPLIER", "2"))

	cfg.Storage.RetryMaxElapsed = parseDuration(getEnv("STORAGE_RETRY_MAX_ELAPSED", "5s"))

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return 0
	}
	return duration
}

func parseInt(value string) int {
	intValue, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Failed to parse int", zap.String("value", value), zap.Error(err))
		return 0
	}
	return intValue
}

func parseFloat(value string) float64 {
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		zap.L().Warn("Failed to parse float", zap.String("value", value), zap.Error(err))
		return 0
	}
	return floatValue
}

func parseBool(value string) bool {
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		zap.L().Warn("Failed to parse bool", zap.String("value", value), zap.Error(err))
		return false
	}
	return boolValue
}
