package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"plantwise/internal/forecast"
	"plantwise/pkg/client"
)

// HourlyClient is what the forecast service needs from the provider client.
type HourlyClient interface {
	client.PointFetcher
	FetchHourly(ctx context.Context, lat, lon float64, variables []string, timezone string) (*forecast.HourlySeries, error)
}

// ForecastConfig carries the cache TTLs and grid limits.
type ForecastConfig struct {
	HourlyTTL        time.Duration
	GridTTL          time.Duration
	GridPointTimeout time.Duration
	GridConcurrency  int
}

// ForecastService fronts the provider client with the TTL cache. One TTL
// per query shape: the full hourly series is cached for an hour, grid
// fetches for thirty minutes.
type ForecastService struct {
	client HourlyClient
	cache  *TTLCache
	cfg    ForecastConfig
	logger *zap.Logger
}

func NewForecastService(c HourlyClient, cache *TTLCache, cfg ForecastConfig, logger *zap.Logger) *ForecastService {
	if cfg.HourlyTTL <= 0 {
		cfg.HourlyTTL = time.Hour
	}
	if cfg.GridTTL <= 0 {
		cfg.GridTTL = 30 * time.Minute
	}
	return &ForecastService{client: c, cache: cache, cfg: cfg, logger: logger}
}

// Hourly returns the cached hourly series for a location, fetching on miss.
func (s *ForecastService) Hourly(ctx context.Context, lat, lon float64, timezone string) (*forecast.HourlySeries, error) {
	key := fmt.Sprintf("hourly:%.4f:%.4f:%s", lat, lon, timezone)

	value, err := s.cache.GetOrFetch(key, s.cfg.HourlyTTL, func() (interface{}, error) {
		return s.client.FetchHourly(ctx, lat, lon, forecast.DefaultHourlyVariables, timezone)
	})
	if err != nil {
		return nil, err
	}
	return value.(*forecast.HourlySeries), nil
}

// Grid fetches top-layer soil moisture over a size×size grid around the
// center, cached by grid shape. Point failures are tolerated; the returned
// samples are sorted by moisture ascending for display.
func (s *ForecastService) Grid(ctx context.Context, centerLat, centerLon, spacingKm float64, size int) ([]client.GridSample, error) {
	points, err := client.GenerateGrid(centerLat, centerLon, spacingKm, size)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("grid:%.4f:%.4f:%.2f:%d", centerLat, centerLon, spacingKm, size)
	value, err := s.cache.GetOrFetch(key, s.cfg.GridTTL, func() (interface{}, error) {
		samples := client.FetchGrid(ctx, s.client, points, client.GridOptions{
			PointTimeout: s.cfg.GridPointTimeout,
			Concurrency:  s.cfg.GridConcurrency,
		}, s.logger)
		if len(samples) == 0 {
			return nil, fmt.Errorf("%w: no grid points fetched", client.ErrForecastUnavailable)
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i].Moisture < samples[j].Moisture })
		return samples, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]client.GridSample), nil
}
