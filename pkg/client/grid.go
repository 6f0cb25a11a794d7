package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// kmPerDegree is the usual flat-earth approximation for small grids.
const kmPerDegree = 111.0

// LatLon is one grid coordinate.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GridSample is the fetched top-layer soil moisture at one grid point.
type GridSample struct {
	LatLon
	Moisture float64 `json:"moisture"`
}

// PointFetcher fetches the current top-layer soil moisture for one
// coordinate. *OpenMeteoClient implements it.
type PointFetcher interface {
	SoilMoisture(ctx context.Context, lat, lon float64) (float64, error)
}

// GridOptions bounds the concurrent grid fetch.
type GridOptions struct {
	PointTimeout time.Duration
	Concurrency  int
}

// GenerateGrid builds a size×size grid of coordinates centred on (lat, lon)
// with the given point spacing. Size must be odd and within 3..21.
func GenerateGrid(centerLat, centerLon, spacingKm float64, size int) ([]LatLon, error) {
	if size < 3 || size > 21 || size%2 == 0 {
		return nil, fmt.Errorf("grid size must be odd and within 3-21, got %d", size)
	}
	if spacingKm <= 0 {
		return nil, fmt.Errorf("grid spacing must be positive, got %f", spacingKm)
	}

	offset := spacingKm / kmPerDegree
	half := size / 2

	grid := make([]LatLon, 0, size*size)
	for i := -half; i <= half; i++ {
		for j := -half; j <= half; j++ {
			grid = append(grid, LatLon{
				Lat: centerLat + float64(i)*offset,
				Lon: centerLon + float64(j)*offset,
			})
		}
	}
	return grid, nil
}

// FetchGrid fetches all grid points with bounded concurrency. Each point
// gets its own timeout and fails independently; the result holds whatever
// subset succeeded, in no particular order.
func FetchGrid(ctx context.Context, fetcher PointFetcher, points []LatLon, opts GridOptions, logger *zap.Logger) []GridSample {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.PointTimeout <= 0 {
		opts.PointTimeout = 5 * time.Second
	}

	var (
		mu      sync.Mutex
		samples []GridSample
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, p := range points {
		p := p
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, opts.PointTimeout)
			defer cancel()

			moisture, err := fetcher.SoilMoisture(pctx, p.Lat, p.Lon)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logger.Debug("Grid point fetch failed",
					zap.Float64("lat", p.Lat),
					zap.Float64("lon", p.Lon),
					zap.Error(err))
				return nil // a single point must not abort the grid
			}
			samples = append(samples, GridSample{LatLon: p, Moisture: moisture})
			return nil
		})
	}

	_ = g.Wait()

	if failed > 0 {
		logger.Warn("Grid fetch finished with failures",
			zap.Int("requested", len(points)),
			zap.Int("succeeded", len(samples)),
			zap.Int("failed", failed))
	}
	return samples
}
