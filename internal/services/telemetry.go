package services

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"plantwise/internal/models"
	"plantwise/internal/store"
)

// QueryWindow is the trailing window the read endpoints expose.
const QueryWindow = 7 * 24 * time.Hour

// TelemetryService validates and appends incoming readings and serves the
// recent-window read path. Storage failures are retried with backoff before
// being surfaced; they are never silently dropped.
type TelemetryService struct {
	store           store.TelemetryStore
	mirror          store.ReadingSink // optional
	retryMaxElapsed time.Duration
	logger          *zap.Logger
}

func NewTelemetryService(s store.TelemetryStore, mirror store.ReadingSink, retryMaxElapsed time.Duration, logger *zap.Logger) *TelemetryService {
	if retryMaxElapsed <= 0 {
		retryMaxElapsed = 5 * time.Second
	}
	return &TelemetryService{
		store:           s,
		mirror:          mirror,
		retryMaxElapsed: retryMaxElapsed,
		logger:          logger,
	}
}

// Append persists one reading. A missing timestamp is coerced to now; the
// reading is stored even when every metric is null.
func (s *TelemetryService) Append(ctx context.Context, r *models.SensorReading) error {
	if r.PlantID == "" {
		return fmt.Errorf("reading has no plant id")
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = s.retryMaxElapsed

	err := backoff.Retry(func() error {
		return s.store.Append(ctx, r)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return fmt.Errorf("append reading: %w", err)
	}

	if s.mirror != nil {
		if err := s.mirror.WriteReading(ctx, r); err != nil {
			s.logger.Warn("Mirror write failed",
				zap.String("plant_id", r.PlantID),
				zap.Error(err))
		}
	}

	s.logger.Debug("Reading persisted",
		zap.String("plant_id", r.PlantID),
		zap.Time("timestamp", r.Timestamp))
	return nil
}

// Query returns the trailing 7-day series of one metric.
func (s *TelemetryService) Query(ctx context.Context, metric models.Metric) ([]models.TimePoint, error) {
	return s.store.Query(ctx, metric, QueryWindow)
}

// Latest returns the freshest value of one metric for a plant, ok=false
// when the plant has no usable reading.
func (s *TelemetryService) Latest(ctx context.Context, plantID string, metric models.Metric) (models.TimePoint, bool) {
	point, err := s.store.Latest(ctx, plantID, metric)
	if err != nil {
		return models.TimePoint{}, false
	}
	return point, true
}
