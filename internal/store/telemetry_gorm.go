package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"plantwise/internal/models"
)

// GormTelemetryStore persists readings in a single wide relational table,
// one column per metric, append-only.
type GormTelemetryStore struct {
	db *gorm.DB
}

func NewGormTelemetryStore(db *gorm.DB) (*GormTelemetryStore, error) {
	if err := db.AutoMigrate(&models.SensorReading{}); err != nil {
		return nil, fmt.Errorf("migrate sensor_data: %w", err)
	}
	return &GormTelemetryStore{db: db}, nil
}

func (s *GormTelemetryStore) Append(ctx context.Context, r *models.SensorReading) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *GormTelemetryStore) Query(ctx context.Context, metric models.Metric, window time.Duration) ([]models.TimePoint, error) {
	if !validMetric(metric) {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	since := time.Now().UTC().Add(-window)

	var rows []models.SensorReading
	err := s.db.WithContext(ctx).
		Where("timestamp >= ?", since).
		Where(string(metric) + " IS NOT NULL").
		Order("timestamp asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", metric, err)
	}

	points := make([]models.TimePoint, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.Value(metric); ok {
			points = append(points, models.TimePoint{Timestamp: r.Timestamp, Value: v})
		}
	}
	return points, nil
}

func (s *GormTelemetryStore) Latest(ctx context.Context, plantID string, metric models.Metric) (models.TimePoint, error) {
	if !validMetric(metric) {
		return models.TimePoint{}, fmt.Errorf("unknown metric %q", metric)
	}

	var row models.SensorReading
	err := s.db.WithContext(ctx).
		Where("plant_id = ?", plantID).
		Where(string(metric)+" IS NOT NULL").
		Order("timestamp desc").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return models.TimePoint{}, ErrNotFound
	}
	if err != nil {
		return models.TimePoint{}, fmt.Errorf("latest %s for %s: %w", metric, plantID, err)
	}

	v, ok := row.Value(metric)
	if !ok {
		return models.TimePoint{}, ErrNotFound
	}
	return models.TimePoint{Timestamp: row.Timestamp, Value: v}, nil
}

func validMetric(m models.Metric) bool {
	for _, k := range models.KnownMetrics {
		if m == k {
			return true
		}
	}
	return false
}
