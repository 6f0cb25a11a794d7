package store

import (
	"context"
	"sync"
	"time"

	"plantwise/internal/models"
)

// MemoryTelemetryStore is the session-scoped telemetry log used when no
// database is configured, and by tests. Readings live only as long as the
// process.
type MemoryTelemetryStore struct {
	mu       sync.RWMutex
	readings []models.SensorReading
	nextID   uint
}

func NewMemoryTelemetryStore() *MemoryTelemetryStore {
	return &MemoryTelemetryStore{nextID: 1}
}

func (s *MemoryTelemetryStore) Append(_ context.Context, r *models.SensorReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.nextID
	s.nextID++
	s.readings = append(s.readings, *r)
	return nil
}

func (s *MemoryTelemetryStore) Query(_ context.Context, metric models.Metric, window time.Duration) ([]models.TimePoint, error) {
	since := time.Now().UTC().Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	points := make([]models.TimePoint, 0)
	for _, r := range s.readings {
		if r.Timestamp.Before(since) {
			continue
		}
		if v, ok := r.Value(metric); ok {
			points = append(points, models.TimePoint{Timestamp: r.Timestamp, Value: v})
		}
	}
	sortPoints(points)
	return points, nil
}

func (s *MemoryTelemetryStore) Latest(_ context.Context, plantID string, metric models.Metric) (models.TimePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best models.TimePoint
	found := false
	for _, r := range s.readings {
		if r.PlantID != plantID {
			continue
		}
		v, ok := r.Value(metric)
		if !ok {
			continue
		}
		if !found || r.Timestamp.After(best.Timestamp) {
			best = models.TimePoint{Timestamp: r.Timestamp, Value: v}
			found = true
		}
	}
	if !found {
		return models.TimePoint{}, ErrNotFound
	}
	return best, nil
}

// sortPoints orders by timestamp ascending. Insertion order is already
// nearly sorted, devices only occasionally backfill.
func sortPoints(points []models.TimePoint) {
	for i := 1; i < len(points); i++ {
		for j := i; j > 0 && points[j].Timestamp.Before(points[j-1].Timestamp); j-- {
			points[j], points[j-1] = points[j-1], points[j]
		}
	}
}
