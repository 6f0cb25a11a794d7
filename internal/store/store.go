// Package store provides the persistence layer: the append-only telemetry
// log and the plant registry, each with a durable gorm implementation and an
// in-memory session-scoped one.
package store

import (
	"context"
	"errors"
	"time"

	"plantwise/internal/models"
)

var (
	// ErrNotFound is returned when no row matches a lookup.
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePlant is returned by Add when the duplicate check is
	// enabled and a profile with the same (name, last_watered) exists.
	ErrDuplicatePlant = errors.New("duplicate plant")
)

// TelemetryStore is the append-only sensor reading log.
type TelemetryStore interface {
	// Append persists one reading. Partially-null readings are stored
	// unconditionally; only a missing plant id is rejected upstream.
	Append(ctx context.Context, r *models.SensorReading) error
	// Query returns the (timestamp, value) series of one metric within the
	// trailing window, ordered by time. Rows where the metric is null are
	// skipped. An empty window yields an empty slice, not an error.
	Query(ctx context.Context, metric models.Metric, window time.Duration) ([]models.TimePoint, error)
	// Latest returns the most recent non-null value of one metric for a
	// plant, or ErrNotFound.
	Latest(ctx context.Context, plantID string, metric models.Metric) (models.TimePoint, error)
}

// PlantRegistry is the keyed collection of plant profiles.
type PlantRegistry interface {
	Add(ctx context.Context, p *models.PlantProfile) error
	List(ctx context.Context) ([]models.PlantProfile, error)
	Get(ctx context.Context, id uint) (models.PlantProfile, error)
	Update(ctx context.Context, id uint, patch models.PlantPatch) error
	Delete(ctx context.Context, id uint) error
}

// ReadingSink receives a copy of every persisted reading. Used for the
// optional time-series mirror; failures are logged, never propagated to the
// ingesting device.
type ReadingSink interface {
	WriteReading(ctx context.Context, r *models.SensorReading) error
	Close()
}
