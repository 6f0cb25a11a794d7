package store

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"plantwise/internal/models"
)

// InfluxConfig configures the optional time-series mirror.
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

// InfluxMirror forwards each persisted reading to InfluxDB so the
// time-series tooling keeps working alongside the relational store.
type InfluxMirror struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
	logger      *zap.Logger
}

func NewInfluxMirror(cfg InfluxConfig, logger *zap.Logger) (*InfluxMirror, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = "sensor_data"
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxMirror{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
		logger:      logger,
	}, nil
}

func (m *InfluxMirror) WriteReading(ctx context.Context, r *models.SensorReading) error {
	tags := map[string]string{
		"plant_id": r.PlantID,
	}

	fields := map[string]interface{}{}
	for _, metric := range models.KnownMetrics {
		if v, ok := r.Value(metric); ok {
			fields[string(metric)] = v
		}
	}
	if len(fields) == 0 {
		// All sensor reads failed; nothing worth a point.
		return nil
	}

	t := r.Timestamp
	if t.IsZero() {
		t = time.Now().UTC()
	}

	point := influxdb2.NewPoint(m.measurement, tags, fields, t)
	if err := m.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	m.logger.Debug("Reading mirrored to InfluxDB",
		zap.String("plant_id", r.PlantID),
		zap.Int("fields", len(fields)))
	return nil
}

func (m *InfluxMirror) Close() {
	m.client.Close()
}
