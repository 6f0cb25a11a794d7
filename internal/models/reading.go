package models

import (
	"time"
)

// Metric identifies one measured column of a sensor reading.
type Metric string

const (
	MetricHumidity     Metric = "humidity"
	MetricCO2          Metric = "co2"
	MetricSoilMoisture Metric = "soil_moisture"
	MetricTemperature  Metric = "temperature"
	MetricPressure     Metric = "pressure"
)

// KnownMetrics lists the queryable metric columns.
var KnownMetrics = []Metric{
	MetricHumidity,
	MetricCO2,
	MetricSoilMoisture,
	MetricTemperature,
	MetricPressure,
}

// SensorReading is one row of the append-only telemetry table. Devices may
// fail individual sensor reads, so every metric column is nullable; the
// timestamp is coerced to ingestion time when the device omits it.
type SensorReading struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	PlantID      string    `json:"plant_id" gorm:"index;not null"`
	Timestamp    time.Time `json:"timestamp" gorm:"index"`
	Humidity     *float64  `json:"humidity"`
	CO2          *int      `json:"co2"`
	SoilMoisture *float64  `json:"soil_moisture"`
	Temperature  *float64  `json:"temperature"`
	Pressure     *float64  `json:"pressure"`
}

func (SensorReading) TableName() string {
	return "sensor_data"
}

// Value returns the reading's value for one metric, with ok=false when the
// sensor failed that read.
func (r SensorReading) Value(m Metric) (float64, bool) {
	switch m {
	case MetricHumidity:
		if r.Humidity != nil {
			return *r.Humidity, true
		}
	case MetricCO2:
		if r.CO2 != nil {
			return float64(*r.CO2), true
		}
	case MetricSoilMoisture:
		if r.SoilMoisture != nil {
			return *r.SoilMoisture, true
		}
	case MetricTemperature:
		if r.Temperature != nil {
			return *r.Temperature, true
		}
	case MetricPressure:
		if r.Pressure != nil {
			return *r.Pressure, true
		}
	}
	return 0, false
}

// TimePoint is one (timestamp, value) pair of a metric query result.
type TimePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
