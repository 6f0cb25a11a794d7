package models

import "time"

// PlanDecision is the standing multi-day frequency plan for a plant,
// extrapolated from the 72h forecast.
type PlanDecision struct {
	PlantID               uint      `json:"plant_id"`
	Action                string    `json:"action"`
	Reason                string    `json:"reason"`
	CurrentMoisture       float64   `json:"current_moisture"`
	ProjectedMoisture     float64   `json:"projected_moisture"`
	TargetMoisture        float64   `json:"target_moisture"`
	Buffer                float64   `json:"buffer"`
	AvgTemperature        float64   `json:"avg_temperature"`
	RainTotalMM           float64   `json:"rain_total_mm"`
	PredictedNextWatering string    `json:"predicted_next_watering"`
	DataNotes             []string  `json:"data_notes,omitempty"`
	GeneratedAt           time.Time `json:"generated_at"`
}

// VolumeDecision is the immediate volume-scaled recommendation produced at
// plant creation time from the short 12h forecast. It is deliberately a
// separate shape from PlanDecision: millilitres now versus frequency later.
type VolumeDecision struct {
	PlantID         uint      `json:"plant_id"`
	WaterNow        bool      `json:"water_now"`
	VolumeML        int       `json:"volume_ml"`
	Advice          string    `json:"advice"`
	Reason          string    `json:"reason"`
	CurrentMoisture float64   `json:"current_moisture"`
	AvgTemperature  float64   `json:"avg_temperature"`
	DataNotes       []string  `json:"data_notes,omitempty"`
	GeneratedAt     time.Time `json:"generated_at"`
}
