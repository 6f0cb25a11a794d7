package models

import (
	"math"
	"time"
)

type PotSize string

const (
	PotSmall  PotSize = "Small"
	PotMedium PotSize = "Medium"
	PotLarge  PotSize = "Large"
)

// VolumeML maps a pot size to its fixed watering volume.
func (p PotSize) VolumeML() int {
	switch p {
	case PotSmall:
		return 100
	case PotMedium:
		return 200
	case PotLarge:
		return 400
	}
	return 200
}

type Orientation string

const (
	OrientationNorth Orientation = "N"
	OrientationEast  Orientation = "E"
	OrientationSouth Orientation = "S"
	OrientationWest  Orientation = "W"
)

type PlantType string

const (
	PlantIndoor   PlantType = "Indoor"
	PlantOutdoor  PlantType = "Outdoor"
	PlantDesert   PlantType = "Desert"
	PlantTropical PlantType = "Tropical"
)

// TargetMoisture is the moisture percentage the species class is kept at.
func (t PlantType) TargetMoisture() float64 {
	switch t {
	case PlantIndoor:
		return 55
	case PlantOutdoor:
		return 60
	case PlantDesert:
		return 35
	case PlantTropical:
		return 70
	}
	return 60
}

// DefaultRobustness is used when a profile is created without one.
func (t PlantType) DefaultRobustness() int {
	switch t {
	case PlantDesert:
		return 8
	case PlantTropical:
		return 3
	case PlantOutdoor:
		return 6
	}
	return 5
}

// PlantProfile is a registered plant with its configuration and the fields
// the advisor writes back after each evaluation.
type PlantProfile struct {
	ID                    uint        `json:"id" gorm:"primaryKey"`
	Name                  string      `json:"name" gorm:"not null"`
	DeviceID              string      `json:"device_id" gorm:"index"`
	PotSize               PotSize     `json:"pot_size"`
	Orientation           Orientation `json:"orientation"`
	PlantType             PlantType   `json:"plant_type"`
	Robustness            int         `json:"robustness"`
	LastWatered           time.Time   `json:"last_watered"`
	CurrentMoisture       float64     `json:"current_moisture"`
	PrognosedMoisture     float64     `json:"prognosed_moisture"`
	DaysSinceWatered      int         `json:"days_since_watered" gorm:"-"`
	WateringPlan          string      `json:"watering_plan"`
	PredictedNextWatering string      `json:"predicted_next_watering"`
	CreatedAt             time.Time   `json:"created_at"`
}

func (PlantProfile) TableName() string {
	return "plants"
}

// Derive fills the computed fields that are not stored as-is.
func (p *PlantProfile) Derive(now time.Time) {
	p.DaysSinceWatered = int(now.Sub(p.LastWatered).Hours() / 24)
	if p.DaysSinceWatered < 0 {
		p.DaysSinceWatered = 0
	}
}

// PrognoseAfterWatering estimates the moisture level after a theoretical
// watering event with the pot's full volume.
func PrognoseAfterWatering(current float64, pot PotSize) float64 {
	boost := 25.0 + float64(pot.VolumeML())/40.0
	return math.Min(100, current+boost)
}

// PlantPatch carries the fields the advisor (or a watering event) may
// overwrite on an existing profile. Nil fields are left untouched.
type PlantPatch struct {
	WateringPlan          *string
	PredictedNextWatering *string
	PrognosedMoisture     *float64
	CurrentMoisture       *float64
	LastWatered           *time.Time
}
