package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"plantwise/internal/forecast"
	"plantwise/internal/models"
	"plantwise/internal/store"
)

// neutralForecastTemp stands in for the forecast temperature when the
// provider is unreachable, keeping the volume branches total.
const neutralForecastTemp = 15.0

// AdvisorConfig externalizes every threshold of the decision engine so
// deployments at different locations run independent evaluations.
type AdvisorConfig struct {
	Latitude  float64
	Longitude float64
	Timezone  string

	// OrientationGain scales the projected moisture gain per compass
	// orientation. Kept as a gain multiplier to preserve the observed
	// behavior; swap the map to invert the heuristic.
	OrientationGain map[models.Orientation]float64

	RainGainPerMM      float64 // moisture %-gain per forecast mm of rain
	ProjectionDays     int     // linear extrapolation horizon for the plan
	PlanHorizonHours   int     // forecast window feeding the standing plan
	AdviceHorizonHours int     // forecast window feeding the volume advice
	ClampProjection    bool    // keep projected moisture within [0,100]
	DefaultHumidity    float64
	DefaultMoisture    float64
	DryThreshold       float64 // m³/m³, below = dry soil
	HotThreshold       float64 // °C, above = hot
}

func DefaultAdvisorConfig() AdvisorConfig {
	return AdvisorConfig{
		Latitude:  48.2085,
		Longitude: 16.3721,
		Timezone:  "Europe/Vienna",
		OrientationGain: map[models.Orientation]float64{
			models.OrientationNorth: 0.9,
			models.OrientationEast:  1.0,
			models.OrientationWest:  1.1,
			models.OrientationSouth: 1.2,
		},
		RainGainPerMM:      0.5,
		ProjectionDays:     5,
		PlanHorizonHours:   72,
		AdviceHorizonHours: 12,
		ClampProjection:    false,
		DefaultHumidity:    50,
		DefaultMoisture:    30,
		DryThreshold:       0.25,
		HotThreshold:       25,
	}
}

func (c AdvisorConfig) orientationGain(o models.Orientation) float64 {
	if g, ok := c.OrientationGain[o]; ok {
		return g
	}
	return 1.0
}

// Advisor derives watering decisions by fusing current telemetry, recent
// trend and the weather forecast. It never returns an error: missing inputs
// are substituted with configured defaults and noted on the decision.
type Advisor struct {
	cfg       AdvisorConfig
	telemetry *TelemetryService
	forecasts *ForecastService
	registry  store.PlantRegistry
	logger    *zap.Logger
}

func NewAdvisor(cfg AdvisorConfig, telemetry *TelemetryService, forecasts *ForecastService, registry store.PlantRegistry, logger *zap.Logger) *Advisor {
	if cfg.OrientationGain == nil {
		cfg.OrientationGain = DefaultAdvisorConfig().OrientationGain
	}
	if cfg.ProjectionDays <= 0 {
		cfg.ProjectionDays = 5
	}
	if cfg.PlanHorizonHours <= 0 {
		cfg.PlanHorizonHours = 72
	}
	if cfg.AdviceHorizonHours <= 0 {
		cfg.AdviceHorizonHours = 12
	}
	return &Advisor{
		cfg:       cfg,
		telemetry: telemetry,
		forecasts: forecasts,
		registry:  registry,
		logger:    logger,
	}
}

// planInputs are the gathered, defaulted inputs of one plan evaluation.
// The decision is reproducible from these plus the profile alone.
type planInputs struct {
	Current         float64
	ShallowSoilFrac float64
	RainTotalMM     float64
	AvgTemperature  float64
	HaveForecast    bool
	HaveSoilBands   bool
	Notes           []string
}

// PlanWatering produces the standing multi-day frequency plan for one
// plant from the 72h forecast and its latest telemetry.
func (a *Advisor) PlanWatering(ctx context.Context, plant models.PlantProfile) models.PlanDecision {
	in := a.gather(ctx, plant, a.cfg.PlanHorizonHours)
	decision := a.evaluatePlan(plant, in, time.Now().UTC())

	a.logger.Info("Watering plan evaluated",
		zap.Uint("plant_id", plant.ID),
		zap.String("action", decision.Action),
		zap.Float64("current", decision.CurrentMoisture),
		zap.Float64("projected", decision.ProjectedMoisture))
	return decision
}

// RecommendVolume produces the immediate volume-scaled advice from the
// short 12h forecast and current moisture. Independent from PlanWatering:
// different horizon, different output shape.
func (a *Advisor) RecommendVolume(ctx context.Context, plant models.PlantProfile) models.VolumeDecision {
	in := a.gather(ctx, plant, a.cfg.AdviceHorizonHours)
	decision := a.evaluateVolume(plant, in, time.Now().UTC())

	a.logger.Info("Volume advice evaluated",
		zap.Uint("plant_id", plant.ID),
		zap.Bool("water_now", decision.WaterNow),
		zap.Int("volume_ml", decision.VolumeML))
	return decision
}

// RefreshAllPlans re-evaluates every registered plant and writes the plan
// back into the registry. Called by the scheduler.
func (a *Advisor) RefreshAllPlans(ctx context.Context) {
	plants, err := a.registry.List(ctx)
	if err != nil {
		a.logger.Error("Plan refresh: listing plants failed", zap.Error(err))
		return
	}

	for _, plant := range plants {
		decision := a.PlanWatering(ctx, plant)

		plan := fmt.Sprintf("%s: %s", decision.Action, decision.Reason)
		prognosed := models.PrognoseAfterWatering(decision.CurrentMoisture, plant.PotSize)
		patch := models.PlantPatch{
			WateringPlan:          &plan,
			PredictedNextWatering: &decision.PredictedNextWatering,
			PrognosedMoisture:     &prognosed,
		}
		if err := a.registry.Update(ctx, plant.ID, patch); err != nil {
			a.logger.Warn("Plan refresh: updating plant failed",
				zap.Uint("plant_id", plant.ID),
				zap.Error(err))
		}
	}
	a.logger.Info("Plan refresh completed", zap.Int("plants", len(plants)))
}

// gather assembles the evaluation inputs, substituting configured defaults
// where telemetry or forecast data is missing.
func (a *Advisor) gather(ctx context.Context, plant models.PlantProfile, horizonHours int) planInputs {
	in := planInputs{AvgTemperature: neutralForecastTemp}

	// Current soil moisture: live telemetry first, profile snapshot second,
	// configured default last.
	if point, ok := a.telemetry.Latest(ctx, plant.DeviceID, models.MetricSoilMoisture); ok {
		in.Current = point.Value
	} else if plant.CurrentMoisture > 0 {
		in.Current = plant.CurrentMoisture
		in.Notes = append(in.Notes, "no live soil moisture reading; using profile snapshot")
	} else {
		in.Current = a.cfg.DefaultMoisture
		in.Notes = append(in.Notes, "insufficient data: no soil moisture available, assuming default")
	}

	series, err := a.forecasts.Hourly(ctx, a.cfg.Latitude, a.cfg.Longitude, a.cfg.Timezone)
	if err != nil {
		in.Notes = append(in.Notes, "insufficient data: forecast unavailable")
		a.logger.Warn("Forecast fetch failed, degrading to no-forecast evaluation",
			zap.Uint("plant_id", plant.ID),
			zap.Error(err))
		return in
	}

	agg := forecast.Aggregate(series, horizonHours)
	in.HaveForecast = true
	in.RainTotalMM = agg.RainTotalMM
	in.AvgTemperature = agg.AvgTemperature
	in.HaveSoilBands = true
	in.ShallowSoilFrac = agg.ShallowSoilFrac
	for _, missing := range agg.Missing {
		in.Notes = append(in.Notes, "insufficient data: forecast variable missing: "+missing)
		if missing == "soil_moisture" {
			in.HaveSoilBands = false
		}
		if missing == forecast.VarTemperature2M {
			in.AvgTemperature = neutralForecastTemp
		}
	}
	return in
}

// evaluatePlan is the pure frequency-plan rule engine. First match wins.
func (a *Advisor) evaluatePlan(plant models.PlantProfile, in planInputs, now time.Time) models.PlanDecision {
	target := plant.PlantType.TargetMoisture()
	buffer := toleranceBuffer(plant.Robustness)

	projected := in.Current
	if in.HaveForecast && in.HaveSoilBands {
		horizonDays := a.cfg.PlanHorizonHours / 24
		if horizonDays < 1 {
			horizonDays = 1
		}
		gainPerDay := (in.ShallowSoilFrac*100 - in.Current) / float64(horizonDays)
		gainPerDay *= a.cfg.orientationGain(plant.Orientation)

		projected = in.Current + gainPerDay*float64(a.cfg.ProjectionDays)
		if in.RainTotalMM > 0 {
			projected += in.RainTotalMM * a.cfg.RainGainPerMM
		}
		if a.cfg.ClampProjection {
			projected = clamp(projected, 0, 100)
		}
	}

	decision := models.PlanDecision{
		PlantID:           plant.ID,
		CurrentMoisture:   in.Current,
		ProjectedMoisture: projected,
		TargetMoisture:    target,
		Buffer:            buffer,
		AvgTemperature:    in.AvgTemperature,
		RainTotalMM:       in.RainTotalMM,
		DataNotes:         in.Notes,
		GeneratedAt:       now,
	}

	switch {
	case projected >= target-buffer:
		decision.Action = "no watering needed"
		decision.Reason = "forecast will meet the plant's needs"
		decision.PredictedNextWatering = now.AddDate(0, 0, a.cfg.ProjectionDays).Format("2006-01-02")
	case in.Current < target-(15+buffer):
		decision.Action = "water twice over 5 days"
		decision.Reason = "moisture significantly below optimal"
		decision.PredictedNextWatering = now.AddDate(0, 0, 1).Format("2006-01-02")
	case in.Current < target-(5+buffer):
		decision.Action = "water once in 4 days"
		decision.Reason = "moisture slightly below optimal"
		decision.PredictedNextWatering = now.AddDate(0, 0, 4).Format("2006-01-02")
	default:
		decision.Action = "water once next week"
		decision.Reason = "moisture within acceptable range"
		decision.PredictedNextWatering = now.AddDate(0, 0, 7).Format("2006-01-02")
	}
	return decision
}

// evaluateVolume is the pure volume-advice rule engine. Ordered branches,
// total over every input combination.
func (a *Advisor) evaluateVolume(plant models.PlantProfile, in planInputs, now time.Time) models.VolumeDecision {
	volume := plant.PotSize.VolumeML()
	target := plant.PlantType.TargetMoisture()
	temp := in.AvgTemperature

	decision := models.VolumeDecision{
		PlantID:         plant.ID,
		CurrentMoisture: in.Current,
		AvgTemperature:  temp,
		DataNotes:       in.Notes,
		GeneratedAt:     now,
	}

	switch {
	case in.Current < 30:
		switch {
		case temp < 5:
			decision.WaterNow = true
			decision.VolumeML = volume / 2
			decision.Reason = "soil is dry but a cold spell is ahead"
		case temp < 10:
			decision.WaterNow = true
			decision.VolumeML = volume * 3 / 4
			decision.Reason = "soil is dry with cool weather ahead"
		case temp > 22:
			decision.WaterNow = true
			decision.VolumeML = volume
			decision.Reason = "soil is dry and the forecast is hot"
		default:
			decision.WaterNow = true
			decision.VolumeML = volume * 3 / 4
			decision.Reason = "soil is dry"
		}
	case in.Current > 70:
		decision.Reason = "soil is saturated"
	case temp >= 20 && temp <= 25 && in.Current < target:
		decision.WaterNow = true
		decision.VolumeML = volume / 2
		decision.Reason = "moderately dry with a warm forecast"
	case in.Current >= 30 && in.Current < 40:
		decision.WaterNow = true
		decision.VolumeML = volume / 4
		decision.Reason = "moisture slightly low"
	default:
		decision.Reason = "moisture adequate"
	}

	if decision.WaterNow {
		decision.Advice = fmt.Sprintf("water now with ~%dml", decision.VolumeML)
	} else {
		decision.Advice = "no water needed now"
	}
	return decision
}

// toleranceBuffer widens the acceptable deviation from target for less
// robust plants: (10 - robustness) * 0.5 percentage points.
func toleranceBuffer(robustness int) float64 {
	if robustness < 1 {
		robustness = 1
	}
	if robustness > 10 {
		robustness = 10
	}
	return float64(10-robustness) * 0.5
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
