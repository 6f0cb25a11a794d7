package services

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"plantwise/internal/forecast"
	"plantwise/internal/models"
	"plantwise/internal/store"
)

func newTestAdvisor(cfg AdvisorConfig) *Advisor {
	return NewAdvisor(cfg, nil, nil, nil, zap.NewNop())
}

func TestPlanRobustDesertPlantSkipsWatering(t *testing.T) {
	a := newTestAdvisor(DefaultAdvisorConfig())
	plant := models.PlantProfile{
		ID:          1,
		PlantType:   models.PlantDesert,
		Orientation: models.OrientationEast,
		Robustness:  9,
	}
	in := planInputs{
		Current:         20,
		ShallowSoilFrac: 0.32,
		AvgTemperature:  18,
		HaveForecast:    true,
		HaveSoilBands:   true,
	}

	d := a.evaluatePlan(plant, in, time.Now().UTC())

	// gain/day = (32-20)/3 = 4, over 5 days: 20 + 20 = 40, target 35.
	if math.Abs(d.ProjectedMoisture-40) > 1e-9 {
		t.Errorf("ProjectedMoisture = %f, want 40", d.ProjectedMoisture)
	}
	if d.Action != "no watering needed" {
		t.Errorf("Action = %q, want no watering needed", d.Action)
	}
	if d.Buffer != 0.5 {
		t.Errorf("Buffer = %f, want 0.5", d.Buffer)
	}
}

func TestPlanFragileTropicalPlantWatersTwice(t *testing.T) {
	a := newTestAdvisor(DefaultAdvisorConfig())
	plant := models.PlantProfile{
		ID:          2,
		PlantType:   models.PlantTropical,
		Orientation: models.OrientationEast,
		Robustness:  3,
	}
	in := planInputs{
		Current:         20,
		ShallowSoilFrac: 0.23,
		AvgTemperature:  18,
		HaveForecast:    true,
		HaveSoilBands:   true,
	}

	now := time.Now().UTC()
	d := a.evaluatePlan(plant, in, now)

	// gain/day = (23-20)/3 = 1, over 5 days: 25, far below target 70.
	if math.Abs(d.ProjectedMoisture-25) > 1e-9 {
		t.Errorf("ProjectedMoisture = %f, want 25", d.ProjectedMoisture)
	}
	if d.Action != "water twice over 5 days" {
		t.Errorf("Action = %q, want water twice over 5 days", d.Action)
	}
	if want := now.AddDate(0, 0, 1).Format("2006-01-02"); d.PredictedNextWatering != want {
		t.Errorf("PredictedNextWatering = %q, want %q", d.PredictedNextWatering, want)
	}
}

func TestPlanRuleBoundaries(t *testing.T) {
	a := newTestAdvisor(DefaultAdvisorConfig())
	// Robustness 10 gives a zero buffer, making the rule edges exact.
	plant := models.PlantProfile{PlantType: models.PlantOutdoor, Robustness: 10}

	cases := []struct {
		name    string
		current float64
		action  string
	}{
		// target 60: <45 waters twice, [45,55) waters in 4 days, >=55 weekly.
		{"just below heavy threshold", 44.9, "water twice over 5 days"},
		{"exactly at heavy threshold", 45, "water once in 4 days"},
		{"just below light threshold", 54.9, "water once in 4 days"},
		{"exactly at light threshold", 55, "water once next week"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := planInputs{Current: tc.current, AvgTemperature: 15}
			d := a.evaluatePlan(plant, in, time.Now().UTC())
			if d.Action != tc.action {
				t.Errorf("current=%f: Action = %q, want %q", tc.current, d.Action, tc.action)
			}
		})
	}
}

func TestPlanProjectionClamp(t *testing.T) {
	plant := models.PlantProfile{
		PlantType:   models.PlantOutdoor,
		Orientation: models.OrientationEast,
		Robustness:  5,
	}
	in := planInputs{
		Current:         90,
		ShallowSoilFrac: 0.99,
		AvgTemperature:  15,
		HaveForecast:    true,
		HaveSoilBands:   true,
	}

	// gain/day = (99-90)/3 = 3, over 5 days: 105.
	unclamped := newTestAdvisor(DefaultAdvisorConfig())
	if d := unclamped.evaluatePlan(plant, in, time.Now().UTC()); math.Abs(d.ProjectedMoisture-105) > 1e-9 {
		t.Errorf("unclamped ProjectedMoisture = %f, want 105", d.ProjectedMoisture)
	}

	cfg := DefaultAdvisorConfig()
	cfg.ClampProjection = true
	clamped := newTestAdvisor(cfg)
	if d := clamped.evaluatePlan(plant, in, time.Now().UTC()); d.ProjectedMoisture != 100 {
		t.Errorf("clamped ProjectedMoisture = %f, want 100", d.ProjectedMoisture)
	}
}

func TestPlanRainContribution(t *testing.T) {
	a := newTestAdvisor(DefaultAdvisorConfig())
	plant := models.PlantProfile{
		PlantType:   models.PlantOutdoor,
		Orientation: models.OrientationEast,
		Robustness:  5,
	}
	base := planInputs{
		Current:         30,
		ShallowSoilFrac: 0.30,
		AvgTemperature:  15,
		HaveForecast:    true,
		HaveSoilBands:   true,
	}

	dry := a.evaluatePlan(plant, base, time.Now().UTC())

	wet := base
	wet.RainTotalMM = 10
	rained := a.evaluatePlan(plant, wet, time.Now().UTC())

	// 10mm at 0.5%/mm adds five points to the projection.
	if diff := rained.ProjectedMoisture - dry.ProjectedMoisture; math.Abs(diff-5) > 1e-9 {
		t.Errorf("rain added %f points to projection, want 5", diff)
	}
}

func TestPlanOrientationScalesGain(t *testing.T) {
	a := newTestAdvisor(DefaultAdvisorConfig())
	in := planInputs{
		Current:         20,
		ShallowSoilFrac: 0.32,
		AvgTemperature:  15,
		HaveForecast:    true,
		HaveSoilBands:   true,
	}
	projected := func(o models.Orientation) float64 {
		plant := models.PlantProfile{PlantType: models.PlantOutdoor, Orientation: o, Robustness: 5}
		return a.evaluatePlan(plant, in, time.Now().UTC()).ProjectedMoisture
	}

	north, south := projected(models.OrientationNorth), projected(models.OrientationSouth)
	if north >= south {
		t.Errorf("north projection %f should be below south %f", north, south)
	}
}

func TestVolumeDryAndColdHalvesTheDose(t *testing.T) {
	a := newTestAdvisor(DefaultAdvisorConfig())
	plant := models.PlantProfile{PotSize: models.PotSmall, PlantType: models.PlantIndoor, Robustness: 5}
	in := planInputs{Current: 25, AvgTemperature: 3, HaveForecast: true}

	d := a.evaluateVolume(plant, in, time.Now().UTC())

	if !d.WaterNow {
		t.Fatal("expected WaterNow for dry soil")
	}
	if d.VolumeML != 50 {
		t.Errorf("VolumeML = %d, want 50 (half a small pot)", d.VolumeML)
	}
	if d.Advice != "water now with ~50ml" {
		t.Errorf("Advice = %q", d.Advice)
	}
}

func TestVolumeBranches(t *testing.T) {
	a := newTestAdvisor(DefaultAdvisorConfig())

	cases := []struct {
		name     string
		pot      models.PotSize
		ptype    models.PlantType
		current  float64
		temp     float64
		waterNow bool
		volume   int
	}{
		{"dry cool", models.PotMedium, models.PlantIndoor, 25, 8, true, 150},
		{"dry hot", models.PotLarge, models.PlantIndoor, 25, 28, true, 400},
		{"dry mild", models.PotMedium, models.PlantIndoor, 25, 15, true, 150},
		{"saturated", models.PotLarge, models.PlantTropical, 75, 30, false, 0},
		{"warm below target", models.PotMedium, models.PlantTropical, 50, 22, true, 100},
		{"slightly low", models.PotMedium, models.PlantIndoor, 35, 15, true, 50},
		{"adequate", models.PotMedium, models.PlantIndoor, 60, 15, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plant := models.PlantProfile{PotSize: tc.pot, PlantType: tc.ptype, Robustness: 5}
			in := planInputs{Current: tc.current, AvgTemperature: tc.temp, HaveForecast: true}
			d := a.evaluateVolume(plant, in, time.Now().UTC())
			if d.WaterNow != tc.waterNow || d.VolumeML != tc.volume {
				t.Errorf("got water_now=%v volume=%d, want water_now=%v volume=%d",
					d.WaterNow, d.VolumeML, tc.waterNow, tc.volume)
			}
		})
	}
}

func TestVolumeDecisionIsTotal(t *testing.T) {
	a := newTestAdvisor(DefaultAdvisorConfig())
	plant := models.PlantProfile{PotSize: models.PotMedium, PlantType: models.PlantOutdoor, Robustness: 5}

	for current := 0.0; current <= 100; current += 5 {
		for temp := -10.0; temp <= 35; temp += 5 {
			in := planInputs{Current: current, AvgTemperature: temp, HaveForecast: true}
			d := a.evaluateVolume(plant, in, time.Now().UTC())
			if d.Advice == "" || d.Reason == "" {
				t.Fatalf("empty advice for current=%f temp=%f", current, temp)
			}
			if d.WaterNow && d.VolumeML <= 0 {
				t.Fatalf("WaterNow with zero volume for current=%f temp=%f", current, temp)
			}
			if !d.WaterNow && d.VolumeML != 0 {
				t.Fatalf("volume without WaterNow for current=%f temp=%f", current, temp)
			}
		}
	}
}

func TestToleranceBufferClampsRobustness(t *testing.T) {
	if got := toleranceBuffer(-3); got != 4.5 {
		t.Errorf("toleranceBuffer(-3) = %f, want 4.5", got)
	}
	if got := toleranceBuffer(15); got != 0 {
		t.Errorf("toleranceBuffer(15) = %f, want 0", got)
	}
	if got := toleranceBuffer(5); got != 2.5 {
		t.Errorf("toleranceBuffer(5) = %f, want 2.5", got)
	}
}

// failingClient simulates an unreachable forecast provider.
type failingClient struct{}

func (failingClient) FetchHourly(context.Context, float64, float64, []string, string) (*forecast.HourlySeries, error) {
	return nil, context.DeadlineExceeded
}

func (failingClient) SoilMoisture(context.Context, float64, float64) (float64, error) {
	return 0, context.DeadlineExceeded
}

func TestPlanDegradesWithoutForecast(t *testing.T) {
	logger := zap.NewNop()
	telemetry := NewTelemetryService(store.NewMemoryTelemetryStore(), nil, time.Second, logger)
	cache := NewTTLCache(10, logger)
	defer cache.Stop()
	forecasts := NewForecastService(failingClient{}, cache, ForecastConfig{}, logger)
	registry := store.NewMemoryPlantRegistry(false)

	a := NewAdvisor(DefaultAdvisorConfig(), telemetry, forecasts, registry, logger)

	plant := models.PlantProfile{
		ID:              1,
		PlantType:       models.PlantIndoor,
		PotSize:         models.PotMedium,
		Robustness:      5,
		CurrentMoisture: 20,
	}
	d := a.PlanWatering(context.Background(), plant)

	if d.Action == "" {
		t.Fatal("degraded evaluation produced no action")
	}
	found := false
	for _, note := range d.DataNotes {
		if strings.Contains(note, "forecast unavailable") {
			found = true
		}
	}
	if !found {
		t.Errorf("DataNotes = %v, want a forecast-unavailable note", d.DataNotes)
	}
	// Without forecast the projection falls back to the current level.
	if d.ProjectedMoisture != 20 {
		t.Errorf("ProjectedMoisture = %f, want 20", d.ProjectedMoisture)
	}
}

func TestRefreshAllPlansWritesBack(t *testing.T) {
	logger := zap.NewNop()
	telemetry := NewTelemetryService(store.NewMemoryTelemetryStore(), nil, time.Second, logger)
	cache := NewTTLCache(10, logger)
	defer cache.Stop()
	forecasts := NewForecastService(failingClient{}, cache, ForecastConfig{}, logger)
	registry := store.NewMemoryPlantRegistry(false)

	a := NewAdvisor(DefaultAdvisorConfig(), telemetry, forecasts, registry, logger)

	plant := &models.PlantProfile{
		Name:            "basil",
		PlantType:       models.PlantIndoor,
		PotSize:         models.PotSmall,
		Robustness:      5,
		CurrentMoisture: 20,
		LastWatered:     time.Now().UTC().AddDate(0, 0, -2),
	}
	if err := registry.Add(context.Background(), plant); err != nil {
		t.Fatal(err)
	}

	a.RefreshAllPlans(context.Background())

	got, err := registry.Get(context.Background(), plant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.WateringPlan == "" {
		t.Error("WateringPlan not written back")
	}
	if got.PredictedNextWatering == "" {
		t.Error("PredictedNextWatering not written back")
	}
	if got.PrognosedMoisture <= got.CurrentMoisture {
		t.Errorf("PrognosedMoisture = %f, want above current %f", got.PrognosedMoisture, got.CurrentMoisture)
	}
}
