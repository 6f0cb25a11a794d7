package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"plantwise/internal/forecast"
	"plantwise/internal/services"
	"plantwise/internal/store"
)

// stubForecast serves a fixed hot-and-dry series without hitting the network.
type stubForecast struct {
	series *forecast.HourlySeries
}

func (s *stubForecast) FetchHourly(context.Context, float64, float64, []string, string) (*forecast.HourlySeries, error) {
	return s.series, nil
}

func (s *stubForecast) SoilMoisture(context.Context, float64, float64) (float64, error) {
	return 0.1, nil
}

func hotDrySeries(hours int) *forecast.HourlySeries {
	s := &forecast.HourlySeries{
		Time:   make([]time.Time, hours),
		Values: make(map[string][]float64),
	}
	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	for i := 0; i < hours; i++ {
		s.Time[i] = start.Add(time.Duration(i) * time.Hour)
	}
	fill := func(v float64) []float64 {
		vals := make([]float64, hours)
		for i := range vals {
			vals[i] = v
		}
		return vals
	}
	s.Values[forecast.VarTemperature2M] = fill(30)
	s.Values[forecast.VarSoil0To1Cm] = fill(0.1)
	s.Values[forecast.VarSoil1To3Cm] = fill(0.1)
	s.Values[forecast.VarSoil3To9Cm] = fill(0.1)
	s.Values[forecast.VarSoil9To27Cm] = fill(0.12)
	s.Values[forecast.VarRain] = fill(0)
	return s
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := zap.NewNop()

	telemetry := services.NewTelemetryService(store.NewMemoryTelemetryStore(), nil, time.Second, logger)
	registry := store.NewMemoryPlantRegistry(true)

	cache := services.NewTTLCache(16, logger)
	t.Cleanup(cache.Stop)
	forecasts := services.NewForecastService(&stubForecast{series: hotDrySeries(72)}, cache, services.ForecastConfig{}, logger)

	advisor := services.NewAdvisor(services.DefaultAdvisorConfig(), telemetry, forecasts, registry, logger)

	handler := NewHandler(telemetry, forecasts, advisor, registry,
		Location{Latitude: 48.2085, Longitude: 16.3721, Timezone: "Europe/Vienna"},
		Thresholds{Dry: 0.25, Hot: 25},
		logger)

	app := fiber.New()
	SetupRoutes(app, handler, logger)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestIngestAndQueryRoundTrip(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/ingest", map[string]interface{}{
		"plant_id":      "p1",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"humidity":      44.2,
		"co2":           612,
		"soil_moisture": 31.0,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status = %d, body %v", resp.StatusCode, body)
	}
	if body["status"] != "ok" {
		t.Errorf("ingest body = %v", body)
	}

	req := httptest.NewRequest(http.MethodGet, "/humidity", nil)
	qresp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if qresp.StatusCode != http.StatusOK {
		t.Fatalf("query status = %d", qresp.StatusCode)
	}
	var points []map[string]interface{}
	if err := json.NewDecoder(qresp.Body).Decode(&points); err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 || points[0]["value"].(float64) != 44.2 {
		t.Errorf("humidity points = %v, want single 44.2", points)
	}
}

func TestIngestAcceptsSensorIDAlias(t *testing.T) {
	app := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/ingest", map[string]interface{}{
		"sensor_id":   "esp32-a",
		"temperature": 21.5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestIngestRejectsMissingID(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/ingest", map[string]interface{}{
		"humidity": 50.0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["error"] != "validation failed" {
		t.Errorf("body = %v", body)
	}
}

func TestIngestRejectsOutOfRangeHumidity(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/ingest", map[string]interface{}{
		"plant_id": "p1",
		"humidity": 150.0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %v", resp.StatusCode, body)
	}
	fields, ok := body["fields"].([]interface{})
	if !ok || len(fields) == 0 {
		t.Errorf("expected field details, got %v", body)
	}
}

func TestCreatePlantReturnsAdvice(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/plants/", map[string]interface{}{
		"name":             "monstera",
		"pot_size":         "Small",
		"orientation":      "S",
		"plant_type":       "Tropical",
		"robustness":       3,
		"last_watered":     "2026-08-20",
		"current_moisture": 25.0,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}

	plant, ok := body["plant"].(map[string]interface{})
	if !ok || plant["id"].(float64) == 0 {
		t.Fatalf("plant missing from response: %v", body)
	}
	advice, ok := body["advice"].(map[string]interface{})
	if !ok {
		t.Fatalf("advice missing from response: %v", body)
	}
	// Dry soil with a hot stub forecast: the full small-pot volume.
	if advice["water_now"] != true {
		t.Errorf("advice = %v, want water_now", advice)
	}
	if advice["volume_ml"].(float64) != 100 {
		t.Errorf("volume_ml = %v, want 100", advice["volume_ml"])
	}
}

func TestCreatePlantRejectsUnknownPotSize(t *testing.T) {
	app := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/plants/", map[string]interface{}{
		"name":        "mystery",
		"pot_size":    "Gigantic",
		"orientation": "S",
		"plant_type":  "Indoor",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreatePlantDuplicateConflict(t *testing.T) {
	app := newTestApp(t)

	payload := map[string]interface{}{
		"name":         "basil",
		"pot_size":     "Medium",
		"orientation":  "E",
		"plant_type":   "Indoor",
		"last_watered": "2026-08-20",
	}
	if resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/plants/", payload); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create status = %d", resp.StatusCode)
	}
	if resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/plants/", payload); resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want 409", resp.StatusCode)
	}
}

func TestPlantPlanEndpointWritesBack(t *testing.T) {
	app := newTestApp(t)

	_, created := doJSON(t, app, http.MethodPost, "/api/v1/plants/", map[string]interface{}{
		"name":             "ficus",
		"pot_size":         "Medium",
		"orientation":      "E",
		"plant_type":       "Indoor",
		"current_moisture": 20.0,
	})
	id := int(created["plant"].(map[string]interface{})["id"].(float64))

	resp, plan := doJSON(t, app, http.MethodGet, "/api/v1/plants/"+strconv.Itoa(id)+"/plan", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("plan status = %d, body %v", resp.StatusCode, plan)
	}
	if plan["action"] == "" {
		t.Errorf("plan has no action: %v", plan)
	}

	_, got := doJSON(t, app, http.MethodGet, "/api/v1/plants/"+strconv.Itoa(id), nil)
	if got["watering_plan"] == "" {
		t.Errorf("plan not written back to profile: %v", got)
	}
}

func TestHourlyForecastIncludesAlerts(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/forecast/hourly", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	// The stub series is uniformly hot and dry: every hour alerts.
	alerts, ok := body["alerts"].([]interface{})
	if !ok || len(alerts) != 72 {
		t.Errorf("got %d alerts, want 72", len(alerts))
	}
}

func TestGridEndpointFlagsDryPoints(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/forecast/grid?size=3&spacing=2.5&threshold=0.15", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	if body["fetched"].(float64) != 9 {
		t.Errorf("fetched = %v, want 9", body["fetched"])
	}
	// The stub returns 0.1 everywhere, below the 0.15 threshold.
	if body["dry_count"].(float64) != 9 {
		t.Errorf("dry_count = %v, want 9", body["dry_count"])
	}
}

func TestGridEndpointRejectsEvenSize(t *testing.T) {
	app := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/forecast/grid?size=4", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	app := newTestApp(t)

	resp, body := doJSON(t, app, http.MethodGet, "/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body["error"] != "Endpoint not found" {
		t.Errorf("body = %v", body)
	}
}
