package api

import (
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"plantwise/internal/forecast"
	"plantwise/internal/models"
	"plantwise/internal/services"
	"plantwise/internal/store"
	"plantwise/pkg/client"
)

var startTime = time.Now()

type Handler struct {
	telemetry  *services.TelemetryService
	forecasts  *services.ForecastService
	advisor    *services.Advisor
	registry   store.PlantRegistry
	location   Location
	thresholds Thresholds
	validate   *validator.Validate
	logger     *zap.Logger
}

// Location is the fixed evaluation location exposed to the forecast
// endpoints.
type Location struct {
	Latitude  float64
	Longitude float64
	Timezone  string
}

// Thresholds flag forecast hours needing water: dry soil (m³/m³) combined
// with hot air (°C).
type Thresholds struct {
	Dry float64
	Hot float64
}

func NewHandler(
	telemetry *services.TelemetryService,
	forecasts *services.ForecastService,
	advisor *services.Advisor,
	registry store.PlantRegistry,
	location Location,
	thresholds Thresholds,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		telemetry:  telemetry,
		forecasts:  forecasts,
		advisor:    advisor,
		registry:   registry,
		location:   location,
		thresholds: thresholds,
		validate:   validator.New(),
		logger:     logger,
	}
}

// ---------------------------------------------------------------- ingestion

type IngestRequest struct {
	SensorID     string   `json:"sensor_id"`
	PlantID      string   `json:"plant_id"`
	Timestamp    string   `json:"timestamp"`
	Humidity     *float64 `json:"humidity" validate:"omitempty,gte=0,lte=100"`
	CO2          *int     `json:"co2" validate:"omitempty,gte=0"`
	SoilMoisture *float64 `json:"soil_moisture" validate:"omitempty,gte=0"`
	Temperature  *float64 `json:"temperature" validate:"omitempty,gte=-60,lte=80"`
	Pressure     *float64 `json:"pressure" validate:"omitempty,gte=0"`
}

// Ingest handles POST /ingest. Partially-null readings are accepted; a
// malformed timestamp is coerced to ingestion time rather than rejected.
func (h *Handler) Ingest(c *fiber.Ctx) error {
	var req IngestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "malformed JSON body",
			"details": err.Error(),
		})
	}

	plantID := req.PlantID
	if plantID == "" {
		plantID = req.SensorID
	}
	if plantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"fields": []fiber.Map{{"field": "plant_id", "rule": "one of plant_id or sensor_id is required"}},
		})
	}

	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"fields": validationFields(err),
		})
	}

	reading := &models.SensorReading{
		PlantID:      plantID,
		Timestamp:    parseTimestamp(req.Timestamp),
		Humidity:     req.Humidity,
		CO2:          req.CO2,
		SoilMoisture: req.SoilMoisture,
		Temperature:  req.Temperature,
		Pressure:     req.Pressure,
	}

	if err := h.telemetry.Append(c.Context(), reading); err != nil {
		h.logger.Error("Ingest failed after retries",
			zap.String("plant_id", plantID),
			zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "storage unavailable, reading not persisted",
		})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

// QueryMetric serves GET /humidity, /co2, /soil_moisture and /temperature:
// the trailing 7 days of one metric.
func (h *Handler) QueryMetric(metric models.Metric) fiber.Handler {
	return func(c *fiber.Ctx) error {
		points, err := h.telemetry.Query(c.Context(), metric)
		if err != nil {
			h.logger.Error("Metric query failed",
				zap.String("metric", string(metric)),
				zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to query telemetry",
			})
		}
		return c.JSON(points)
	}
}

// ------------------------------------------------------------------ plants

type CreatePlantRequest struct {
	Name            string   `json:"name" validate:"required"`
	DeviceID        string   `json:"device_id"`
	PotSize         string   `json:"pot_size" validate:"required,oneof=Small Medium Large"`
	Orientation     string   `json:"orientation" validate:"required,oneof=N E S W"`
	PlantType       string   `json:"plant_type" validate:"required,oneof=Indoor Outdoor Desert Tropical"`
	Robustness      int      `json:"robustness" validate:"omitempty,gte=1,lte=10"`
	LastWatered     string   `json:"last_watered"`
	CurrentMoisture *float64 `json:"current_moisture" validate:"omitempty,gte=0,lte=100"`
}

// CreatePlant registers a profile and immediately answers with the
// short-horizon volume advice.
func (h *Handler) CreatePlant(c *fiber.Ctx) error {
	var req CreatePlantRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "malformed JSON body",
			"details": err.Error(),
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"fields": validationFields(err),
		})
	}

	plantType := models.PlantType(req.PlantType)
	robustness := req.Robustness
	if robustness == 0 {
		robustness = plantType.DefaultRobustness()
	}

	lastWatered := time.Now().UTC()
	if req.LastWatered != "" {
		if t, err := time.Parse("2006-01-02", req.LastWatered); err == nil {
			lastWatered = t
		}
	}

	plant := models.PlantProfile{
		Name:        req.Name,
		DeviceID:    req.DeviceID,
		PotSize:     models.PotSize(req.PotSize),
		Orientation: models.Orientation(req.Orientation),
		PlantType:   plantType,
		Robustness:  robustness,
		LastWatered: lastWatered,
	}

	if req.CurrentMoisture != nil {
		plant.CurrentMoisture = *req.CurrentMoisture
	} else if point, ok := h.telemetry.Latest(c.Context(), plant.DeviceID, models.MetricSoilMoisture); ok {
		plant.CurrentMoisture = point.Value
	}
	plant.PrognosedMoisture = models.PrognoseAfterWatering(plant.CurrentMoisture, plant.PotSize)

	if err := h.registry.Add(c.Context(), &plant); err != nil {
		if errors.Is(err, store.ErrDuplicatePlant) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "a plant with this name and watering date already exists",
			})
		}
		h.logger.Error("Plant creation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to store plant",
		})
	}

	advice := h.advisor.RecommendVolume(c.Context(), plant)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"plant":  plant,
		"advice": advice,
	})
}

func (h *Handler) ListPlants(c *fiber.Ctx) error {
	plants, err := h.registry.List(c.Context())
	if err != nil {
		h.logger.Error("Listing plants failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list plants",
		})
	}
	return c.JSON(fiber.Map{"plants": plants})
}

func (h *Handler) GetPlant(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid plant id"})
	}

	plant, err := h.registry.Get(c.Context(), uint(id))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "plant not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load plant"})
	}
	return c.JSON(plant)
}

// GetPlantPlan runs the standing frequency plan for one plant on demand and
// writes the result back into the registry.
func (h *Handler) GetPlantPlan(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid plant id"})
	}

	plant, err := h.registry.Get(c.Context(), uint(id))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "plant not found"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load plant"})
	}

	decision := h.advisor.PlanWatering(c.Context(), plant)

	plan := decision.Action + ": " + decision.Reason
	prognosed := models.PrognoseAfterWatering(decision.CurrentMoisture, plant.PotSize)
	patch := models.PlantPatch{
		WateringPlan:          &plan,
		PredictedNextWatering: &decision.PredictedNextWatering,
		PrognosedMoisture:     &prognosed,
	}
	if err := h.registry.Update(c.Context(), plant.ID, patch); err != nil {
		h.logger.Warn("Plan write-back failed",
			zap.Uint("plant_id", plant.ID),
			zap.Error(err))
	}

	return c.JSON(decision)
}

func (h *Handler) DeletePlant(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid plant id"})
	}

	if err := h.registry.Delete(c.Context(), uint(id)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "plant not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete plant"})
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// ---------------------------------------------------------------- forecast

// GetHourlyForecast returns the cached hourly series for the configured
// location plus the hours flagged as needing water (dry soil + hot air).
func (h *Handler) GetHourlyForecast(c *fiber.Ctx) error {
	series, err := h.forecasts.Hourly(c.Context(), h.location.Latitude, h.location.Longitude, h.location.Timezone)
	if err != nil {
		h.logger.Error("Hourly forecast fetch failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "forecast provider unavailable",
		})
	}

	type alert struct {
		Time            time.Time `json:"time"`
		Temperature     float64   `json:"temperature"`
		AvgSoilMoisture float64   `json:"avg_soil_moisture"`
	}
	var alerts []alert

	temps := series.Values[forecast.VarTemperature2M]
	bands := [][]float64{
		series.Values[forecast.VarSoil0To1Cm],
		series.Values[forecast.VarSoil1To3Cm],
		series.Values[forecast.VarSoil3To9Cm],
	}
	for i, t := range series.Time {
		if i >= len(temps) {
			break
		}
		sum, n := 0.0, 0
		for _, band := range bands {
			if i < len(band) && !math.IsNaN(band[i]) {
				sum += band[i]
				n++
			}
		}
		if n == 0 || math.IsNaN(temps[i]) {
			continue
		}
		avg := sum / float64(n)
		if avg < h.thresholds.Dry && temps[i] > h.thresholds.Hot {
			alerts = append(alerts, alert{Time: t, Temperature: temps[i], AvgSoilMoisture: avg})
		}
	}

	return c.JSON(fiber.Map{
		"hourly": series,
		"alerts": alerts,
	})
}

// GetGrid returns the regional soil moisture grid with dryness flags.
func (h *Handler) GetGrid(c *fiber.Ctx) error {
	size := c.QueryInt("size", 11)
	spacing := c.QueryFloat("spacing", 2.5)
	threshold := c.QueryFloat("threshold", 0.15)

	samples, err := h.forecasts.Grid(c.Context(), h.location.Latitude, h.location.Longitude, spacing, size)
	if err != nil {
		if errors.Is(err, client.ErrForecastUnavailable) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "forecast provider unavailable",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid grid parameters",
			"details": err.Error(),
		})
	}

	type gridPoint struct {
		Lat           float64 `json:"lat"`
		Lon           float64 `json:"lon"`
		Moisture      float64 `json:"moisture"`
		NeedsWatering bool    `json:"needs_watering"`
	}
	points := make([]gridPoint, 0, len(samples))
	dry := 0
	for _, s := range samples {
		needs := s.Moisture < threshold
		if needs {
			dry++
		}
		points = append(points, gridPoint{
			Lat:           s.Lat,
			Lon:           s.Lon,
			Moisture:      s.Moisture,
			NeedsWatering: needs,
		})
	}

	return c.JSON(fiber.Map{
		"center":    fiber.Map{"lat": h.location.Latitude, "lon": h.location.Longitude},
		"requested": size * size,
		"fetched":   len(points),
		"threshold": threshold,
		"dry_count": dry,
		"points":    points,
	})
}

// ------------------------------------------------------------------ system

func (h *Handler) GetHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime).String(),
	})
}

func (h *Handler) GetStats(c *fiber.Ctx) error {
	plants, _ := h.registry.List(c.Context())
	return c.JSON(fiber.Map{
		"plants":    len(plants),
		"timestamp": time.Now(),
	})
}

// ----------------------------------------------------------------- helpers

// parseTimestamp accepts RFC3339 and the zoneless ISO format devices send;
// anything else yields zero and is coerced to ingestion time downstream.
func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func validationFields(err error) []fiber.Map {
	var fields []fiber.Map
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields = append(fields, fiber.Map{
				"field": fe.Field(),
				"rule":  fe.Tag(),
				"value": fe.Param(),
			})
		}
	}
	return fields
}
