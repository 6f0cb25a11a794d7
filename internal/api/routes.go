package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"plantwise/internal/models"
)

func SetupRoutes(app *fiber.App, handler *Handler, log *zap.Logger) {
	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} ${pid} ${locals:requestid} ${status} - ${method} ${path}\n",
		TimeFormat: time.RFC3339,
	}))

	// Device-facing surface, paths kept stable for deployed senders.
	app.Post("/ingest", handler.Ingest)
	app.Get("/humidity", handler.QueryMetric(models.MetricHumidity))
	app.Get("/co2", handler.QueryMetric(models.MetricCO2))
	app.Get("/soil_moisture", handler.QueryMetric(models.MetricSoilMoisture))
	app.Get("/temperature", handler.QueryMetric(models.MetricTemperature))

	// API v1 routes
	api := app.Group("/api/v1")

	api.Get("/health", handler.GetHealth)
	api.Get("/stats", handler.GetStats)

	plants := api.Group("/plants")
	plants.Post("/", handler.CreatePlant)
	plants.Get("/", handler.ListPlants)
	plants.Get("/:id", handler.GetPlant)
	plants.Get("/:id/plan", handler.GetPlantPlan)
	plants.Delete("/:id", handler.DeletePlant)

	fc := api.Group("/forecast")
	fc.Get("/hourly", handler.GetHourlyForecast)
	fc.Get("/grid", handler.GetGrid)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
			"path":  c.Path(),
		})
	})
}
