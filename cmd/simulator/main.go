// Command simulator feeds the ingestion endpoint with fake sensor readings,
// useful for local development without a device.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"plantwise/pkg/sender"
)

func main() {
	endpoint := flag.String("endpoint", "http://localhost:8080/ingest", "ingestion endpoint URL")
	plantID := flag.String("plant", "plant_01", "plant id to report as")
	interval := flag.Duration("interval", 10*time.Second, "delay between readings")
	buffer := flag.String("buffer", "offline_data.csv", "offline CSV buffer path")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	s := sender.New(*endpoint, *buffer, 10*time.Second, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Simulator started",
		zap.String("endpoint", *endpoint),
		zap.String("plant", *plantID),
		zap.Duration("interval", *interval))

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		payload := fakeReading(*plantID)
		if err := s.Send(ctx, payload); err != nil {
			logger.Error("Send failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("Simulator stopped")
			return
		case <-ticker.C:
		}
	}
}

func fakeReading(plantID string) sender.Payload {
	humidity := 30 + rand.Float64()*40
	co2 := 400 + rand.Intn(400)
	moisture := 20 + rand.Float64()*60
	temperature := 18 + rand.Float64()*12
	pressure := 990 + rand.Float64()*40

	return sender.Payload{
		PlantID:      plantID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Humidity:     &humidity,
		CO2:          &co2,
		SoilMoisture: &moisture,
		Temperature:  &temperature,
		Pressure:     &pressure,
	}
}
