// Package sender is the ingestion client used by edge devices and the
// simulator. When the API is unreachable, readings are buffered to a local
// CSV file and replayed in order once the connection returns.
package sender

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Payload mirrors the ingestion endpoint's JSON body.
type Payload struct {
	PlantID      string   `json:"plant_id"`
	Timestamp    string   `json:"timestamp"`
	Humidity     *float64 `json:"humidity,omitempty"`
	CO2          *int     `json:"co2,omitempty"`
	SoilMoisture *float64 `json:"soil_moisture,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Pressure     *float64 `json:"pressure,omitempty"`
}

var csvHeader = []string{"plant_id", "timestamp", "humidity", "co2", "soil_moisture", "temperature", "pressure"}

type Sender struct {
	endpoint   string
	client     *http.Client
	bufferPath string
	logger     *zap.Logger
}

func New(endpoint, bufferPath string, timeout time.Duration, logger *zap.Logger) *Sender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: timeout},
		bufferPath: bufferPath,
		logger:     logger,
	}
}

// Send posts one reading. On failure the reading is appended to the offline
// buffer; on success any buffered readings are replayed first-in-first-out.
func (s *Sender) Send(ctx context.Context, p Payload) error {
	if err := s.post(ctx, p); err != nil {
		s.logger.Warn("Send failed, buffering reading offline",
			zap.String("plant_id", p.PlantID),
			zap.Error(err))
		if berr := s.appendToBuffer(p); berr != nil {
			return fmt.Errorf("send failed and buffering failed: %v (send: %w)", berr, err)
		}
		return nil
	}

	s.replayBuffer(ctx)
	return nil
}

func (s *Sender) post(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ingest returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (s *Sender) appendToBuffer(p Payload) error {
	exists := false
	if _, err := os.Stat(s.bufferPath); err == nil {
		exists = true
	}

	f, err := os.OpenFile(s.bufferPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	if err := w.Write(payloadToRecord(p)); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// replayBuffer drains the offline CSV in order, stopping at the first
// record that still fails so nothing is lost. The file is removed only
// after a complete drain.
func (s *Sender) replayBuffer(ctx context.Context) {
	f, err := os.Open(s.bufferPath)
	if err != nil {
		return // no buffered data
	}

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	f.Close()
	if err != nil || len(records) <= 1 {
		return
	}

	sent := 0
	for _, record := range records[1:] {
		p := recordToPayload(record)

		policy := backoff.NewExponentialBackOff()
		policy.MaxElapsedTime = 5 * time.Second
		err := backoff.Retry(func() error {
			return s.post(ctx, p)
		}, backoff.WithContext(policy, ctx))
		if err != nil {
			s.logger.Warn("Replay interrupted, keeping remaining buffer",
				zap.Int("sent", sent),
				zap.Int("remaining", len(records)-1-sent),
				zap.Error(err))
			s.rewriteBuffer(records[0], records[1+sent:])
			return
		}
		sent++
	}

	if err := os.Remove(s.bufferPath); err == nil {
		s.logger.Info("Offline buffer drained", zap.Int("sent", sent))
	}
}

func (s *Sender) rewriteBuffer(header []string, remaining [][]string) {
	f, err := os.Create(s.bufferPath)
	if err != nil {
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write(header)
	_ = w.WriteAll(remaining)
	w.Flush()
}

func payloadToRecord(p Payload) []string {
	return []string{
		p.PlantID,
		p.Timestamp,
		formatFloat(p.Humidity),
		formatInt(p.CO2),
		formatFloat(p.SoilMoisture),
		formatFloat(p.Temperature),
		formatFloat(p.Pressure),
	}
}

func recordToPayload(record []string) Payload {
	p := Payload{}
	if len(record) < len(csvHeader) {
		return p
	}
	p.PlantID = record[0]
	p.Timestamp = record[1]
	p.Humidity = parseFloatField(record[2])
	p.CO2 = parseIntField(record[3])
	p.SoilMoisture = parseFloatField(record[4])
	p.Temperature = parseFloatField(record[5])
	p.Pressure = parseFloatField(record[6])
	return p
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseFloatField(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseIntField(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
