package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"plantwise/internal/forecast"
)

// ErrForecastUnavailable signals that the upstream provider could not be
// reached or returned an unusable payload. Callers must degrade to
// "no forecast data" rather than fail.
var ErrForecastUnavailable = errors.New("forecast unavailable")

// OpenMeteoClient fetches hourly forecast series from the Open-Meteo API.
type OpenMeteoClient struct {
	*BaseClient
	baseURL string
}

type openMeteoHourlyResponse struct {
	Latitude  float64                    `json:"latitude"`
	Longitude float64                    `json:"longitude"`
	Hourly    map[string]json.RawMessage `json:"hourly"`
}

func NewOpenMeteoClient(baseURL string, config ClientConfig, logger *zap.Logger) *OpenMeteoClient {
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com/v1"
	}
	return &OpenMeteoClient{
		BaseClient: NewBaseClient("openmeteo", config, logger),
		baseURL:    baseURL,
	}
}

// FetchHourly requests the given hourly variables for one location over the
// provider's default horizon. The response's parallel arrays share a single
// time axis; provider nulls become NaN in the series.
func (c *OpenMeteoClient) FetchHourly(ctx context.Context, lat, lon float64, variables []string, timezone string) (*forecast.HourlySeries, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("hourly", strings.Join(variables, ","))
	if timezone != "" {
		q.Set("timezone", timezone)
	}
	reqURL := fmt.Sprintf("%s/forecast?%s", c.baseURL, q.Encode())

	data, err := c.GetWithRetry(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForecastUnavailable, err)
	}

	var response openMeteoHourlyResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrForecastUnavailable, err)
	}

	series, err := decodeHourly(response.Hourly, variables)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrForecastUnavailable, err)
	}
	return series, nil
}

// SoilMoisture returns the current top-layer (0-1cm) soil moisture for one
// location. Used per point by the grid fetcher.
func (c *OpenMeteoClient) SoilMoisture(ctx context.Context, lat, lon float64) (float64, error) {
	series, err := c.FetchHourly(ctx, lat, lon, []string{forecast.VarSoil0To1Cm}, "")
	if err != nil {
		return 0, err
	}
	vals := series.Values[forecast.VarSoil0To1Cm]
	for _, v := range vals {
		if !math.IsNaN(v) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: no soil moisture values", ErrForecastUnavailable)
}

func decodeHourly(raw map[string]json.RawMessage, variables []string) (*forecast.HourlySeries, error) {
	timesRaw, ok := raw["time"]
	if !ok {
		return nil, fmt.Errorf("response has no time axis")
	}

	var timeStrings []string
	if err := json.Unmarshal(timesRaw, &timeStrings); err != nil {
		return nil, fmt.Errorf("parse time axis: %v", err)
	}

	times := make([]time.Time, 0, len(timeStrings))
	for _, ts := range timeStrings {
		// Open-Meteo emits local time without zone offset.
		t, err := time.Parse("2006-01-02T15:04", ts)
		if err != nil {
			t, err = time.Parse(time.RFC3339, ts)
			if err != nil {
				return nil, fmt.Errorf("parse time %q: %v", ts, err)
			}
		}
		times = append(times, t)
	}

	series := &forecast.HourlySeries{
		Time:   times,
		Values: make(map[string][]float64, len(variables)),
	}

	for _, name := range variables {
		valsRaw, ok := raw[name]
		if !ok {
			continue
		}
		var vals []*float64
		if err := json.Unmarshal(valsRaw, &vals); err != nil {
			return nil, fmt.Errorf("parse %s: %v", name, err)
		}
		flat := make([]float64, len(vals))
		for i, v := range vals {
			if v == nil {
				flat[i] = math.NaN()
			} else {
				flat[i] = *v
			}
		}
		series.Values[name] = flat
	}

	if len(series.Values) == 0 {
		return nil, fmt.Errorf("no requested variables in response")
	}
	return series, nil
}
