// Package forecast holds the hourly weather series model shared by the
// Open-Meteo client and the watering advisor.
package forecast

import (
	"math"
	"time"
)

// Open-Meteo hourly variable names.
const (
	VarTemperature2M = "temperature_2m"
	VarSoil0To1Cm    = "soil_moisture_0_to_1cm"
	VarSoil1To3Cm    = "soil_moisture_1_to_3cm"
	VarSoil3To9Cm    = "soil_moisture_3_to_9cm"
	VarSoil9To27Cm   = "soil_moisture_9_to_27cm"
	VarRain          = "rain"
	VarShowers       = "showers"
	VarPrecipitation = "precipitation"
)

// DefaultHourlyVariables is the full variable set the advisor consumes.
var DefaultHourlyVariables = []string{
	VarTemperature2M,
	VarSoil0To1Cm,
	VarSoil1To3Cm,
	VarSoil3To9Cm,
	VarSoil9To27Cm,
	VarRain,
	VarShowers,
	VarPrecipitation,
}

// shallowBands are the depth bands averaged into the "plant-available" proxy.
var shallowBands = []string{VarSoil0To1Cm, VarSoil1To3Cm, VarSoil3To9Cm}

// HourlySeries is a decoded Open-Meteo hourly response: one shared time axis
// and one value series per requested variable. Missing provider values are
// stored as NaN and skipped by the aggregations.
type HourlySeries struct {
	Time   []time.Time          `json:"time"`
	Values map[string][]float64 `json:"values"`
}

func (s *HourlySeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Time)
}

// Window returns the leading portion of the series covering at most the
// given number of hours.
func (s *HourlySeries) Window(hours int) *HourlySeries {
	if s == nil || hours <= 0 || hours >= s.Len() {
		return s
	}
	out := &HourlySeries{
		Time:   s.Time[:hours],
		Values: make(map[string][]float64, len(s.Values)),
	}
	for name, vals := range s.Values {
		if len(vals) > hours {
			out.Values[name] = vals[:hours]
		} else {
			out.Values[name] = vals
		}
	}
	return out
}

// Mean averages one variable over the series, skipping NaN gaps.
func (s *HourlySeries) Mean(variable string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	vals, ok := s.Values[variable]
	if !ok {
		return 0, false
	}
	sum, n := 0.0, 0
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Sum totals one variable over the series, skipping NaN gaps.
func (s *HourlySeries) Sum(variable string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	vals, ok := s.Values[variable]
	if !ok {
		return 0, false
	}
	sum, n := 0.0, 0
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum, true
}

// Aggregates are the forecast inputs the advisor works with over one
// horizon window.
type Aggregates struct {
	AvgTemperature  float64  `json:"avg_temperature"`
	ShallowSoilFrac float64  `json:"shallow_soil_moisture"` // m³/m³
	RainTotalMM     float64  `json:"rain_total_mm"`
	Hours           int      `json:"hours"`
	Missing         []string `json:"missing,omitempty"`
}

// Aggregate reduces the leading window of a series to the advisor inputs:
// mean temperature, mean shallow soil moisture (0-1cm, 1-3cm, 3-9cm bands)
// and cumulative rain. Variables absent from the series are reported in
// Missing so callers can substitute defaults.
func Aggregate(s *HourlySeries, hours int) Aggregates {
	w := s.Window(hours)
	agg := Aggregates{Hours: w.Len()}

	if t, ok := w.Mean(VarTemperature2M); ok {
		agg.AvgTemperature = t
	} else {
		agg.Missing = append(agg.Missing, VarTemperature2M)
	}

	sum, n := 0.0, 0
	for _, band := range shallowBands {
		if m, ok := w.Mean(band); ok {
			sum += m
			n++
		}
	}
	if n > 0 {
		agg.ShallowSoilFrac = sum / float64(n)
	} else {
		agg.Missing = append(agg.Missing, "soil_moisture")
	}

	if r, ok := w.Sum(VarRain); ok {
		agg.RainTotalMM = r
	} else {
		agg.Missing = append(agg.Missing, VarRain)
	}

	return agg
}
