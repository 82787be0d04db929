// Package engine turns raw station readings into normalized observations.
//
// An Engine holds the running state for one station: the trailing hour of
// rain deltas, the start of day rain baseline and the recent wind samples.
// It is not safe for concurrent use; callers serialize Build per station.
package engine

import (
	"fmt"
	"math"
	"time"

	"pwsrelay/internal/modules/weather/types"
)

type Config struct {
	// SamplesPerHour sizes the hourly rain window. 75 assumes a 48 second cadence.
	SamplesPerHour int
	// WindVectors is the number of wind samples averaged.
	WindVectors int
	// MinimumWindSpeed in mph; slower samples are ignored when averaging.
	MinimumWindSpeed float64
}

func DefaultConfig() Config {
	return Config{
		SamplesPerHour:   75,
		WindVectors:      16,
		MinimumWindSpeed: 0.1,
	}
}

func (c Config) Validate() error {
	if c.SamplesPerHour <= 0 {
		return fmt.Errorf("samples per hour must be > 0, got %d", c.SamplesPerHour)
	}
	if c.WindVectors <= 0 {
		return fmt.Errorf("wind vectors must be > 0, got %d", c.WindVectors)
	}
	if math.IsNaN(c.MinimumWindSpeed) || c.MinimumWindSpeed < 0 {
		return fmt.Errorf("minimum wind speed must be >= 0, got %v", c.MinimumWindSpeed)
	}
	return nil
}

type Engine struct {
	hourly *HourlyRain
	daily  *DailyRain
	wind   *WindAverager
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		hourly: NewHourlyRain(cfg.SamplesPerHour),
		daily:  NewDailyRain(),
		wind:   NewWindAverager(cfg.WindVectors, cfg.MinimumWindSpeed),
	}, nil
}

// Clone returns an independent copy of the engine state. Restoring a clone
// undoes the readings built since it was taken.
func (e *Engine) Clone() *Engine {
	hourly := *e.hourly
	hourly.deltas = e.hourly.deltas.clone()
	daily := *e.daily
	wind := *e.wind
	wind.samples = e.wind.samples.clone()
	return &Engine{hourly: &hourly, daily: &daily, wind: &wind}
}

// Build derives an observation from raw. now is the sample instant and
// localDay the station's local day of year, see LocalDay.
//
// Input errors are detected before any aggregator is updated, so a rejected
// reading leaves the engine unchanged.
func (e *Engine) Build(raw types.RawReading, now time.Time, localDay int) (types.Observation, error) {
	if err := checkFinite(raw); err != nil {
		return types.Observation{}, err
	}
	dewPointF, err := DewPointFahrenheit(raw.TemperatureC, raw.HumidityPct)
	if err != nil {
		return types.Observation{}, err
	}
	dirIndex, err := CompassIndex(raw.WindDirection)
	if err != nil {
		return types.Observation{}, err
	}

	windDeg, err := e.wind.Observe(dirIndex, raw.WindAveMph)
	if err != nil {
		return types.Observation{}, err
	}
	rainToday := e.daily.Observe(raw.TotalRainMm, localDay)
	rainHour := e.hourly.Observe(raw.TotalRainMm)

	utc := now.UTC()
	return types.Observation{
		ObservedAt:     utc,
		DateUTC:        utc.Format(types.DateUTCLayout),
		TemperatureF:   CelsiusToFahrenheit(raw.TemperatureC),
		DewPointF:      dewPointF,
		HumidityPct:    raw.HumidityPct,
		WindSpeedMph:   raw.WindAveMph,
		WindGustMph:    raw.WindGustMph,
		WindDirDegrees: windDeg,
		PressureInHg:   HpaToInHg(raw.PressureHpa),
		RainHourMm:     rainHour,
		RainHourIn:     MmToInches(rainHour),
		RainTodayMm:    rainToday,
		RainTodayIn:    MmToInches(rainToday),
	}, nil
}

// LocalDay returns the day of year of t in loc, the key DailyRain rolls over on.
func LocalDay(t time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).YearDay()
}

func checkFinite(raw types.RawReading) error {
	fields := []struct {
		name string
		v    float64
	}{
		{"temperature_c", raw.TemperatureC},
		{"humidity_pct", raw.HumidityPct},
		{"wind_ave_mph", raw.WindAveMph},
		{"wind_gust_mph", raw.WindGustMph},
		{"total_rain_mm", raw.TotalRainMm},
		{"pressure_hpa", raw.PressureHpa},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &InputError{Field: f.name, Value: f.v, Err: ErrInvalidNumericInput}
		}
	}
	if raw.WindAveMph < 0 {
		return &InputError{Field: "wind_ave_mph", Value: raw.WindAveMph, Err: ErrInvalidNumericInput}
	}
	if raw.WindGustMph < 0 {
		return &InputError{Field: "wind_gust_mph", Value: raw.WindGustMph, Err: ErrInvalidNumericInput}
	}
	return nil
}
