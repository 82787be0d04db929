package types

import "time"

// DateUTCLayout is the upload timestamp format used by the weather network.
const DateUTCLayout = "2006-01-02 15:04:05"

type Station struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen,omitzero"`
}

// RawReading is one sample as reported by the station hardware.
type RawReading struct {
	TemperatureC  float64
	HumidityPct   float64
	WindAveMph    float64
	WindGustMph   float64
	WindDirection string
	TotalRainMm   float64
	PressureHpa   float64
}

// RawReadingPayload is the wire form of a RawReading, accepted over MQTT
// and the HTTP ingest endpoint. Pointers distinguish missing fields from zero.
type RawReadingPayload struct {
	StationID     string     `json:"station_id,omitempty" validate:"omitempty,max=64"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	TemperatureC  *float64   `json:"temperature_c" validate:"required"`
	HumidityPct   *float64   `json:"humidity_pct" validate:"required,gt=0,lte=100"`
	WindAveMph    *float64   `json:"wind_ave_mph" validate:"required,gte=0"`
	WindGustMph   *float64   `json:"wind_gust_mph" validate:"required,gte=0"`
	WindDirection string     `json:"wind_dir" validate:"required"`
	TotalRainMm   *float64   `json:"total_rain_mm" validate:"required,gte=0"`
	PressureHpa   *float64   `json:"pressure_hpa" validate:"required,gt=0"`
}

// Reading converts a validated payload. Callers must validate first.
func (p RawReadingPayload) Reading() RawReading {
	return RawReading{
		TemperatureC:  deref(p.TemperatureC),
		HumidityPct:   deref(p.HumidityPct),
		WindAveMph:    deref(p.WindAveMph),
		WindGustMph:   deref(p.WindGustMph),
		WindDirection: p.WindDirection,
		TotalRainMm:   deref(p.TotalRainMm),
		PressureHpa:   deref(p.PressureHpa),
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Observation is the normalized record produced for each raw reading.
type Observation struct {
	StationID      string    `json:"stationId"`
	ObservedAt     time.Time `json:"observedAt"`
	DateUTC        string    `json:"dateUtc"`
	TemperatureF   float64   `json:"temperatureF"`
	DewPointF      float64   `json:"dewPointF"`
	HumidityPct    float64   `json:"humidityPct"`
	WindSpeedMph   float64   `json:"windSpeedMph"`
	WindGustMph    float64   `json:"windGustMph"`
	WindDirDegrees float64   `json:"windDirDegrees"`
	PressureInHg   float64   `json:"pressureInHg"`
	RainHourMm     float64   `json:"rainHourMm"`
	RainHourIn     float64   `json:"rainHourIn"`
	RainTodayMm    float64   `json:"rainTodayMm"`
	RainTodayIn    float64   `json:"rainTodayIn"`
}

// Upload status values.
const (
	UploadOK      = "ok"
	UploadFailed  = "failed"
	UploadSkipped = "skipped"
)

// Upload records the outcome of forwarding one observation to the weather network.
type Upload struct {
	StationID  string    `json:"stationId"`
	ObservedAt time.Time `json:"observedAt"`
	UploadedAt time.Time `json:"uploadedAt"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
}
