package engine

import "math"

const (
	hpaToInHg  = 0.0295299830714
	mmToInches = 0.0393701

	// CompassPoints is the number of direction bins a station reports.
	CompassPoints          = 16
	degreesPerCompassPoint = 360.0 / CompassPoints

	// Magnus formula constants; the formula has a pole at -237.7 °C.
	magnusB = 237.7
)

var compassLabels = [CompassPoints]string{
	"N", "NNE", "NE", "ENE",
	"E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW",
	"W", "WNW", "NW", "NNW",
}

func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// DewPointFahrenheit derives the dew point from air temperature and relative
// humidity. Humidity must be positive and temperature above -237.7 °C,
// otherwise the result is undefined and an InputError is returned.
func DewPointFahrenheit(tempC, humidityPct float64) (float64, error) {
	if math.IsNaN(humidityPct) || math.IsInf(humidityPct, 0) || humidityPct <= 0 {
		return 0, &InputError{Field: "humidity_pct", Value: humidityPct, Err: ErrInvalidNumericInput}
	}
	if math.IsNaN(tempC) || math.IsInf(tempC, 0) || tempC <= -magnusB {
		return 0, &InputError{Field: "temperature_c", Value: tempC, Err: ErrInvalidNumericInput}
	}

	es := 6.11 * math.Pow(10, 7.5*tempC/(magnusB+tempC))
	e := humidityPct * es / 100
	lnE := math.Log(e)
	tdc := (-430.22 + magnusB*lnE) / (-lnE + 19.08)
	if math.IsNaN(tdc) || math.IsInf(tdc, 0) {
		return 0, &InputError{Field: "humidity_pct", Value: humidityPct, Err: ErrInvalidNumericInput}
	}
	return CelsiusToFahrenheit(tdc), nil
}

// CompassIndex maps one of the 16 compass abbreviations to its bin, 0 being
// North and counting clockwise. Matching is exact.
func CompassIndex(label string) (int, error) {
	for i, l := range compassLabels {
		if l == label {
			return i, nil
		}
	}
	return 0, &InputError{Field: "wind_dir", Value: label, Err: ErrInvalidWindDirection}
}

// CompassLabel is the inverse of CompassIndex.
func CompassLabel(index int) string {
	return compassLabels[((index%CompassPoints)+CompassPoints)%CompassPoints]
}

func CompassDegrees(index int) float64 {
	return float64(index) * degreesPerCompassPoint
}

func HpaToInHg(hpa float64) float64 {
	return hpa * hpaToInHg
}

func MmToInches(mm float64) float64 {
	return mm * mmToInches
}
