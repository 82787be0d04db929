package engine

import "math"

// snapTolerance is in bins, far above atan2 rounding error and far below
// any real difference between two weightings.
const snapTolerance = 1e-9

type windSample struct {
	index int
	speed float64
}

// WindAverager smooths the reported wind direction with a speed weighted
// circular mean over the most recent samples.
type WindAverager struct {
	samples     *ring[windSample]
	minSpeed    float64
	averaging   bool
	lastAverage float64
}

func NewWindAverager(size int, minSpeedMph float64) *WindAverager {
	return &WindAverager{
		samples:  newRing[windSample](size),
		minSpeed: minSpeedMph,
	}
}

// Observe records a sample and returns the direction to report in degrees.
// An index outside [0, CompassPoints) is rejected without being recorded.
//
// Until the buffer has filled once the instantaneous direction is returned.
// During dead calm the previous average is kept.
func (w *WindAverager) Observe(index int, speedMph float64) (float64, error) {
	if index < 0 || index >= CompassPoints {
		return 0, &InputError{Field: "wind_dir", Value: index, Err: ErrInvalidWindDirection}
	}
	if w.samples.push(windSample{index: index, speed: speedMph}) {
		w.averaging = true
	}
	if !w.averaging {
		return CompassDegrees(index), nil
	}

	var bins [CompassPoints]float64
	calm := true
	for _, s := range w.samples.slots() {
		if s.speed > w.minSpeed {
			bins[s.index] += s.speed
			calm = false
		}
	}
	if calm {
		return w.lastAverage, nil
	}

	// Components are negated since stations report where the wind comes from.
	var u, v float64
	for i, mag := range bins {
		if mag == 0 {
			continue
		}
		theta := CompassDegrees(i) * math.Pi / 180
		u -= mag * math.Sin(theta)
		v -= mag * math.Cos(theta)
	}
	deg := math.Atan2(u, v)*180/math.Pi + 180
	// atan2 can land a hair below an exact half-bin tie; ties round up.
	bin := int(math.Floor(deg/degreesPerCompassPoint+0.5+snapTolerance)) % CompassPoints

	w.lastAverage = CompassDegrees(bin)
	return w.lastAverage, nil
}

// Averaging reports whether the buffer has filled at least once.
func (w *WindAverager) Averaging() bool {
	return w.averaging
}
