package engine

// HourlyRain reports rainfall over the trailing SamplesPerHour readings of a
// cumulative rain counter.
//
// A counter reset produces a negative delta which is summed like any other
// until it ages out of the window.
type HourlyRain struct {
	deltas *ring[float64]
	last   float64
	seeded bool
}

func NewHourlyRain(samplesPerHour int) *HourlyRain {
	return &HourlyRain{deltas: newRing[float64](samplesPerHour)}
}

// Observe records the current counter value and returns the trailing total in mm.
// The first call only seeds the counter and returns 0.
func (h *HourlyRain) Observe(cumulativeMm float64) float64 {
	if !h.seeded {
		h.last = cumulativeMm
		h.seeded = true
		return 0
	}

	h.deltas.push(cumulativeMm - h.last)
	h.last = cumulativeMm

	var total float64
	for _, d := range h.deltas.slots() {
		total += d
	}
	return total
}

// DailyRain reports rainfall since the start of the station's local day.
type DailyRain struct {
	day        int
	startOfDay float64
	seeded     bool
}

func NewDailyRain() *DailyRain {
	return &DailyRain{}
}

// Observe returns the rain since local midnight in mm. It rebaselines and
// returns 0 on the first call, when localDay changes and when the counter
// falls below the baseline.
func (d *DailyRain) Observe(cumulativeMm float64, localDay int) float64 {
	if !d.seeded || localDay != d.day {
		d.rebaseline(cumulativeMm, localDay)
		return 0
	}

	today := cumulativeMm - d.startOfDay
	if today < 0 {
		d.rebaseline(cumulativeMm, localDay)
		return 0
	}
	return today
}

func (d *DailyRain) rebaseline(cumulativeMm float64, localDay int) {
	d.day = localDay
	d.startOfDay = cumulativeMm
	d.seeded = true
}
