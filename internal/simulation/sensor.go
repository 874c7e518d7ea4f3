// Package simulation holds the pure parts of the factory model: sensor
// value generation, threshold evaluation, and the operational-state
// transition policy. Everything here is deterministic given a rand source.
package simulation

import (
	"math"
	"math/rand"

	"github.com/vfactory/vfactory/internal/constants"
)

// anomalyProbability is the per-reading chance that an anomaly-enabled
// sensor is forced just beyond a configured threshold.
const anomalyProbability = 0.06

// Anomaly margins: the forced value lands in [marginMin, marginMax)
// beyond the limit.
const (
	marginMin = 1.0
	marginMax = 6.0
)

// Sensor is the static definition of one simulated measurement channel.
type Sensor struct {
	Name      string
	Unit      string
	Base      float64
	Variance  float64
	AlarmHigh *float64
	AlarmLow  *float64
}

// Sample draws the next reading for the sensor: Gaussian around the
// baseline, optionally forced past a threshold when anomaly injection is
// enabled (high threshold preferred when both exist). The result is
// floored at zero and rounded to two decimal places.
func Sample(r *rand.Rand, s Sensor, anomaly bool) float64 {
	value := r.NormFloat64()*s.Variance + s.Base

	if anomaly && r.Float64() < anomalyProbability {
		margin := marginMin + r.Float64()*(marginMax-marginMin)
		switch {
		case s.AlarmHigh != nil:
			value = *s.AlarmHigh + margin
		case s.AlarmLow != nil:
			value = *s.AlarmLow - margin
		}
	}

	if value < 0 {
		value = 0
	}
	return math.Round(value*100) / 100
}

// Breach describes a threshold crossing.
type Breach struct {
	Limit float64
	Type  string
}

// Evaluate checks a reading against the sensor's configured thresholds.
// The high threshold is checked first, so it wins when both are breached
// by the same reading.
func Evaluate(s Sensor, value float64) (Breach, bool) {
	if s.AlarmHigh != nil && value >= *s.AlarmHigh {
		return Breach{Limit: *s.AlarmHigh, Type: constants.AlarmHigh}, true
	}
	if s.AlarmLow != nil && value <= *s.AlarmLow {
		return Breach{Limit: *s.AlarmLow, Type: constants.AlarmLow}, true
	}
	return Breach{}, false
}
