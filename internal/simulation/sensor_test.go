package simulation_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vfactory/vfactory/internal/simulation"
)

func f64(v float64) *float64 { return &v }

// Published values are always >= 0 and rounded to exactly two decimals.
func TestSample_RangeAndPrecision(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	sensor := simulation.Sensor{Name: "temperature", Unit: "C", Base: 2.0, Variance: 5.0}

	for i := 0; i < 1000; i++ {
		value := simulation.Sample(r, sensor, false)
		assert.GreaterOrEqual(t, value, 0.0)
		assert.Equal(t, math.Round(value*100)/100, value, "value %v has more than two decimals", value)
	}
}

func TestSample_Deterministic(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	sensor := simulation.Sensor{Name: "pressure", Unit: "bar", Base: 120.0, Variance: 0}

	assert.Equal(t, 120.0, simulation.Sample(r, sensor, false))
}

func TestSample_FloorsNegativeReadings(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	sensor := simulation.Sensor{Name: "vibration", Unit: "mm/s", Base: -50.0, Variance: 0}

	assert.Equal(t, 0.0, simulation.Sample(r, sensor, false))
}

// With anomaly injection enabled, forced readings land just past the high
// threshold by a margin in [1, 6).
func TestSample_AnomalyForcesHighBreach(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	sensor := simulation.Sensor{Name: "temperature", Unit: "C", Base: 50.0, Variance: 1.0, AlarmHigh: f64(100.0)}

	breaches := 0
	for i := 0; i < 2000; i++ {
		value := simulation.Sample(r, sensor, true)
		if value >= *sensor.AlarmHigh {
			breaches++
			assert.LessOrEqual(t, value, *sensor.AlarmHigh+6.0)
		}
	}
	assert.Greater(t, breaches, 0, "expected at least one injected anomaly in 2000 samples")
}

// The high threshold is preferred when only it exists; a low-only sensor
// gets forced below its low threshold instead.
func TestSample_AnomalyForcesLowBreach(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	sensor := simulation.Sensor{Name: "humidity", Unit: "%", Base: 50.0, Variance: 1.0, AlarmLow: f64(10.0)}

	breaches := 0
	for i := 0; i < 2000; i++ {
		value := simulation.Sample(r, sensor, true)
		if value <= *sensor.AlarmLow {
			breaches++
			assert.GreaterOrEqual(t, value, *sensor.AlarmLow-6.0)
		}
	}
	assert.Greater(t, breaches, 0, "expected at least one injected anomaly in 2000 samples")
}

func TestEvaluate_Thresholds(t *testing.T) {
	sensor := simulation.Sensor{Name: "humidity", Unit: "%", AlarmHigh: f64(65.0), AlarmLow: f64(25.0)}

	breach, ok := simulation.Evaluate(sensor, 65.0)
	assert.True(t, ok)
	assert.Equal(t, "high", breach.Type)
	assert.Equal(t, 65.0, breach.Limit)

	breach, ok = simulation.Evaluate(sensor, 25.0)
	assert.True(t, ok)
	assert.Equal(t, "low", breach.Type)
	assert.Equal(t, 25.0, breach.Limit)

	_, ok = simulation.Evaluate(sensor, 45.0)
	assert.False(t, ok)

	_, ok = simulation.Evaluate(simulation.Sensor{Name: "noise"}, 1000.0)
	assert.False(t, ok)
}

// When both thresholds are breached by the same reading, high wins.
func TestEvaluate_HighTakesPrecedence(t *testing.T) {
	sensor := simulation.Sensor{Name: "odd", AlarmHigh: f64(10.0), AlarmLow: f64(50.0)}

	breach, ok := simulation.Evaluate(sensor, 30.0)
	assert.True(t, ok)
	assert.Equal(t, "high", breach.Type)
	assert.Equal(t, 10.0, breach.Limit)
}
