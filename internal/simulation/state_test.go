package simulation_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vfactory/vfactory/internal/constants"
	"github.com/vfactory/vfactory/internal/simulation"
)

func drawStates(seed int64, current string, n int) map[string]int {
	r := rand.New(rand.NewSource(seed))
	counts := make(map[string]int)
	for i := 0; i < n; i++ {
		counts[simulation.NextState(r, current)]++
	}
	return counts
}

func TestNextState_OnlyValidStates(t *testing.T) {
	counts := drawStates(1, constants.StateRunning, 1000)
	for state := range counts {
		assert.Contains(t, []string{
			constants.StateRunning,
			constants.StateIdle,
			constants.StateMaintenance,
		}, state)
	}
}

// From a non-maintenance state the weights are running 0.65, idle 0.25,
// maintenance 0.10.
func TestNextState_DefaultDistribution(t *testing.T) {
	const n = 20000
	counts := drawStates(2, constants.StateRunning, n)

	assert.InDelta(t, 0.65, float64(counts[constants.StateRunning])/n, 0.03)
	assert.InDelta(t, 0.25, float64(counts[constants.StateIdle])/n, 0.03)
	assert.InDelta(t, 0.10, float64(counts[constants.StateMaintenance])/n, 0.03)
}

// A device already in maintenance dwells there longer: maintenance 0.25,
// running 0.50, idle takes the remainder.
func TestNextState_MaintenanceDistribution(t *testing.T) {
	const n = 20000
	counts := drawStates(3, constants.StateMaintenance, n)

	assert.InDelta(t, 0.50, float64(counts[constants.StateRunning])/n, 0.03)
	assert.InDelta(t, 0.25, float64(counts[constants.StateIdle])/n, 0.03)
	assert.InDelta(t, 0.25, float64(counts[constants.StateMaintenance])/n, 0.03)
}
