package simulation

import (
	"math/rand"

	"github.com/vfactory/vfactory/internal/constants"
)

type stateWeight struct {
	state  string
	weight float64
}

// NextState draws the next operational state. The policy is running-heavy
// in normal operation and dwells longer once a device is already in
// maintenance. Any probability mass left after the listed branches falls
// to idle, so the distribution is total by construction.
func NextState(r *rand.Rand, current string) string {
	branches := []stateWeight{
		{constants.StateRunning, 0.65},
		{constants.StateMaintenance, 0.10},
	}
	if current == constants.StateMaintenance {
		branches = []stateWeight{
			{constants.StateRunning, 0.50},
			{constants.StateMaintenance, 0.25},
		}
	}

	roll := r.Float64()
	cumulative := 0.0
	for _, b := range branches {
		cumulative += b.weight
		if roll < cumulative {
			return b.state
		}
	}
	return constants.StateIdle
}
