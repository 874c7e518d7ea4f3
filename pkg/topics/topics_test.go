package topics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vfactory/vfactory/pkg/topics"
)

func TestNamespace_Builders(t *testing.T) {
	ns := topics.New("factory")

	assert.Equal(t, "factory/telemetry/conveyor/temperature", ns.Telemetry("conveyor", "temperature"))
	assert.Equal(t, "factory/alarms/press/pressure", ns.Alarms("press", "pressure"))
	assert.Equal(t, "factory/state/robot_arm", ns.State("robot_arm"))
	assert.Equal(t, "factory/status/env_station", ns.Status("env_station"))
	assert.Equal(t, "factory/commands/controller/conveyor", ns.Commands("controller", "conveyor"))
	assert.Equal(t, "factory/#", ns.Wildcard())
	assert.Equal(t, "factory/alarms/#", ns.CategoryWildcard(topics.CategoryAlarms))
}

func TestNamespace_Parse(t *testing.T) {
	ns := topics.New("factory")

	parsed, ok := ns.Parse("factory/telemetry/conveyor/temperature")
	assert.True(t, ok)
	assert.Equal(t, topics.CategoryTelemetry, parsed.Category)
	assert.Equal(t, "conveyor", parsed.DeviceID)
	assert.Equal(t, "temperature", parsed.Sensor)

	parsed, ok = ns.Parse("factory/state/press")
	assert.True(t, ok)
	assert.Equal(t, topics.CategoryState, parsed.Category)
	assert.Equal(t, "press", parsed.DeviceID)
	assert.Empty(t, parsed.Sensor)
}

// Command topics carry the issuer before the device id, so the device is
// the fourth segment.
func TestNamespace_ParseCommands(t *testing.T) {
	ns := topics.New("factory")

	parsed, ok := ns.Parse("factory/commands/dashboard/conveyor")
	assert.True(t, ok)
	assert.Equal(t, topics.CategoryCommands, parsed.Category)
	assert.Equal(t, "dashboard", parsed.Issuer)
	assert.Equal(t, "conveyor", parsed.DeviceID)

	// a command topic without a device segment is malformed
	_, ok = ns.Parse("factory/commands/dashboard")
	assert.False(t, ok)
}

func TestNamespace_ParseMalformed(t *testing.T) {
	ns := topics.New("factory")

	for _, topic := range []string{
		"factory",
		"factory/status",
		"plant/status/conveyor",
		"",
	} {
		_, ok := ns.Parse(topic)
		assert.False(t, ok, "topic %q should not parse", topic)
	}
}

func TestNamespace_ParseUnknownCategory(t *testing.T) {
	ns := topics.New("factory")

	parsed, ok := ns.Parse("factory/admin/conveyor")
	assert.True(t, ok)
	assert.Equal(t, "admin", parsed.Category)
	assert.Equal(t, "conveyor", parsed.DeviceID)
}
