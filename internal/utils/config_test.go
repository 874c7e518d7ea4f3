package utils_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vfactory/vfactory/internal/utils"
	"github.com/vfactory/vfactory/pkg/file"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := utils.LoadConfig("testdata/config.yaml", file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, 30, cfg.MQTT.Keepalive)
	assert.Equal(t, "factory", cfg.BaseTopic)
	assert.Equal(t, 8080, cfg.Aggregator.Port)
	require.Len(t, cfg.Devices, 2)

	conveyor := cfg.Devices["conveyor"]
	assert.Equal(t, "conveyor", conveyor.Type)
	assert.Equal(t, 2*time.Second, conveyor.TelemetryInterval())
	assert.Equal(t, 12*time.Second, conveyor.StatePeriod())
	require.Len(t, conveyor.Sensors, 2)
	require.NotNil(t, conveyor.Sensors[0].AlarmHigh)
	assert.Equal(t, 65.0, *conveyor.Sensors[0].AlarmHigh)
	assert.Nil(t, conveyor.Sensors[0].AlarmLow)

	humidity := cfg.Devices["env_station"].Sensors[0]
	require.NotNil(t, humidity.AlarmLow)
	assert.Equal(t, 25.0, *humidity.AlarmLow)
	assert.Nil(t, humidity.AlarmHigh)
}

func TestLoadConfig_DefaultsBaseTopic(t *testing.T) {
	cfg, err := utils.LoadConfig("testdata/no_base_topic.yaml", file.NewFileService())
	require.NoError(t, err)
	assert.Equal(t, "factory", cfg.BaseTopic)
}

func TestLoadConfig_RejectsNonPositiveInterval(t *testing.T) {
	_, err := utils.LoadConfig("testdata/bad_interval.yaml", file.NewFileService())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intervals must be positive")
}

func TestLoadConfig_RejectsEmptySensors(t *testing.T) {
	_, err := utils.LoadConfig("testdata/no_sensors.yaml", file.NewFileService())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sensors configured")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := utils.LoadConfig("testdata/does_not_exist.yaml", file.NewFileService())
	require.Error(t, err)
}
