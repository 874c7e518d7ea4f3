package utils

import (
	"fmt"
	"time"

	"github.com/vfactory/vfactory/internal/constants"
	"github.com/vfactory/vfactory/pkg/file"
)

// SensorConfig is the static definition of one simulated sensor channel.
type SensorConfig struct {
	Name      string   `yaml:"name"`                 // Sensor name (e.g. temperature)
	Unit      string   `yaml:"unit"`                 // Engineering unit (e.g. C, bar)
	Base      float64  `yaml:"base"`                 // Baseline value readings center on
	Variance  float64  `yaml:"variance"`             // Gaussian spread around the baseline
	AlarmHigh *float64 `yaml:"alarm_high,omitempty"` // Optional high threshold
	AlarmLow  *float64 `yaml:"alarm_low,omitempty"`  // Optional low threshold
}

// DeviceConfig describes one device of the simulated fleet.
type DeviceConfig struct {
	Type          string         `yaml:"type"`           // Device type (conveyor, robot_arm, press, environment_station)
	Interval      float64        `yaml:"interval"`       // Telemetry period in seconds
	StateInterval float64        `yaml:"state_interval"` // State-transition period in seconds
	Sensors       []SensorConfig `yaml:"sensors"`        // Sensor definitions, loaded once at startup
}

// TelemetryInterval returns the telemetry period as a duration.
func (d DeviceConfig) TelemetryInterval() time.Duration {
	return time.Duration(d.Interval * float64(time.Second))
}

// StatePeriod returns the state-transition period as a duration.
func (d DeviceConfig) StatePeriod() time.Duration {
	return time.Duration(d.StateInterval * float64(time.Second))
}

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		Keepalive     int    `yaml:"keepalive"`      // Keepalive in seconds
		CACertificate string `yaml:"ca_certificate"` // Optional path to the CA certificate
	} `yaml:"mqtt"`

	BaseTopic string `yaml:"base_topic"` // Topic namespace prefix

	Devices map[string]DeviceConfig `yaml:"devices"` // Fleet definitions keyed by device id

	Aggregator struct {
		Host string `yaml:"host"` // HTTP listen host for the viewer endpoint
		Port int    `yaml:"port"` // HTTP listen port
	} `yaml:"aggregator"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, err
	}

	if config.BaseTopic == "" {
		config.BaseTopic = constants.DefaultBaseTopic
	}
	for id, device := range config.Devices {
		if device.Interval <= 0 || device.StateInterval <= 0 {
			return nil, fmt.Errorf("device %s: intervals must be positive", id)
		}
		if len(device.Sensors) == 0 {
			return nil, fmt.Errorf("device %s: no sensors configured", id)
		}
	}

	return &config, nil
}
