// Package topics builds and parses the hierarchical topic namespace used
// on the factory bus. The wire format is plain slash-separated strings;
// parsing goes through a structured matcher so that malformed or short
// topics are a defined no-op instead of an index fault.
package topics

import "strings"

// Event categories, named by the second topic segment.
const (
	CategoryTelemetry = "telemetry"
	CategoryAlarms    = "alarms"
	CategoryState     = "state"
	CategoryStatus    = "status"
	CategoryCommands  = "commands"
	CategoryOther     = "other"
)

// Namespace builds and parses topics under a configurable base prefix.
type Namespace struct {
	Base string
}

// New returns a Namespace rooted at the given base prefix.
func New(base string) Namespace {
	return Namespace{Base: base}
}

// Telemetry returns the topic a device publishes a sensor reading on.
func (n Namespace) Telemetry(deviceID, sensor string) string {
	return n.Base + "/" + CategoryTelemetry + "/" + deviceID + "/" + sensor
}

// Alarms returns the topic a device publishes a threshold alarm on.
func (n Namespace) Alarms(deviceID, sensor string) string {
	return n.Base + "/" + CategoryAlarms + "/" + deviceID + "/" + sensor
}

// State returns the retained operational-state topic for a device.
func (n Namespace) State(deviceID string) string {
	return n.Base + "/" + CategoryState + "/" + deviceID
}

// Status returns the retained connectivity-status topic for a device.
func (n Namespace) Status(deviceID string) string {
	return n.Base + "/" + CategoryStatus + "/" + deviceID
}

// Commands returns the topic an issuer uses to command a device.
func (n Namespace) Commands(issuer, deviceID string) string {
	return n.Base + "/" + CategoryCommands + "/" + issuer + "/" + deviceID
}

// Wildcard matches every topic in the namespace.
func (n Namespace) Wildcard() string {
	return n.Base + "/#"
}

// CategoryWildcard matches every topic of one category.
func (n Namespace) CategoryWildcard(category string) string {
	return n.Base + "/" + category + "/#"
}

// Parsed is the structured form of a factory topic.
type Parsed struct {
	Category string
	DeviceID string
	Sensor   string
	Issuer   string
}

// Parse splits a topic into its positional segments. It reports false for
// topics outside the namespace and for topics too short to reference a
// device: plain categories need at least base/category/device, commands
// need base/commands/issuer/device.
func (n Namespace) Parse(topic string) (Parsed, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != n.Base {
		return Parsed{}, false
	}

	p := Parsed{Category: parts[1]}
	if p.Category == CategoryCommands {
		if len(parts) < 4 {
			return Parsed{}, false
		}
		p.Issuer = parts[2]
		p.DeviceID = parts[3]
		return p, true
	}

	p.DeviceID = parts[2]
	if len(parts) >= 4 {
		p.Sensor = parts[3]
	}
	return p, true
}
