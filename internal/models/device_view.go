package models

// SensorReading is the last-known value of one sensor inside a device
// projection.
type SensorReading struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	TS    string  `json:"ts"`
}

// DeviceView is the aggregator's projection of one device, derived purely
// from observed bus events. It may transiently disagree with the device's
// own canonical state.
type DeviceView struct {
	DeviceID   string                   `json:"device_id"`
	DeviceType string                   `json:"device_type"`
	Status     string                   `json:"status"`
	State      string                   `json:"state"`
	Sensors    map[string]SensorReading `json:"sensors"`
	LastAlarm  map[string]interface{}   `json:"last_alarm"`
	LastSeen   string                   `json:"last_seen"`
}

// NewDeviceView creates an empty projection for a device seen for the
// first time.
func NewDeviceView(deviceID string) *DeviceView {
	return &DeviceView{
		DeviceID:   deviceID,
		DeviceType: "unknown",
		Status:     "unknown",
		State:      "unknown",
		Sensors:    make(map[string]SensorReading),
	}
}
