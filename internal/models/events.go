package models

import "time"

// Timestamp returns the wire-format event time: UTC, second precision,
// trailing Z.
func Timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// Telemetry is a single sensor reading published by a device agent.
type Telemetry struct {
	DeviceID   string  `json:"device_id"`
	DeviceType string  `json:"device_type"`
	Sensor     string  `json:"sensor"`
	Unit       string  `json:"unit"`
	Value      float64 `json:"value"`
	Seq        int64   `json:"seq"`
	TS         string  `json:"ts"`
}

// Alarm is published alongside a telemetry reading that crossed a
// configured threshold. Alarms are not deduplicated: every breaching
// reading produces a new one.
type Alarm struct {
	DeviceID   string  `json:"device_id"`
	DeviceType string  `json:"device_type"`
	Sensor     string  `json:"sensor"`
	Unit       string  `json:"unit"`
	Value      float64 `json:"value"`
	Limit      float64 `json:"limit"`
	AlarmType  string  `json:"alarm_type"`
	Severity   string  `json:"severity"`
	TS         string  `json:"ts"`
}

// State is the retained operational-state record for a device.
type State struct {
	DeviceID   string `json:"device_id"`
	DeviceType string `json:"device_type"`
	State      string `json:"state"`
	TS         string `json:"ts"`
}

// Status is the retained connectivity record for a device. The offline
// variant doubles as the device's registered last-will payload.
type Status struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
	TS       string `json:"ts"`
}

// Command instructs a device to change operational state. CommandID is
// only set on controller-issued commands; ad-hoc issuers omit it.
type Command struct {
	Command   string `json:"command"`
	Reason    string `json:"reason,omitempty"`
	CommandID int64  `json:"command_id,omitempty"`
	DeviceID  string `json:"device_id"`
	TS        string `json:"ts"`
}

// TrafficEntry is one raw observed bus event as kept in the aggregator's
// rolling log.
type TrafficEntry struct {
	TS      string `json:"ts"`
	Topic   string `json:"topic"`
	QOS     byte   `json:"qos"`
	Retain  bool   `json:"retain"`
	Payload string `json:"payload"`
}
