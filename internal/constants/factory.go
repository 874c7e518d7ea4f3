package constants

// Operational states a device can be in.
const (
	StateRunning     = "running"
	StateIdle        = "idle"
	StateMaintenance = "maintenance"
)

// Connectivity statuses as seen on the status topics.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusUnknown = "unknown"
)

// Command tokens understood by device agents.
const (
	CommandStart       = "start"
	CommandStop        = "stop"
	CommandMaintenance = "maintenance"
)

// Alarm types.
const (
	AlarmHigh = "high"
	AlarmLow  = "low"
)

// SeverityWarning is the severity attached to every threshold alarm.
const SeverityWarning = "warning"

// Well-known command issuers.
const (
	IssuerController = "controller"
	IssuerDashboard  = "dashboard"
)

// Per-category QoS levels.
const (
	QOSTelemetry byte = 0
	QOSAlarm     byte = 1
	QOSState     byte = 1
	QOSStatus    byte = 1
	QOSCommand   byte = 1
)

// DefaultBaseTopic is the topic namespace prefix used when the
// configuration does not override it.
const DefaultBaseTopic = "factory"
