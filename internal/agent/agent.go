// Package agent implements the per-device state machine: it simulates the
// device's sensors on a timer, evaluates alarm thresholds, reacts to
// commands from the bus, and publishes telemetry, alarm, state, and
// status events.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/vfactory/vfactory/internal/constants"
	"github.com/vfactory/vfactory/internal/models"
	"github.com/vfactory/vfactory/internal/simulation"
	"github.com/vfactory/vfactory/internal/utils"
	"github.com/vfactory/vfactory/pkg/mqtt"
	"github.com/vfactory/vfactory/pkg/topics"
)

// Options holds the per-run toggles of a device agent.
type Options struct {
	// Anomaly enables random sensor anomaly injection.
	Anomaly bool
	// CrashAfter, when positive, terminates the process abruptly after the
	// given duration without publishing an offline status, so the broker's
	// last-will delivery is the only failure signal.
	CrashAfter time.Duration
}

// Agent owns one device's canonical state. All mutable state (operational
// state, telemetry sequence, rand source) is guarded by a single mutex
// shared between the bus delivery callback and the timer goroutines.
type Agent struct {
	deviceID   string
	deviceType string
	sensors    []simulation.Sensor

	interval      time.Duration
	stateInterval time.Duration
	topics        topics.Namespace
	opts          Options

	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger

	mu          sync.Mutex
	state       string
	seq         int64
	rng         *rand.Rand
	connectSeen bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OfflineStatus returns the retained last-will payload registered for a
// device at connect time.
func OfflineStatus(deviceID string) []byte {
	payload, _ := json.Marshal(models.Status{
		DeviceID: deviceID,
		Status:   constants.StatusOffline,
		TS:       models.Timestamp(),
	})
	return payload
}

// New builds a device agent from its fleet configuration.
func New(deviceID string, cfg utils.DeviceConfig, ns topics.Namespace, opts Options,
	mqttClient mqtt.MQTTClient, logger zerolog.Logger) *Agent {

	sensors := make([]simulation.Sensor, 0, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		sensors = append(sensors, simulation.Sensor{
			Name:      s.Name,
			Unit:      s.Unit,
			Base:      s.Base,
			Variance:  s.Variance,
			AlarmHigh: s.AlarmHigh,
			AlarmLow:  s.AlarmLow,
		})
	}

	return &Agent{
		deviceID:      deviceID,
		deviceType:    cfg.Type,
		sensors:       sensors,
		interval:      cfg.TelemetryInterval(),
		stateInterval: cfg.StatePeriod(),
		topics:        ns,
		opts:          opts,
		mqttClient:    mqttClient,
		logger:        logger,
		state:         constants.StateRunning,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// State returns the current operational state.
func (a *Agent) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start connects to the broker, subscribes to the device's command
// topics, publishes the retained online status and initial state, and
// launches the telemetry and state-transition loops. A connect failure is
// logged and returned without retrying; reconnect policy belongs to the
// bus client, not this agent.
func (a *Agent) Start() error {
	if a.ctx != nil {
		a.logger.Warn().Msg("Device agent is already running")
		return errors.New("device agent is already running")
	}

	a.mu.Lock()
	a.connectSeen = false
	a.mu.Unlock()

	token := a.mqttClient.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to connect to broker")
		return err
	}

	if err := a.subscribeCommands(); err != nil {
		// a failed start must not leave a half-subscribed session behind
		a.mqttClient.Disconnect(250)
		return err
	}

	a.publishStatus(constants.StatusOnline)
	a.PublishState()

	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.wg.Add(2)
	go a.runTelemetryLoop()
	go a.runStateLoop()

	if a.opts.CrashAfter > 0 {
		a.wg.Add(1)
		go a.runCrashTimer()
	}

	a.logger.Info().
		Str("device", a.deviceID).
		Str("type", a.deviceType).
		Int("sensors", len(a.sensors)).
		Msg("Device agent started")
	return nil
}

// Stop cancels the timers, unsubscribes from the command topics, and
// disconnects cleanly. A clean disconnect discards the registered
// last-will, so the retained status record is left as-is.
func (a *Agent) Stop() error {
	if a.ctx == nil {
		a.logger.Warn().Msg("Device agent is not running")
		return errors.New("device agent is not running")
	}

	a.cancel()
	a.wg.Wait()
	a.ctx = nil
	a.cancel = nil

	topicNames := []string{
		a.topics.Commands(constants.IssuerController, a.deviceID),
		a.topics.Commands(constants.IssuerDashboard, a.deviceID),
	}
	token := a.mqttClient.Unsubscribe(topicNames...)
	token.Wait()
	if err := token.Error(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to unsubscribe from command topics")
	}

	a.mqttClient.Disconnect(250)
	a.logger.Info().Str("device", a.deviceID).Msg("Device agent stopped")
	return nil
}

// subscribeCommands subscribes to the device's command topics, one per
// well-known issuer.
func (a *Agent) subscribeCommands() error {
	for _, issuer := range []string{constants.IssuerController, constants.IssuerDashboard} {
		topic := a.topics.Commands(issuer, a.deviceID)
		t := a.mqttClient.Subscribe(topic, constants.QOSCommand, a.HandleCommand)
		t.Wait()
		if err := t.Error(); err != nil {
			a.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to command topic")
			return err
		}
	}
	return nil
}

// HandleConnect runs on every established bus session. Start owns the
// first one; anything after that is a broker reconnect, which for a clean
// session carries no subscriptions and may have burned the last-will, so
// the command subscriptions and the retained online/state records are
// re-asserted here.
func (a *Agent) HandleConnect() {
	a.mu.Lock()
	first := !a.connectSeen
	a.connectSeen = true
	a.mu.Unlock()
	if first {
		return
	}

	a.logger.Info().Str("device", a.deviceID).Msg("Bus session re-established")
	if err := a.subscribeCommands(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to restore command subscriptions")
	}
	a.publishStatus(constants.StatusOnline)
	a.PublishState()
}

// HandleCommand applies an incoming command. Unrecognized tokens and
// malformed payloads leave the state unchanged, but every received
// command is acknowledged with a log entry and a state republish.
func (a *Agent) HandleCommand(client MQTT.Client, msg MQTT.Message) {
	var cmd models.Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		a.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Malformed command payload")
		cmd = models.Command{}
	}

	a.mu.Lock()
	switch cmd.Command {
	case constants.CommandStop:
		a.state = constants.StateIdle
	case constants.CommandStart:
		a.state = constants.StateRunning
	case constants.CommandMaintenance:
		a.state = constants.StateMaintenance
	default:
		// unknown commands change nothing
	}
	a.mu.Unlock()

	a.logger.Info().
		Str("device", a.deviceID).
		Str("command", cmd.Command).
		Str("reason", cmd.Reason).
		Str("topic", msg.Topic()).
		Msg("Command received")
	a.PublishState()
}

// PublishState publishes the retained operational-state record.
func (a *Agent) PublishState() {
	a.mu.Lock()
	state := a.state
	a.mu.Unlock()

	record := models.State{
		DeviceID:   a.deviceID,
		DeviceType: a.deviceType,
		State:      state,
		TS:         models.Timestamp(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to serialize state record")
		return
	}
	a.publish(a.topics.State(a.deviceID), constants.QOSState, true, payload)
}

// PublishTelemetry samples every configured sensor once, publishing a
// telemetry event per sensor and an additional alarm event for each
// reading that breaches a configured threshold.
func (a *Agent) PublishTelemetry() {
	for _, sensor := range a.sensors {
		a.mu.Lock()
		a.seq++
		seq := a.seq
		value := simulation.Sample(a.rng, sensor, a.opts.Anomaly)
		a.mu.Unlock()

		reading := models.Telemetry{
			DeviceID:   a.deviceID,
			DeviceType: a.deviceType,
			Sensor:     sensor.Name,
			Unit:       sensor.Unit,
			Value:      value,
			Seq:        seq,
			TS:         models.Timestamp(),
		}
		payload, err := json.Marshal(reading)
		if err != nil {
			a.logger.Error().Err(err).Msg("Failed to serialize telemetry event")
			continue
		}
		a.publish(a.topics.Telemetry(a.deviceID, sensor.Name), constants.QOSTelemetry, false, payload)

		breach, ok := simulation.Evaluate(sensor, value)
		if !ok {
			continue
		}
		alarm := models.Alarm{
			DeviceID:   a.deviceID,
			DeviceType: a.deviceType,
			Sensor:     sensor.Name,
			Unit:       sensor.Unit,
			Value:      value,
			Limit:      breach.Limit,
			AlarmType:  breach.Type,
			Severity:   constants.SeverityWarning,
			TS:         models.Timestamp(),
		}
		alarmPayload, err := json.Marshal(alarm)
		if err != nil {
			a.logger.Error().Err(err).Msg("Failed to serialize alarm event")
			continue
		}
		a.publish(a.topics.Alarms(a.deviceID, sensor.Name), constants.QOSAlarm, false, alarmPayload)
		a.logger.Warn().
			Str("device", a.deviceID).
			Str("sensor", sensor.Name).
			Float64("value", value).
			Float64("limit", breach.Limit).
			Str("alarm_type", breach.Type).
			Msg("Threshold breached")
	}
}

// runTelemetryLoop samples all sensors at the configured interval.
func (a *Agent) runTelemetryLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.PublishTelemetry()
		case <-a.ctx.Done():
			return
		}
	}
}

// runStateLoop draws a new operational state at the configured interval
// and republishes the retained state record after every transition.
func (a *Agent) runStateLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.stateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.mu.Lock()
			a.state = simulation.NextState(a.rng, a.state)
			a.mu.Unlock()
			a.PublishState()
		case <-a.ctx.Done():
			return
		}
	}
}

// runCrashTimer terminates the process without any graceful-shutdown
// publish, leaving the broker's last-will delivery as the only signal
// that the device went away.
func (a *Agent) runCrashTimer() {
	defer a.wg.Done()

	select {
	case <-time.After(a.opts.CrashAfter):
		a.logger.Warn().Str("device", a.deviceID).Msg("Simulating abrupt failure")
		os.Exit(1)
	case <-a.ctx.Done():
	}
}

// publishStatus publishes the retained connectivity-status record.
func (a *Agent) publishStatus(status string) {
	record := models.Status{
		DeviceID: a.deviceID,
		Status:   status,
		TS:       models.Timestamp(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to serialize status record")
		return
	}
	a.publish(a.topics.Status(a.deviceID), constants.QOSStatus, true, payload)
}

// publish sends a payload to the bus; failures are logged and never
// retried.
func (a *Agent) publish(topic string, qos byte, retained bool, payload []byte) {
	token := a.mqttClient.Publish(topic, qos, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		a.logger.Error().Err(err).Str("topic", topic).Msg("Publish failed")
	}
}
