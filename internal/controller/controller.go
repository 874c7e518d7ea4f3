// Package controller reacts to factory alarms by dispatching corrective
// commands back to the originating device. It holds no per-device state;
// its only mutable state is the process-wide command sequence counter.
package controller

import (
	"encoding/json"
	"errors"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/vfactory/vfactory/internal/constants"
	"github.com/vfactory/vfactory/internal/models"
	"github.com/vfactory/vfactory/pkg/mqtt"
	"github.com/vfactory/vfactory/pkg/topics"
)

// criticalSensors are the sensors whose high alarms demand an immediate
// stop rather than a maintenance pass.
var criticalSensors = map[string]bool{
	"temperature": true,
	"pressure":    true,
	"current":     true,
}

// ChooseCommand maps an alarm to the corrective command and its reason.
// It is a pure function of the alarm fields.
func ChooseCommand(alarm models.Alarm) (string, string) {
	if alarm.AlarmType == constants.AlarmHigh && criticalSensors[alarm.Sensor] {
		return constants.CommandStop, "critical threshold"
	}
	if alarm.AlarmType == constants.AlarmLow {
		return constants.CommandMaintenance, "low threshold"
	}
	return constants.CommandMaintenance, "alarm triggered"
}

// Controller subscribes to all device alarms and issues one command per
// alarm with a strictly increasing sequence number. It performs no
// deduplication: an alarm redelivered by the bus yields a second, fully
// valid command.
type Controller struct {
	topics     topics.Namespace
	mqttClient mqtt.MQTTClient
	logger     zerolog.Logger

	mu          sync.Mutex
	seq         int64
	connectSeen bool

	running bool
}

// New creates a Controller.
func New(ns topics.Namespace, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *Controller {
	return &Controller{
		topics:     ns,
		mqttClient: mqttClient,
		logger:     logger,
	}
}

// Start connects to the broker and subscribes to the alarm, status,
// state, and telemetry streams. Subscriptions are one-shot; there is no
// retry loop on connect failure.
func (c *Controller) Start() error {
	if c.running {
		c.logger.Warn().Msg("Controller is already running")
		return errors.New("controller is already running")
	}

	c.mu.Lock()
	c.connectSeen = false
	c.mu.Unlock()

	token := c.mqttClient.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to connect to broker")
		return err
	}

	if err := c.subscribeStreams(); err != nil {
		// a failed start must not leave a half-subscribed session behind
		c.mqttClient.Disconnect(250)
		return err
	}

	c.running = true
	c.logger.Info().Msg("Controller started")
	return nil
}

// subscribeStreams registers the controller's subscriptions.
func (c *Controller) subscribeStreams() error {
	subscriptions := []struct {
		filter  string
		handler MQTT.MessageHandler
	}{
		{c.topics.CategoryWildcard(topics.CategoryAlarms), c.HandleAlarm},
		{c.topics.CategoryWildcard(topics.CategoryStatus), c.handleObserved},
		{c.topics.CategoryWildcard(topics.CategoryState), c.handleObserved},
		{c.topics.CategoryWildcard(topics.CategoryTelemetry), c.handleTelemetry},
	}
	for _, sub := range subscriptions {
		t := c.mqttClient.Subscribe(sub.filter, constants.QOSAlarm, sub.handler)
		t.Wait()
		if err := t.Error(); err != nil {
			c.logger.Error().Err(err).Str("topic", sub.filter).Msg("Failed to subscribe")
			return err
		}
	}
	return nil
}

// HandleConnect runs on every established bus session. Start owns the
// first one; later sessions are broker reconnects, after which a clean
// session has no subscriptions, so the streams are re-registered here.
func (c *Controller) HandleConnect() {
	c.mu.Lock()
	first := !c.connectSeen
	c.connectSeen = true
	c.mu.Unlock()
	if first {
		return
	}

	c.logger.Info().Msg("Bus session re-established")
	if err := c.subscribeStreams(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to restore stream subscriptions")
	}
}

// HandleMessage is the session's default delivery route, dispatching by
// topic category. A durable session's queued alarms are flushed by the
// broker immediately after the connect acknowledgement, before the
// Subscribe calls have registered their routes; without this route the
// client would acknowledge and discard exactly the alarms the durable
// session exists to recover.
func (c *Controller) HandleMessage(client MQTT.Client, msg MQTT.Message) {
	parsed, ok := c.topics.Parse(msg.Topic())
	if !ok {
		c.logger.Debug().Str("topic", msg.Topic()).Msg("Ignoring unroutable message")
		return
	}

	switch parsed.Category {
	case topics.CategoryAlarms:
		c.HandleAlarm(client, msg)
	case topics.CategoryStatus, topics.CategoryState:
		c.handleObserved(client, msg)
	case topics.CategoryTelemetry:
		c.handleTelemetry(client, msg)
	}
}

// Stop unsubscribes from all streams and disconnects.
func (c *Controller) Stop() error {
	if !c.running {
		c.logger.Warn().Msg("Controller is not running")
		return errors.New("controller is not running")
	}

	token := c.mqttClient.Unsubscribe(
		c.topics.CategoryWildcard(topics.CategoryAlarms),
		c.topics.CategoryWildcard(topics.CategoryStatus),
		c.topics.CategoryWildcard(topics.CategoryState),
		c.topics.CategoryWildcard(topics.CategoryTelemetry),
	)
	token.Wait()
	if err := token.Error(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to unsubscribe")
	}

	c.mqttClient.Disconnect(250)
	c.running = false
	c.logger.Info().Msg("Controller stopped")
	return nil
}

// HandleAlarm chooses a corrective command for the alarm and publishes it
// to the originating device. The sequence counter is incremented under a
// lock so that concurrent alarm arrivals still produce unique, strictly
// increasing command ids with no gaps.
func (c *Controller) HandleAlarm(client MQTT.Client, msg MQTT.Message) {
	var alarm models.Alarm
	if err := json.Unmarshal(msg.Payload(), &alarm); err != nil {
		c.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping unparseable alarm payload")
		return
	}

	command, reason := ChooseCommand(alarm)

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	cmd := models.Command{
		Command:   command,
		Reason:    reason,
		CommandID: seq,
		DeviceID:  alarm.DeviceID,
		TS:        models.Timestamp(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to serialize command")
		return
	}

	topic := c.topics.Commands(constants.IssuerController, alarm.DeviceID)
	token := c.mqttClient.Publish(topic, constants.QOSCommand, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish command")
		return
	}

	c.logger.Info().
		Str("device", alarm.DeviceID).
		Str("sensor", alarm.Sensor).
		Str("command", command).
		Int64("command_id", seq).
		Msg("Command dispatched")
}

// handleObserved logs status and state events; they never affect the
// decision policy.
func (c *Controller) handleObserved(client MQTT.Client, msg MQTT.Message) {
	c.logger.Debug().Str("topic", msg.Topic()).Bytes("payload", msg.Payload()).Msg("Observed event")
}

// handleTelemetry drops telemetry events.
func (c *Controller) handleTelemetry(client MQTT.Client, msg MQTT.Message) {
}
