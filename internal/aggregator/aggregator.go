// Package aggregator folds the unordered factory event stream into
// per-device projections plus a bounded rolling traffic log, and
// republishes deltas to connected live viewers.
package aggregator

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/vfactory/vfactory/internal/constants"
	"github.com/vfactory/vfactory/internal/models"
	"github.com/vfactory/vfactory/pkg/mqtt"
	"github.com/vfactory/vfactory/pkg/topics"
)

// trafficCapacity bounds the rolling event log. Eviction is unconditional
// FIFO regardless of message importance.
const trafficCapacity = 200

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Viewer protocol message shapes.
type snapshotMessage struct {
	Type    string                        `json:"type"`
	Devices map[string]*models.DeviceView `json:"devices"`
	Traffic []models.TrafficEntry         `json:"traffic"`
}

type eventMessage struct {
	Type  string              `json:"type"`
	Entry models.TrafficEntry `json:"entry"`
}

type devicesMessage struct {
	Type    string                        `json:"type"`
	Devices map[string]*models.DeviceView `json:"devices"`
}

type brokerMessage struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type commandRequest struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
	Command  string `json:"command"`
	Reason   string `json:"reason"`
}

// Aggregator owns an independently derived read-only projection of every
// observed device. The device map and traffic log are shared between the
// bus delivery callback and viewer connects, guarded by one mutex; viewer
// fanout happens through the hub's bounded per-viewer queues so a slow
// viewer never blocks the delivery context.
type Aggregator struct {
	topics     topics.Namespace
	mqttClient mqtt.MQTTClient
	metrics    *Metrics
	logger     zerolog.Logger
	hub        *Hub

	mu          sync.Mutex
	devices     map[string]*models.DeviceView
	traffic     []models.TrafficEntry
	connectSeen bool

	running bool
}

// New creates an Aggregator with an empty projection.
func New(ns topics.Namespace, mqttClient mqtt.MQTTClient, metrics *Metrics, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		topics:     ns,
		mqttClient: mqttClient,
		metrics:    metrics,
		logger:     logger,
		hub:        NewHub(metrics, logger),
		devices:    make(map[string]*models.DeviceView),
		traffic:    make([]models.TrafficEntry, 0, trafficCapacity),
	}
}

// Start connects to the broker and subscribes to the whole namespace.
func (a *Aggregator) Start() error {
	if a.running {
		a.logger.Warn().Msg("Aggregator is already running")
		return errors.New("aggregator is already running")
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

	filter := a.topics.Wildcard()
	if err := a.subscribeAll(); err != nil {
		// a failed start must not leave a half-subscribed session behind
		a.mqttClient.Disconnect(250)
		return err
	}

	a.running = true
	a.logger.Info().Str("topic", filter).Msg("Aggregator started")
	return nil
}

// subscribeAll subscribes to the whole factory namespace.
func (a *Aggregator) subscribeAll() error {
	filter := a.topics.Wildcard()
	t := a.mqttClient.Subscribe(filter, constants.QOSAlarm, a.HandleMessage)
	t.Wait()
	if err := t.Error(); err != nil {
		a.logger.Error().Err(err).Str("topic", filter).Msg("Failed to subscribe")
		return err
	}
	return nil
}

// Stop unsubscribes, disconnects from the broker, and drops all viewers.
func (a *Aggregator) Stop() error {
	if !a.running {
		a.logger.Warn().Msg("Aggregator is not running")
		return errors.New("aggregator is not running")
	}

	token := a.mqttClient.Unsubscribe(a.topics.Wildcard())
	token.Wait()
	if err := token.Error(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to unsubscribe")
	}

	a.mqttClient.Disconnect(250)
	a.hub.CloseAll()
	a.running = false
	a.logger.Info().Msg("Aggregator stopped")
	return nil
}

// HandleMessage folds one bus event into the projection, appends it to
// the rolling log, and pushes the resulting deltas to every viewer: the
// new log entry first, then the full device mapping. Resending the whole
// mapping trades bandwidth for reconciliation simplicity.
func (a *Aggregator) HandleMessage(client MQTT.Client, msg MQTT.Message) {
	entry := models.TrafficEntry{
		TS:      models.Timestamp(),
		Topic:   msg.Topic(),
		QOS:     msg.Qos(),
		Retain:  msg.Retained(),
		Payload: string(msg.Payload()),
	}

	// Non-object payloads still count for traffic and last_seen
	// bookkeeping but contribute no field merge.
	var fields map[string]interface{}
	if err := json.Unmarshal(msg.Payload(), &fields); err != nil {
		fields = nil
	}

	parsed, ok := a.topics.Parse(msg.Topic())

	a.mu.Lock()
	if ok {
		a.applyEvent(parsed, fields, entry.TS)
	}
	if len(a.traffic) == trafficCapacity {
		copy(a.traffic, a.traffic[1:])
		a.traffic = a.traffic[:trafficCapacity-1]
	}
	a.traffic = append(a.traffic, entry)

	eventPayload := a.marshalLocked(eventMessage{Type: "event", Entry: entry})
	devicesPayload := a.marshalLocked(devicesMessage{Type: "devices", Devices: a.devices})

	// Broadcasting inside the critical section keeps delivery in lockstep
	// with the projection: a viewer admitted in ServeWS sees every event
	// either in its snapshot or as a later delta, exactly once. Broadcast
	// never blocks, so the lock is held only for the queue handoff.
	a.hub.Broadcast(eventPayload)
	a.hub.Broadcast(devicesPayload)
	a.mu.Unlock()

	if ok {
		a.metrics.EventsTotal.WithLabelValues(categoryLabel(parsed.Category)).Inc()
	} else {
		a.metrics.EventsTotal.WithLabelValues(topics.CategoryOther).Inc()
	}
}

// applyEvent merges one parsed event into the device projection. Caller
// holds a.mu.
func (a *Aggregator) applyEvent(p topics.Parsed, fields map[string]interface{}, ts string) {
	device := a.devices[p.DeviceID]
	if device == nil {
		device = models.NewDeviceView(p.DeviceID)
		a.devices[p.DeviceID] = device
	}
	device.LastSeen = ts

	if fields == nil {
		return
	}

	if deviceType, ok := fields["device_type"].(string); ok {
		device.DeviceType = deviceType
	}

	switch p.Category {
	case topics.CategoryStatus:
		if status, ok := fields["status"].(string); ok {
			device.Status = status
		}
	case topics.CategoryState:
		if state, ok := fields["state"].(string); ok {
			device.State = state
		}
	case topics.CategoryTelemetry:
		if p.Sensor == "" {
			return
		}
		var reading models.SensorReading
		if value, ok := fields["value"].(float64); ok {
			reading.Value = value
		}
		if unit, ok := fields["unit"].(string); ok {
			reading.Unit = unit
		}
		if eventTS, ok := fields["ts"].(string); ok {
			reading.TS = eventTS
		}
		device.Sensors[p.Sensor] = reading
	case topics.CategoryAlarms:
		// the whole alarm payload replaces the previous one
		device.LastAlarm = fields
	}
}

// Snapshot returns the serialized full device mapping and traffic log.
// Each viewer receives it exactly once, immediately on connect.
func (a *Aggregator) Snapshot() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.marshalLocked(snapshotMessage{
		Type:    "snapshot",
		Devices: a.devices,
		Traffic: a.traffic,
	})
}

// marshalLocked serializes a viewer message while a.mu is held, so the
// projection cannot mutate mid-encoding.
func (a *Aggregator) marshalLocked(message interface{}) []byte {
	payload, err := json.Marshal(message)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to serialize viewer message")
		return nil
	}
	return payload
}

// HandleBrokerUp notifies viewers that the bus connection is established.
// Start owns the first session; on later ones (broker reconnects) the
// clean session's wildcard subscription is gone and is re-registered here.
func (a *Aggregator) HandleBrokerUp() {
	a.mu.Lock()
	first := !a.connectSeen
	a.connectSeen = true
	a.mu.Unlock()

	a.logger.Info().Msg("Broker connected")
	payload, _ := json.Marshal(brokerMessage{Type: "broker", Status: "connected"})
	a.hub.Broadcast(payload)

	if first {
		return
	}
	if err := a.subscribeAll(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to restore subscription")
	}
}

// HandleBrokerDown notifies viewers that the bus connection was lost.
func (a *Aggregator) HandleBrokerDown(err error) {
	a.logger.Warn().Err(err).Msg("Broker connection lost")
	payload, _ := json.Marshal(brokerMessage{Type: "broker", Status: "disconnected"})
	a.hub.Broadcast(payload)
}

// PublishCommand republishes a viewer-submitted command to the bus as an
// issuer-tagged command with no sequence number. The device id is not
// validated locally; a command for an unknown device simply has no
// subscriber.
func (a *Aggregator) PublishCommand(deviceID, command, reason string) {
	if reason == "" {
		reason = constants.IssuerDashboard
	}
	cmd := models.Command{
		Command:  command,
		Reason:   reason,
		DeviceID: deviceID,
		TS:       models.Timestamp(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to serialize viewer command")
		return
	}

	topic := a.topics.Commands(constants.IssuerDashboard, deviceID)
	token := a.mqttClient.Publish(topic, constants.QOSCommand, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		a.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish viewer command")
		return
	}

	a.metrics.CommandsRelayed.Inc()
	a.logger.Info().Str("device", deviceID).Str("command", command).Msg("Viewer command relayed")
}

// ServeWS upgrades an HTTP request to a viewer connection. Snapshot and
// admission happen in one critical section with event processing, so no
// event can fall in the gap between the snapshot and the first broadcast
// the viewer observes.
func (a *Aggregator) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}

	viewer := newViewer(conn)
	go viewer.writePump(a.hub)

	a.mu.Lock()
	snapshot := a.marshalLocked(snapshotMessage{
		Type:    "snapshot",
		Devices: a.devices,
		Traffic: a.traffic,
	})
	if snapshot != nil {
		// the send queue is empty at this point, so this never blocks
		viewer.send <- snapshot
	}
	a.hub.Add(viewer)
	a.mu.Unlock()

	go a.readViewer(viewer)
}

// readViewer consumes command requests from one viewer until its
// transport fails or closes.
func (a *Aggregator) readViewer(v *Viewer) {
	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			a.hub.Drop(v, nil)
			return
		}

		var req commandRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		if req.Type != "command" || req.DeviceID == "" || req.Command == "" {
			continue
		}
		a.PublishCommand(req.DeviceID, req.Command, req.Reason)
	}
}
