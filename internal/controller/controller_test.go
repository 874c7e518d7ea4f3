package controller_test

import (
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vfactory/vfactory/internal/controller"
	"github.com/vfactory/vfactory/internal/mocks"
	"github.com/vfactory/vfactory/internal/models"
	"github.com/vfactory/vfactory/pkg/topics"
)

func TestChooseCommand(t *testing.T) {
	tests := []struct {
		name        string
		alarm       models.Alarm
		wantCommand string
		wantReason  string
	}{
		{
			name:        "high temperature is critical",
			alarm:       models.Alarm{Sensor: "temperature", AlarmType: "high"},
			wantCommand: "stop",
			wantReason:  "critical threshold",
		},
		{
			name:        "high pressure is critical",
			alarm:       models.Alarm{Sensor: "pressure", AlarmType: "high"},
			wantCommand: "stop",
			wantReason:  "critical threshold",
		},
		{
			name:        "high current is critical",
			alarm:       models.Alarm{Sensor: "current", AlarmType: "high"},
			wantCommand: "stop",
			wantReason:  "critical threshold",
		},
		{
			name:        "low humidity needs maintenance",
			alarm:       models.Alarm{Sensor: "humidity", AlarmType: "low"},
			wantCommand: "maintenance",
			wantReason:  "low threshold",
		},
		{
			name:        "high vibration is not critical",
			alarm:       models.Alarm{Sensor: "vibration", AlarmType: "high"},
			wantCommand: "maintenance",
			wantReason:  "alarm triggered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command, reason := controller.ChooseCommand(tt.alarm)
			assert.Equal(t, tt.wantCommand, command)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestHandleAlarm_PublishesCommand(t *testing.T) {
	client := new(mocks.MockMQTTClient)
	token := mocks.NewCompletedToken()

	var mu sync.Mutex
	var payloads [][]byte
	client.On("Publish", "factory/commands/controller/press", byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()
			payloads = append(payloads, args.Get(3).([]byte))
		}).
		Return(token)

	c := controller.New(topics.New("factory"), client, zerolog.Nop())

	alarm, _ := json.Marshal(models.Alarm{
		DeviceID:  "press",
		Sensor:    "pressure",
		AlarmType: "high",
		Value:     155.0,
		Limit:     150.0,
	})
	c.HandleAlarm(nil, mocks.NewMockMessage("factory/alarms/press/pressure", alarm))

	require.Len(t, payloads, 1)
	var cmd models.Command
	require.NoError(t, json.Unmarshal(payloads[0], &cmd))
	assert.Equal(t, "stop", cmd.Command)
	assert.Equal(t, "critical threshold", cmd.Reason)
	assert.Equal(t, "press", cmd.DeviceID)
	assert.Equal(t, int64(1), cmd.CommandID)
}

func TestHandleAlarm_DropsUnparseablePayload(t *testing.T) {
	client := new(mocks.MockMQTTClient)

	published := 0
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published++ }).
		Return(mocks.NewCompletedToken())

	c := controller.New(topics.New("factory"), client, zerolog.Nop())
	c.HandleAlarm(nil, mocks.NewMockMessage("factory/alarms/press/pressure", []byte("not json")))

	assert.Zero(t, published, "no command should be issued for a malformed alarm")
}

// Alarms arriving through the default delivery route still produce
// commands: a durable session flushes its queued alarms right after the
// connect acknowledgement, before any subscription route exists.
func TestHandleMessage_DispatchesByCategory(t *testing.T) {
	client := new(mocks.MockMQTTClient)

	var mu sync.Mutex
	var payloads [][]byte
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()
			payloads = append(payloads, args.Get(3).([]byte))
		}).
		Return(mocks.NewCompletedToken())

	c := controller.New(topics.New("factory"), client, zerolog.Nop())

	alarm, _ := json.Marshal(models.Alarm{DeviceID: "press", Sensor: "pressure", AlarmType: "high"})
	c.HandleMessage(nil, mocks.NewMockMessage("factory/alarms/press/pressure", alarm))

	require.Len(t, payloads, 1)
	var cmd models.Command
	require.NoError(t, json.Unmarshal(payloads[0], &cmd))
	assert.Equal(t, "stop", cmd.Command)
	assert.Equal(t, int64(1), cmd.CommandID)

	// non-alarm categories never produce commands
	c.HandleMessage(nil, mocks.NewMockMessage("factory/telemetry/press/pressure", []byte(`{"value":120}`)))
	c.HandleMessage(nil, mocks.NewMockMessage("factory/status/press", []byte(`{"status":"online"}`)))
	c.HandleMessage(nil, mocks.NewMockMessage("factory/state/press", []byte(`{"state":"running"}`)))
	c.HandleMessage(nil, mocks.NewMockMessage("outside/alarms/press/pressure", alarm))
	assert.Len(t, payloads, 1)
}

// The first connect event belongs to Start; a second one means the broker
// session was re-established and the stream subscriptions are gone.
func TestHandleConnect_ResubscribesOnReconnect(t *testing.T) {
	client := new(mocks.MockMQTTClient)

	var subscribed []string
	client.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			subscribed = append(subscribed, args.String(0))
		}).
		Return(mocks.NewCompletedToken())

	c := controller.New(topics.New("factory"), client, zerolog.Nop())

	c.HandleConnect()
	assert.Empty(t, subscribed, "initial connect is handled synchronously by Start")

	c.HandleConnect()
	assert.Equal(t, []string{
		"factory/alarms/#",
		"factory/status/#",
		"factory/state/#",
		"factory/telemetry/#",
	}, subscribed)
}

// Sequence numbers are strictly increasing by one per alarm, with no gaps
// or duplicates, even under concurrent delivery from many devices.
func TestHandleAlarm_ConcurrentSequenceNumbers(t *testing.T) {
	const alarms = 200

	client := new(mocks.MockMQTTClient)
	token := mocks.NewCompletedToken()

	var mu sync.Mutex
	var payloads [][]byte
	client.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()
			payloads = append(payloads, args.Get(3).([]byte))
		}).
		Return(token)

	c := controller.New(topics.New("factory"), client, zerolog.Nop())

	devices := []string{"conveyor", "robot_arm", "press", "env_station"}
	var wg sync.WaitGroup
	for i := 0; i < alarms; i++ {
		device := devices[i%len(devices)]
		payload, _ := json.Marshal(models.Alarm{DeviceID: device, Sensor: "temperature", AlarmType: "high"})
		wg.Add(1)
		go func(payload []byte) {
			defer wg.Done()
			c.HandleAlarm(nil, mocks.NewMockMessage("factory/alarms/x/temperature", payload))
		}(payload)
	}
	wg.Wait()

	require.Len(t, payloads, alarms)

	seqs := make([]int64, 0, alarms)
	for _, payload := range payloads {
		var cmd models.Command
		require.NoError(t, json.Unmarshal(payload, &cmd))
		seqs = append(seqs, cmd.CommandID)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}
}
