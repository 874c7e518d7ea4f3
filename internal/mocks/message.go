package mocks

// MockMessage implements MQTT.Message for testing
type MockMessage struct {
	payload  []byte
	topic    string
	qos      byte
	retained bool
}

// NewMockMessage creates a new mock MQTT message
func NewMockMessage(topic string, payload []byte) *MockMessage {
	return &MockMessage{
		payload: payload,
		topic:   topic,
		qos:     1,
	}
}

// NewRetainedMockMessage creates a mock message with explicit QoS and
// retain flag.
func NewRetainedMockMessage(topic string, payload []byte, qos byte, retained bool) *MockMessage {
	return &MockMessage{
		payload:  payload,
		topic:    topic,
		qos:      qos,
		retained: retained,
	}
}

func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return m.qos }
func (m *MockMessage) Retained() bool    { return m.retained }
func (m *MockMessage) MessageID() uint16 { return 1 }
func (m *MockMessage) Ack()              {} // No-op for testing
