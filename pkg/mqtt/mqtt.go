package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/vfactory/vfactory/pkg/file"
)

// MQTTClient defines the interface for an MQTT client.
type MQTTClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// WillMessage is a last-will record the broker delivers on behalf of a
// client that drops without a clean disconnect.
type WillMessage struct {
	Topic    string
	Payload  []byte
	QOS      byte
	Retained bool
}

// Options configures one bus session.
type Options struct {
	Broker        string
	ClientID      string
	CleanSession  bool
	Keepalive     time.Duration
	CACertificate string // optional; enables TLS when set

	Will *WillMessage

	// DefaultHandler receives inbound publishes with no matching
	// subscription route. A durable session's queued messages are flushed
	// by the broker right after the connect acknowledgement, before any
	// Subscribe call has registered its route; without a default handler
	// the client acknowledges and discards them.
	DefaultHandler mqtt.MessageHandler

	OnConnect        func()
	OnConnectionLost func(error)
}

// MqttService provides methods for MQTT operations.
type MqttService struct {
	client     MQTTClient
	fileClient file.FileOperations
	logger     zerolog.Logger
}

// NewMqttService creates a new MqttService instance.
func NewMqttService(fileClient file.FileOperations, logger zerolog.Logger) *MqttService {
	return &MqttService{
		fileClient: fileClient,
		logger:     logger,
	}
}

// Initialize builds the underlying client from the given options. It does
// not open the network session; callers establish it with Connect, so the
// owning service controls when connectivity is attempted. Reconnects after
// that are the client library's responsibility.
func (s *MqttService) Initialize(opts Options) error {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.Broker)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetCleanSession(opts.CleanSession)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetResumeSubs(true)

	if opts.Keepalive > 0 {
		clientOpts.SetKeepAlive(opts.Keepalive)
	}

	if opts.CACertificate != "" {
		tlsConfig, err := s.loadTLSConfig(opts.CACertificate)
		if err != nil {
			return err
		}
		clientOpts.SetTLSConfig(tlsConfig)
	}

	if opts.Will != nil {
		clientOpts.SetBinaryWill(opts.Will.Topic, opts.Will.Payload, opts.Will.QOS, opts.Will.Retained)
	}

	if opts.DefaultHandler != nil {
		clientOpts.SetDefaultPublishHandler(opts.DefaultHandler)
	}

	if opts.OnConnect != nil {
		onConnect := opts.OnConnect
		clientOpts.SetOnConnectHandler(func(_ mqtt.Client) {
			onConnect()
		})
	}
	if opts.OnConnectionLost != nil {
		onLost := opts.OnConnectionLost
		clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			onLost(err)
		})
	}

	s.client = mqtt.NewClient(clientOpts)
	s.logger.Debug().Str("broker", opts.Broker).Str("client_id", opts.ClientID).Msg("MQTT client initialized")
	return nil
}

// loadTLSConfig reads the CA certificate and builds the TLS configuration.
func (s *MqttService) loadTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := s.fileClient.ReadFileRaw(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %v", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA certificate")
	}

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// Connect connects to the MQTT broker.
func (s *MqttService) Connect() mqtt.Token {
	return s.client.Connect()
}

// Publish sends a message to the specified topic.
func (s *MqttService) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return s.client.Publish(topic, qos, retained, payload)
}

// Subscribe subscribes to the specified topic with a message handler.
func (s *MqttService) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return s.client.Subscribe(topic, qos, callback)
}

// Unsubscribe unsubscribes from the specified topics.
func (s *MqttService) Unsubscribe(topics ...string) mqtt.Token {
	return s.client.Unsubscribe(topics...)
}

// Disconnect gracefully disconnects the MQTT client.
func (s *MqttService) Disconnect(quiesce uint) {
	s.client.Disconnect(quiesce)
}
