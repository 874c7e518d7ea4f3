package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/vfactory/vfactory/internal/utils"
	"github.com/vfactory/vfactory/pkg/file"
	"github.com/vfactory/vfactory/pkg/mqtt"
	"github.com/vfactory/vfactory/pkg/topics"
)

// A passive traffic logger: subscribes to a topic filter and prints every
// delivered message.
func main() {
	configPath := pflag.String("config", "configs/config.yaml", "Path to the configuration file")
	topicFilter := pflag.String("topic", "", "Topic filter to observe (defaults to the whole namespace)")
	qos := pflag.Uint8("qos", 1, "Subscription QoS")
	pflag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "observer").Logger()

	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	filter := *topicFilter
	if filter == "" {
		filter = topics.New(config.BaseTopic).Wildcard()
	}

	mqttClient := mqtt.NewMqttService(fileClient, logger)
	err = mqttClient.Initialize(mqtt.Options{
		Broker:        config.MQTT.Broker,
		ClientID:      "observer-" + uuid.New().String(),
		CleanSession:  true,
		Keepalive:     time.Duration(config.MQTT.Keepalive) * time.Second,
		CACertificate: config.MQTT.CACertificate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize MQTT client")
	}

	token := mqttClient.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to broker")
	}

	subToken := mqttClient.Subscribe(filter, *qos, func(client MQTT.Client, msg MQTT.Message) {
		logger.Info().
			Str("topic", msg.Topic()).
			Uint8("qos", msg.Qos()).
			Bool("retain", msg.Retained()).
			Str("payload", string(msg.Payload())).
			Msg("Observed")
	})
	subToken.Wait()
	if err := subToken.Error(); err != nil {
		logger.Fatal().Err(err).Str("topic", filter).Msg("Failed to subscribe")
	}
	logger.Info().Str("topic", filter).Msg("Observing")

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	mqttClient.Disconnect(250)
	logger.Info().Msg("Shutdown")
}
