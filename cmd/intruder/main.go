package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/vfactory/vfactory/internal/utils"
	"github.com/vfactory/vfactory/pkg/file"
	"github.com/vfactory/vfactory/pkg/mqtt"
	"github.com/vfactory/vfactory/pkg/topics"
)

// A deliberately unauthorized client for exercising broker ACLs: it tries
// to publish a command as the controller and to subscribe to an admin
// namespace, and reports whether the broker rejected either operation.
func main() {
	configPath := pflag.String("config", "configs/config.yaml", "Path to the configuration file")
	mode := pflag.String("mode", "both", "Probe mode: pub, sub, or both")
	pflag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "intruder").Logger()

	if *mode != "pub" && *mode != "sub" && *mode != "both" {
		logger.Fatal().Str("mode", *mode).Msg("--mode must be pub, sub, or both")
	}

	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	ns := topics.New(config.BaseTopic)

	mqttClient := mqtt.NewMqttService(fileClient, logger)
	err = mqttClient.Initialize(mqtt.Options{
		Broker:        config.MQTT.Broker,
		ClientID:      "intruder",
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
	defer mqttClient.Disconnect(250)

	if *mode == "pub" || *mode == "both" {
		topic := ns.Commands("controller", "press")
		pubToken := mqttClient.Publish(topic, 1, false, []byte(`{"command":"stop"}`))
		if !pubToken.WaitTimeout(2*time.Second) || pubToken.Error() != nil {
			logger.Info().Err(pubToken.Error()).Str("topic", topic).Msg("Publish rejected or unacknowledged")
		} else {
			logger.Warn().Str("topic", topic).Msg("Publish was accepted; check broker ACLs")
		}
	}

	if *mode == "sub" || *mode == "both" {
		filter := config.BaseTopic + "/admin/#"
		subToken := mqttClient.Subscribe(filter, 1, nil)
		subToken.Wait()
		if err := subToken.Error(); err != nil {
			logger.Info().Err(err).Str("topic", filter).Msg("Subscribe rejected")
		} else {
			logger.Warn().Str("topic", filter).Msg("Subscribe was accepted; check broker ACLs")
		}
	}
}
