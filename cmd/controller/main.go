package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/vfactory/vfactory/internal/controller"
	"github.com/vfactory/vfactory/internal/utils"
	"github.com/vfactory/vfactory/pkg/file"
	"github.com/vfactory/vfactory/pkg/mqtt"
	"github.com/vfactory/vfactory/pkg/topics"
)

func main() {
	configPath := pflag.String("config", "configs/config.yaml", "Path to the configuration file")
	session := pflag.String("session", "clean", "Bus session type: clean or persistent")
	clientID := pflag.String("client-id", "controller", "Bus client id")
	pflag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "controller").Logger()

	if *session != "clean" && *session != "persistent" {
		logger.Fatal().Str("session", *session).Msg("--session must be clean or persistent")
	}

	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// A persistent session needs a stable client id so the broker can
	// buffer alarms across disconnects; a clean session gets a unique one.
	busClientID := *clientID
	cleanSession := *session == "clean"
	if cleanSession {
		busClientID = busClientID + "-" + uuid.New().String()
	}
	logger.Info().Str("client_id", busClientID).Bool("clean_session", cleanSession).Msg("Using MQTT client id")

	mqttClient := mqtt.NewMqttService(fileClient, logger)
	ctrl := controller.New(topics.New(config.BaseTopic), mqttClient, logger)

	// The default handler catches QoS 1 alarms a durable session flushes
	// before the subscribe calls have registered their routes; OnConnect
	// restores the subscriptions after reconnects.
	err = mqttClient.Initialize(mqtt.Options{
		Broker:         config.MQTT.Broker,
		ClientID:       busClientID,
		CleanSession:   cleanSession,
		Keepalive:      time.Duration(config.MQTT.Keepalive) * time.Second,
		CACertificate:  config.MQTT.CACertificate,
		DefaultHandler: ctrl.HandleMessage,
		OnConnect:      ctrl.HandleConnect,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize MQTT client")
	}
	if err := ctrl.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start controller")
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := ctrl.Stop(); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
}
