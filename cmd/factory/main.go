package main

import (
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/vfactory/vfactory/internal/agent"
	"github.com/vfactory/vfactory/internal/constants"
	"github.com/vfactory/vfactory/internal/controller"
	"github.com/vfactory/vfactory/internal/registry"
	"github.com/vfactory/vfactory/internal/utils"
	"github.com/vfactory/vfactory/pkg/file"
	"github.com/vfactory/vfactory/pkg/mqtt"
	"github.com/vfactory/vfactory/pkg/topics"
)

// The launcher runs the whole simulated fleet plus the controller in one
// process. Every device still gets its own bus session so the broker can
// track each last-will independently.
func main() {
	configPath := pflag.String("config", "configs/config.yaml", "Path to the configuration file")
	anomaly := pflag.Bool("anomaly", false, "Enable random sensor anomalies on every device")
	pflag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "factory").Logger()

	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ns := topics.New(config.BaseTopic)
	keepalive := time.Duration(config.MQTT.Keepalive) * time.Second
	serviceRegistry := registry.New(logger)

	deviceIDs := make([]string, 0, len(config.Devices))
	for id := range config.Devices {
		deviceIDs = append(deviceIDs, id)
	}
	sort.Strings(deviceIDs)

	for _, deviceID := range deviceIDs {
		deviceLogger := logger.With().Str("component", "device").Logger()
		mqttClient := mqtt.NewMqttService(fileClient, deviceLogger)
		deviceAgent := agent.New(deviceID, config.Devices[deviceID], ns,
			agent.Options{Anomaly: *anomaly}, mqttClient, deviceLogger)
		err := mqttClient.Initialize(mqtt.Options{
			Broker:        config.MQTT.Broker,
			ClientID:      deviceID,
			CleanSession:  true,
			Keepalive:     keepalive,
			CACertificate: config.MQTT.CACertificate,
			Will: &mqtt.WillMessage{
				Topic:    ns.Status(deviceID),
				Payload:  agent.OfflineStatus(deviceID),
				QOS:      constants.QOSStatus,
				Retained: true,
			},
			OnConnect: deviceAgent.HandleConnect,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("device", deviceID).Msg("Failed to initialize MQTT client")
		}
		serviceRegistry.Register("device:"+deviceID, deviceAgent)
	}

	controllerLogger := logger.With().Str("component", "controller").Logger()
	controllerClient := mqtt.NewMqttService(fileClient, controllerLogger)
	ctrl := controller.New(ns, controllerClient, controllerLogger)
	err = controllerClient.Initialize(mqtt.Options{
		Broker:         config.MQTT.Broker,
		ClientID:       "controller-" + uuid.New().String(),
		CleanSession:   true,
		Keepalive:      keepalive,
		CACertificate:  config.MQTT.CACertificate,
		DefaultHandler: ctrl.HandleMessage,
		OnConnect:      ctrl.HandleConnect,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize controller MQTT client")
	}
	serviceRegistry.Register("controller", ctrl)

	if err := serviceRegistry.StartAll(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start services")
	}
	logger.Info().Msg("All services started successfully")

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopAll(); err != nil {
		logger.Error().Err(err).Msg("Shutdown finished with failures")
	}
}
