package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/vfactory/vfactory/internal/agent"
	"github.com/vfactory/vfactory/internal/constants"
	"github.com/vfactory/vfactory/internal/utils"
	"github.com/vfactory/vfactory/pkg/file"
	"github.com/vfactory/vfactory/pkg/mqtt"
	"github.com/vfactory/vfactory/pkg/topics"
)

func main() {
	configPath := pflag.String("config", "configs/config.yaml", "Path to the configuration file")
	deviceID := pflag.String("device", "", "Device id (e.g. conveyor, robot_arm, press, env_station)")
	anomaly := pflag.Bool("anomaly", false, "Enable random sensor anomalies")
	crashAfter := pflag.Duration("crash-after", 0, "Terminate abruptly after this duration to trigger the last-will")
	pflag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "device").Logger()

	if *deviceID == "" {
		logger.Fatal().Msg("--device is required")
	}

	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	deviceConfig, ok := config.Devices[*deviceID]
	if !ok {
		logger.Fatal().Str("device", *deviceID).Msg("Unknown device")
	}

	ns := topics.New(config.BaseTopic)

	mqttClient := mqtt.NewMqttService(fileClient, logger)
	deviceAgent := agent.New(*deviceID, deviceConfig, ns, agent.Options{
		Anomaly:    *anomaly,
		CrashAfter: *crashAfter,
	}, mqttClient, logger)

	// The retained offline status registered here is only ever delivered
	// by the broker, on an unclean disconnect. OnConnect restores the
	// clean session's subscriptions and retained records after reconnects.
	err = mqttClient.Initialize(mqtt.Options{
		Broker:        config.MQTT.Broker,
		ClientID:      *deviceID,
		CleanSession:  true,
		Keepalive:     time.Duration(config.MQTT.Keepalive) * time.Second,
		CACertificate: config.MQTT.CACertificate,
		Will: &mqtt.WillMessage{
			Topic:    ns.Status(*deviceID),
			Payload:  agent.OfflineStatus(*deviceID),
			QOS:      constants.QOSStatus,
			Retained: true,
		},
		OnConnect: deviceAgent.HandleConnect,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize MQTT client")
	}

	if err := deviceAgent.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start device agent")
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	if err := deviceAgent.Stop(); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
}
