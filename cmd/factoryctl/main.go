package main

import (
	"encoding/json"
	"fmt"
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
)

// Manual pub/sub helper for poking at the bus:
//
//	factoryctl pub --topic factory/commands/cli/conveyor --message '{"command":"stop"}' --qos 1
//	factoryctl sub --topic 'factory/#'
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "factoryctl").Logger()

	switch os.Args[1] {
	case "pub":
		runPub(os.Args[2:], logger)
	case "sub":
		runSub(os.Args[2:], logger)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: factoryctl <pub|sub> [flags]")
}

func connect(configPath, clientID string, logger zerolog.Logger) *mqtt.MqttService {
	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	mqttClient := mqtt.NewMqttService(fileClient, logger)
	err = mqttClient.Initialize(mqtt.Options{
		Broker:        config.MQTT.Broker,
		ClientID:      clientID + "-" + uuid.New().String(),
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
	return mqttClient
}

func runPub(args []string, logger zerolog.Logger) {
	flags := pflag.NewFlagSet("pub", pflag.ExitOnError)
	configPath := flags.String("config", "configs/config.yaml", "Path to the configuration file")
	topic := flags.String("topic", "", "Topic to publish to")
	message := flags.String("message", "", "Message payload")
	qos := flags.Uint8("qos", 0, "Publish QoS")
	retain := flags.Bool("retain", false, "Set the retain flag")
	validateJSON := flags.Bool("json", false, "Validate the message as JSON before publishing")
	_ = flags.Parse(args)

	if *topic == "" || *message == "" {
		logger.Fatal().Msg("--topic and --message are required")
	}
	if *validateJSON && !json.Valid([]byte(*message)) {
		logger.Fatal().Msg("Message is not valid JSON")
	}

	mqttClient := connect(*configPath, "cli-pub", logger)
	defer mqttClient.Disconnect(250)

	token := mqttClient.Publish(*topic, *qos, *retain, []byte(*message))
	token.Wait()
	if err := token.Error(); err != nil {
		logger.Fatal().Err(err).Str("topic", *topic).Msg("Publish failed")
	}
	logger.Info().Str("topic", *topic).Msg("Published")
}

func runSub(args []string, logger zerolog.Logger) {
	flags := pflag.NewFlagSet("sub", pflag.ExitOnError)
	configPath := flags.String("config", "configs/config.yaml", "Path to the configuration file")
	topic := flags.String("topic", "", "Topic filter to subscribe to")
	qos := flags.Uint8("qos", 0, "Subscription QoS")
	_ = flags.Parse(args)

	if *topic == "" {
		logger.Fatal().Msg("--topic is required")
	}

	mqttClient := connect(*configPath, "cli-sub", logger)

	token := mqttClient.Subscribe(*topic, *qos, func(client MQTT.Client, msg MQTT.Message) {
		logger.Info().
			Str("topic", msg.Topic()).
			Uint8("qos", msg.Qos()).
			Bool("retain", msg.Retained()).
			Str("payload", string(msg.Payload())).
			Msg("Received")
	})
	token.Wait()
	if err := token.Error(); err != nil {
		logger.Fatal().Err(err).Str("topic", *topic).Msg("Subscribe failed")
	}
	logger.Info().Str("topic", *topic).Msg("Subscribed")

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	mqttClient.Disconnect(250)
}
