package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/vfactory/vfactory/internal/aggregator"
	"github.com/vfactory/vfactory/internal/utils"
	"github.com/vfactory/vfactory/pkg/file"
	"github.com/vfactory/vfactory/pkg/mqtt"
	"github.com/vfactory/vfactory/pkg/topics"
)

func main() {
	configPath := pflag.String("config", "configs/config.yaml", "Path to the configuration file")
	host := pflag.String("host", "", "HTTP listen host (overrides configuration)")
	port := pflag.Int("port", 0, "HTTP listen port (overrides configuration)")
	pflag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "aggregator").Logger()

	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	listenHost := config.Aggregator.Host
	if *host != "" {
		listenHost = *host
	}
	listenPort := config.Aggregator.Port
	if *port != 0 {
		listenPort = *port
	}
	if listenPort == 0 {
		listenPort = 8080
	}

	registry := prometheus.NewRegistry()
	metrics := aggregator.NewMetrics(registry)

	mqttClient := mqtt.NewMqttService(fileClient, logger)
	agg := aggregator.New(topics.New(config.BaseTopic), mqttClient, metrics, logger)

	err = mqttClient.Initialize(mqtt.Options{
		Broker:           config.MQTT.Broker,
		ClientID:         "aggregator-" + uuid.New().String(),
		CleanSession:     true,
		Keepalive:        time.Duration(config.MQTT.Keepalive) * time.Second,
		CACertificate:    config.MQTT.CACertificate,
		OnConnect:        agg.HandleBrokerUp,
		OnConnectionLost: agg.HandleBrokerDown,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize MQTT client")
	}

	if err := agg.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start aggregator")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", agg.ServeWS)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	addr := fmt.Sprintf("%s:%d", listenHost, listenPort)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving viewer endpoint")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	_ = server.Close()
	if err := agg.Stop(); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
}
