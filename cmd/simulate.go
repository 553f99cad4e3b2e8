package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/vitals/internal/simulator"
	"procodus.dev/vitals/pkg/metrics"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulated wristbands",
	Long: `Run simulated wristbands that:
- Generate correlated heart rate, temperature and SpO2 readings
- Deliver them to the ingestion endpoint over HTTP or MQTT
- Run one goroutine per device on a fixed interval`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	// Simulator-specific flags
	simulateCmd.Flags().String("transport", simulator.TransportHTTP, "Delivery transport (http or mqtt)")
	simulateCmd.Flags().String("base-url", "http://localhost:8080", "Base URL of the vitals service")
	simulateCmd.Flags().Duration("timeout", 10*time.Second, "HTTP request timeout")
	simulateCmd.Flags().String("mqtt-broker", "tcp://localhost:1883", "MQTT broker")
	simulateCmd.Flags().String("mqtt-username", "", "MQTT username")
	simulateCmd.Flags().String("mqtt-password", "", "MQTT password")
	simulateCmd.Flags().Int("mqtt-qos", 1, "MQTT publish QoS")
	simulateCmd.Flags().StringSlice("user-id", nil, "Patient ids the wristbands belong to (repeatable)")
	simulateCmd.Flags().Int("devices", 5, "Number of simulated wristbands")
	simulateCmd.Flags().Duration("interval", 5*time.Second, "Interval between readings of one wristband")
	simulateCmd.Flags().Int64("seed", 0, "Seed for the vitals generators (0 picks one at random)")
	simulateCmd.Flags().Bool("with-bp", false, "Send device-measured blood pressure")
	simulateCmd.Flags().Int("metrics-port", 0, "Serve simulator metrics on this port (disabled when 0)")

	// Bind flags to viper
	_ = viper.BindPFlag("simulate.transport", simulateCmd.Flags().Lookup("transport"))
	_ = viper.BindPFlag("simulate.http.base_url", simulateCmd.Flags().Lookup("base-url"))
	_ = viper.BindPFlag("simulate.http.timeout", simulateCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("simulate.mqtt.broker", simulateCmd.Flags().Lookup("mqtt-broker"))
	_ = viper.BindPFlag("simulate.mqtt.username", simulateCmd.Flags().Lookup("mqtt-username"))
	_ = viper.BindPFlag("simulate.mqtt.password", simulateCmd.Flags().Lookup("mqtt-password"))
	_ = viper.BindPFlag("simulate.mqtt.qos", simulateCmd.Flags().Lookup("mqtt-qos"))
	_ = viper.BindPFlag("simulate.user_ids", simulateCmd.Flags().Lookup("user-id"))
	_ = viper.BindPFlag("simulate.devices", simulateCmd.Flags().Lookup("devices"))
	_ = viper.BindPFlag("simulate.interval", simulateCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("simulate.seed", simulateCmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("simulate.with_bp", simulateCmd.Flags().Lookup("with-bp"))
	_ = viper.BindPFlag("simulate.metrics_port", simulateCmd.Flags().Lookup("metrics-port"))
}

func runSimulate(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting wristband simulator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sender simulator.Sender
	switch transport := viper.GetString("simulate.transport"); transport {
	case simulator.TransportHTTP:
		s, err := simulator.NewHTTPSender(viper.GetString("simulate.http.base_url"), viper.GetDuration("simulate.http.timeout"))
		if err != nil {
			return err
		}
		sender = s
	case simulator.TransportMQTT:
		s, disconnect, err := simulator.DialMQTT(ctx, &simulator.MQTTConfig{
			Broker:   viper.GetString("simulate.mqtt.broker"),
			Username: viper.GetString("simulate.mqtt.username"),
			Password: viper.GetString("simulate.mqtt.password"),
			QoS:      byte(viper.GetInt("simulate.mqtt.qos")),
		})
		if err != nil {
			logger.Error("failed to connect to MQTT broker", "error", err)
			return err
		}
		defer disconnect()
		sender = s
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", transport, simulator.TransportHTTP, simulator.TransportMQTT)
	}

	config := &simulator.Config{
		Logger:            logger,
		Sender:            sender,
		Metrics:           metrics.NewSimulatorMetrics("vitals"),
		UserIDs:           viper.GetStringSlice("simulate.user_ids"),
		Devices:           viper.GetInt("simulate.devices"),
		Interval:          viper.GetDuration("simulate.interval"),
		Seed:              viper.GetInt64("simulate.seed"),
		WithBloodPressure: viper.GetBool("simulate.with_bp"),
	}

	sim, err := simulator.New(config)
	if err != nil {
		logger.Error("failed to create simulator", "error", err)
		return err
	}

	logger.Info("simulator configuration",
		"transport", sender.Transport(),
		"devices", config.Devices,
		"users", len(config.UserIDs),
		"interval", config.Interval,
		"with_bp", config.WithBloodPressure,
	)

	if port := viper.GetInt("simulate.metrics_port"); port > 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metrics.Handler())
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() { _ = srv.Close() }()
		logger.Info("serving simulator metrics", "address", srv.Addr)
	}

	if err := sim.Run(ctx); err != nil {
		logger.Error("simulator error", "error", err)
		return err
	}

	logger.Info("simulator stopped")
	return nil
}
