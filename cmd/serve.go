package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/vitals/internal/backend"
	"procodus.dev/vitals/internal/ingest"
	"procodus.dev/vitals/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the vitals service",
	Long: `Run the vitals service that:
- Accepts wristband readings over HTTP (GET /api/data) and optionally MQTT
- Persists readings to PostgreSQL and caches the latest per device in Redis
- Fans change events out through RabbitMQ to every instance
- Serves the patient and volunteer portals with live updates
- Serves the gRPC health endpoint`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Database flags
	serveCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	serveCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	serveCmd.Flags().String("db-user", "vitals_app", "PostgreSQL user")
	serveCmd.Flags().String("db-password", "", "PostgreSQL password")
	serveCmd.Flags().String("db-name", "vitals", "PostgreSQL database name")
	serveCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	serveCmd.Flags().Bool("db-migrate", true, "Run schema migrations on startup")

	// Optional integrations
	serveCmd.Flags().String("redis-addr", "", "Redis address for the latest-reading cache (disabled when empty)")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database number")
	serveCmd.Flags().String("redis-key", "", "Redis hash holding the latest readings")
	serveCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL for the change feed (in-process when empty)")
	serveCmd.Flags().String("feed-exchange", backend.DefaultFeedExchange, "RabbitMQ fanout exchange for change events")
	serveCmd.Flags().String("mqtt-broker", "", "MQTT broker for wristband readings (disabled when empty)")
	serveCmd.Flags().String("mqtt-username", "", "MQTT username")
	serveCmd.Flags().String("mqtt-password", "", "MQTT password")
	serveCmd.Flags().String("mqtt-topic", ingest.DefaultTopic, "MQTT topic filter for wristband readings")
	serveCmd.Flags().Int("mqtt-qos", 1, "MQTT subscription QoS")

	// Servers
	serveCmd.Flags().Int("http-port", 8080, "HTTP server port")
	serveCmd.Flags().Int("grpc-port", 9090, "gRPC health server port")
	serveCmd.Flags().Duration("session-ttl", 24*time.Hour, "Lifetime of portal sessions")
	serveCmd.Flags().Duration("query-timeout", web.DefaultQueryTimeout, "Timeout of portal queries")
	serveCmd.Flags().Duration("refresh-interval", web.DefaultRefreshInterval, "Portal polling interval")
	serveCmd.Flags().Bool("secure-cookies", false, "Mark session cookies Secure")

	// Bind flags to viper
	_ = viper.BindPFlag("serve.db.host", serveCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("serve.db.port", serveCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("serve.db.user", serveCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("serve.db.password", serveCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("serve.db.name", serveCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("serve.db.sslmode", serveCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("serve.db.migrate", serveCmd.Flags().Lookup("db-migrate"))
	_ = viper.BindPFlag("serve.redis.addr", serveCmd.Flags().Lookup("redis-addr"))
	_ = viper.BindPFlag("serve.redis.password", serveCmd.Flags().Lookup("redis-password"))
	_ = viper.BindPFlag("serve.redis.db", serveCmd.Flags().Lookup("redis-db"))
	_ = viper.BindPFlag("serve.redis.key", serveCmd.Flags().Lookup("redis-key"))
	_ = viper.BindPFlag("serve.rabbitmq.url", serveCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("serve.rabbitmq.exchange", serveCmd.Flags().Lookup("feed-exchange"))
	_ = viper.BindPFlag("serve.mqtt.broker", serveCmd.Flags().Lookup("mqtt-broker"))
	_ = viper.BindPFlag("serve.mqtt.username", serveCmd.Flags().Lookup("mqtt-username"))
	_ = viper.BindPFlag("serve.mqtt.password", serveCmd.Flags().Lookup("mqtt-password"))
	_ = viper.BindPFlag("serve.mqtt.topic", serveCmd.Flags().Lookup("mqtt-topic"))
	_ = viper.BindPFlag("serve.mqtt.qos", serveCmd.Flags().Lookup("mqtt-qos"))
	_ = viper.BindPFlag("serve.http.port", serveCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("serve.grpc.port", serveCmd.Flags().Lookup("grpc-port"))
	_ = viper.BindPFlag("serve.session_ttl", serveCmd.Flags().Lookup("session-ttl"))
	_ = viper.BindPFlag("serve.query_timeout", serveCmd.Flags().Lookup("query-timeout"))
	_ = viper.BindPFlag("serve.refresh_interval", serveCmd.Flags().Lookup("refresh-interval"))
	_ = viper.BindPFlag("serve.secure_cookies", serveCmd.Flags().Lookup("secure-cookies"))
}

func runServe(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting vitals service")

	// Create backend configuration from viper
	config := &backend.ServerConfig{
		Logger:          logger,
		Metrics:         backend.NewMetrics("vitals"),
		DBHost:          viper.GetString("serve.db.host"),
		DBPort:          viper.GetInt("serve.db.port"),
		DBUser:          viper.GetString("serve.db.user"),
		DBPassword:      viper.GetString("serve.db.password"),
		DBName:          viper.GetString("serve.db.name"),
		DBSSLMode:       viper.GetString("serve.db.sslmode"),
		DBMigrate:       viper.GetBool("serve.db.migrate"),
		RedisAddr:       viper.GetString("serve.redis.addr"),
		RedisPassword:   viper.GetString("serve.redis.password"),
		RedisDB:         viper.GetInt("serve.redis.db"),
		RedisKey:        viper.GetString("serve.redis.key"),
		RabbitMQURL:     viper.GetString("serve.rabbitmq.url"),
		FeedExchange:    viper.GetString("serve.rabbitmq.exchange"),
		MQTTBroker:      viper.GetString("serve.mqtt.broker"),
		MQTTUsername:    viper.GetString("serve.mqtt.username"),
		MQTTPassword:    viper.GetString("serve.mqtt.password"),
		MQTTTopic:       viper.GetString("serve.mqtt.topic"),
		MQTTQoS:         byte(viper.GetInt("serve.mqtt.qos")),
		HTTPPort:        viper.GetInt("serve.http.port"),
		GRPCPort:        viper.GetInt("serve.grpc.port"),
		SessionTTL:      viper.GetDuration("serve.session_ttl"),
		QueryTimeout:    viper.GetDuration("serve.query_timeout"),
		RefreshInterval: viper.GetDuration("serve.refresh_interval"),
		SecureCookies:   viper.GetBool("serve.secure_cookies"),
	}

	// Create and run server
	server, err := backend.NewServer(config)
	if err != nil {
		logger.Error("failed to create vitals server", "error", err)
		return err
	}

	logger.Info("vitals server configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"redis_enabled", config.RedisAddr != "",
		"rabbitmq_enabled", config.RabbitMQURL != "",
		"feed_exchange", config.FeedExchange,
		"mqtt_enabled", config.MQTTBroker != "",
		"http_port", config.HTTPPort,
		"grpc_port", config.GRPCPort,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("vitals server error", "error", err)
		return err
	}

	logger.Info("vitals server stopped")
	return nil
}
