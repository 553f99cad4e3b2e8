// Package backend wires the vitals service together: database, latest-reading cache, change
// feed, ingestion transports, portals and the gRPC health endpoint.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"gorm.io/gorm"

	"procodus.dev/vitals/internal/auth"
	"procodus.dev/vitals/internal/cache"
	"procodus.dev/vitals/internal/feed"
	"procodus.dev/vitals/internal/ingest"
	"procodus.dev/vitals/internal/store"
	"procodus.dev/vitals/internal/web"
	"procodus.dev/vitals/pkg/metrics"
	"procodus.dev/vitals/pkg/mq"
)

const (
	// DefaultFeedExchange is the RabbitMQ fanout exchange carrying change events.
	DefaultFeedExchange = "vitals.changes"
	// DefaultSessionCleanupInterval is how often expired sessions are purged.
	DefaultSessionCleanupInterval = 15 * time.Minute
	// DefaultHealthInterval is how often dependencies are probed for the health endpoint.
	DefaultHealthInterval = 10 * time.Second
)

// Metrics bundles the metric sets of every component. Create it once per process.
type Metrics struct {
	Cache  *metrics.CacheMetrics
	Feed   *metrics.FeedMetrics
	Ingest *metrics.IngestMetrics
	MQ     *metrics.MQMetrics
	Web    *metrics.WebMetrics
}

// NewMetrics creates and registers all metric sets under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Cache:  metrics.NewCacheMetrics(namespace),
		Feed:   metrics.NewFeedMetrics(namespace),
		Ingest: metrics.NewIngestMetrics(namespace),
		MQ:     metrics.NewMQMetrics(namespace),
		Web:    metrics.NewWebMetrics(namespace),
	}
}

// Server represents the vitals service process.
type Server struct {
	logger     *slog.Logger
	config     *ServerConfig
	db         *gorm.DB
	store      *store.Store
	cache      *cache.Cache
	mqClient   *mq.Client
	listener   *ingest.Listener
	web        *web.Server
	grpcServer *grpc.Server
	health     *HealthReporter
	wg         sync.WaitGroup
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *Metrics

	// Database configuration
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPort     int
	// DBMigrate runs schema migrations on startup.
	DBMigrate bool

	// Redis configuration. The cache is disabled when RedisAddr is empty.
	RedisAddr     string
	RedisPassword string
	RedisKey      string
	RedisDB       int

	// RabbitMQ configuration. Without a URL change events stay in this process.
	RabbitMQURL  string
	FeedExchange string

	// MQTT configuration. The listener is disabled when MQTTBroker is empty.
	MQTTBroker   string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string
	MQTTQoS      byte

	// HTTP and gRPC ports
	HTTPPort int
	GRPCPort int

	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration
	HealthInterval         time.Duration
	QueryTimeout           time.Duration
	RefreshInterval        time.Duration
	SecureCookies          bool
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.GRPCPort <= 0 {
		return nil, errors.New("gRPC port must be positive")
	}

	if cfg.HTTPPort == cfg.GRPCPort {
		return nil, errors.New("HTTP and gRPC ports must differ")
	}

	if cfg.FeedExchange == "" {
		cfg.FeedExchange = DefaultFeedExchange
	}
	if cfg.SessionCleanupInterval <= 0 {
		cfg.SessionCleanupInterval = DefaultSessionCleanupInterval
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}

	return &Server{
		logger: cfg.Logger.With("component", "backend"),
		config: cfg,
	}, nil
}

// Run starts every component and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting vitals service")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	s.health = NewHealthReporter(health.NewServer(), s.logger)

	// Start the health endpoint first so orchestrators see NOT_SERVING while starting up
	grpcErr, err := s.startGRPC()
	if err != nil {
		return err
	}

	if err := s.setup(ctx); err != nil {
		s.logger.Error("failed to start vitals service", "error", err)
		cancel()
		_ = s.Shutdown()
		return err
	}

	webErr := make(chan error, 1)
	go func() {
		webErr <- s.web.Run(ctx)
		close(webErr)
	}()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.health.Watch(ctx, s.config.HealthInterval)
	}()
	go func() {
		defer s.wg.Done()
		sweepSessions(ctx, s.store, s.config.SessionCleanupInterval, s.logger)
	}()

	s.logger.Info("vitals service started successfully",
		"http_port", s.config.HTTPPort,
		"grpc_port", s.config.GRPCPort,
	)

	// Wait for shutdown signal or a server error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-grpcErr:
		if err != nil {
			s.logger.Error("gRPC server error", "error", err)
			cancel()
			_ = s.Shutdown()
			return err
		}
	case err := <-webErr:
		if err != nil {
			s.logger.Error("web server error", "error", err)
			cancel()
			_ = s.Shutdown()
			return err
		}
	}

	s.health.Shutdown()
	cancel()
	if err := <-webErr; err != nil {
		s.logger.Error("web server shutdown error", "error", err)
	}
	return s.Shutdown()
}

// setup opens the database and builds the ingestion pipeline and the portals.
func (s *Server) setup(ctx context.Context) error {
	cfg := s.config
	m := cfg.Metrics

	db, err := store.NewDB(&store.DBConfig{
		Logger:   s.logger,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Migrate:  cfg.DBMigrate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	st, err := store.New(db, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	s.store = st
	s.health.AddCheck(ServiceDatabase, st.Ping)
	s.logger.Info("database initialized successfully")

	var latest cache.Latest
	if cfg.RedisAddr != "" {
		c, err := cache.New(cache.NewClient(&cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Key:      cfg.RedisKey,
			DB:       cfg.RedisDB,
		}), cfg.RedisKey, s.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		if m != nil {
			c.SetMetrics(m.Cache)
		}
		// The cache is best effort; readers fall back to the database
		if err := c.Ping(ctx); err != nil {
			s.logger.Warn("redis not reachable, continuing with database fallback", "addr", cfg.RedisAddr, "error", err)
		}
		s.cache = c
		latest = c
		s.health.AddCheck(ServiceCache, c.Ping)
	}

	hub := feed.NewHub(s.logger)
	publisher, err := s.feedPublisher(ctx, hub)
	if err != nil {
		return err
	}

	svc, err := ingest.NewService(&ingest.Config{
		Store:     st,
		Cache:     latest,
		Publisher: publisher,
		Logger:    s.logger,
		Metrics:   ingestMetrics(m),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize ingestion: %w", err)
	}

	if cfg.MQTTBroker != "" {
		l, err := ingest.NewListener(svc, &ingest.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
			QoS:      cfg.MQTTQoS,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT listener: %w", err)
		}
		if err := l.Start(ctx); err != nil {
			l.Stop()
			return err
		}
		s.listener = l
	}

	authSvc, err := auth.NewService(&auth.Config{
		Store:      st,
		Logger:     s.logger,
		SessionTTL: cfg.SessionTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize auth: %w", err)
	}

	webCfg := &web.ServerConfig{
		Logger:          s.logger,
		Store:           st,
		Auth:            authSvc,
		Ingest:          svc.HTTPHandler(),
		Cache:           latest,
		Hub:             hub,
		HTTPPort:        cfg.HTTPPort,
		QueryTimeout:    cfg.QueryTimeout,
		RefreshInterval: cfg.RefreshInterval,
		SecureCookies:   cfg.SecureCookies,
	}
	webServer, err := web.NewServer(webCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize web server: %w", err)
	}
	if m != nil {
		webServer.SetMetrics(m.Web)
	}
	s.web = webServer

	s.health.Check(ctx)
	return nil
}

// feedPublisher returns the broker backed publisher and starts its bridge, or a local one
// when RabbitMQ is not configured.
func (s *Server) feedPublisher(ctx context.Context, hub *feed.Hub) (feed.Publisher, error) {
	m := s.config.Metrics
	if m != nil {
		hub.SetMetrics(m.Feed)
	}

	if s.config.RabbitMQURL == "" {
		s.logger.Info("no RabbitMQ configured, change events stay in process")
		return feed.LocalPublisher{Hub: hub}, nil
	}

	client := mq.NewFanout(s.config.FeedExchange, s.config.RabbitMQURL, s.logger)
	if m != nil {
		client.SetMetrics(m.MQ)
	}
	s.mqClient = client

	publisher, err := feed.NewAMQPPublisher(client, hub, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize feed publisher: %w", err)
	}
	bridge, err := feed.NewBridge(client, hub, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize feed bridge: %w", err)
	}
	if m != nil {
		publisher.SetMetrics(m.Feed)
		bridge.SetMetrics(m.Feed)
	}

	s.health.AddCheck(ServiceFeed, func(context.Context) error {
		if !client.IsReady() {
			return errors.New("rabbitmq not connected")
		}
		return nil
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := bridge.Run(ctx); err != nil {
			s.logger.Error("feed bridge stopped", "error", err)
		}
	}()

	s.logger.Info("change feed bridged through RabbitMQ", "exchange", s.config.FeedExchange)
	return publisher, nil
}

func ingestMetrics(m *Metrics) *metrics.IngestMetrics {
	if m == nil {
		return nil
	}
	return m.Ingest
}

// startGRPC serves the health endpoint in the background.
func (s *Server) startGRPC() (<-chan error, error) {
	s.grpcServer = grpc.NewServer()
	s.health.Register(s.grpcServer)

	grpcAddr := fmt.Sprintf(":%d", s.config.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
	}

	s.logger.Info("starting gRPC server", "address", grpcAddr)

	grpcErr := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			grpcErr <- fmt.Errorf("gRPC server error: %w", err)
		}
		close(grpcErr)
	}()
	return grpcErr, nil
}

// Shutdown gracefully shuts down the server. The web server stops with the Run context.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down vitals service")

	var shutdownErr error

	if s.health != nil {
		s.health.Shutdown()
	}

	// Stop gRPC server
	if s.grpcServer != nil {
		s.logger.Info("stopping gRPC server")
		s.grpcServer.GracefulStop()
		s.logger.Info("gRPC server stopped")
	}

	if s.listener != nil {
		s.listener.Stop()
	}

	if s.mqClient != nil {
		if err := s.mqClient.Close(); err != nil {
			s.logger.Error("failed to close RabbitMQ client", "error", err)
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("rabbitmq close error: %w", err))
		}
	}

	s.wg.Wait()

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("failed to close redis client", "error", err)
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("redis close error: %w", err))
		}
	}

	// Close database
	if s.db != nil {
		s.logger.Info("closing database connection")
		if err := store.CloseDB(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("database close error: %w", err))
		}
	}

	if shutdownErr != nil {
		s.logger.Error("vitals service shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("vitals service shutdown completed successfully")
	return nil
}
