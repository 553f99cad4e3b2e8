// Package simulator drives fake wristbands that send correlated vitals to the ingestion
// service over HTTP or MQTT.
package simulator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/vitals/pkg/generator"
	"procodus.dev/vitals/pkg/metrics"
)

var (
	errInvalidDeviceCount = errors.New("device count must be greater than 0")
	errInvalidInterval    = errors.New("interval must be greater than 0")
	errLoggerRequired     = errors.New("logger is required")
	errSenderRequired     = errors.New("sender is required")
	errUsersRequired      = errors.New("at least one user id is required")
)

// Config holds the configuration for the simulator.
type Config struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Sender delivers readings to the ingestion service
	Sender Sender
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.SimulatorMetrics
	// Now overrides the reading timestamp clock. Defaults to time.Now.
	Now func() time.Time
	// UserIDs are the patients wristbands are handed out to, round robin.
	UserIDs []string
	// Devices is the number of simulated wristbands
	Devices int
	// Interval is the time between readings of one wristband
	Interval time.Duration
	// Seed seeds the vitals generators. Zero picks a random seed.
	Seed int64
	// WithBloodPressure makes wristbands send their own blood pressure.
	WithBloodPressure bool
}

// device is one running wristband.
type device struct {
	band *generator.Wristband
	gen  *generator.VitalsGenerator
}

// Simulator runs a set of wristbands, each on its own ticker.
type Simulator struct {
	logger  *slog.Logger
	config  *Config
	sender  Sender
	devices []*device
	metrics *metrics.SimulatorMetrics
	now     func() time.Time
	wg      sync.WaitGroup
}

// New creates a simulator with cfg.Devices wristbands.
func New(cfg *Config) (*Simulator, error) {
	if cfg.Devices <= 0 {
		return nil, errInvalidDeviceCount
	}

	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	if cfg.Sender == nil {
		return nil, errSenderRequired
	}

	if len(cfg.UserIDs) == 0 {
		return nil, errUsersRequired
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63() // #nosec G404 - weak random is acceptable for simulation
	}

	s := &Simulator{
		logger:  cfg.Logger.With("component", "simulator", "transport", cfg.Sender.Transport()),
		config:  cfg,
		sender:  cfg.Sender,
		devices: make([]*device, 0, cfg.Devices),
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	for i := range cfg.Devices {
		userID := cfg.UserIDs[i%len(cfg.UserIDs)]
		band := generator.NewWristband(userID)
		if band == nil {
			return nil, errors.New("failed to generate wristband")
		}
		s.devices = append(s.devices, &device{
			band: band,
			gen:  generator.NewVitalsGenerator(band.DeviceID, userID, seed+int64(i), cfg.WithBloodPressure),
		})

		s.logger.Info("created wristband",
			"device_id", band.DeviceID,
			"user_id", userID,
			"model", band.Model,
			"firmware", band.Firmware,
		)
	}

	return s, nil
}

// DeviceIDs returns the ids of the simulated wristbands.
func (s *Simulator) DeviceIDs() []string {
	ids := make([]string, len(s.devices))
	for i, d := range s.devices {
		ids[i] = d.band.DeviceID
	}
	return ids
}

// Run starts all wristbands and blocks until ctx ends or a shutdown signal is received.
func (s *Simulator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	for _, d := range s.devices {
		s.wg.Add(1)
		go s.runDevice(ctx, d)
	}

	s.logger.Info("simulator started",
		"device_count", len(s.devices),
		"interval", s.config.Interval,
	)

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down")
	}

	s.logger.Info("waiting for wristbands to stop...")
	s.wg.Wait()

	s.logger.Info("simulator stopped")
	return nil
}

// runDevice sends one reading straight away and then one per interval.
func (s *Simulator) runDevice(ctx context.Context, d *device) {
	defer s.wg.Done()

	if s.metrics != nil {
		s.metrics.ActiveDevices.Inc()
		defer s.metrics.ActiveDevices.Dec()
	}

	deviceLogger := s.logger.With(slog.String("device_id", d.band.DeviceID))
	deviceLogger.Debug("wristband started")

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if err := s.sendReading(ctx, d); err != nil {
			if ctx.Err() != nil {
				return
			}
			// Continue on error - the next tick retries with a fresh reading
			deviceLogger.Error("failed to send reading", "error", err)
		}

		select {
		case <-ctx.Done():
			deviceLogger.Debug("wristband shutting down")
			return
		case <-ticker.C:
		}
	}
}

// sendReading generates and delivers one reading for d.
func (s *Simulator) sendReading(ctx context.Context, d *device) error {
	transport := s.sender.Transport()

	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.SendDuration.WithLabelValues(transport))
		defer timer.ObserveDuration()
	}

	r := d.gen.GenerateReading(s.now())
	err := s.sender.Send(ctx, r)

	if s.metrics != nil {
		s.metrics.ReadingsSent.WithLabelValues(transport, metrics.StatusLabel(err)).Inc()
	}
	if err != nil {
		return err
	}

	s.logger.Debug("reading sent",
		"device_id", r.DeviceID,
		"hr", r.HR,
		"temp", r.Temp,
		"spo2", r.SpO2,
	)
	return nil
}
