// Package ingest accepts wristband readings over HTTP and MQTT, validates them, fills in
// blood pressure and appends them to the store.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/cache"
	"procodus.dev/vitals/internal/feed"
	"procodus.dev/vitals/internal/store"
	"procodus.dev/vitals/pkg/metrics"
	"procodus.dev/vitals/pkg/vitals"
)

// Sources label where a reading came from.
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// Request is one submitted reading. Zero values count as missing.
type Request struct {
	DeviceID  string
	UserID    string
	Source    string
	Temp      float64
	HR        int
	SpO2      int
	Systolic  int
	Diastolic int
}

// ReadingStore is the part of the store ingestion writes to.
type ReadingStore interface {
	InsertReading(ctx context.Context, r *store.Reading) error
}

// Config holds the dependencies of a Service. Cache and Publisher are optional.
type Config struct {
	Store     ReadingStore
	Cache     cache.Latest
	Publisher feed.Publisher
	Logger    *slog.Logger
	Metrics   *metrics.IngestMetrics
	// Now overrides the clock used for created_at.
	Now func() time.Time
}

// Service runs the ingestion pipeline shared by every transport.
type Service struct {
	store     ReadingStore
	cache     cache.Latest
	publisher feed.Publisher
	logger    *slog.Logger
	metrics   *metrics.IngestMetrics
	now       func() time.Time
}

// NewService creates a Service.
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("ingest config cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		store:     cfg.Store,
		cache:     cfg.Cache,
		publisher: cfg.Publisher,
		logger:    cfg.Logger.With("component", "ingest"),
		metrics:   cfg.Metrics,
		now:       now,
	}, nil
}

// Ingest validates req and appends exactly one reading. Rejected requests write nothing and
// return a validation error; store failures return a persistence error. Cache and feed
// failures after a successful write are logged only.
func (s *Service) Ingest(ctx context.Context, req Request) (*store.Reading, error) {
	source := req.Source
	if source == "" {
		source = SourceHTTP
	}
	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.IngestDuration.WithLabelValues(source))
		defer timer.ObserveDuration()
	}

	row, err := s.build(req)
	if err != nil {
		s.count(source, "rejected")
		var verr *vitals.ValidationError
		if s.metrics != nil && errors.As(err, &verr) {
			s.metrics.ValidationFailures.WithLabelValues(verr.Field).Inc()
		}
		s.logger.Debug("rejected reading", "device_id", req.DeviceID, "source", source, "error", err)
		return nil, apperr.Validation(err)
	}

	start := time.Now()
	err = s.store.InsertReading(ctx, row)
	if s.metrics != nil {
		s.metrics.DBOperationsTotal.WithLabelValues("insert_reading", metrics.StatusLabel(err)).Inc()
		s.metrics.DBOperationDuration.WithLabelValues("insert_reading").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.count(source, "failed")
		s.logger.Error("failed to store reading", "device_id", row.DeviceID, "user_id", row.UserID, "error", err)
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Persistence("Database error", err)
		}
		return nil, err
	}
	s.count(source, "stored")

	v := row.Vitals()
	if s.cache != nil {
		if err := s.cache.Put(ctx, v); err != nil {
			s.logger.Warn("failed to update latest-reading cache", "device_id", v.DeviceID, "error", err)
		}
	}
	if s.publisher != nil {
		e := feed.Event{UserID: v.UserID, DeviceID: v.DeviceID, CreatedAt: v.CreatedAt}
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Warn("failed to publish change event", "device_id", v.DeviceID, "error", err)
		}
	}

	s.logger.Debug("stored reading",
		"device_id", v.DeviceID,
		"user_id", v.UserID,
		"source", source,
		"hr", v.HR,
		"spo2", v.SpO2,
		"temp", v.Temp,
	)
	return row, nil
}

func (s *Service) build(req Request) (*store.Reading, error) {
	if req.DeviceID == "" {
		return nil, &vitals.ValidationError{Field: "device_id", Reason: "missing"}
	}
	if req.UserID == "" {
		return nil, &vitals.ValidationError{Field: "user_id", Reason: "missing"}
	}
	if err := vitals.Validate(req.HR, req.Temp, req.SpO2); err != nil {
		return nil, err
	}

	sys, dia := req.Systolic, req.Diastolic
	if sys != 0 && dia != 0 {
		if err := vitals.ValidateBloodPressure(sys, dia); err != nil {
			return nil, err
		}
	} else {
		sys, dia = vitals.EstimateBloodPressure(req.HR, req.SpO2)
		if s.metrics != nil {
			s.metrics.EstimatedBP.Inc()
		}
	}

	return &store.Reading{
		CreatedAt: s.now(),
		DeviceID:  req.DeviceID,
		UserID:    req.UserID,
		Temp:      req.Temp,
		HR:        req.HR,
		SpO2:      req.SpO2,
		Systolic:  sys,
		Diastolic: dia,
	}, nil
}

func (s *Service) count(source, outcome string) {
	if s.metrics != nil {
		s.metrics.ReadingsTotal.WithLabelValues(source, outcome).Inc()
	}
}
