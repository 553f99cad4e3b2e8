package backend

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Health service names. The empty name reports the service as a whole.
const (
	ServiceOverall  = ""
	ServiceDatabase = "vitals.database"
	ServiceCache    = "vitals.cache"
	ServiceFeed     = "vitals.feed"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// HealthReporter publishes dependency state on the standard gRPC health service. The
// overall status follows the database only: cache and feed outages degrade features but
// do not stop the service.
type HealthReporter struct {
	server *health.Server
	logger *slog.Logger

	mu       sync.Mutex
	checks   map[string]CheckFunc
	shutdown bool
}

// NewHealthReporter creates a reporter. Every service starts as NOT_SERVING.
func NewHealthReporter(server *health.Server, logger *slog.Logger) *HealthReporter {
	server.SetServingStatus(ServiceOverall, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{
		server: server,
		logger: logger.With("component", "health"),
		checks: make(map[string]CheckFunc),
	}
}

// Register adds the health service to a gRPC server.
func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// AddCheck registers a probe for service.
func (h *HealthReporter) AddCheck(service string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[service] = check
	h.server.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
}

// Check runs every probe once and updates the published statuses.
func (h *HealthReporter) Check(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return
	}

	overall := healthpb.HealthCheckResponse_SERVING
	for service, check := range h.checks {
		status := healthpb.HealthCheckResponse_SERVING
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := check(checkCtx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			h.logger.Warn("health check failed", "service", service, "error", err)
		}
		cancel()

		h.server.SetServingStatus(service, status)
		if service == ServiceDatabase {
			overall = status
		}
	}
	h.server.SetServingStatus(ServiceOverall, overall)
}

// Watch runs Check every interval until ctx ends.
func (h *HealthReporter) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later checks.
func (h *HealthReporter) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return
	}
	h.shutdown = true
	h.server.Shutdown()
	h.logger.Info("health status set to NOT_SERVING")
}
