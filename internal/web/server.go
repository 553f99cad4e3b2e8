// Package web serves the patient and volunteer portals, the live event streams and the
// ingestion endpoint over a single HTTP server.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procodus.dev/vitals/internal/auth"
	"procodus.dev/vitals/internal/cache"
	"procodus.dev/vitals/internal/feed"
	"procodus.dev/vitals/internal/store"
	"procodus.dev/vitals/pkg/metrics"
)

const (
	// DefaultQueryTimeout bounds every view query.
	DefaultQueryTimeout = 15 * time.Second
	// DefaultRefreshInterval is the htmx polling period and the event stream poll fallback.
	DefaultRefreshInterval = 10 * time.Second
)

// Store is the read side the portals need.
type Store interface {
	Ping(ctx context.Context) error
	RecentReadings(ctx context.Context, userID string, limit int) ([]store.Reading, error)
	RecentReadingsAll(ctx context.Context, limit int) ([]store.Reading, error)
	RecentReadingsForUsers(ctx context.Context, userIDs []string, limit int) ([]store.Reading, error)
	ListReadingsSince(ctx context.Context, userID string, since time.Time) ([]store.Reading, error)
	Profile(ctx context.Context, userID string) (*store.Profile, error)
	SaveProfile(ctx context.Context, p *store.Profile) error
	ListUsers(ctx context.Context) ([]store.User, error)
}

// Authenticator signs users in and resolves session cookies.
type Authenticator interface {
	SignUpPatient(ctx context.Context, email, password, fullName string) (*auth.Session, error)
	SignInPatient(ctx context.Context, email, password string) (*auth.Session, error)
	SignUpVolunteer(ctx context.Context, name, email, password string) (*auth.Session, error)
	SignInVolunteer(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string, role store.Role) (*auth.Identity, error)
	AssignVolunteer(ctx context.Context, volunteerID, userID, notes string) error
	RemoveAssignment(ctx context.Context, volunteerID, userID string) error
	Assignments(ctx context.Context, volunteerID string) ([]store.Assignment, error)
	AssignedUserIDs(ctx context.Context, volunteerID string) ([]string, error)
}

// Server represents the portal HTTP server.
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	store      Store
	auth       Authenticator
	ingest     http.Handler
	cache      cache.Latest
	hub        *feed.Hub
	metrics    *metrics.WebMetrics
	now        func() time.Time
	config     *ServerConfig
	handler    http.Handler
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger
	Store  Store
	Auth   Authenticator

	// Ingest serves GET /api/data. The route is absent when nil.
	Ingest http.Handler
	// Cache is the latest-reading cache for the volunteer overview. Optional.
	Cache cache.Latest
	// Hub delivers change events to event streams. A private hub is created when nil, in
	// which case streams rely on polling alone.
	Hub *feed.Hub

	Now func() time.Time

	// HTTP server configuration
	HTTPPort int

	QueryTimeout    time.Duration
	RefreshInterval time.Duration
	SecureCookies   bool
}

// NewServer creates a new portal Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}

	if cfg.Auth == nil {
		return nil, errors.New("authenticator cannot be nil")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}

	s := &Server{
		logger: cfg.Logger.With("component", "web"),
		store:  cfg.Store,
		auth:   cfg.Auth,
		ingest: cfg.Ingest,
		cache:  cfg.Cache,
		hub:    cfg.Hub,
		now:    cfg.Now,
		config: cfg,
	}
	if s.hub == nil {
		s.hub = feed.NewHub(cfg.Logger)
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}

	return s, nil
}

// SetMetrics sets the metrics collector for this server.
// This should be called before Handler or Run.
func (s *Server) SetMetrics(m *metrics.WebMetrics) {
	s.metrics = m
}

// Handler returns the instrumented route tree.
func (s *Server) Handler() http.Handler {
	if s.handler == nil {
		s.handler = s.instrument(s.setupRoutes())
	}
	return s.handler
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting web server")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	// Start HTTP server in goroutine
	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("web server started successfully")

	// Wait for shutdown signal or HTTP error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server. Open event streams end with the Run context.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down web server")

	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown HTTP server", "error", err)
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("web server shutdown completed successfully")
	return nil
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Operations
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	if s.ingest != nil {
		mux.Handle("GET /api/data", s.ingest)
	}

	// Authentication
	mux.HandleFunc("GET /auth", s.handleAuthPage(patientFlow))
	mux.HandleFunc("POST /auth/signin", s.handleSignIn(patientFlow))
	mux.HandleFunc("POST /auth/signup", s.handleSignUp(patientFlow))
	mux.HandleFunc("GET /volunteer/auth", s.handleAuthPage(volunteerFlow))
	mux.HandleFunc("POST /volunteer/auth/signin", s.handleSignIn(volunteerFlow))
	mux.HandleFunc("POST /volunteer/auth/signup", s.handleSignUp(volunteerFlow))
	mux.HandleFunc("GET /logout", s.handleLogout)
	mux.HandleFunc("POST /logout", s.handleLogout)

	// Patient portal
	mux.HandleFunc("GET /dashboard", s.requireRole(store.RolePatient, s.handleDashboard))
	mux.HandleFunc("GET /dashboard/live", s.requireRole(store.RolePatient, s.handleDashboardLive))
	mux.HandleFunc("GET /events", s.requireRole(store.RolePatient, s.handlePatientEvents))
	mux.HandleFunc("GET /dashboard/analytics", s.requireRole(store.RolePatient, s.handleAnalytics))
	mux.HandleFunc("GET /dashboard/analytics/export.csv", s.requireRole(store.RolePatient, s.handleExport(exportCSV)))
	mux.HandleFunc("GET /dashboard/analytics/export.xlsx", s.requireRole(store.RolePatient, s.handleExport(exportXLSX)))
	mux.HandleFunc("GET /dashboard/profile", s.requireRole(store.RolePatient, s.handleProfile))
	mux.HandleFunc("POST /dashboard/profile", s.requireRole(store.RolePatient, s.handleSaveProfile))

	// Volunteer portal
	mux.HandleFunc("GET /volunteer/dashboard", s.requireRole(store.RoleVolunteer, s.handleVolunteerDashboard))
	mux.HandleFunc("GET /volunteer/dashboard/live", s.requireRole(store.RoleVolunteer, s.handleVolunteerLive))
	mux.HandleFunc("GET /volunteer/events", s.requireRole(store.RoleVolunteer, s.handleVolunteerEvents))
	mux.HandleFunc("POST /volunteer/assignments", s.requireRole(store.RoleVolunteer, s.handleAssign))
	mux.HandleFunc("DELETE /volunteer/assignments/{userID}", s.requireRole(store.RoleVolunteer, s.handleUnassign))

	// Index page (catch-all, must be last)
	mux.HandleFunc("GET /{$}", s.handleIndex)

	return mux
}

// handleHealth serves health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	body := `{"status":"ok"}`
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		body = `{"status":"unavailable"}`
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("failed to write health response", "error", err)
	}
}
