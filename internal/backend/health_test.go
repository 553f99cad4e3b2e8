package backend_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"procodus.dev/vitals/internal/backend"
)

var _ = Describe("HealthReporter", func() {
	var (
		ctx      context.Context
		server   *health.Server
		reporter *backend.HealthReporter
		dbErr    error
		cacheErr error
	)

	status := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := server.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		Expect(err).NotTo(HaveOccurred())
		return resp.GetStatus()
	}

	BeforeEach(func() {
		ctx = context.Background()
		dbErr, cacheErr = nil, nil
		server = health.NewServer()
		logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		reporter = backend.NewHealthReporter(server, logger)
		reporter.AddCheck(backend.ServiceDatabase, func(context.Context) error { return dbErr })
		reporter.AddCheck(backend.ServiceCache, func(context.Context) error { return cacheErr })
	})

	It("should start as NOT_SERVING", func() {
		Expect(status(backend.ServiceOverall)).To(Equal(healthpb.HealthCheckResponse_NOT_SERVING))
		Expect(status(backend.ServiceDatabase)).To(Equal(healthpb.HealthCheckResponse_NOT_SERVING))
	})

	It("should report SERVING once every check passes", func() {
		reporter.Check(ctx)
		Expect(status(backend.ServiceOverall)).To(Equal(healthpb.HealthCheckResponse_SERVING))
		Expect(status(backend.ServiceDatabase)).To(Equal(healthpb.HealthCheckResponse_SERVING))
		Expect(status(backend.ServiceCache)).To(Equal(healthpb.HealthCheckResponse_SERVING))
	})

	It("should keep the service SERVING when only the cache fails", func() {
		cacheErr = errors.New("connection refused")
		reporter.Check(ctx)
		Expect(status(backend.ServiceOverall)).To(Equal(healthpb.HealthCheckResponse_SERVING))
		Expect(status(backend.ServiceCache)).To(Equal(healthpb.HealthCheckResponse_NOT_SERVING))
	})

	It("should report NOT_SERVING when the database fails", func() {
		reporter.Check(ctx)
		dbErr = errors.New("connection reset")
		reporter.Check(ctx)
		Expect(status(backend.ServiceOverall)).To(Equal(healthpb.HealthCheckResponse_NOT_SERVING))
		Expect(status(backend.ServiceDatabase)).To(Equal(healthpb.HealthCheckResponse_NOT_SERVING))
	})

	It("should stay NOT_SERVING after shutdown", func() {
		reporter.Check(ctx)
		reporter.Shutdown()
		reporter.Check(ctx)
		Expect(status(backend.ServiceOverall)).To(Equal(healthpb.HealthCheckResponse_NOT_SERVING))
		Expect(status(backend.ServiceDatabase)).To(Equal(healthpb.HealthCheckResponse_NOT_SERVING))
	})

	It("should re-check on every tick until the context ends", func() {
		watchCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			reporter.Watch(watchCtx, 10*time.Millisecond)
		}()

		Eventually(func() healthpb.HealthCheckResponse_ServingStatus {
			return status(backend.ServiceOverall)
		}).Should(Equal(healthpb.HealthCheckResponse_SERVING))

		cancel()
		Eventually(done).Should(BeClosed())
	})
})
