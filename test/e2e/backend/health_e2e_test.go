package backend

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"procodus.dev/vitals/internal/backend"
)

var _ = Describe("Health E2E", func() {
	DescribeTable("should report every dependency as SERVING",
		func(service string) {
			Eventually(func() healthpb.HealthCheckResponse_ServingStatus {
				resp, err := healthClient.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
				if err != nil {
					return healthpb.HealthCheckResponse_UNKNOWN
				}
				return resp.GetStatus()
			}, "20s", "250ms").Should(Equal(healthpb.HealthCheckResponse_SERVING))
		},
		Entry("overall", backend.ServiceOverall),
		Entry("database", backend.ServiceDatabase),
		Entry("cache", backend.ServiceCache),
		Entry("feed", backend.ServiceFeed),
	)

	It("should answer the HTTP health endpoint", func() {
		resp, err := newHTTPClient().R().Get("/health")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode()).To(Equal(200))
		Expect(resp.String()).To(ContainSubstring(`"status":"ok"`))
	})

	It("should expose service metrics", func() {
		resp, err := newHTTPClient().R().Get("/metrics")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.String()).To(ContainSubstring("vitals_e2e_http_requests_total"))
	})
})
