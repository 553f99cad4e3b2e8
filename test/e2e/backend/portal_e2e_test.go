package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/vitals/internal/seed"
	"procodus.dev/vitals/internal/simulator"
	"procodus.dev/vitals/pkg/vitals"
)

var _ = Describe("Portal E2E", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("as a patient", func() {
		It("should sign up, see new readings on the dashboard and export them", func() {
			client := newHTTPClient()
			email := fmt.Sprintf("patient-%d@example.com", time.Now().UnixNano())

			resp, err := client.R().
				SetFormData(map[string]string{"name": "E2E Patient", "email": email, "password": "secret123"}).
				Post("/auth/signup")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode()).To(Equal(http.StatusOK))
			Expect(resp.RawResponse.Request.URL.Path).To(Equal("/dashboard"))
			Expect(resp.String()).To(ContainSubstring("Hello, E2E Patient"))
			Expect(resp.String()).To(ContainSubstring("No readings yet"))

			u, err := testStore.UserByEmail(ctx, email)
			Expect(err).NotTo(HaveOccurred())

			sender, err := simulator.NewHTTPSender(baseURL, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(sender.Send(ctx, vitals.Reading{DeviceID: "e2e-portal-001", UserID: u.ID, HR: 131, Temp: 38.4, SpO2: 91})).To(Succeed())

			Eventually(func() string {
				resp, err := client.R().Get("/dashboard/live")
				Expect(err).NotTo(HaveOccurred())
				return resp.String()
			}, "5s", "200ms").Should(And(ContainSubstring("e2e-portal-001"), ContainSubstring("status-danger")))

			resp, err = client.R().SetQueryParam("range", "1h").Get("/dashboard/analytics/export.csv")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode()).To(Equal(http.StatusOK))
			lines := strings.Split(resp.String(), "\n")
			Expect(lines).To(HaveLen(2))
			Expect(lines[0]).To(Equal("device_id,hr,temp,spo2,bp_sys,bp_dia,created_at"))
			Expect(lines[1]).To(HavePrefix("e2e-portal-001,131,38.4,91,"))
		})

		It("should refuse the dashboard without a session", func() {
			resp, err := newHTTPClient().R().Get("/dashboard")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.RawResponse.Request.URL.Path).To(Equal("/auth"))
		})

		It("should reject a wrong password for the demo patient", func() {
			_, _, err := seeder.EnsureDemoUser(ctx)
			Expect(err).NotTo(HaveOccurred())

			resp, err := newHTTPClient().R().
				SetFormData(map[string]string{"email": seed.DemoEmail, "password": "wrong-password"}).
				Post("/auth/signin")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode()).To(Equal(http.StatusUnauthorized))
			Expect(resp.String()).To(ContainSubstring("invalid email or password"))
		})
	})

	Context("as a volunteer", func() {
		It("should see the latest reading of every patient", func() {
			demo, _, err := seeder.EnsureDemoUser(ctx)
			Expect(err).NotTo(HaveOccurred())

			sender, err := simulator.NewHTTPSender(baseURL, 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(sender.Send(ctx, vitals.Reading{DeviceID: "e2e-volunteer-001", UserID: demo.ID, HR: 76, Temp: 36.8, SpO2: 98})).To(Succeed())

			client := newHTTPClient()
			email := fmt.Sprintf("volunteer-%d@example.com", time.Now().UnixNano())
			resp, err := client.R().
				SetFormData(map[string]string{"name": "E2E Volunteer", "email": email, "password": "secret123"}).
				Post("/volunteer/auth/signup")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode()).To(Equal(http.StatusOK))
			Expect(resp.RawResponse.Request.URL.Path).To(Equal("/volunteer/dashboard"))

			Eventually(func() string {
				resp, err := client.R().Get("/volunteer/dashboard/live")
				Expect(err).NotTo(HaveOccurred())
				return resp.String()
			}, "5s", "200ms").Should(And(ContainSubstring(seed.DemoFullName), ContainSubstring("e2e-volunteer-001")))
		})
	})
})
