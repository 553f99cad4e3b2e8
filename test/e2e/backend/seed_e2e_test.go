package backend

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/vitals/internal/seed"
)

var _ = Describe("Seed E2E", func() {
	It("should create the demo patient once and append readings on every run", func() {
		ctx := context.Background()
		start := time.Now().UTC().Add(-3 * time.Hour)

		first, err := seeder.SeedDemo(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Inserted).To(Equal(len(seed.DemoReadings)))

		second, err := seeder.SeedDemo(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Created).To(BeFalse())
		Expect(second.UserID).To(Equal(first.UserID))

		rows, err := testStore.ListReadingsSince(ctx, first.UserID, start)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(rows)).To(BeNumerically(">=", 2*len(seed.DemoReadings)))
	})

	It("should let the demo patient sign in", func() {
		_, _, err := seeder.EnsureDemoUser(context.Background())
		Expect(err).NotTo(HaveOccurred())

		resp, err := newHTTPClient().R().
			SetFormData(map[string]string{"email": seed.DemoEmail, "password": seed.DemoPassword}).
			Post("/auth/signin")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.RawResponse.Request.URL.Path).To(Equal("/dashboard"))
		Expect(resp.String()).To(ContainSubstring("Hello, " + seed.DemoFullName))
	})

	It("should spread generated readings over the last day", func() {
		ctx := context.Background()
		res, err := seeder.SeedRandom(ctx, 48, 2, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Inserted).To(Equal(48))

		rows, err := testStore.ListReadingsSince(ctx, res.UserID, time.Now().UTC().Add(-25*time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(len(rows)).To(BeNumerically(">=", 48))
	})
})
