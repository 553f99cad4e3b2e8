package ingest_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/ingest"
	"procodus.dev/vitals/pkg/metrics"
)

var (
	discard       = slog.New(slog.NewJSONHandler(io.Discard, nil))
	ingestMetrics = metrics.NewIngestMetrics("ingest_test")
	fixedNow      = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newService(st *fakeStore, c *fakeCache, p *fakePublisher) *ingest.Service {
	cfg := &ingest.Config{
		Store:   st,
		Logger:  discard,
		Metrics: ingestMetrics,
		Now:     func() time.Time { return fixedNow },
	}
	if c != nil {
		cfg.Cache = c
	}
	if p != nil {
		cfg.Publisher = p
	}
	svc, err := ingest.NewService(cfg)
	Expect(err).NotTo(HaveOccurred())
	return svc
}

var _ = Describe("Service", func() {
	var (
		ctx context.Context
		st  *fakeStore
		c   *fakeCache
		p   *fakePublisher
		svc *ingest.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = &fakeStore{}
		c = &fakeCache{}
		p = &fakePublisher{}
		svc = newService(st, c, p)
	})

	Describe("NewService", func() {
		It("should reject a nil config", func() {
			_, err := ingest.NewService(nil)
			Expect(err).To(MatchError(ContainSubstring("config cannot be nil")))
		})

		It("should require a store", func() {
			_, err := ingest.NewService(&ingest.Config{Logger: discard})
			Expect(err).To(MatchError(ContainSubstring("store cannot be nil")))
		})

		It("should require a logger", func() {
			_, err := ingest.NewService(&ingest.Config{Store: st})
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
		})
	})

	Describe("Ingest", func() {
		It("should estimate blood pressure and write exactly one row", func() {
			row, err := svc.Ingest(ctx, ingest.Request{DeviceID: "device-001", UserID: "user-1", HR: 60, Temp: 36.6, SpO2: 100})
			Expect(err).NotTo(HaveOccurred())

			Expect(st.Rows()).To(HaveLen(1))
			Expect(row.Systolic).To(Equal(90))
			Expect(row.Diastolic).To(Equal(60))
			Expect(row.CreatedAt).To(Equal(fixedNow))
		})

		It("should update the cache and announce the reading", func() {
			_, err := svc.Ingest(ctx, ingest.Request{DeviceID: "device-001", UserID: "user-1", HR: 90, Temp: 36.8, SpO2: 95})
			Expect(err).NotTo(HaveOccurred())

			Expect(c.puts).To(HaveLen(1))
			Expect(c.puts[0].Systolic).To(Equal(120))
			Expect(c.puts[0].Diastolic).To(Equal(76))
			Expect(p.events).To(HaveLen(1))
			Expect(p.events[0].UserID).To(Equal("user-1"))
			Expect(p.events[0].DeviceID).To(Equal("device-001"))
		})

		It("should keep plausible device-supplied blood pressure", func() {
			row, err := svc.Ingest(ctx, ingest.Request{
				DeviceID: "device-001", UserID: "user-1", HR: 72, Temp: 36.6, SpO2: 98,
				Systolic: 118, Diastolic: 79,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(row.Systolic).To(Equal(118))
			Expect(row.Diastolic).To(Equal(79))
		})

		It("should reject implausible device-supplied blood pressure", func() {
			_, err := svc.Ingest(ctx, ingest.Request{
				DeviceID: "device-001", UserID: "user-1", HR: 72, Temp: 36.6, SpO2: 98,
				Systolic: 250, Diastolic: 79,
			})
			Expect(apperr.Is(err, apperr.KindValidation)).To(BeTrue())
			Expect(st.Rows()).To(BeEmpty())
		})

		DescribeTable("should reject without writing",
			func(req ingest.Request) {
				_, err := svc.Ingest(ctx, req)
				Expect(apperr.Is(err, apperr.KindValidation)).To(BeTrue())
				Expect(st.Rows()).To(BeEmpty())
				Expect(c.puts).To(BeEmpty())
				Expect(p.events).To(BeEmpty())
			},
			Entry("missing device", ingest.Request{UserID: "user-1", HR: 72, Temp: 36.6, SpO2: 98}),
			Entry("missing user", ingest.Request{DeviceID: "device-001", HR: 72, Temp: 36.6, SpO2: 98}),
			Entry("zero heart rate", ingest.Request{DeviceID: "device-001", UserID: "user-1", Temp: 36.6, SpO2: 98}),
			Entry("heart rate too high", ingest.Request{DeviceID: "device-001", UserID: "user-1", HR: 201, Temp: 36.6, SpO2: 98}),
			Entry("spo2 too low", ingest.Request{DeviceID: "device-001", UserID: "user-1", HR: 72, Temp: 36.6, SpO2: 69}),
			Entry("temperature too low", ingest.Request{DeviceID: "device-001", UserID: "user-1", HR: 72, Temp: 29.9, SpO2: 98}),
		)

		It("should report store failures as persistence errors", func() {
			st.err = errors.New("connection refused")

			_, err := svc.Ingest(ctx, ingest.Request{DeviceID: "device-001", UserID: "user-1", HR: 72, Temp: 36.6, SpO2: 98})
			Expect(apperr.Is(err, apperr.KindPersistence)).To(BeTrue())
			Expect(c.puts).To(BeEmpty())
			Expect(p.events).To(BeEmpty())
		})

		It("should succeed when the cache and feed fail", func() {
			c.err = errors.New("redis down")
			p.err = errors.New("broker down")

			_, err := svc.Ingest(ctx, ingest.Request{DeviceID: "device-001", UserID: "user-1", HR: 72, Temp: 36.6, SpO2: 98})
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Rows()).To(HaveLen(1))
		})

		It("should work without cache and publisher", func() {
			bare := newService(st, nil, nil)
			_, err := bare.Ingest(ctx, ingest.Request{DeviceID: "device-001", UserID: "user-1", HR: 72, Temp: 36.6, SpO2: 98})
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
