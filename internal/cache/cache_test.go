package cache_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/vitals/internal/cache"
	"procodus.dev/vitals/pkg/vitals"
)

var _ = Describe("Cache", func() {
	var (
		ctx context.Context
		mr  *miniredis.Miniredis
		c   *cache.Cache
		t0  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())

		client := cache.NewClient(&cache.Config{Addr: mr.Addr()})
		c, err = cache.New(client, "", slog.New(slog.NewJSONHandler(io.Discard, nil)))
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = c.Close()
		mr.Close()
	})

	It("should reject a nil client", func() {
		_, err := cache.New(nil, "", slog.Default())
		Expect(err).To(MatchError(ContainSubstring("redis client cannot be nil")))
	})

	It("should keep one entry per user and device", func() {
		Expect(c.Put(ctx, vitals.Reading{UserID: "u1", DeviceID: "d1", HR: 70, CreatedAt: t0})).To(Succeed())
		Expect(c.Put(ctx, vitals.Reading{UserID: "u1", DeviceID: "d1", HR: 75, CreatedAt: t0.Add(time.Minute)})).To(Succeed())
		Expect(c.Put(ctx, vitals.Reading{UserID: "u2", DeviceID: "d1", HR: 90, CreatedAt: t0.Add(30 * time.Second)})).To(Succeed())

		all, err := c.All(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
		Expect(all[0].HR).To(Equal(75))
		Expect(all[1].UserID).To(Equal("u2"))
		Expect(mr.HKeys(cache.DefaultKey)).To(ConsistOf("u1/d1", "u2/d1"))
	})

	It("should not replace a newer reading with an older one", func() {
		Expect(c.Put(ctx, vitals.Reading{UserID: "u1", DeviceID: "d1", HR: 75, CreatedAt: t0.Add(time.Minute)})).To(Succeed())
		Expect(c.Put(ctx, vitals.Reading{UserID: "u1", DeviceID: "d1", HR: 70, CreatedAt: t0})).To(Succeed())

		all, err := c.All(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(1))
		Expect(all[0].HR).To(Equal(75))
	})

	It("should keep the newest reading under concurrent writers", func() {
		const writers = 16
		var wg sync.WaitGroup
		for i := range writers {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				r := vitals.Reading{UserID: "u1", DeviceID: "d1", HR: 60 + i, CreatedAt: t0.Add(time.Duration(i) * time.Second)}
				Expect(c.Put(ctx, r)).To(Succeed())
			}(i)
		}
		wg.Wait()

		all, err := c.All(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(1))
		Expect(all[0].HR).To(Equal(60 + writers - 1))
	})

	It("should skip entries that do not decode", func() {
		mr.HSet(cache.DefaultKey, "u9/d9", "not json")
		Expect(c.Put(ctx, vitals.Reading{UserID: "u1", DeviceID: "d1", HR: 70, CreatedAt: t0})).To(Succeed())

		all, err := c.All(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(1))
	})

	It("should return an empty list after Clear", func() {
		Expect(c.Put(ctx, vitals.Reading{UserID: "u1", DeviceID: "d1", CreatedAt: t0})).To(Succeed())
		Expect(c.Clear(ctx)).To(Succeed())

		all, err := c.All(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(BeEmpty())
	})

	It("should report errors when Redis is down", func() {
		mr.Close()
		Expect(c.Put(ctx, vitals.Reading{UserID: "u1", DeviceID: "d1", CreatedAt: t0})).NotTo(Succeed())
		_, err := c.All(ctx)
		Expect(err).To(HaveOccurred())
	})
})
