package mq_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/vitals/pkg/metrics"
	"procodus.dev/vitals/pkg/mq"
	"procodus.dev/vitals/pkg/mq/mock"
)

const unreachable = "amqp://invalid:5672"

var mqMetrics = metrics.NewMQMetrics("mq_test")

var _ = Describe("MQ Client", func() {
	var (
		logger *slog.Logger
	)

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	Describe("New", func() {
		It("should create a queue client that is not ready yet", func() {
			client := mq.New("vitals-test", unreachable, logger)
			defer func() { _ = client.Close() }()

			Expect(client).NotTo(BeNil())
			Expect(client.IsReady()).To(BeFalse())
			Expect(client.QueueName()).To(Equal("vitals-test"))
		})

		It("should create a fanout client without a queue name", func() {
			client := mq.NewFanout("vitals.readings", unreachable, logger)
			defer func() { _ = client.Close() }()

			Expect(client.IsReady()).To(BeFalse())
			Expect(client.QueueName()).To(BeEmpty())
		})
	})

	Describe("Push", func() {
		Context("when not connected", func() {
			It("should retry with backoff until the context ends", func() {
				client := mq.NewFanout("vitals.readings", unreachable, logger)
				defer func() { _ = client.Close() }()

				ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
				defer cancel()

				start := time.Now()
				err := client.Push(ctx, []byte("event"))

				Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
				Expect(time.Since(start)).To(BeNumerically(">=", 100*time.Millisecond))
			})

			It("should return error after max retry attempts", func() {
				client := mq.New("vitals-test", unreachable, logger)
				defer func() { _ = client.Close() }()

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				start := time.Now()
				err := client.Push(ctx, []byte("event"))
				elapsed := time.Since(start)

				Expect(err).To(MatchError(ContainSubstring("maximum retry attempts exceeded")))
				// 100ms + 200ms + 400ms + 800ms + 1600ms of backoff.
				Expect(elapsed).To(BeNumerically(">=", 3*time.Second))
				Expect(elapsed).To(BeNumerically("<", 10*time.Second))
			})

			It("should stop retrying once the client is closed", func() {
				client := mq.New("vitals-test", unreachable, logger)

				errs := make(chan error, 1)
				go func() { errs <- client.Push(context.Background(), []byte("event")) }()

				time.Sleep(50 * time.Millisecond)
				Expect(client.Close()).To(Succeed())
				Eventually(errs).Should(Receive(MatchError(ContainSubstring("shutting down"))))
			})

			It("should fail UnsafePush immediately", func() {
				client := mq.New("vitals-test", unreachable, logger)
				defer func() { _ = client.Close() }()

				err := client.UnsafePush(context.Background(), []byte("event"))
				Expect(errors.Is(err, mq.ErrNotConnected)).To(BeTrue())
			})
		})
	})

	Describe("Consume", func() {
		It("should return error when not connected", func() {
			client := mq.NewFanout("vitals.readings", unreachable, logger)
			defer func() { _ = client.Close() }()

			_, err := client.Consume()
			Expect(err).To(MatchError(ContainSubstring("not connected")))
		})
	})

	Describe("metrics", func() {
		It("should label subscribe failures with the exchange and role", func() {
			const exchange = "vitals.metrics-test"
			client := mq.NewFanout(exchange, unreachable, logger)
			client.SetMetrics(mqMetrics)
			defer func() { _ = client.Close() }()

			_, err := client.Consume()
			Expect(err).To(HaveOccurred())
			Expect(testutil.ToFloat64(mqMetrics.Failures.WithLabelValues(exchange, metrics.RoleSubscribe, "not_connected"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(mqMetrics.Operations.WithLabelValues(exchange, metrics.RoleSubscribe))).To(BeZero())

			_, err = client.Consume()
			Expect(err).To(HaveOccurred())
			Expect(testutil.ToFloat64(mqMetrics.Failures.WithLabelValues(exchange, metrics.RoleSubscribe, "not_connected"))).To(Equal(2.0))
		})

		It("should count a publish cancelled before confirmation", func() {
			const exchange = "vitals.metrics-cancel"
			client := mq.NewFanout(exchange, unreachable, logger)
			client.SetMetrics(mqMetrics)
			defer func() { _ = client.Close() }()

			ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
			defer cancel()
			Expect(client.Push(ctx, []byte("event"))).NotTo(Succeed())
			Expect(testutil.ToFloat64(mqMetrics.Operations.WithLabelValues(exchange, metrics.RolePublish))).To(BeZero())
		})
	})

	Describe("Close", func() {
		It("should succeed while disconnected and when repeated", func() {
			client := mq.New("vitals-test", unreachable, logger)
			time.Sleep(50 * time.Millisecond)

			Expect(client.Close()).To(Succeed())
			Expect(client.Close()).To(Succeed())
		})

		It("should handle concurrent Close attempts safely", func() {
			client := mq.New("vitals-test", unreachable, logger)

			done := make(chan bool, 3)
			for range 3 {
				go func() {
					_ = client.Close()
					done <- true
				}()
			}

			for range 3 {
				Eventually(done).Should(Receive())
			}
		})
	})
})

var _ = Describe("MockClient", func() {
	It("should record pushes in order", func() {
		m := mock.NewMockClient()

		Expect(m.Push(context.Background(), []byte("a"))).To(Succeed())
		Expect(m.Push(context.Background(), []byte("b"))).To(Succeed())

		Expect(m.Pushed()).To(Equal([][]byte{[]byte("a"), []byte("b")}))
		Expect(m.IsReady()).To(BeTrue())
	})

	It("should return the configured error", func() {
		m := mock.NewMockClient()
		m.PushError = errors.New("broker down")

		Expect(m.Push(context.Background(), nil)).To(MatchError("broker down"))

		m.Reset()
		Expect(m.PushCalls).To(BeEmpty())
	})

	It("should echo confirmed pushes to its own queue in loopback mode", func() {
		m := mock.NewMockClient()
		m.Loopback = true

		deliveries, err := m.Consume()
		Expect(err).NotTo(HaveOccurred())

		Expect(m.Push(context.Background(), []byte("event"))).To(Succeed())
		var d amqp.Delivery
		Eventually(deliveries).Should(Receive(&d))
		Expect(d.Exchange).To(Equal(m.Exchange))
		Expect(d.Body).To(Equal([]byte("event")))

		m.PushError = errors.New("broker down")
		Expect(m.Push(context.Background(), []byte("lost"))).NotTo(Succeed())
		Consistently(deliveries, 50*time.Millisecond).ShouldNot(Receive())
	})
})
