package feed_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/vitals/internal/feed"
	"procodus.dev/vitals/pkg/mq/mock"
)

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

var _ = Describe("Event", func() {
	It("should survive the wire encoding", func() {
		e := feed.Event{
			UserID:    "user-1",
			DeviceID:  "device-001",
			CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 123, time.UTC),
		}
		data, err := e.Marshal()
		Expect(err).NotTo(HaveOccurred())

		got, err := feed.UnmarshalEvent(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.UserID).To(Equal(e.UserID))
		Expect(got.DeviceID).To(Equal(e.DeviceID))
		Expect(got.CreatedAt.Equal(e.CreatedAt)).To(BeTrue())
	})

	It("should reject garbage and events without a user", func() {
		_, err := feed.UnmarshalEvent([]byte{0xff, 0xff, 0xff})
		Expect(err).To(HaveOccurred())

		data, err := feed.Event{DeviceID: "device-001"}.Marshal()
		Expect(err).NotTo(HaveOccurred())
		_, err = feed.UnmarshalEvent(data)
		Expect(err).To(MatchError(ContainSubstring("user_id")))
	})
})

var _ = Describe("Hub", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		hub    *feed.Hub
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		hub = feed.NewHub(discard)
	})

	AfterEach(func() {
		cancel()
	})

	It("should only trigger subscriptions for the event's user", func() {
		mine := hub.Subscribe(ctx, feed.Options{UserID: "user-1"})
		all := hub.Subscribe(ctx, feed.Options{})

		hub.Broadcast(feed.Event{UserID: "user-2"})

		Eventually(all.C()).Should(Receive())
		Consistently(mine.C(), 50*time.Millisecond).ShouldNot(Receive())

		hub.Broadcast(feed.Event{UserID: "user-1"})
		Eventually(mine.C()).Should(Receive())
	})

	It("should coalesce pending triggers", func() {
		sub := hub.Subscribe(ctx, feed.Options{})
		for range 5 {
			hub.Broadcast(feed.Event{UserID: "user-1"})
		}

		Eventually(sub.C()).Should(Receive())
		Consistently(sub.C(), 50*time.Millisecond).ShouldNot(Receive())
	})

	It("should trigger on the poll interval without events", func() {
		sub := hub.Subscribe(ctx, feed.Options{PollInterval: 10 * time.Millisecond})
		Eventually(sub.C()).Should(Receive())
		Eventually(sub.C()).Should(Receive())
	})

	It("should end the subscription when the context is cancelled", func() {
		subCtx, subCancel := context.WithCancel(ctx)
		sub := hub.Subscribe(subCtx, feed.Options{})
		Expect(hub.Len()).To(Equal(1))

		subCancel()
		Eventually(sub.Done()).Should(BeClosed())
		Expect(hub.Len()).To(BeZero())

		sub.Close()
	})
})

var _ = Describe("Run", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		hub    *feed.Hub
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		hub = feed.NewHub(discard)
	})

	AfterEach(func() {
		cancel()
	})

	It("should fetch once up front and once per trigger without overlap", func() {
		sub := hub.Subscribe(ctx, feed.Options{})

		var calls, inFlight, overlaps atomic.Int32
		fetch := func(context.Context) error {
			if inFlight.Add(1) > 1 {
				overlaps.Add(1)
			}
			defer inFlight.Add(-1)
			calls.Add(1)
			time.Sleep(5 * time.Millisecond)
			return nil
		}

		done := make(chan error, 1)
		go func() { done <- feed.Run(ctx, sub, fetch) }()

		Eventually(calls.Load).Should(Equal(int32(1)))
		for range 10 {
			hub.Broadcast(feed.Event{UserID: "user-1"})
			time.Sleep(time.Millisecond)
		}
		Eventually(calls.Load).Should(BeNumerically(">=", 2))

		sub.Close()
		Eventually(done).Should(Receive(BeNil()))
		Expect(overlaps.Load()).To(BeZero())
	})

	It("should stop at the first fetch error", func() {
		sub := hub.Subscribe(ctx, feed.Options{})
		boom := errors.New("client went away")

		err := feed.Run(ctx, sub, func(context.Context) error { return boom })
		Expect(err).To(MatchError(boom))
	})
})

var _ = Describe("AMQPPublisher", func() {
	It("should push encoded events", func() {
		client := mock.NewMockClient()
		p, err := feed.NewAMQPPublisher(client, nil, discard)
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Publish(context.Background(), feed.Event{UserID: "user-1", DeviceID: "device-001"})).To(Succeed())

		pushed := client.Pushed()
		Expect(pushed).To(HaveLen(1))
		e, err := feed.UnmarshalEvent(pushed[0])
		Expect(err).NotTo(HaveOccurred())
		Expect(e.DeviceID).To(Equal("device-001"))
	})

	It("should fall back to the local hub when the broker fails", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		hub := feed.NewHub(discard)
		sub := hub.Subscribe(ctx, feed.Options{UserID: "user-1"})

		client := mock.NewMockClient()
		client.PushError = errors.New("broker down")
		p, err := feed.NewAMQPPublisher(client, hub, discard)
		Expect(err).NotTo(HaveOccurred())

		Expect(p.Publish(ctx, feed.Event{UserID: "user-1"})).To(MatchError(ContainSubstring("broker down")))
		Eventually(sub.C()).Should(Receive())
	})

	It("should require a client", func() {
		_, err := feed.NewAMQPPublisher(nil, nil, discard)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("LocalPublisher", func() {
	It("should broadcast into the hub", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		hub := feed.NewHub(discard)
		sub := hub.Subscribe(ctx, feed.Options{})

		Expect(feed.LocalPublisher{Hub: hub}.Publish(ctx, feed.Event{UserID: "user-1"})).To(Succeed())
		Eventually(sub.C()).Should(Receive())
	})
})

var _ = Describe("Bridge", func() {
	It("should re-broadcast consumed events and skip malformed ones", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		hub := feed.NewHub(discard)
		sub := hub.Subscribe(ctx, feed.Options{UserID: "user-1"})

		deliveries := make(chan amqp.Delivery, 2)
		client := mock.NewMockClient()
		client.ConsumeChannel = deliveries

		b, err := feed.NewBridge(client, hub, discard)
		Expect(err).NotTo(HaveOccurred())

		done := make(chan error, 1)
		go func() { done <- b.Run(ctx) }()

		deliveries <- amqp.Delivery{Body: []byte("not protobuf")}
		Consistently(sub.C(), 50*time.Millisecond).ShouldNot(Receive())

		data, err := feed.Event{UserID: "user-1", DeviceID: "device-001"}.Marshal()
		Expect(err).NotTo(HaveOccurred())
		deliveries <- amqp.Delivery{Body: data}
		Eventually(sub.C()).Should(Receive())

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})

	It("should relay events published by another process", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		hub := feed.NewHub(discard)
		sub := hub.Subscribe(ctx, feed.Options{UserID: "user-2"})

		client := mock.NewMockClient()
		b, err := feed.NewBridge(client, hub, discard)
		Expect(err).NotTo(HaveOccurred())
		go func() { _ = b.Run(ctx) }()

		data, err := feed.Event{UserID: "user-2", DeviceID: "device-002"}.Marshal()
		Expect(err).NotTo(HaveOccurred())
		client.Deliver(data)
		Eventually(sub.C()).Should(Receive())
	})

	It("should require a hub", func() {
		_, err := feed.NewBridge(mock.NewMockClient(), nil, discard)
		Expect(err).To(HaveOccurred())
	})
})
