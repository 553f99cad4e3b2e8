package ingest_test

import (
	"context"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/ingest"
)

var _ = Describe("MQTT ingestion", func() {
	var (
		st       *fakeStore
		listener *ingest.Listener
	)

	BeforeEach(func() {
		st = &fakeStore{}
		var err error
		listener, err = ingest.NewListener(newService(st, nil, nil), &ingest.MQTTConfig{Broker: "tcp://localhost:1883"}, discard)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should take the device id from the topic", func() {
		payload := []byte(`{"user_id":"user-1","hr":72,"temp":36.6,"spo2":98}`)
		Expect(listener.HandleMessage(context.Background(), ingest.Topic("device-007"), payload)).To(Succeed())

		rows := st.Rows()
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].DeviceID).To(Equal("device-007"))
		Expect(rows[0].Systolic).To(Equal(102))
	})

	It("should use supplied blood pressure", func() {
		payload := []byte(`{"user_id":"user-1","hr":72.6,"temp":36.6,"spo2":98,"bp_sys":121,"bp_dia":80}`)
		Expect(listener.HandleMessage(context.Background(), "wristband/device-001/vitals", payload)).To(Succeed())
		Expect(st.Rows()[0].HR).To(Equal(72))
		Expect(st.Rows()[0].Systolic).To(Equal(121))
	})

	It("should reject invalid vitals", func() {
		err := listener.HandleMessage(context.Background(), "wristband/device-001/vitals", []byte(`{"user_id":"user-1","hr":0}`))
		Expect(apperr.Is(err, apperr.KindValidation)).To(BeTrue())
		Expect(st.Rows()).To(BeEmpty())
	})

	It("should reject malformed payloads and topics", func() {
		Expect(listener.HandleMessage(context.Background(), "wristband/device-001/vitals", []byte(`{`))).NotTo(Succeed())
		Expect(listener.HandleMessage(context.Background(), "other/topic", []byte(`{}`))).NotTo(Succeed())
		Expect(st.Rows()).To(BeEmpty())
	})

	It("should require a broker", func() {
		_, err := ingest.NewListener(newService(st, nil, nil), &ingest.MQTTConfig{}, discard)
		Expect(err).To(MatchError(ContainSubstring("broker cannot be empty")))
	})

	Describe("Stop", func() {
		It("should be a no-op before Start", func() {
			listener.Stop()
		})

		It("should disconnect a client that never connected", func() {
			client := &fakeMQTTClient{connectErr: errors.New("connection refused")}
			listener.SetClientFactory(func(*mqtt.ClientOptions) mqtt.Client { return client })

			Expect(listener.Start(context.Background())).To(MatchError(ContainSubstring("connection refused")))
			listener.Stop()
			Expect(client.disconnects).To(Equal(1))
		})

		It("should disconnect a connected client", func() {
			client := &fakeMQTTClient{connected: true}
			listener.SetClientFactory(func(*mqtt.ClientOptions) mqtt.Client { return client })

			Expect(listener.Start(context.Background())).To(Succeed())
			listener.Stop()
			Expect(client.disconnects).To(Equal(1))
		})
	})

	DescribeTable("DeviceFromTopic",
		func(topic, want string) {
			Expect(ingest.DeviceFromTopic(topic)).To(Equal(want))
		},
		Entry("valid", "wristband/device-001/vitals", "device-001"),
		Entry("wrong prefix", "band/device-001/vitals", ""),
		Entry("too deep", "wristband/a/b/vitals", ""),
		Entry("wrong suffix", "wristband/device-001/status", ""),
	)
})

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeMQTTClient stubs the connection lifecycle. Other client methods are not used.
type fakeMQTTClient struct {
	mqtt.Client
	connectErr  error
	connected   bool
	disconnects int
}

func (c *fakeMQTTClient) Connect() mqtt.Token { return doneToken{err: c.connectErr} }
func (c *fakeMQTTClient) IsConnected() bool   { return c.connected }

func (c *fakeMQTTClient) Disconnect(uint) {
	c.disconnects++
	c.connected = false
}
