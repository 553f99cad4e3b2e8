package simulator_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/vitals/internal/ingest"
	"procodus.dev/vitals/internal/simulator"
	"procodus.dev/vitals/pkg/vitals"
)

var reading = vitals.Reading{
	DeviceID: "wb-0001",
	UserID:   "user-1",
	HR:       72,
	Temp:     36.6,
	SpO2:     98,
}

var _ = Describe("HTTPSender", func() {
	var (
		server *httptest.Server
		mu     sync.Mutex
		last   url.Values
		status int
		calls  atomic.Int32
	)

	BeforeEach(func() {
		status = http.StatusOK
		calls.Store(0)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			mu.Lock()
			last = r.URL.Query()
			mu.Unlock()

			Expect(r.URL.Path).To(Equal("/api/data"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			switch status {
			case http.StatusOK:
				_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
			case http.StatusBadRequest:
				_ = json.NewEncoder(w).Encode(map[string]any{"error": ingest.MsgInvalidRequest})
			default:
				_ = json.NewEncoder(w).Encode(map[string]any{"error": ingest.MsgDatabaseError})
			}
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("should reject an empty base URL", func() {
		_, err := simulator.NewHTTPSender("", time.Second)
		Expect(err).To(MatchError("base URL cannot be empty"))
	})

	It("should send vitals as query parameters", func() {
		sender, err := simulator.NewHTTPSender(server.URL, time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(sender.Transport()).To(Equal(simulator.TransportHTTP))

		Expect(sender.Send(context.Background(), reading)).To(Succeed())

		mu.Lock()
		defer mu.Unlock()
		Expect(last.Get("id")).To(Equal("wb-0001"))
		Expect(last.Get("user_id")).To(Equal("user-1"))
		Expect(last.Get("hr")).To(Equal("72"))
		Expect(last.Get("temp")).To(Equal("36.6"))
		Expect(last.Get("spo2")).To(Equal("98"))
		Expect(last).NotTo(HaveKey("bp_sys"))
	})

	It("should include blood pressure when the wristband measured it", func() {
		sender, _ := simulator.NewHTTPSender(server.URL, time.Second)
		r := reading
		r.Systolic, r.Diastolic = 118, 76
		Expect(sender.Send(context.Background(), r)).To(Succeed())

		mu.Lock()
		defer mu.Unlock()
		Expect(last.Get("bp_sys")).To(Equal("118"))
		Expect(last.Get("bp_dia")).To(Equal("76"))
	})

	It("should report a rejected reading without retrying", func() {
		status = http.StatusBadRequest
		sender, _ := simulator.NewHTTPSender(server.URL, time.Second)

		err := sender.Send(context.Background(), reading)
		Expect(err).To(MatchError(ContainSubstring("status: 400")))
		Expect(err).To(MatchError(ContainSubstring("Missing or invalid parameters")))
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("should retry server errors", func() {
		status = http.StatusInternalServerError
		sender, _ := simulator.NewHTTPSender(server.URL, time.Second)

		err := sender.Send(context.Background(), reading)
		Expect(err).To(MatchError(ContainSubstring("Database error")))
		Expect(calls.Load()).To(Equal(int32(3)))
	})

	It("should fail when the server is unreachable", func() {
		sender, _ := simulator.NewHTTPSender("http://127.0.0.1:1", 200*time.Millisecond)
		Expect(sender.Send(context.Background(), reading)).To(MatchError(ContainSubstring("failed to call ingestion endpoint")))
	})
})

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error, complete bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	payload []byte
	qos     byte
}

type fakePublisher struct {
	token *fakeToken
	sent  []published
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	p.sent = append(p.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return p.token
}

var _ = Describe("MQTTSender", func() {
	It("should publish the ingestion payload on the device topic", func() {
		pub := &fakePublisher{token: newToken(nil, true)}
		sender := simulator.NewMQTTSender(pub, 1)
		Expect(sender.Transport()).To(Equal(simulator.TransportMQTT))

		Expect(sender.Send(context.Background(), reading)).To(Succeed())
		Expect(pub.sent).To(HaveLen(1))
		Expect(pub.sent[0].topic).To(Equal("wristband/wb-0001/vitals"))
		Expect(pub.sent[0].qos).To(Equal(byte(1)))

		var p ingest.Payload
		Expect(json.Unmarshal(pub.sent[0].payload, &p)).To(Succeed())
		Expect(p).To(Equal(ingest.Payload{UserID: "user-1", HR: 72, Temp: 36.6, SpO2: 98}))
	})

	It("should return the publish error", func() {
		pub := &fakePublisher{token: newToken(errors.New("not connected"), true)}
		err := simulator.NewMQTTSender(pub, 0).Send(context.Background(), reading)
		Expect(err).To(MatchError(ContainSubstring("not connected")))
	})

	It("should stop waiting when the context ends", func() {
		pub := &fakePublisher{token: newToken(nil, false)}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		Expect(simulator.NewMQTTSender(pub, 0).Send(ctx, reading)).To(MatchError(context.DeadlineExceeded))
	})

	It("should validate the dial config", func() {
		_, _, err := simulator.DialMQTT(context.Background(), nil)
		Expect(err).To(MatchError("mqtt config cannot be nil"))
		_, _, err = simulator.DialMQTT(context.Background(), &simulator.MQTTConfig{})
		Expect(err).To(MatchError("mqtt broker cannot be empty"))
	})
})
