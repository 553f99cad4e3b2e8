// Package mock provides an in-memory stand-in for the change-feed broker client.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/vitals/pkg/mq"
)

// queueSize is the buffer of the in-memory queue bound to the mock exchange.
const queueSize = 64

// MockClient behaves like a fanout client whose own queue is bound to the exchange. With
// Loopback set, every successful Push is also delivered to Consume, the way a process sees
// its own events on a fanout exchange.
type MockClient struct {
	mu sync.Mutex

	// Exchange names the fanout exchange the client pretends to publish to.
	Exchange string
	// Loopback delivers confirmed pushes to the client's own queue.
	Loopback bool

	// PushFunc is called when Push is invoked. If nil, returns PushError.
	PushFunc func(ctx context.Context, data []byte) error
	// PushError is returned by Push if PushFunc is nil.
	PushError error
	// PushCalls tracks all calls to Push with their arguments.
	PushCalls []PushCall

	// UnsafePushError is returned by UnsafePush.
	UnsafePushError error
	// UnsafePushCalls tracks all calls to UnsafePush with their arguments.
	UnsafePushCalls []PushCall

	// ConsumeChannel is returned by Consume. It defaults to the mock's own queue; a test
	// that replaces it feeds deliveries itself.
	ConsumeChannel <-chan amqp.Delivery
	// ConsumeError is returned by Consume.
	ConsumeError error
	// ConsumeCalls tracks the number of times Consume was called.
	ConsumeCalls int

	// Ready is returned by IsReady.
	Ready bool

	// CloseError is returned by Close.
	CloseError error
	// CloseCalls tracks the number of times Close was called.
	CloseCalls int

	queue chan amqp.Delivery
	tag   uint64
}

// PushCall records the arguments to a Push or UnsafePush call.
type PushCall struct {
	Ctx  context.Context
	Data []byte
}

// NewMockClient creates a ready client for the named exchange with an empty queue.
func NewMockClient() *MockClient {
	queue := make(chan amqp.Delivery, queueSize)
	return &MockClient{
		Exchange:       "vitals.changes",
		ConsumeChannel: queue,
		Ready:          true,
		queue:          queue,
	}
}

// Push implements ClientInterface.
func (m *MockClient) Push(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PushCalls = append(m.PushCalls, PushCall{Ctx: ctx, Data: data})

	err := m.PushError
	if m.PushFunc != nil {
		err = m.PushFunc(ctx, data)
	}
	if err == nil && m.Loopback {
		m.deliverLocked(data)
	}
	return err
}

// UnsafePush implements ClientInterface.
func (m *MockClient) UnsafePush(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnsafePushCalls = append(m.UnsafePushCalls, PushCall{Ctx: ctx, Data: data})
	return m.UnsafePushError
}

// Deliver puts body on the client's queue as if another process had published it to the
// exchange. It drops the message when the queue is full.
func (m *MockClient) Deliver(body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliverLocked(body)
}

func (m *MockClient) deliverLocked(body []byte) {
	m.tag++
	select {
	case m.queue <- amqp.Delivery{
		Exchange:    m.Exchange,
		DeliveryTag: m.tag,
		ContentType: "application/x-protobuf",
		Body:        body,
	}:
	default:
	}
}

// Consume implements ClientInterface.
func (m *MockClient) Consume() (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConsumeCalls++
	if m.ConsumeError != nil {
		return nil, m.ConsumeError
	}
	return m.ConsumeChannel, nil
}

// IsReady implements ClientInterface.
func (m *MockClient) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Ready
}

// Pushed returns a copy of every payload passed to Push, in call order.
func (m *MockClient) Pushed() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.PushCalls))
	for i, c := range m.PushCalls {
		out[i] = c.Data
	}
	return out
}

// Close implements ClientInterface.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CloseCalls++
	return m.CloseError
}

// Reset clears all tracked calls.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PushCalls = nil
	m.UnsafePushCalls = nil
	m.ConsumeCalls = 0
	m.CloseCalls = 0
}

var _ mq.ClientInterface = (*MockClient)(nil)
