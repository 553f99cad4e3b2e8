package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"procodus.dev/vitals/pkg/metrics"
	"procodus.dev/vitals/pkg/mq"
)

// Publisher announces stored readings.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LocalPublisher broadcasts straight into a hub. It is used when no broker is configured.
type LocalPublisher struct {
	Hub *Hub
}

// Publish implements Publisher.
func (p LocalPublisher) Publish(_ context.Context, e Event) error {
	p.Hub.Broadcast(e)
	if p.Hub.metrics != nil {
		p.Hub.metrics.EventsPublished.WithLabelValues("local", metrics.StatusSuccess).Inc()
	}
	return nil
}

// DefaultPublishTimeout bounds how long a broker publish may hold up ingestion.
const DefaultPublishTimeout = 2 * time.Second

// AMQPPublisher publishes events on a RabbitMQ fanout exchange. Every instance running a
// Bridge receives them, including this one.
type AMQPPublisher struct {
	client  mq.ClientInterface
	local   *Hub
	logger  *slog.Logger
	metrics *metrics.FeedMetrics
	timeout time.Duration
}

// NewAMQPPublisher creates a publisher on client. When local is non-nil, events that fail
// to reach the broker are still broadcast to this process.
func NewAMQPPublisher(client mq.ClientInterface, local *Hub, logger *slog.Logger) (*AMQPPublisher, error) {
	if client == nil {
		return nil, errors.New("mq client cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &AMQPPublisher{
		client:  client,
		local:   local,
		logger:  logger.With("component", "feed_publisher"),
		timeout: DefaultPublishTimeout,
	}, nil
}

// SetMetrics sets the optional metrics collector.
func (p *AMQPPublisher) SetMetrics(m *metrics.FeedMetrics) {
	p.metrics = m
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	data, err := e.Marshal()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.client.Push(ctx, data)
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues("amqp", metrics.StatusLabel(err)).Inc()
	}
	if err != nil {
		if p.local != nil {
			p.local.Broadcast(e)
		}
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

var (
	_ Publisher = LocalPublisher{}
	_ Publisher = (*AMQPPublisher)(nil)
)
