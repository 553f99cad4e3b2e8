package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/vitals/pkg/metrics"
	"procodus.dev/vitals/pkg/mq"
)

const bridgeRetryDelay = 500 * time.Millisecond

// Bridge consumes broker events and re-broadcasts them into the local hub.
type Bridge struct {
	client  mq.ClientInterface
	hub     *Hub
	logger  *slog.Logger
	metrics *metrics.FeedMetrics
}

// NewBridge creates a bridge from client to hub.
func NewBridge(client mq.ClientInterface, hub *Hub, logger *slog.Logger) (*Bridge, error) {
	if client == nil {
		return nil, errors.New("mq client cannot be nil")
	}
	if hub == nil {
		return nil, errors.New("hub cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Bridge{client: client, hub: hub, logger: logger.With("component", "feed_bridge")}, nil
}

// SetMetrics sets the optional metrics collector.
func (b *Bridge) SetMetrics(m *metrics.FeedMetrics) {
	b.metrics = m
}

// Run consumes until ctx ends, re-subscribing whenever the delivery stream closes.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		if b.client.IsReady() {
			deliveries, err := b.client.Consume()
			if err != nil {
				b.logger.Warn("failed to start consuming events", "error", err)
			} else {
				b.logger.Info("consuming change events")
				b.drain(ctx, deliveries)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(bridgeRetryDelay):
		}
	}
}

// drain handles deliveries until the stream closes or ctx ends.
func (b *Bridge) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				b.logger.Info("event stream closed, re-subscribing")
				return
			}
			b.handle(d.Body)
			if err := d.Ack(false); err != nil {
				b.logger.Debug("failed to ack event", "error", err)
			}
		}
	}
}

func (b *Bridge) handle(body []byte) {
	e, err := UnmarshalEvent(body)
	if err != nil {
		b.logger.Warn("dropping malformed event", "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.EventsReceived.Inc()
	}
	b.hub.Broadcast(e)
}
