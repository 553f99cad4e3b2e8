package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ClientInterface defines the interface for message queue operations.
// This interface enables easier testing through mocking and dependency injection.
type ClientInterface interface {
	// Push publishes data and waits for the broker's confirmation.
	Push(ctx context.Context, data []byte) error

	// UnsafePush publishes without waiting for confirmation.
	UnsafePush(ctx context.Context, data []byte) error

	// Consume returns the delivery stream of the client's queue. Deliveries must be acked or
	// nacked.
	Consume() (<-chan amqp.Delivery, error)

	// IsReady reports whether the client is connected.
	IsReady() bool

	// Close will cleanly shut down the channel and connection.
	Close() error
}

var _ ClientInterface = (*Client)(nil)
