// Package mq provides a RabbitMQ client with automatic reconnection and error handling.
// A client either owns a named work queue or publishes to and listens on a fanout exchange.
package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/vitals/pkg/metrics"
)

// Client is a RabbitMQ client that handles connection management,
// automatic reconnection, and provides methods for publishing and consuming messages.
type Client struct {
	m               *sync.Mutex
	closeOnce       sync.Once
	logger          *slog.Logger
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan struct{}
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	metrics         atomic.Pointer[metrics.MQMetrics]
	exchange        string
	queueName       string
	contentType     string
	isReady         bool
}

const (
	// When reconnecting to the server after connection failure.
	reconnectDelay = 5 * time.Second

	// When setting up the channel after a channel exception.
	reInitDelay = 2 * time.Second

	initialBackoff    = 100 * time.Millisecond
	maxBackoff        = 10 * time.Second
	backoffMultiplier = 2
	maxRetryAttempts  = 5
)

var (
	errNotConnected       = errors.New("not connected to a server")
	errShutdown           = errors.New("client is shutting down")
	errMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
)

// ErrNotConnected is returned by UnsafePush and Consume while the client is reconnecting.
var ErrNotConnected = errNotConnected

// New creates a client bound to the named durable-less work queue and starts connecting in
// the background.
func New(queueName, addr string, l *slog.Logger) *Client {
	return start(&Client{queueName: queueName, contentType: "text/plain"}, addr, l)
}

// NewFanout creates a client for a fanout exchange. Pushes go to every bound queue. Consume
// reads from an exclusive server-named queue bound to the exchange; the queue is redeclared
// after every reconnect so each process keeps receiving its own copy of every message.
func NewFanout(exchange, addr string, l *slog.Logger) *Client {
	return start(&Client{exchange: exchange, contentType: "application/x-protobuf"}, addr, l)
}

func start(client *Client, addr string, l *slog.Logger) *Client {
	client.m = &sync.Mutex{}
	client.logger = l
	client.done = make(chan struct{})
	go client.handleReconnect(addr)
	return client
}

// SetMetrics sets the metrics collector for this client. Connection attempts made before
// the call are not counted.
func (client *Client) SetMetrics(m *metrics.MQMetrics) {
	client.metrics.Store(m)
}

// IsReady reports whether the client currently holds an open channel.
func (client *Client) IsReady() bool {
	client.m.Lock()
	defer client.m.Unlock()
	return client.isReady
}

// QueueName returns the queue consumed by this client. For fanout clients it is the
// server-assigned name and changes across reconnects.
func (client *Client) QueueName() string {
	client.m.Lock()
	defer client.m.Unlock()
	return client.queueName
}

func (client *Client) destination() string {
	if client.exchange != "" {
		return client.exchange
	}
	return client.queueName
}

// observe counts an operation of role on the client's exchange. An empty reason records a
// success.
func (client *Client) observe(role, reason string) {
	m := client.metrics.Load()
	if m == nil {
		return
	}
	if reason == "" {
		m.Operations.WithLabelValues(client.exchange, role).Inc()
		return
	}
	m.Failures.WithLabelValues(client.exchange, role, reason).Inc()
}

func (client *Client) setConnectionStatus(v float64) {
	if m := client.metrics.Load(); m != nil {
		m.ConnectionStatus.WithLabelValues(client.exchange).Set(v)
	}
}

func (client *Client) setReady(ready bool) {
	client.m.Lock()
	client.isReady = ready
	client.m.Unlock()
}

// handleReconnect will wait for a connection error on
// notifyConnClose, and then continuously attempt to reconnect.
func (client *Client) handleReconnect(addr string) {
	for {
		client.setReady(false)

		client.logger.Info("attempting to connect", "destination", client.destination())

		if m := client.metrics.Load(); m != nil {
			m.ConnectAttempts.WithLabelValues(client.exchange).Inc()
		}

		conn, err := client.connect(addr)
		if err != nil {
			client.logger.Error("failed to connect. Retrying...", "error", err)

			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := client.handleReInit(conn); done {
			return
		}
	}
}

func (client *Client) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		client.setConnectionStatus(0)
		return nil, err
	}

	client.changeConnection(conn)
	client.logger.Info("connected")
	client.setConnectionStatus(1)

	return conn, nil
}

// handleReInit will wait for a channel error
// and then continuously attempt to re-initialize both channels.
func (client *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		client.setReady(false)

		err := client.init(conn)
		if err != nil {
			client.logger.Error("failed to initialize channel, retrying...", "error", err)

			select {
			case <-client.done:
				return true
			case <-client.notifyConnClose:
				client.logger.Info("connection closed, reconnecting...")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			return true
		case <-client.notifyConnClose:
			client.logger.Info("connection closed, reconnecting...")
			return false
		case <-client.notifyChanClose:
			client.logger.Info("channel closed, re-running init...")
		}
	}
}

// init opens a confirming channel and declares the topology.
func (client *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}

	queueName := client.queueName
	if client.exchange != "" {
		if err := ch.ExchangeDeclare(
			client.exchange,
			amqp.ExchangeFanout,
			true,  // Durable
			false, // Auto-deleted
			false, // Internal
			false, // No-wait
			nil,
		); err != nil {
			return err
		}
		q, err := ch.QueueDeclare(
			"",    // Server-named
			false, // Durable
			true,  // Delete when unused
			true,  // Exclusive
			false, // No-wait
			nil,
		)
		if err != nil {
			return err
		}
		if err := ch.QueueBind(q.Name, "", client.exchange, false, nil); err != nil {
			return err
		}
		queueName = q.Name
	} else {
		if _, err := ch.QueueDeclare(
			client.queueName,
			false, // Durable
			false, // Delete when unused
			false, // Exclusive
			false, // No-wait
			nil,
		); err != nil {
			return err
		}
	}

	client.changeChannel(ch)
	client.m.Lock()
	client.queueName = queueName
	client.isReady = true
	client.m.Unlock()
	client.logger.Info("client init done", "queue", queueName, "exchange", client.exchange)

	return nil
}

func (client *Client) changeConnection(connection *amqp.Connection) {
	client.notifyConnClose = make(chan *amqp.Error, 1)
	connection.NotifyClose(client.notifyConnClose)

	client.m.Lock()
	client.connection = connection
	client.m.Unlock()
}

func (client *Client) changeChannel(channel *amqp.Channel) {
	client.notifyChanClose = make(chan *amqp.Error, 1)
	channel.NotifyClose(client.notifyChanClose)

	client.m.Lock()
	client.channel = channel
	client.notifyConfirm = make(chan amqp.Confirmation, 1)
	client.channel.NotifyPublish(client.notifyConfirm)
	client.m.Unlock()
}

func (client *Client) confirmations() <-chan amqp.Confirmation {
	client.m.Lock()
	defer client.m.Unlock()
	return client.notifyConfirm
}

// wait sleeps for the current backoff, then grows it. It returns a non-nil error when the
// context ends or the client shuts down first.
func (client *Client) wait(ctx context.Context, backoff *time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.done:
		return errShutdown
	case <-time.After(*backoff):
		*backoff = min(*backoff*backoffMultiplier, maxBackoff)
		return nil
	}
}

// Push publishes data and waits for the broker's confirmation. While the client is not
// connected it retries with exponential backoff, giving the reconnect loop time to succeed,
// and gives up after maxRetryAttempts.
func (client *Client) Push(ctx context.Context, data []byte) error {
	if m := client.metrics.Load(); m != nil {
		timer := prometheus.NewTimer(m.PublishDuration.WithLabelValues(client.exchange))
		defer timer.ObserveDuration()
	}

	backoff := initialBackoff
	for retry := 0; ; retry++ {
		if retry >= maxRetryAttempts {
			client.logger.Error("maximum retry attempts exceeded",
				"retry_count", retry,
				"max_attempts", maxRetryAttempts)
			client.observe(metrics.RolePublish, "max_retries_exceeded")
			return errMaxRetriesExceeded
		}

		if !client.IsReady() {
			client.logger.Debug("not connected, waiting for reconnection",
				"backoff", backoff,
				"retry_count", retry)
			if err := client.wait(ctx, &backoff); err != nil {
				return err
			}
			continue
		}

		if err := client.UnsafePush(ctx, data); err != nil {
			client.logger.Warn("push failed, retrying with backoff",
				"error", err,
				"backoff", backoff,
				"retry_count", retry)
			if err := client.wait(ctx, &backoff); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			client.observe(metrics.RolePublish, "context_canceled")
			return ctx.Err()
		case confirm := <-client.confirmations():
			if confirm.Ack {
				client.observe(metrics.RolePublish, "")
				client.logger.Debug("push confirmed", "delivery_tag", confirm.DeliveryTag, "retry_count", retry)
				return nil
			}
			client.logger.Warn("push not acknowledged, retrying",
				"delivery_tag", confirm.DeliveryTag,
				"backoff", backoff)
			if err := client.wait(ctx, &backoff); err != nil {
				return err
			}
		}
	}
}

// UnsafePush publishes without waiting for confirmation. It fails immediately when the
// client is not connected.
func (client *Client) UnsafePush(ctx context.Context, data []byte) error {
	client.m.Lock()
	if !client.isReady {
		client.m.Unlock()
		return errNotConnected
	}
	ch := client.channel
	client.m.Unlock()

	// Fanout exchanges ignore the routing key.
	routingKey := ""
	if client.exchange == "" {
		routingKey = client.queueName
	}

	return ch.PublishWithContext(
		ctx,
		client.exchange,
		routingKey,
		false, // Mandatory
		false, // Immediate
		amqp.Publishing{
			ContentType: client.contentType,
			Timestamp:   time.Now().UTC(),
			Body:        data,
		},
	)
}

// Consume will continuously put queue items on the channel.
// It is required to call delivery.Ack when it has been
// successfully processed, or delivery.Nack when it fails.
// The returned channel is closed when the underlying AMQP channel goes away; call Consume
// again once IsReady reports true.
func (client *Client) Consume() (<-chan amqp.Delivery, error) {
	client.m.Lock()
	if !client.isReady {
		client.m.Unlock()
		client.observe(metrics.RoleSubscribe, "not_connected")
		return nil, errNotConnected
	}
	ch, queueName := client.channel, client.queueName
	client.m.Unlock()

	if err := ch.Qos(
		10,    // prefetchCount
		0,     // prefetchSize
		false, // global
	); err != nil {
		client.observe(metrics.RoleSubscribe, "qos")
		return nil, err
	}

	deliveries, err := ch.Consume(
		queueName,
		"",    // Consumer
		false, // Auto-Ack
		client.exchange != "",
		false, // No-local
		false, // No-Wait
		nil,
	)
	if err != nil {
		client.observe(metrics.RoleSubscribe, "consume")
		return nil, err
	}
	client.observe(metrics.RoleSubscribe, "")
	return deliveries, nil
}

// Close stops reconnecting and shuts down the channel and connection. It is safe to call
// more than once and while disconnected.
func (client *Client) Close() error {
	var err error
	client.closeOnce.Do(func() {
		close(client.done)

		client.m.Lock()
		defer client.m.Unlock()

		if client.channel != nil {
			if cerr := client.channel.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
				err = cerr
			}
		}
		if client.connection != nil && !client.connection.IsClosed() {
			if cerr := client.connection.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		client.isReady = false
		client.setConnectionStatus(0)
	})
	return err
}
