package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopic is the MQTT subscription for wristband readings. The middle level is the
// device id.
const DefaultTopic = "wristband/+/vitals"

// MQTTConfig holds the broker settings of the MQTT listener.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// Payload is the JSON body of an MQTT reading. Integer vitals may arrive as decimals and are
// truncated.
type Payload struct {
	UserID    string  `json:"user_id"`
	HR        float64 `json:"hr"`
	Temp      float64 `json:"temp"`
	SpO2      float64 `json:"spo2"`
	Systolic  float64 `json:"bp_sys"`
	Diastolic float64 `json:"bp_dia"`
}

// Topic returns the MQTT topic a device publishes to.
func Topic(deviceID string) string {
	return "wristband/" + deviceID + "/vitals"
}

// DeviceFromTopic extracts the device id from a wristband/<device>/vitals topic.
func DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "wristband" || parts[2] != "vitals" {
		return ""
	}
	return parts[1]
}

// Listener feeds MQTT readings into a Service.
type Listener struct {
	svc       *Service
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	logger    *slog.Logger
	cfg       MQTTConfig
}

// NewListener creates a listener. Start connects it.
func NewListener(svc *Service, cfg *MQTTConfig, logger *slog.Logger) (*Listener, error) {
	if svc == nil {
		return nil, errors.New("ingest service cannot be nil")
	}
	if cfg == nil {
		return nil, errors.New("mqtt config cannot be nil")
	}
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	c := *cfg
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.ClientID == "" {
		c.ClientID = fmt.Sprintf("vitals-ingest-%d", time.Now().UnixNano())
	}

	return &Listener{
		svc:       svc,
		cfg:       c,
		newClient: mqtt.NewClient,
		logger:    logger.With("component", "mqtt_listener"),
	}, nil
}

// Start connects to the broker. The subscription is renewed on every reconnect.
func (l *Listener) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(l.cfg.Broker)
	opts.SetClientID(l.cfg.ClientID)
	if l.cfg.Username != "" {
		opts.SetUsername(l.cfg.Username)
	}
	if l.cfg.Password != "" {
		opts.SetPassword(l.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)
	opts.OnConnect = func(c mqtt.Client) {
		l.logger.Info("connected to MQTT broker", "broker", l.cfg.Broker)
		token := c.Subscribe(l.cfg.Topic, l.cfg.QoS, l.onMessage)
		if token.Wait() && token.Error() != nil {
			l.logger.Error("failed to subscribe", "topic", l.cfg.Topic, "error", token.Error())
			return
		}
		l.logger.Info("subscribed", "topic", l.cfg.Topic)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		l.logger.Warn("MQTT connection lost", "error", err)
	}

	l.client = l.newClient(opts)
	token := l.client.Connect()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// Stop disconnects from the broker. A client that is still retrying its connection is
// stopped too.
func (l *Listener) Stop() {
	if l.client != nil {
		l.client.Disconnect(250)
	}
}

func (l *Listener) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := l.HandleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
		l.logger.Warn("dropped MQTT reading", "topic", msg.Topic(), "error", err)
	}
}

// HandleMessage ingests one MQTT message.
func (l *Listener) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	device := DeviceFromTopic(topic)
	if device == "" {
		return fmt.Errorf("unexpected topic %q", topic)
	}

	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		l.svc.count(SourceMQTT, "rejected")
		return fmt.Errorf("invalid payload: %w", err)
	}

	_, err := l.svc.Ingest(ctx, Request{
		DeviceID:  device,
		UserID:    p.UserID,
		Source:    SourceMQTT,
		HR:        int(p.HR),
		Temp:      p.Temp,
		SpO2:      int(p.SpO2),
		Systolic:  int(p.Systolic),
		Diastolic: int(p.Diastolic),
	})
	return err
}
