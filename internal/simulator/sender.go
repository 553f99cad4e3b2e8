package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-resty/resty/v2"

	"procodus.dev/vitals/internal/ingest"
	"procodus.dev/vitals/pkg/vitals"
)

// Transport names used in logs and metric labels.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// Sender delivers one reading to the ingestion service.
type Sender interface {
	Send(ctx context.Context, r vitals.Reading) error
	Transport() string
}

// ingestResponse is the JSON body of GET /api/data.
type ingestResponse struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// HTTPSender calls the GET /api/data ingestion endpoint.
type HTTPSender struct {
	client *resty.Client
}

// NewHTTPSender creates a sender for the server at baseURL. Transport errors and 5xx
// responses are retried twice.
func NewHTTPSender(baseURL string, timeout time.Duration) (*HTTPSender, error) {
	if baseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")

	return &HTTPSender{client: client}, nil
}

// Transport returns TransportHTTP.
func (s *HTTPSender) Transport() string {
	return TransportHTTP
}

// Send submits r as query parameters. Blood pressure is only sent when the reading has it.
func (s *HTTPSender) Send(ctx context.Context, r vitals.Reading) error {
	params := map[string]string{
		"id":      r.DeviceID,
		"user_id": r.UserID,
		"hr":      strconv.Itoa(r.HR),
		"temp":    strconv.FormatFloat(r.Temp, 'f', -1, 64),
		"spo2":    strconv.Itoa(r.SpO2),
	}
	if r.Systolic != 0 && r.Diastolic != 0 {
		params["bp_sys"] = strconv.Itoa(r.Systolic)
		params["bp_dia"] = strconv.Itoa(r.Diastolic)
	}

	var body ingestResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&body).
		SetError(&body).
		Get("/api/data")
	if err != nil {
		return fmt.Errorf("failed to call ingestion endpoint: %w", err)
	}

	if resp.IsError() || !body.Success {
		return fmt.Errorf("ingestion rejected reading (status: %d): %s", resp.StatusCode(), body.Error)
	}
	return nil
}

// mqttPublisher is the part of mqtt.Client the sender needs.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSender publishes readings to wristband/<device>/vitals.
type MQTTSender struct {
	client  mqttPublisher
	qos     byte
	timeout time.Duration
}

// MQTTConfig holds the broker settings of the MQTT sender.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// DialMQTT connects to the broker and returns a sender together with a function that
// disconnects it.
func DialMQTT(ctx context.Context, cfg *MQTTConfig) (*MQTTSender, func(), error) {
	if cfg == nil {
		return nil, nil, errors.New("mqtt config cannot be nil")
	}
	if cfg.Broker == "" {
		return nil, nil, errors.New("mqtt broker cannot be empty")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("vitals-simulator-%d", time.Now().UnixNano())
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	disconnect := func() { client.Disconnect(250) }
	return NewMQTTSender(client, cfg.QoS), disconnect, nil
}

// NewMQTTSender wraps a connected client.
func NewMQTTSender(client mqttPublisher, qos byte) *MQTTSender {
	return &MQTTSender{client: client, qos: qos, timeout: 5 * time.Second}
}

// Transport returns TransportMQTT.
func (s *MQTTSender) Transport() string {
	return TransportMQTT
}

// Send publishes r as the JSON payload read by the ingestion listener.
func (s *MQTTSender) Send(ctx context.Context, r vitals.Reading) error {
	data, err := json.Marshal(ingest.Payload{
		UserID:    r.UserID,
		HR:        float64(r.HR),
		Temp:      r.Temp,
		SpO2:      float64(r.SpO2),
		Systolic:  float64(r.Systolic),
		Diastolic: float64(r.Diastolic),
	})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	token := s.client.Publish(ingest.Topic(r.DeviceID), s.qos, false, data)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(s.timeout):
		return fmt.Errorf("publish to %s timed out", ingest.Topic(r.DeviceID))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish reading: %w", err)
	}
	return nil
}
