package ingest

import mqtt "github.com/eclipse/paho.mqtt.golang"

// SetClientFactory replaces the MQTT client constructor used by Start.
func (l *Listener) SetClientFactory(fn func(*mqtt.ClientOptions) mqtt.Client) {
	l.newClient = fn
}
