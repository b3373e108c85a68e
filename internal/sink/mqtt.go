package sink

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/terradolor/prometheus-enviro-exporter/internal/config"
	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"github.com/terradolor/prometheus-enviro-exporter/internal/registry"
	"github.com/terradolor/prometheus-enviro-exporter/internal/sensor"
)

// MQTT publishes each snapshot as a JSON document to one topic.
type MQTT struct {
	client mqtt.Client
	topic  string
}

type mqttPayload struct {
	Values      map[sensor.Quantity]float64 `json:"values"`
	GeneratedAt time.Time                   `json:"generated_at"`
}

func NewMQTT(cfg config.MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.New().Wrap(ErrConnectFailed, token.Error()).WithData(cfg.Broker)
	}

	return &MQTT{client: client, topic: cfg.Topic}, nil
}

func (*MQTT) Name() string {
	return "mqtt"
}

func (m *MQTT) Push(_ context.Context, snapshot *registry.Snapshot) error {
	errFactory := errors.New()

	payload, err := json.Marshal(mqttPayload{
		Values:      snapshot.Values,
		GeneratedAt: snapshot.GeneratedAt,
	})
	if err != nil {
		return errFactory.Wrap(ErrEncodeFailed, err)
	}

	token := m.client.Publish(m.topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return errFactory.Wrap(ErrPushFailed, token.Error()).WithData(m.topic)
	}

	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
