package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cohort-extractor/internal/config"
	"cohort-extractor/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttPublishTimeout = 10 * time.Second

// publisher is the part of an MQTT connection the notifier needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// MQTT publishes run summaries as JSON on a topic.
type MQTT struct {
	pub   publisher
	topic string
	qos   byte
}

// DialMQTT connects to the broker in cfg.
func DialMQTT(cfg *config.MQTTNotifyConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(mqttPublishTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newMQTT(&pahoPublisher{client: client}, cfg.Topic, cfg.QoS), nil
}

func newMQTT(pub publisher, topic string, qos byte) *MQTT {
	return &MQTT{pub: pub, topic: topic, qos: qos}
}

func (n *MQTT) Publish(ctx context.Context, summary *models.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	return n.pub.Publish(n.topic, n.qos, false, payload)
}

func (n *MQTT) Close() {
	n.pub.Disconnect()
}

type pahoPublisher struct {
	client mqtt.Client
}

func (p *pahoPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (p *pahoPublisher) Disconnect() {
	p.client.Disconnect(250)
}
