// Package notify announces newly claimed discoveries to other systems.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ppiankov/virasat/internal/logging"
	"github.com/ppiankov/virasat/internal/model"
)

// Publisher delivers claim notifications
type Publisher interface {
	PublishDiscovery(ctx context.Context, rec model.DiscoveryRecord) error
	Close()
}

// NopPublisher drops every notification
type NopPublisher struct{}

// PublishDiscovery does nothing
func (NopPublisher) PublishDiscovery(context.Context, model.DiscoveryRecord) error { return nil }

// Close does nothing
func (NopPublisher) Close() {}

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second
)

// MQTTPublisher publishes each stored record as JSON on one topic
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewMQTTPublisher connects to the configured broker
func NewMQTTPublisher(cfg model.MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	logger = logging.Module(logger, "notify")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("connected to mqtt broker", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection error: %w", err)
	}

	return newMQTTPublisher(client, cfg.Topic, logger), nil
}

func newMQTTPublisher(client mqtt.Client, topic string, logger *slog.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, logger: logging.OrDiscard(logger)}
}

// PublishDiscovery sends rec with QoS 1
func (p *MQTTPublisher) PublishDiscovery(ctx context.Context, rec model.DiscoveryRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode discovery: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.client.IsConnected() {
		return errors.New("not connected to mqtt broker")
	}

	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	if !token.WaitTimeout(timeout) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish discovery: %w", err)
	}

	p.logger.Debug("discovery published", "topic", p.topic, "id", rec.ID)
	return nil
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// FromConfig returns an MQTT publisher when enabled, otherwise a NopPublisher
func FromConfig(cfg model.MQTTConfig, logger *slog.Logger) (Publisher, error) {
	if !cfg.Enabled {
		return NopPublisher{}, nil
	}
	p, err := NewMQTTPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}
