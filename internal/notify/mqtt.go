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

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

// Publisher publishes a payload to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MQTTConfig describes the broker connection
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// MQTTClient is a Publisher backed by a paho client
type MQTTClient struct {
	cfg    MQTTConfig
	client mqtt.Client
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
}

// NewMQTTClient creates a client. Call Connect before publishing.
func NewMQTTClient(cfg MQTTConfig, logger *slog.Logger) *MQTTClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &MQTTClient{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		c.setConnected(true)
		c.logger.Info("mqtt connection established", "broker", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.setConnected(false)
		c.logger.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}
	c.client = mqtt.NewClient(opts)
	return c
}

// Connect starts the broker connection. With connect retry enabled the client keeps
// trying in the background if the first attempt times out.
func (c *MQTTClient) Connect(timeout time.Duration) error {
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connection to %s timed out", c.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	c.setConnected(true)
	return nil
}

func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.isConnected() {
		return errors.New("mqtt not connected")
	}
	token := c.client.Publish(topic, c.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s failed: %w", topic, err)
	}
	return nil
}

// Disconnect closes the broker connection
func (c *MQTTClient) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
		c.logger.Info("mqtt disconnected")
	}
	c.setConnected(false)
}

func (c *MQTTClient) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *MQTTClient) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

type mqttPayload struct {
	models.NotificationEvent
	Subject         string `json:"subject"`
	Message         string `json:"message"`
	HasSnapshot     bool   `json:"has_snapshot"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// MQTTTopic publishes the event as JSON to Topic and the snapshot, if any,
// as raw JPEG to Topic/snapshot
type MQTTTopic struct {
	Topic     string
	Publisher Publisher
}

// NewMQTTTopic returns an MQTT destination
func NewMQTTTopic(topic string, publisher Publisher) *MQTTTopic {
	return &MQTTTopic{Topic: topic, Publisher: publisher}
}

func (t *MQTTTopic) Name() string {
	return "mqtt:" + t.Topic
}

func (t *MQTTTopic) Send(ctx context.Context, msg Message, event models.NotificationEvent) error {
	payload, err := json.Marshal(mqttPayload{
		NotificationEvent: event,
		Subject:           msg.Subject,
		Message:           msg.Body,
		HasSnapshot:       event.HasSnapshot(),
		DurationSeconds:   int64(event.Duration().Seconds()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mqtt payload: %w", err)
	}
	if err := t.Publisher.Publish(ctx, t.Topic, payload); err != nil {
		return err
	}
	if event.HasSnapshot() {
		if err := t.Publisher.Publish(ctx, t.Topic+"/snapshot", event.Snapshot); err != nil {
			return fmt.Errorf("failed to publish snapshot: %w", err)
		}
	}
	return nil
}
