package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"face-search-go/config"
)

// Publisher announces pipeline events on an MQTT broker so external
// consumers (galleries, notification bots) can react to finished images.
// A nil Publisher is valid and drops all events.
type Publisher struct {
	config config.MQTTConfig
	client mqtt.Client
}

// ImageEvent is the payload published for image lifecycle changes.
type ImageEvent struct {
	ImageID      string    `json:"image_id"`
	CollectionID string    `json:"collection_id"`
	Filename     string    `json:"filename"`
	Status       string    `json:"status"`
	FaceCount    int       `json:"face_count"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewPublisher creates a publisher from configuration. It returns nil when
// MQTT is disabled, which callers treat as a no-op sink.
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	if !cfg.Enabled {
		log.Info("MQTT publisher is disabled in configuration")
		return nil
	}
	return &Publisher{config: cfg}
}

// Start connects to the broker. Reconnection is handled automatically.
func (p *Publisher) Start() error {
	if p == nil {
		return nil
	}

	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(p.config.ClientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Infof("Connected to MQTT broker at %s:%d", p.config.Broker, p.config.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Errorf("MQTT connection lost: %v", err)
	})
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	p.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT publisher connected successfully")
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	if p == nil || p.client == nil || !p.client.IsConnected() {
		return
	}
	log.Info("Disconnecting MQTT publisher...")
	p.client.Disconnect(250)
	log.Info("MQTT publisher disconnected")
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	return p != nil && p.client != nil && p.client.IsConnected()
}

// PublishImageEvent publishes an image lifecycle event. Events are dropped
// silently when the publisher is disabled or disconnected; processing must
// never fail because the broker is down.
func (p *Publisher) PublishImageEvent(event ImageEvent) {
	if !p.IsConnected() {
		return
	}

	event.Timestamp = time.Now()
	payload, err := json.Marshal(event)
	if err != nil {
		log.Errorf("Failed to marshal MQTT event: %v", err)
		return
	}

	topic := fmt.Sprintf("%s/images/%s", p.config.TopicPrefix, event.Status)
	token := p.client.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		log.Errorf("Failed to publish message to topic %s: %v", topic, token.Error())
		return
	}

	log.Debugf("Published image event to topic: %s", topic)
}
