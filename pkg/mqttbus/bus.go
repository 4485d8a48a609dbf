// Package mqttbus wires DAWN to an MQTT broker via
// github.com/eclipse/paho.mqtt.golang: the daemon subscribes to its own
// command topic, publishes per-action topics on behalf of the Command
// Router and LLM Dispatcher, and publishes HUD status updates (spec §4.6,
// §6).
package mqttbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dawn-project/dawn/pkg/logging"
)

// InboundMessage is the shape of a message arriving on the daemon's own
// topic: a device/action pair, an optional value, and an optional
// request_id correlating a tool-result reply back to the LLM Dispatcher's
// pending-request registry (spec §4.6).
type InboundMessage struct {
	Device    string `json:"device"`
	Action    string `json:"action"`
	Value     string `json:"value,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusPayload is the HUD status topic payload (spec §6):
// {"device":"ai","name":"<AI_NAME>","state":"<STATE>"}.
type StatusPayload struct {
	Device string `json:"device"`
	Name   string `json:"name"`
	State  string `json:"state"`
}

// Bus wraps a connected paho client.
type Bus struct {
	client      mqtt.Client
	topicPrefix string
	statusTopic string
	aiName      string
	logger      logging.Logger
}

// Options configures a new Bus.
type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	StatusTopic string
	AIName      string
	Logger      logging.Logger
}

// New connects to the broker. Credentials come from MQTT_USERNAME/
// MQTT_PASSWORD environment variables, matching the teacher's convention
// of reading provider secrets straight from the environment rather than
// through the runtime config loader.
func New(opts Options) (*Bus, error) {
	if opts.Logger == nil {
		opts.Logger = &logging.NoOpLogger{}
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	if user := os.Getenv("MQTT_USERNAME"); user != "" {
		mqttOpts.SetUsername(user)
		mqttOpts.SetPassword(os.Getenv("MQTT_PASSWORD"))
	}

	client := mqtt.NewClient(mqttOpts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqttbus: connect: %w", token.Error())
	}

	return &Bus{
		client:      client,
		topicPrefix: opts.TopicPrefix,
		statusTopic: opts.StatusTopic,
		aiName:      opts.AIName,
		logger:      opts.Logger,
	}, nil
}

// OwnTopic is the topic this daemon subscribes to for inbound commands.
func (b *Bus) OwnTopic() string {
	return b.topicPrefix + "/cmd"
}

// Subscribe registers handler for every message on the daemon's own
// topic. Malformed payloads are logged and dropped.
func (b *Bus) Subscribe(handler func(InboundMessage)) error {
	token := b.client.Subscribe(b.OwnTopic(), 1, func(_ mqtt.Client, m mqtt.Message) {
		var msg InboundMessage
		if err := json.Unmarshal(m.Payload(), &msg); err != nil {
			b.logger.Warn("mqttbus: dropping malformed inbound message", "error", err)
			return
		}
		handler(msg)
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttbus: subscribe %s: %w", b.OwnTopic(), err)
	}
	return nil
}

// Publish marshals payload to JSON and publishes it to topic. If the
// broker is currently unreachable, the message is logged and dropped
// rather than retried (spec §5 back-pressure policy for MQTT publishes).
func (b *Bus) Publish(topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqttbus: marshal payload for %s: %w", topic, err)
	}

	if !b.client.IsConnected() {
		b.logger.Warn("mqttbus: broker unavailable, dropping publish", "topic", topic)
		return nil
	}

	token := b.client.Publish(topic, 1, false, data)
	token.Wait()
	if err := token.Error(); err != nil {
		b.logger.Warn("mqttbus: publish failed, dropping", "topic", topic, "error", err)
		return nil
	}
	return nil
}

// PublishStatus publishes the HUD status payload for the given state
// (e.g. "listening", "thinking", "speaking").
func (b *Bus) PublishStatus(state string) error {
	return b.Publish(b.statusTopic, StatusPayload{Device: "ai", Name: b.aiName, State: state})
}

// ActionTopic returns the topic under the daemon's prefix for a given
// action-table row's topic suffix, allowing config to specify either a
// fully-qualified topic or a bare suffix.
func (b *Bus) ActionTopic(topic string) string {
	if len(topic) > 0 && topic[0] == '/' {
		return topic[1:]
	}
	return topic
}

// Close disconnects cleanly, allowing up to 250ms for in-flight publishes
// to drain.
func (b *Bus) Close() {
	b.client.Disconnect(250)
}
