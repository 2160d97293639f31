package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/irrigation-processor/internal/pipeline"
)

// offlineBufferCap bounds how many outgoing messages are held while the
// broker connection is down.
const offlineBufferCap = 512

type subscription struct {
	filter   string
	callback paho.MessageHandler
}

// RealClient talks to an actual MQTT broker. Outgoing messages published
// while disconnected are buffered and replayed on reconnect; subscriptions
// are re-established on reconnect. Retry policy lives here, not in the
// processing core.
type RealClient struct {
	client paho.Client

	mu     sync.Mutex
	subs   []subscription
	buffer *ringBuffer
}

// NewClient connects to the given broker. clientIDPrefix is suffixed with a
// random id so multiple instances can share a broker.
func NewClient(broker, clientIDPrefix string) (*RealClient, error) {
	c := &RealClient{buffer: newRingBuffer(offlineBufferCap)}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("%s-%s", clientIDPrefix, uuid.NewString()[:8])).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("mqtt connection lost", "error", err)
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// onConnect fires on the initial connect and every reconnect: restore
// subscriptions, then drain anything buffered while offline.
func (c *RealClient) onConnect(client paho.Client) {
	c.mu.Lock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	buffered := c.buffer.drainAll()
	c.mu.Unlock()

	for _, s := range subs {
		client.Subscribe(s.filter, 0, s.callback)
	}
	for _, m := range buffered {
		client.Publish(m.topic, 0, false, m.payload)
	}
}

func (c *RealClient) subscribe(filter string, h MessageHandler) error {
	cb := func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	}

	c.mu.Lock()
	c.subs = append(c.subs, subscription{filter: filter, callback: cb})
	c.mu.Unlock()

	token := c.client.Subscribe(filter, 0, cb)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

// SubscribeRaw subscribes to every per-sensor raw topic.
func (c *RealClient) SubscribeRaw(h MessageHandler) error {
	return c.subscribe(RawTopicFilter, h)
}

// SubscribeCommands subscribes to the simulator command namespace.
func (c *RealClient) SubscribeCommands(h MessageHandler) error {
	return c.subscribe(CommandTopicFilter, h)
}

func (c *RealClient) publish(topic string, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		c.mu.Lock()
		c.buffer.push(bufferedMsg{topic: topic, payload: payload})
		c.mu.Unlock()
		return nil
	}

	// QoS 0 (at-most-once), not retained: a lost reading is replaced by
	// the next sample within seconds.
	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishReading sends a processed reading on the sensor's processed topic.
func (c *RealClient) PublishReading(r pipeline.Reading) error {
	payload, err := FormatReading(r)
	if err != nil {
		return fmt.Errorf("format reading: %w", err)
	}
	return c.publish(ProcessedTopic(r.SensorID), payload)
}

// PublishRaw sends a synthetic raw sample on the sensor's raw topic.
func (c *RealClient) PublishRaw(p RawPayload) error {
	payload, err := FormatRaw(p)
	if err != nil {
		return fmt.Errorf("format raw payload: %w", err)
	}
	return c.publish(RawTopic(p.SensorID), payload)
}

// IsConnected reports whether the broker connection is currently open.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
