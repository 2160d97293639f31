package mqtt

import (
	"sync"

	"github.com/sweeney/irrigation-processor/internal/pipeline"
)

// FakeClient records published messages and lets tests inject inbound ones.
// Safe for concurrent use: the dispatcher publishes from its worker
// goroutine while tests assert.
type FakeClient struct {
	mu sync.Mutex

	readings      []pipeline.Reading
	readingTopics []string
	raws          []RawPayload

	rawHandler MessageHandler
	cmdHandler MessageHandler

	// PublishError, if set, is returned by PublishReading and PublishRaw.
	PublishError error

	connected bool
	closed    bool
}

// NewFakeClient creates a connected FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{connected: true}
}

// SubscribeRaw registers the raw-message handler.
func (f *FakeClient) SubscribeRaw(h MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawHandler = h
	return nil
}

// SubscribeCommands registers the command handler.
func (f *FakeClient) SubscribeCommands(h MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmdHandler = h
	return nil
}

// PublishReading records the reading and its topic.
func (f *FakeClient) PublishReading(r pipeline.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.readings = append(f.readings, r)
	f.readingTopics = append(f.readingTopics, ProcessedTopic(r.SensorID))
	return nil
}

// PublishRaw records the raw payload.
func (f *FakeClient) PublishRaw(p RawPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.raws = append(f.raws, p)
	return nil
}

// IsConnected reports the fake connection state.
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SetConnected controls the fake connection state.
func (f *FakeClient) SetConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeClient) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// DeliverRaw injects an inbound raw message as if it came from the broker.
func (f *FakeClient) DeliverRaw(topic string, payload []byte) {
	f.mu.Lock()
	h := f.rawHandler
	f.mu.Unlock()
	if h != nil {
		h(topic, payload)
	}
}

// DeliverCommand injects an inbound command message.
func (f *FakeClient) DeliverCommand(topic string, payload []byte) {
	f.mu.Lock()
	h := f.cmdHandler
	f.mu.Unlock()
	if h != nil {
		h(topic, payload)
	}
}

// Readings returns a copy of all published readings.
func (f *FakeClient) Readings() []pipeline.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pipeline.Reading, len(f.readings))
	copy(out, f.readings)
	return out
}

// ReadingTopics returns the topics the readings were published on.
func (f *FakeClient) ReadingTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.readingTopics))
	copy(out, f.readingTopics)
	return out
}

// Raws returns a copy of all published raw payloads.
func (f *FakeClient) Raws() []RawPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RawPayload, len(f.raws))
	copy(out, f.raws)
	return out
}
