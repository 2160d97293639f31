// Package mqtt provides the broker transport with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"

	"github.com/sweeney/irrigation-processor/internal/pipeline"
)

// Topic namespace. Raw samples arrive per sensor under the raw prefix and
// cleaned readings are republished per sensor under the processed prefix.
const (
	RawTopicPrefix       = "irrigation/raw"
	ProcessedTopicPrefix = "irrigation/processed"
	CommandTopicPrefix   = "irrigation/command"

	RawTopicFilter     = RawTopicPrefix + "/#"
	CommandTopicFilter = CommandTopicPrefix + "/#"
	CommandTopicCreate = CommandTopicPrefix + "/create"
)

// RawTopic returns the inbound topic for one sensor.
func RawTopic(sensorID string) string {
	return RawTopicPrefix + "/" + sensorID
}

// ProcessedTopic returns the outbound topic for one sensor.
func ProcessedTopic(sensorID string) string {
	return ProcessedTopicPrefix + "/" + sensorID
}

// SensorIDFromTopic extracts the sensor id (the last topic segment).
func SensorIDFromTopic(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// MessageHandler receives one inbound message from the broker.
type MessageHandler func(topic string, payload []byte)

// Publisher republishes processed readings. This is the only transport
// surface the dispatcher needs.
type Publisher interface {
	// PublishReading sends a processed reading on the sensor's processed
	// topic. Returns error if publishing fails (must not crash the process).
	PublishReading(r pipeline.Reading) error
}

// Client is the full broker connection, used by the processor and the
// sensor simulator.
type Client interface {
	Publisher

	// SubscribeRaw delivers every message under the raw topic filter to h.
	SubscribeRaw(h MessageHandler) error

	// SubscribeCommands delivers simulator control messages to h.
	SubscribeCommands(h MessageHandler) error

	// PublishRaw sends a synthetic raw sample (sensor simulator only).
	PublishRaw(p RawPayload) error

	// IsConnected reports whether the broker connection is active.
	IsConnected() bool

	// Close disconnects from the broker.
	Close() error
}

// RawPayload is the wire format of one raw sensor sample. BatteryV and
// TempC are cosmetic fields produced by the sensor model; the processor
// ignores them.
type RawPayload struct {
	SensorID    string  `json:"sensor_id"`
	Timestamp   float64 `json:"ts"`
	MoistureRaw float64 `json:"moisture_raw"`
	BatteryV    float64 `json:"battery_v,omitempty"`
	TempC       float64 `json:"temp_c,omitempty"`
}

// CreateCommand asks the simulator to spawn a sensor at runtime.
type CreateCommand struct {
	SensorID string  `json:"sensor_id"`
	Baseline float64 `json:"baseline,omitempty"`
}

// FormatReading creates the JSON payload for a processed reading.
func FormatReading(r pipeline.Reading) ([]byte, error) {
	return json.Marshal(r)
}

// FormatRaw creates the JSON payload for a raw sample.
func FormatRaw(p RawPayload) ([]byte, error) {
	return json.Marshal(p)
}
