// Package dispatch routes raw transport messages to per-sensor pipelines
// and republishes the results. A bounded queue decouples the transport
// callback from processing, so broker I/O never runs pipeline arithmetic.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sweeney/irrigation-processor/internal/metrics"
	"github.com/sweeney/irrigation-processor/internal/mqtt"
	"github.com/sweeney/irrigation-processor/internal/registry"
	"github.com/sweeney/irrigation-processor/internal/status"
)

// RawMessage is one undecoded payload from the transport.
type RawMessage struct {
	Topic   string
	Payload []byte
}

// rawPayload mirrors the inbound wire format. Pointers distinguish missing
// fields from zero values.
type rawPayload struct {
	SensorID    *string  `json:"sensor_id"`
	MoistureRaw *float64 `json:"moisture_raw"`
	Timestamp   *float64 `json:"ts"`
}

// Dispatcher consumes the raw-message queue, runs each sample through its
// sensor's pipeline, and forwards accepted readings to the publisher. Every
// per-message failure is isolated to that message.
type Dispatcher struct {
	reg   *registry.Registry
	pub   mqtt.Publisher
	log   *slog.Logger
	met   *metrics.Metrics
	track *status.Tracker
	queue chan RawMessage
}

// New creates a dispatcher with a bounded queue of the given size.
func New(reg *registry.Registry, pub mqtt.Publisher, log *slog.Logger, met *metrics.Metrics, track *status.Tracker, queueSize int) *Dispatcher {
	return &Dispatcher{
		reg:   reg,
		pub:   pub,
		log:   log,
		met:   met,
		track: track,
		queue: make(chan RawMessage, queueSize),
	}
}

// HandlerFunc adapts Enqueue to the transport's message callback.
func (d *Dispatcher) HandlerFunc() mqtt.MessageHandler {
	return func(topic string, payload []byte) {
		d.Enqueue(RawMessage{Topic: topic, Payload: payload})
	}
}

// Enqueue hands a message to the worker without blocking the transport.
// Returns false when the queue is full and the message was dropped.
func (d *Dispatcher) Enqueue(msg RawMessage) bool {
	select {
	case d.queue <- msg:
		return true
	default:
		d.met.QueueDropped.Inc()
		d.track.RecordQueueDropped()
		d.log.Warn("dispatch queue full, dropping sample", "topic", msg.Topic)
		return false
	}
}

// Run processes queued messages until ctx is cancelled. Each message is a
// single bounded synchronous computation, so cancellation never leaves a
// pipeline mid-update.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.handle(msg)
		}
	}
}

// handle decodes, routes, processes, and republishes one message.
func (d *Dispatcher) handle(msg RawMessage) {
	d.met.SamplesReceived.Inc()
	d.track.RecordReceived()

	var p rawPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		d.dropMalformed(msg.Topic, "invalid json")
		return
	}
	if p.MoistureRaw == nil {
		d.dropMalformed(msg.Topic, "missing moisture_raw")
		return
	}

	// Prefer the payload's id; fall back to the per-sensor topic segment,
	// then to "unknown" for messages on the bare raw prefix.
	sensorID := "unknown"
	switch {
	case p.SensorID != nil && *p.SensorID != "":
		sensorID = *p.SensorID
	case msg.Topic != mqtt.RawTopicPrefix:
		if id := mqtt.SensorIDFromTopic(msg.Topic); id != "" {
			sensorID = id
		}
	}
	ts := float64(time.Now().UnixNano()) / 1e9
	if p.Timestamp != nil {
		ts = *p.Timestamp
	}

	pipe, created := d.reg.GetOrCreate(sensorID)
	if created {
		d.log.Info("new sensor discovered", "sensor_id", sensorID)
	}

	start := time.Now()
	reading, ok := pipe.Process(*p.MoistureRaw, ts)
	d.met.ProcessDuration.Observe(time.Since(start).Seconds())
	if !ok {
		// Out-of-order beyond the slack window: dropped by design, counted,
		// not logged per message.
		d.met.SamplesRejected.Inc()
		d.track.RecordRejected()
		return
	}

	if err := d.pub.PublishReading(reading); err != nil {
		// The reading is discarded for this cycle; retry belongs to the
		// transport, not here.
		d.met.PublishErrors.Inc()
		d.track.RecordPublishError()
		d.log.Warn("publish failed, discarding reading", "sensor_id", sensorID, "error", err)
		return
	}
	d.met.ReadingsPublished.Inc()
	d.track.RecordPublished()
}

func (d *Dispatcher) dropMalformed(topic, reason string) {
	d.met.SamplesMalformed.Inc()
	d.track.RecordMalformed()
	d.log.Warn("dropping malformed sample", "topic", topic, "reason", reason)
}
