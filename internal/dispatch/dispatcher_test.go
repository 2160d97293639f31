package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/irrigation-processor/internal/metrics"
	"github.com/sweeney/irrigation-processor/internal/mqtt"
	"github.com/sweeney/irrigation-processor/internal/pipeline"
	"github.com/sweeney/irrigation-processor/internal/registry"
	"github.com/sweeney/irrigation-processor/internal/status"
)

func newTestDispatcher(pub mqtt.Publisher) (*Dispatcher, *registry.Registry, *status.Tracker) {
	reg := registry.New(pipeline.DefaultConfig(), time.Now)
	track := status.NewTracker(time.Now(), status.Config{})
	met := metrics.New(prometheus.NewRegistry())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(reg, pub, log, met, track, 64), reg, track
}

func rawMsg(sensorID string, raw, ts float64) RawMessage {
	return RawMessage{
		Topic:   mqtt.RawTopic(sensorID),
		Payload: []byte(fmt.Sprintf(`{"sensor_id":%q,"moisture_raw":%v,"ts":%v}`, sensorID, raw, ts)),
	}
}

func TestHandleProcessesAndPublishes(t *testing.T) {
	fake := mqtt.NewFakeClient()
	d, reg, track := newTestDispatcher(fake)

	d.handle(rawMsg("zone00", 500, 100.0))

	readings := fake.Readings()
	require.Len(t, readings, 1)
	assert.Equal(t, "zone00", readings[0].SensorID)
	assert.Equal(t, 500.0, readings[0].Filtered)
	assert.Equal(t, []string{"irrigation/processed/zone00"}, fake.ReadingTopics())
	assert.Equal(t, 1, reg.Len())

	c := track.Snapshot().Counts
	assert.Equal(t, uint64(1), c.Received)
	assert.Equal(t, uint64(1), c.Published)
}

func TestHandleDropsMalformed(t *testing.T) {
	fake := mqtt.NewFakeClient()
	d, reg, track := newTestDispatcher(fake)

	d.handle(RawMessage{Topic: "irrigation/raw/zone00", Payload: []byte(`{not json`)})
	d.handle(RawMessage{Topic: "irrigation/raw/zone00", Payload: []byte(`{"sensor_id":"zone00","ts":1.0}`)})

	assert.Empty(t, fake.Readings())
	assert.Equal(t, 0, reg.Len(), "malformed messages must not create pipelines")
	assert.Equal(t, uint64(2), track.Snapshot().Counts.Malformed)
}

func TestHandleDefaultsMissingFields(t *testing.T) {
	fake := mqtt.NewFakeClient()
	d, _, _ := newTestDispatcher(fake)

	// Only the value is required. An omitted id comes from the topic, and
	// an omitted timestamp falls back to the wall clock.
	d.handle(RawMessage{Topic: "irrigation/raw/zone07", Payload: []byte(`{"moisture_raw":480.5}`)})

	readings := fake.Readings()
	require.Len(t, readings, 1)
	assert.Equal(t, "zone07", readings[0].SensorID)
	assert.Greater(t, readings[0].Timestamp, 0.0)
}

func TestHandleUnknownIDOnBarePrefix(t *testing.T) {
	fake := mqtt.NewFakeClient()
	d, _, _ := newTestDispatcher(fake)

	// No id in the payload and no per-sensor topic segment to take it from.
	d.handle(RawMessage{Topic: mqtt.RawTopicPrefix, Payload: []byte(`{"moisture_raw":480.5}`)})

	readings := fake.Readings()
	require.Len(t, readings, 1)
	assert.Equal(t, "unknown", readings[0].SensorID)
}

func TestHandleCountsOutOfOrder(t *testing.T) {
	fake := mqtt.NewFakeClient()
	d, _, track := newTestDispatcher(fake)

	d.handle(rawMsg("zone00", 500, 100.0))
	d.handle(rawMsg("zone00", 510, 50.0))

	assert.Len(t, fake.Readings(), 1, "the stale sample must not be republished")
	c := track.Snapshot().Counts
	assert.Equal(t, uint64(2), c.Received)
	assert.Equal(t, uint64(1), c.RejectedOOO)
	assert.Equal(t, uint64(1), c.Published)
}

func TestHandleIsolatesPublishFailure(t *testing.T) {
	fake := mqtt.NewFakeClient()
	fake.PublishError = errors.New("broker gone")
	d, _, track := newTestDispatcher(fake)

	d.handle(rawMsg("zone00", 500, 100.0))
	c := track.Snapshot().Counts
	assert.Equal(t, uint64(1), c.PublishErrors)
	assert.Equal(t, uint64(0), c.Published)

	// The pipeline state survived; the next sample publishes fine.
	fake.PublishError = nil
	d.handle(rawMsg("zone00", 502, 100.1))
	readings := fake.Readings()
	require.Len(t, readings, 1)
	received, _ := readingPipeline(t, d, "zone00").Counters()
	assert.Equal(t, uint64(2), received)
}

func readingPipeline(t *testing.T, d *Dispatcher, id string) *pipeline.Pipeline {
	t.Helper()
	p, created := d.reg.GetOrCreate(id)
	require.False(t, created, "pipeline %s should already exist", id)
	return p
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	fake := mqtt.NewFakeClient()
	reg := registry.New(pipeline.DefaultConfig(), time.Now)
	track := status.NewTracker(time.Now(), status.Config{})
	met := metrics.New(prometheus.NewRegistry())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := New(reg, fake, log, met, track, 2)

	assert.True(t, d.Enqueue(rawMsg("zone00", 500, 1)))
	assert.True(t, d.Enqueue(rawMsg("zone00", 500, 2)))
	assert.False(t, d.Enqueue(rawMsg("zone00", 500, 3)), "third message exceeds queue capacity")
	assert.Equal(t, uint64(1), track.Snapshot().Counts.QueueDropped)
}

func TestRunDrainsQueueAndStops(t *testing.T) {
	fake := mqtt.NewFakeClient()
	d, _, _ := newTestDispatcher(fake)

	for i := 0; i < 10; i++ {
		require.True(t, d.Enqueue(rawMsg("zone00", 500, 100.0+float64(i)*0.1)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(fake.Readings()) == 10
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestConcurrentFirstSightThroughDispatcher(t *testing.T) {
	fake := mqtt.NewFakeClient()
	d, reg, _ := newTestDispatcher(fake)

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.handle(rawMsg("fresh", 500, 100.0+float64(i)*0.01))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, reg.Len())
	assert.Len(t, fake.Readings(), n)
}
