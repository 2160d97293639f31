package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/irrigation-processor/internal/monitor"
)

func testConfig() Config {
	return Config{
		Broker:           "tcp://127.0.0.1:1883",
		HTTPAddr:         ":8080",
		SummaryIntervalS: 5,
		StaleTimeoutS:    10,
		EvictAfterS:      60,
		QueueSize:        1024,
	}
}

func TestTrackerCounters(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig())

	tr.RecordReceived()
	tr.RecordReceived()
	tr.RecordMalformed()
	tr.RecordRejected()
	tr.RecordPublished()
	tr.RecordPublishError()
	tr.RecordQueueDropped()

	c := tr.Snapshot().Counts
	assert.Equal(t, uint64(2), c.Received)
	assert.Equal(t, uint64(1), c.Malformed)
	assert.Equal(t, uint64(1), c.RejectedOOO)
	assert.Equal(t, uint64(1), c.Published)
	assert.Equal(t, uint64(1), c.PublishErrors)
	assert.Equal(t, uint64(1), c.QueueDropped)
}

func TestTrackerConcurrentWrites(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.RecordReceived()
				tr.Snapshot()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(800), tr.Snapshot().Counts.Received)
}

func TestTrackerSummary(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig())
	swept := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.SetSummary(monitor.Summary{Total: 4, OK: 2, Stale: 1, Spiky: 1, MeanNoise: 0.12}, swept)

	snap := tr.Snapshot()
	assert.Equal(t, 4, snap.Summary.Total)
	assert.Equal(t, swept, snap.LastSweep)
}

func TestFormatJSONShape(t *testing.T) {
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig())
	tr.SetMQTTConnected(true)
	tr.RecordReceived()
	tr.SetSummary(monitor.Summary{Total: 3, OK: 1, Noisy: 1, Stale: 1, MeanNoise: 0.4}, start.Add(time.Minute))

	data := FormatJSON(tr.Snapshot())

	var decoded struct {
		Status struct {
			MQTT   MQTTStatus `json:"mqtt"`
			Fleet  FleetJSON  `json:"fleet"`
			Counts CountsJSON `json:"counts"`
			Config ConfigJSON `json:"config"`
		} `json:"status"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Status.MQTT.Connected)
	assert.Equal(t, 3, decoded.Status.Fleet.Sensors)
	assert.Equal(t, 1, decoded.Status.Fleet.Noisy)
	assert.Equal(t, 0.4, decoded.Status.Fleet.AvgNoise)
	assert.Equal(t, uint64(1), decoded.Status.Counts.Received)
	assert.Equal(t, "tcp://127.0.0.1:1883", decoded.Status.Config.Broker)
	assert.NotEmpty(t, decoded.Status.Fleet.LastSweep)
}
