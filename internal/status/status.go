// Package status provides a thread-safe status tracker for the processor
// daemon. It is read by the HTTP handlers in internal/web.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/irrigation-processor/internal/monitor"
)

// Config contains daemon configuration for display.
type Config struct {
	Broker           string
	HTTPAddr         string
	SummaryIntervalS float64
	StaleTimeoutS    float64
	EvictAfterS      float64
	QueueSize        int
}

// Counts holds cumulative ingest/output counters since startup.
type Counts struct {
	Received      uint64
	Malformed     uint64
	RejectedOOO   uint64
	QueueDropped  uint64
	Published     uint64
	PublishErrors uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Counts        Counts
	Summary       monitor.Summary
	LastSweep     time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordReceived counts one raw sample delivered by the transport.
func (t *Tracker) RecordReceived() {
	t.mu.Lock()
	t.snap.Counts.Received++
	t.mu.Unlock()
}

// RecordMalformed counts one dropped malformed sample.
func (t *Tracker) RecordMalformed() {
	t.mu.Lock()
	t.snap.Counts.Malformed++
	t.mu.Unlock()
}

// RecordRejected counts one sample dropped by the out-of-order guard.
func (t *Tracker) RecordRejected() {
	t.mu.Lock()
	t.snap.Counts.RejectedOOO++
	t.mu.Unlock()
}

// RecordQueueDropped counts one sample dropped because the queue was full.
func (t *Tracker) RecordQueueDropped() {
	t.mu.Lock()
	t.snap.Counts.QueueDropped++
	t.mu.Unlock()
}

// RecordPublished counts one republished processed reading.
func (t *Tracker) RecordPublished() {
	t.mu.Lock()
	t.snap.Counts.Published++
	t.mu.Unlock()
}

// RecordPublishError counts one reading discarded on publish failure.
func (t *Tracker) RecordPublishError() {
	t.mu.Lock()
	t.snap.Counts.PublishErrors++
	t.mu.Unlock()
}

// SetMQTTConnected sets the broker connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetSummary stores the latest monitor sweep result.
func (t *Tracker) SetSummary(s monitor.Summary, sweptAt time.Time) {
	t.mu.Lock()
	t.snap.Summary = s
	t.snap.LastSweep = sweptAt
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
