package sim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/sweeney/irrigation-processor/internal/mqtt"
)

// Delays below this are not worth a goroutine; deliver inline.
const inlineDelayFloor = 5 * time.Millisecond

// When a reorder triggers, this much extra delay is enough to land the
// sample behind at least one later one at typical sample rates.
const reorderExtraDelay = time.Second

// Link forwards raw payloads to the broker the way a flaky mesh-gateway
// uplink would: a fraction of packets is dropped, delivery gets a bounded
// random delay, and a rare extra delay pushes a sample behind its
// successors. With all rates at zero it forwards inline and unchanged.
type Link struct {
	pub   func(mqtt.RawPayload) error
	rng   *rand.Rand
	sleep func(time.Duration)

	dropRate  float64
	maxJitter time.Duration
	oooProb   float64

	mu    sync.Mutex // guards rng and stats; Send runs from every sensor goroutine
	stats LinkStats
}

// LinkStats counts what happened to the samples handed to Send.
type LinkStats struct {
	Received  uint64
	Forwarded uint64
	Dropped   uint64
	Reordered uint64
	PubFailed uint64
}

// NewLink creates an uplink over pub. The caller owns the rand source, so
// impairment sequences are reproducible under a fixed seed.
func NewLink(pub func(mqtt.RawPayload) error, rng *rand.Rand, dropRate float64, maxJitter time.Duration, oooProb float64) *Link {
	return &Link{
		pub:       pub,
		rng:       rng,
		sleep:     time.Sleep,
		dropRate:  dropRate,
		maxJitter: maxJitter,
		oooProb:   oooProb,
	}
}

// Impaired reports whether any impairment is configured.
func (l *Link) Impaired() bool {
	return l.dropRate > 0 || l.maxJitter > 0 || l.oooProb > 0
}

// Send forwards one payload, applying drop, jitter, and reordering.
// Delivery failures are counted, never returned: a lost raw sample is
// exactly what the processor must tolerate.
func (l *Link) Send(p mqtt.RawPayload) {
	l.mu.Lock()
	l.stats.Received++
	if l.dropRate > 0 && l.rng.Float64() < l.dropRate {
		l.stats.Dropped++
		l.mu.Unlock()
		return
	}
	var delay time.Duration
	if l.maxJitter > 0 {
		delay = time.Duration(l.rng.Float64() * float64(l.maxJitter))
	}
	if l.oooProb > 0 && l.rng.Float64() < l.oooProb {
		delay += reorderExtraDelay
		l.stats.Reordered++
	}
	l.mu.Unlock()

	if delay < inlineDelayFloor {
		l.forward(p)
		return
	}
	go func() {
		l.sleep(delay)
		l.forward(p)
	}()
}

func (l *Link) forward(p mqtt.RawPayload) {
	err := l.pub(p)
	l.mu.Lock()
	if err != nil {
		l.stats.PubFailed++
	} else {
		l.stats.Forwarded++
	}
	l.mu.Unlock()
}

// Stats returns a copy of the current counters.
func (l *Link) Stats() LinkStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
