// Package registry maintains the concurrency-safe mapping from sensor ids
// to their processing pipelines. The ingest path inserts lazily; the
// staleness monitor iterates snapshots and drives eviction.
package registry

import (
	"sync"
	"time"

	"github.com/sweeney/irrigation-processor/internal/pipeline"
)

// Registry maps sensor ids to pipelines. Mutual exclusion covers the map
// structure only; individual pipelines carry their own locking.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]*pipeline.Pipeline

	cfg pipeline.Config
	now func() time.Time
}

// New creates an empty registry. Pipelines created through GetOrCreate
// inherit cfg and the clock.
func New(cfg pipeline.Config, now func() time.Time) *Registry {
	return &Registry{
		pipelines: make(map[string]*pipeline.Pipeline),
		cfg:       cfg,
		now:       now,
	}
}

// GetOrCreate returns the pipeline for id, creating it on first sight.
// created reports whether this call performed the insert. Concurrent calls
// for the same new id yield exactly one pipeline instance.
func (r *Registry) GetOrCreate(id string) (p *pipeline.Pipeline, created bool) {
	r.mu.RLock()
	p = r.pipelines[id]
	r.mu.RUnlock()
	if p != nil {
		return p, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p = r.pipelines[id]; p != nil {
		return p, false
	}
	p = pipeline.New(id, r.cfg, r.now)
	r.pipelines[id] = p
	return p, true
}

// Snapshot returns a point-in-time slice of all pipelines, safe to iterate
// while ingestion continues to mutate individual entries.
func (r *Registry) Snapshot() []*pipeline.Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*pipeline.Pipeline, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		out = append(out, p)
	}
	return out
}

// Len returns the number of registered sensors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pipelines)
}

// Remove deletes the pipeline for id, if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pipelines, id)
}

// EvictIdle removes pipelines whose watermark gap at now exceeds maxGap and
// returns their ids. Pipelines that have never accepted a sample are kept.
// Without this, churn in ephemeral sensor ids would grow the map forever.
//
// Ingestion updates watermarks under the pipeline's own lock, so a sample
// accepted between the watermark read and the delete goes into the evicted
// pipeline and is lost with it. The sensor's next sample recreates the
// pipeline from scratch, which is an acceptable cost for a sensor that was
// idle past maxGap.
func (r *Registry) EvictIdle(now time.Time, maxGap time.Duration) []string {
	nowSec := float64(now.UnixNano()) / 1e9
	candidates := r.Snapshot()

	var evicted []string
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range candidates {
		last := p.LastTimestamp()
		if last > 0 && nowSec-last > maxGap.Seconds() {
			delete(r.pipelines, p.ID())
			evicted = append(evicted, p.ID())
		}
	}
	return evicted
}
