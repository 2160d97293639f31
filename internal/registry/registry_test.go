package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/irrigation-processor/internal/pipeline"
)

func newTestRegistry() *Registry {
	return New(pipeline.DefaultConfig(), time.Now)
}

func TestGetOrCreate(t *testing.T) {
	r := newTestRegistry()

	p1, created := r.GetOrCreate("zone00")
	require.True(t, created)
	require.NotNil(t, p1)

	p2, created := r.GetOrCreate("zone00")
	assert.False(t, created)
	assert.Same(t, p1, p2)

	_, created = r.GetOrCreate("zone01")
	assert.True(t, created)
	assert.Equal(t, 2, r.Len())
}

func TestConcurrentFirstSight(t *testing.T) {
	r := newTestRegistry()

	const n = 32
	var wg sync.WaitGroup
	var createdCount sync.Map
	readings := make(chan pipeline.Reading, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, created := r.GetOrCreate("zone00")
			if created {
				createdCount.Store(i, true)
			}
			reading, ok := p.Process(500, 100.0+float64(i)*0.01)
			if ok {
				readings <- reading
			}
		}(i)
	}
	wg.Wait()
	close(readings)

	creates := 0
	createdCount.Range(func(_, _ any) bool { creates++; return true })
	assert.Equal(t, 1, creates, "exactly one goroutine must create the pipeline")
	assert.Equal(t, 1, r.Len())
	assert.Len(t, collect(readings), n, "every message processes against the single pipeline")

	p, _ := r.GetOrCreate("zone00")
	received, _ := p.Counters()
	assert.Equal(t, uint64(n), received)
}

func collect(ch chan pipeline.Reading) []pipeline.Reading {
	var out []pipeline.Reading
	for r := range ch {
		out = append(out, r)
	}
	return out
}

func TestSnapshotIsStable(t *testing.T) {
	r := newTestRegistry()
	for i := 0; i < 5; i++ {
		r.GetOrCreate(fmt.Sprintf("zone%02d", i))
	}

	snap := r.Snapshot()
	require.Len(t, snap, 5)

	// Mutating the registry does not affect the snapshot already taken.
	r.GetOrCreate("zone99")
	r.Remove("zone00")
	assert.Len(t, snap, 5)
	assert.Equal(t, 5, r.Len())
}

func TestSnapshotWhileIngesting(t *testing.T) {
	r := newTestRegistry()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			p, _ := r.GetOrCreate(fmt.Sprintf("zone%02d", i%10))
			p.Process(500, float64(i))
		}
	}()

	for i := 0; i < 100; i++ {
		for _, p := range r.Snapshot() {
			_ = p.LastTimestamp()
			_ = p.IsNoisy()
		}
	}
	<-done
}

func TestEvictIdle(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	r := New(pipeline.DefaultConfig(), func() time.Time { return now })
	nowSec := float64(now.UnixNano()) / 1e9

	fresh, _ := r.GetOrCreate("fresh")
	fresh.Process(500, nowSec-5)

	idle, _ := r.GetOrCreate("idle")
	idle.Process(500, nowSec-120)

	// Created but never reported: kept.
	r.GetOrCreate("silent")

	evicted := r.EvictIdle(now, time.Minute)
	assert.Equal(t, []string{"idle"}, evicted)
	assert.Equal(t, 2, r.Len())

	_, created := r.GetOrCreate("idle")
	assert.True(t, created, "an evicted sensor is recreated on next sight")
}
