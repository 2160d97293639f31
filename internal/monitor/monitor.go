// Package monitor runs the periodic staleness sweep over the sensor
// registry. It is the only place STALE can be decided: a pipeline runs only
// when data arrives, so absence of data is detectable only from outside.
package monitor

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/sweeney/irrigation-processor/internal/pipeline"
	"github.com/sweeney/irrigation-processor/internal/registry"
)

// StaleSensor identifies one sensor with no recent input.
type StaleSensor struct {
	SensorID string
	Gap      float64 // seconds since the sensor's watermark
}

// Summary is the aggregate fleet health of one sweep. Categories are
// mutually exclusive with precedence STALE > NOISY > SPIKY > OK, even
// though a single reading's health-flag set is not.
type Summary struct {
	Total     int
	OK        int
	Noisy     int
	Spiky     int
	Stale     int
	MeanNoise float64 // over sensors with enough residuals; capped at 1.0
	Scored    int     // sensors that contributed to MeanNoise
	StaleList []StaleSensor
	Evicted   []string
}

// Config holds the monitor timing parameters.
type Config struct {
	Interval     time.Duration // sweep period
	StaleTimeout time.Duration // watermark gap beyond this is STALE
	EvictAfter   time.Duration // watermark gap beyond this drops the pipeline; 0 disables
}

// DefaultConfig returns the production timing: 5s sweeps, 10s staleness,
// eviction at six times the stale timeout.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Second,
		StaleTimeout: 10 * time.Second,
		EvictAfter:   60 * time.Second,
	}
}

// Monitor periodically sweeps the registry snapshot.
type Monitor struct {
	reg *registry.Registry
	cfg Config
	log *slog.Logger
	now func() time.Time

	// OnSweep, if set, receives every summary. Used by main to feed the
	// status tracker and Prometheus gauges without coupling them here.
	OnSweep func(Summary)
}

// New creates a monitor over reg. Pass time.Now as the clock in production.
func New(reg *registry.Registry, cfg Config, log *slog.Logger, now func() time.Time) *Monitor {
	return &Monitor{reg: reg, cfg: cfg, log: log, now: now}
}

// Sweep classifies every pipeline in the current snapshot, logs a warning
// per stale sensor, evicts long-idle pipelines when configured, and returns
// the aggregate summary. Individual field reads may interleave with ongoing
// ingestion; cross-field consistency is not required.
func (m *Monitor) Sweep(now time.Time) Summary {
	nowSec := float64(now.UnixNano()) / 1e9
	staleSec := m.cfg.StaleTimeout.Seconds()

	var s Summary
	var noiseSum float64
	for _, p := range m.reg.Snapshot() {
		s.Total++
		last := p.LastTimestamp()
		gap := nowSec - last

		switch classify(p, last, gap, staleSec) {
		case pipeline.HealthStale:
			s.Stale++
			s.StaleList = append(s.StaleList, StaleSensor{SensorID: p.ID(), Gap: gap})
			m.log.Warn("sensor stale", "sensor_id", p.ID(), "gap_s", round1(gap))
		case pipeline.HealthNoisy:
			s.Noisy++
		case pipeline.HealthSpiky:
			s.Spiky++
		default:
			s.OK++
		}

		if score, ok := p.ResidualNoise(); ok {
			noiseSum += score
			s.Scored++
		}
	}
	if s.Scored > 0 {
		s.MeanNoise = round3(math.Min(noiseSum/float64(s.Scored), 1.0))
	}

	if m.cfg.EvictAfter > 0 {
		s.Evicted = m.reg.EvictIdle(now, m.cfg.EvictAfter)
		for _, id := range s.Evicted {
			m.log.Info("evicted idle sensor", "sensor_id", id)
		}
	}
	return s
}

// classify assigns one sensor its summary category. Staleness wins over
// everything: a stale sensor's noise and spike state is old news. A sensor
// that has never accepted a sample is OK, not stale.
func classify(p *pipeline.Pipeline, last, gap, staleSec float64) pipeline.HealthFlag {
	switch {
	case last > 0 && gap > staleSec:
		return pipeline.HealthStale
	case p.IsNoisy():
		return pipeline.HealthNoisy
	case p.IsSpiky():
		return pipeline.HealthSpiky
	default:
		return pipeline.HealthOK
	}
}

// Run sweeps on the configured period until ctx is cancelled. Sweeps with
// no sensors are skipped entirely, matching a fleet that has not reported.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.reg.Len() == 0 {
				continue
			}
			s := m.Sweep(m.now())
			m.log.Info("fleet health",
				"sensors", s.Total,
				"ok", s.OK,
				"noisy", s.Noisy,
				"spiky", s.Spiky,
				"stale", s.Stale,
				"avg_noise", s.MeanNoise,
			)
			if m.OnSweep != nil {
				m.OnSweep(s)
			}
		}
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
