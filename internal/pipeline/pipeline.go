package pipeline

import (
	"math"
	"sync"
	"time"
)

// noiseScoreScale normalises residual variance into the [0,1] noise score.
const noiseScoreScale = 500.0

// Pipeline owns the rolling filter state for one sensor stream. The ingest
// path is the only writer; the staleness monitor reads concurrently through
// the accessor methods. All state sits behind one mutex so a reader never
// observes a torn multi-word value, though readers may see fields from
// slightly different moments across separate calls.
type Pipeline struct {
	mu  sync.Mutex
	id  string
	cfg Config
	now func() time.Time

	median    *floatWindow
	residuals *floatWindow
	clamps    *boolWindow

	ema          float64
	emaSet       bool
	lastFiltered float64
	filteredSet  bool
	lastTS       float64 // watermark: highest accepted timestamp

	totalReceived   uint64
	totalOOODropped uint64

	noisySince time.Time // zero when variance is currently below threshold
	isNoisy    bool
}

// New creates a pipeline for the given sensor id. The clock is used only for
// the NOISY persistence debounce; pass time.Now in production.
func New(id string, cfg Config, now func() time.Time) *Pipeline {
	return &Pipeline{
		id:        id,
		cfg:       cfg,
		now:       now,
		median:    newFloatWindow(cfg.MedianWindow),
		residuals: newFloatWindow(cfg.ResidualWindow),
		clamps:    newBoolWindow(cfg.ClampWindow),
	}
}

// Process runs one raw sample through the filter chain. It returns ok=false
// when the sample is rejected as out-of-order; a rejected sample mutates
// nothing except the rejection counter, so rejection is idempotent.
func (p *Pipeline) Process(raw, ts float64) (Reading, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Out-of-order guard: older than the watermark minus the slack window
	// means a stale duplicate, not a correction. Permanent decision.
	if p.lastTS > 0 && ts < p.lastTS-p.cfg.OOOSlack {
		p.totalOOODropped++
		return Reading{}, false
	}

	p.totalReceived++
	p.lastTS = math.Max(p.lastTS, ts)

	p.median.Push(raw)
	medianVal := p.median.Median()

	// Sanity clamp against the previous smoothed output.
	clamped := false
	if p.filteredSet && math.Abs(medianVal-p.lastFiltered) > p.cfg.MaxJump {
		medianVal = p.lastFiltered + math.Copysign(p.cfg.MaxJump, medianVal-p.lastFiltered)
		clamped = true
	}
	p.clamps.Push(clamped)

	// EMA smoothing. Only the published value is rounded; the accumulator
	// keeps full precision so rounding error does not compound.
	if !p.emaSet {
		p.ema = medianVal
		p.emaSet = true
	} else {
		p.ema = p.cfg.EMAAlpha*medianVal + (1-p.cfg.EMAAlpha)*p.ema
	}
	filtered := round2(p.ema)
	p.lastFiltered = filtered
	p.filteredSet = true

	// Residual-based noise score, immune to slow signal movements.
	residual := raw - filtered
	p.residuals.Push(residual)
	var resVar, noiseScore float64
	if p.residuals.Len() >= 3 {
		resVar = p.residuals.Variance()
		noiseScore = round3(math.Min(resVar/noiseScoreScale, 1.0))
	}

	// NOISY must persist before it is reported, so a single transient
	// spike cannot flap the flag.
	nowT := p.now()
	if resVar > p.cfg.NoisyThreshold {
		if p.noisySince.IsZero() {
			p.noisySince = nowT
		}
		if nowT.Sub(p.noisySince) >= p.cfg.NoisyPersist {
			p.isNoisy = true
		}
	} else {
		p.noisySince = time.Time{}
		p.isNoisy = false
	}

	var health []HealthFlag
	if p.isNoisy {
		health = append(health, HealthNoisy)
	}
	if p.clamps.TrueCount() >= p.cfg.ClampThreshold {
		health = append(health, HealthSpiky)
	}
	if len(health) == 0 {
		health = []HealthFlag{HealthOK}
	}

	var status Status
	switch {
	case filtered < p.cfg.MoistureDry:
		status = StatusDry
	case filtered > p.cfg.MoistureOverwtr:
		status = StatusOverwater
	default:
		status = StatusOK
	}

	return Reading{
		SensorID:   p.id,
		Timestamp:  ts,
		Raw:        raw,
		Median:     round2(medianVal),
		Filtered:   filtered,
		Status:     status,
		Health:     health,
		NoiseScore: noiseScore,
	}, true
}

// ID returns the sensor id this pipeline serves.
func (p *Pipeline) ID() string { return p.id }

// LastTimestamp returns the watermark of accepted timestamps (0 before any
// sample has been accepted).
func (p *Pipeline) LastTimestamp() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTS
}

// IsNoisy reports whether residual variance has stayed above the noise
// threshold for the persistence window.
func (p *Pipeline) IsNoisy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isNoisy
}

// IsSpiky reports whether the recent clamp count has crossed the threshold.
func (p *Pipeline) IsSpiky() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clamps.TrueCount() >= p.cfg.ClampThreshold
}

// ResidualNoise returns the current residual variance normalised by the
// score scale, uncapped. ok is false while fewer than 3 residuals are held;
// such sensors are excluded from fleet averages rather than counted as zero.
func (p *Pipeline) ResidualNoise() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.residuals.Len() < 3 {
		return 0, false
	}
	return p.residuals.Variance() / noiseScoreScale, true
}

// Counters returns the totals of accepted and out-of-order-rejected samples.
func (p *Pipeline) Counters() (received, rejected uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalReceived, p.totalOOODropped
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
