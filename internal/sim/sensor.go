// Package sim implements the virtual soil-moisture sensor model used by
// cmd/sensor-sim to generate realistic raw traffic.
package sim

import (
	"math"
	"math/rand"

	"github.com/sweeney/irrigation-processor/internal/mqtt"
)

// Sensor simulates one soil-moisture sensor: a baseline with Gaussian
// noise, occasional outlier spikes, slow drift, and irrigation events that
// step the signal up and decay exponentially. Battery and temperature are
// cosmetic. Not safe for concurrent use; each sensor runs on one goroutine.
type Sensor struct {
	id  string
	rng *rand.Rand

	moisture  float64
	noiseStd  float64
	spikeProb float64
	spikeMin  float64
	spikeMax  float64
	driftRate float64 // units per second

	irrAmplitude float64
	irrTau       float64 // decay time constant, seconds
	irrProb      float64

	batteryV float64
	tempC    float64
}

// NewSensor creates a sensor around the given baseline. The caller owns the
// rand source, so simulations are reproducible under a fixed seed.
func NewSensor(id string, baseline float64, rng *rand.Rand) *Sensor {
	return &Sensor{
		id:        id,
		rng:       rng,
		moisture:  baseline,
		noiseStd:  3.0,
		spikeProb: 0.015,
		spikeMin:  60.0,
		spikeMax:  150.0,
		driftRate: rng.Float64()*0.3 - 0.15,
		irrTau:    60.0,
		irrProb:   0.005,
		batteryV:  3.6 + rng.Float64()*0.6,
		tempC:     18.0 + rng.Float64()*12.0,
	}
}

// ID returns the sensor id.
func (s *Sensor) ID() string { return s.id }

// Tick advances the sensor by dt seconds and returns a reading stamped with
// the given sender time (seconds).
func (s *Sensor) Tick(dt, now float64) mqtt.RawPayload {
	s.moisture += s.driftRate * dt

	// Irrigation event: step up, then exponential decay.
	if s.rng.Float64() < s.irrProb {
		s.irrAmplitude += 80 + s.rng.Float64()*70
	}
	if s.irrAmplitude > 0.1 {
		decay := math.Exp(-dt / s.irrTau)
		s.moisture += s.irrAmplitude * (1 - decay)
		s.irrAmplitude *= decay
	}

	noise := s.rng.NormFloat64() * s.noiseStd

	var spike float64
	if s.rng.Float64() < s.spikeProb {
		spike = s.spikeMin + s.rng.Float64()*(s.spikeMax-s.spikeMin)
		if s.rng.Float64() < 0.5 {
			spike = -spike
		}
	}

	raw := s.moisture + noise + spike

	// Very slow battery drain, small temperature wander.
	s.batteryV = math.Max(3.0, s.batteryV-s.rng.Float64()*0.0001)
	s.tempC += s.rng.Float64()*0.1 - 0.05

	return mqtt.RawPayload{
		SensorID:    s.id,
		Timestamp:   round3(now),
		MoistureRaw: round2(raw),
		BatteryV:    round2(s.batteryV),
		TempC:       math.Round(s.tempC*10) / 10,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
