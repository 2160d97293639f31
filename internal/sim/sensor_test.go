package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickStaysNearBaselineWithoutEvents(t *testing.T) {
	s := NewSensor("zone00", 500, rand.New(rand.NewSource(1)))
	s.spikeProb = 0
	s.irrProb = 0
	s.driftRate = 0

	for i := 0; i < 200; i++ {
		p := s.Tick(0.5, float64(i)*0.5)
		require.Equal(t, "zone00", p.SensorID)
		require.InDelta(t, 500, p.MoistureRaw, 20, "tick %d", i)
	}
}

func TestTickReproducibleUnderFixedSeed(t *testing.T) {
	a := NewSensor("zone00", 500, rand.New(rand.NewSource(42)))
	b := NewSensor("zone00", 500, rand.New(rand.NewSource(42)))
	for i := 0; i < 50; i++ {
		now := float64(i) * 0.5
		assert.Equal(t, a.Tick(0.5, now), b.Tick(0.5, now))
	}
}

func TestIrrigationEventStepsAndDecays(t *testing.T) {
	s := NewSensor("zone00", 500, rand.New(rand.NewSource(7)))
	s.spikeProb = 0
	s.irrProb = 0
	s.noiseStd = 0
	s.driftRate = 0

	// Force one irrigation event.
	s.irrAmplitude = 100

	p := s.Tick(1.0, 0)
	require.Greater(t, p.MoistureRaw, 500.0, "step up after the event")
	peak := p.MoistureRaw

	// The remaining amplitude decays toward zero, so later increments shrink.
	var prev = peak
	for i := 1; i <= 10; i++ {
		p = s.Tick(1.0, float64(i))
		require.GreaterOrEqual(t, p.MoistureRaw, prev)
		prev = p.MoistureRaw
	}
	assert.Less(t, s.irrAmplitude, 100.0*0.9)
}

func TestSpikesAreBounded(t *testing.T) {
	s := NewSensor("zone00", 500, rand.New(rand.NewSource(3)))
	s.irrProb = 0
	s.driftRate = 0
	s.noiseStd = 0
	s.spikeProb = 1 // spike on every tick

	for i := 0; i < 100; i++ {
		p := s.Tick(0.5, float64(i)*0.5)
		dev := p.MoistureRaw - 500
		if dev < 0 {
			dev = -dev
		}
		require.GreaterOrEqual(t, dev, 60.0)
		require.LessOrEqual(t, dev, 150.0)
	}
}

func TestBatteryNeverBelowFloor(t *testing.T) {
	s := NewSensor("zone00", 500, rand.New(rand.NewSource(9)))
	for i := 0; i < 1000; i++ {
		p := s.Tick(0.5, float64(i)*0.5)
		require.GreaterOrEqual(t, p.BatteryV, 3.0)
	}
}
