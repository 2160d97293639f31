// Package pipeline contains pure signal-processing logic for one sensor stream.
// This package has NO external dependencies (no MQTT, OS, or time.Sleep).
// Wall-clock time is always injectable via a clock function.
package pipeline

import "time"

// Status classifies the filtered moisture level.
type Status string

const (
	StatusDry       Status = "DRY"
	StatusOK        Status = "OK"
	StatusOverwater Status = "OVERWATER"
)

// HealthFlag marks a quality problem with a sensor stream.
type HealthFlag string

const (
	HealthOK    HealthFlag = "OK"
	HealthNoisy HealthFlag = "NOISY"
	HealthSpiky HealthFlag = "SPIKY"
	// HealthStale is assigned by the monitor, never by Process: a pipeline
	// only runs when data arrives, so it cannot observe absence of data.
	HealthStale HealthFlag = "STALE"
)

// RawSample is one decoded reading from a sensor. Transient; never stored
// beyond a single Process call.
type RawSample struct {
	SensorID  string
	Value     float64
	Timestamp float64 // seconds, sender clock
}

// Reading is the processed output for one accepted sample. Immutable once
// produced. The JSON shape is the republished wire format.
type Reading struct {
	SensorID   string       `json:"sensor_id"`
	Timestamp  float64      `json:"ts"`
	Raw        float64      `json:"raw"`
	Median     float64      `json:"median"`
	Filtered   float64      `json:"filtered"`
	Status     Status       `json:"status"`
	Health     []HealthFlag `json:"health"`
	NoiseScore float64      `json:"noise_score"`
}

// Config holds the pipeline tuning constants. Treated as immutable after
// construction; every pipeline receives its own copy.
type Config struct {
	MedianWindow int     // samples in the median filter
	EMAAlpha     float64 // smoothing factor (0 < alpha <= 1)
	MaxJump      float64 // clamp if the median moves more than this from the last output
	OOOSlack     float64 // seconds: drop packets older than the watermark by more than this

	ResidualWindow  int           // rolling window for residual variance
	NoisyThreshold  float64       // residual variance above this is noisy
	NoisyPersist    time.Duration // variance must stay above threshold this long to flag
	ClampWindow     int           // recent samples in which clamps are counted
	ClampThreshold  int           // clamp count at or above this flags SPIKY
	MoistureDry     float64       // filtered below this is DRY
	MoistureOverwtr float64       // filtered above this is OVERWATER
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		MedianWindow:    7,
		EMAAlpha:        0.20,
		MaxJump:         80.0,
		OOOSlack:        1.0,
		ResidualWindow:  20,
		NoisyThreshold:  60.0,
		NoisyPersist:    3 * time.Second,
		ClampWindow:     30,
		ClampThreshold:  3,
		MoistureDry:     350.0,
		MoistureOverwtr: 650.0,
	}
}
