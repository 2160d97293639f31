package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Fleet         FleetJSON  `json:"fleet"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports broker connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// FleetJSON is the JSON representation of the last monitor sweep.
type FleetJSON struct {
	Sensors   int     `json:"sensors"`
	OK        int     `json:"ok"`
	Noisy     int     `json:"noisy"`
	Spiky     int     `json:"spiky"`
	Stale     int     `json:"stale"`
	AvgNoise  float64 `json:"avg_noise"`
	LastSweep string  `json:"last_sweep,omitempty"`
}

// CountsJSON is the JSON representation of the ingest/output counters.
type CountsJSON struct {
	Received      uint64 `json:"received"`
	Malformed     uint64 `json:"malformed"`
	RejectedOOO   uint64 `json:"rejected_out_of_order"`
	QueueDropped  uint64 `json:"queue_dropped"`
	Published     uint64 `json:"published"`
	PublishErrors uint64 `json:"publish_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Broker           string  `json:"broker"`
	HTTPAddr         string  `json:"http_addr"`
	SummaryIntervalS float64 `json:"summary_interval_s"`
	StaleTimeoutS    float64 `json:"stale_timeout_s"`
	EvictAfterS      float64 `json:"evict_after_s"`
	QueueSize        int     `json:"queue_size"`
}

// FormatJSON returns the JSON status document for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Fleet: FleetJSON{
			Sensors:  snap.Summary.Total,
			OK:       snap.Summary.OK,
			Noisy:    snap.Summary.Noisy,
			Spiky:    snap.Summary.Spiky,
			Stale:    snap.Summary.Stale,
			AvgNoise: snap.Summary.MeanNoise,
		},
		Counts: CountsJSON{
			Received:      snap.Counts.Received,
			Malformed:     snap.Counts.Malformed,
			RejectedOOO:   snap.Counts.RejectedOOO,
			QueueDropped:  snap.Counts.QueueDropped,
			Published:     snap.Counts.Published,
			PublishErrors: snap.Counts.PublishErrors,
		},
		Config: ConfigJSON{
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
			SummaryIntervalS: snap.Config.SummaryIntervalS,
			StaleTimeoutS:    snap.Config.StaleTimeoutS,
			EvictAfterS:      snap.Config.EvictAfterS,
			QueueSize:        snap.Config.QueueSize,
		},
	}
	if !snap.LastSweep.IsZero() {
		inner.Fleet.LastSweep = snap.LastSweep.UTC().Format(time.RFC3339)
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
