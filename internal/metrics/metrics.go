// Package metrics defines the Prometheus instrumentation for the processor.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "irrigation"

// Metrics contains all processor-level metrics. Register one instance on an
// explicit registry and share it between the dispatcher and the monitor.
type Metrics struct {
	SamplesReceived   prometheus.Counter
	SamplesMalformed  prometheus.Counter
	SamplesRejected   prometheus.Counter
	QueueDropped      prometheus.Counter
	ReadingsPublished prometheus.Counter
	PublishErrors     prometheus.Counter

	Sensors         prometheus.Gauge
	SensorsByHealth *prometheus.GaugeVec
	MeanNoiseScore  prometheus.Gauge

	ProcessDuration prometheus.Histogram
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SamplesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "samples_received_total",
			Help:      "Raw samples delivered by the transport",
		}),
		SamplesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "samples_malformed_total",
			Help:      "Samples dropped because a required field was missing or unparsable",
		}),
		SamplesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "samples_rejected_out_of_order_total",
			Help:      "Samples dropped by the out-of-order watermark guard",
		}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "queue_dropped_total",
			Help:      "Samples dropped because the dispatch queue was full",
		}),
		ReadingsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "readings_published_total",
			Help:      "Processed readings republished to the broker",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "output",
			Name:      "publish_errors_total",
			Help:      "Processed readings discarded because the outgoing publish failed",
		}),
		Sensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fleet",
			Name:      "sensors",
			Help:      "Sensors currently tracked in the registry",
		}),
		SensorsByHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fleet",
			Name:      "sensors_by_health",
			Help:      "Sensors per health category from the last monitor sweep",
		}, []string{"category"}),
		MeanNoiseScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fleet",
			Name:      "mean_noise_score",
			Help:      "Mean noise score across sensors with enough residual samples",
		}),
		ProcessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "process_duration_seconds",
			Help:      "Per-sample pipeline processing duration",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 8),
		}),
	}

	reg.MustRegister(
		m.SamplesReceived, m.SamplesMalformed, m.SamplesRejected,
		m.QueueDropped, m.ReadingsPublished, m.PublishErrors,
		m.Sensors, m.SensorsByHealth, m.MeanNoiseScore, m.ProcessDuration,
	)
	return m
}
