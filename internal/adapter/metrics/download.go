package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DownloadMetrics records form download sequences.
type DownloadMetrics struct {
	Started       prometheus.Counter
	Finished      *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	WatchdogFires prometheus.Counter
}

func NewDownloadMetrics(reg prometheus.Registerer) *DownloadMetrics {
	m := &DownloadMetrics{
		Started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "sequences_started_total",
			Help:      "Form download sequences started.",
		}),
		Finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "sequences_finished_total",
			Help:      "Form download sequences finished, by outcome.",
		}, []string{"outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "sequence_duration_seconds",
			Help:      "Wall time of form download sequences, by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 12, 20, 60},
		}, []string{"outcome"}),
		WatchdogFires: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "watchdog_fired_total",
			Help:      "Sequences cut short by the deadline watchdog.",
		}),
	}

	reg.MustRegister(m.Started, m.Finished, m.Duration, m.WatchdogFires)
	return m
}

func (m *DownloadMetrics) SequenceStarted() { m.Started.Inc() }

func (m *DownloadMetrics) SequenceFinished(outcome string, d time.Duration) {
	m.Finished.WithLabelValues(outcome).Inc()
	m.Duration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *DownloadMetrics) WatchdogFired() { m.WatchdogFires.Inc() }
