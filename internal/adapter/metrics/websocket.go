package metrics

import "github.com/prometheus/client_golang/prometheus"

// StreamMetrics covers the /ws/events subscribers.
type StreamMetrics struct {
	ActiveConnections prometheus.Gauge
	EventsSent        *prometheus.CounterVec
	EventsDropped     prometheus.Counter
}

func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "active_connections",
			Help:      "Number of connected event stream clients.",
		}),
		EventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "sent_total",
			Help:      "Events written to stream clients, by type.",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because a client fell behind.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.EventsSent, m.EventsDropped)
	return m
}
