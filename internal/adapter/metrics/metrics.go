package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "collect"

// NewRegistry creates the registry for the agent's own collectors. Runtime
// and process collectors already live on the default registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler serves reg merged with the default registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(prometheus.Gatherers{reg, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
}
