package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the refresh counters on the process-wide prometheus
// registry.
type Metrics struct {
	refreshed prometheus.Gauge
	failed    prometheus.Gauge
	total     prometheus.Gauge
}

// New registers the refresh gauges with the given registerer
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		refreshed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "successfully_refreshed",
			Help: "The number of successfully refreshed connections",
		}),
		failed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "failed_to_refresh",
			Help: "The number of failed to refresh connections",
		}),
		total: factory.NewGauge(prometheus.GaugeOpts{
			Name: "refresh_total",
			Help: "The total number of refreshes",
		}),
	}
}

// AddRefreshed records successfully refreshed connections
func (m *Metrics) AddRefreshed(count int) {
	m.refreshed.Add(float64(count))
	m.total.Add(float64(count))
}

// AddFailed records connections that failed to refresh
func (m *Metrics) AddFailed(count int) {
	m.failed.Add(float64(count))
	m.total.Add(float64(count))
}
