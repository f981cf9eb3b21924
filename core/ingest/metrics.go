package ingest

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsTotal   *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec) {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_total",
			Help: "Events appended by the ingest poller by type",
		},
		[]string{"type"},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_failures_total",
			Help: "Provider or store failures by type",
		},
		[]string{"type"},
	)
	return events, failures
}

func init() {
	eventsTotal, failuresTotal = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers ingest metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(eventsTotal, failuresTotal)
}

// ResetMetrics reinitializes collectors for tests.
func ResetMetrics(reg prometheus.Registerer) {
	eventsTotal, failuresTotal = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
