package prediction

import "github.com/prometheus/client_golang/prometheus"

var (
	oracleFallbacks *prometheus.CounterVec
	oracleLatency   prometheus.Histogram
)

func newCollectors() (*prometheus.CounterVec, prometheus.Histogram) {
	fb := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_fallback_total",
			Help: "Number of delay predictions replaced by the fallback estimate",
		},
		[]string{"reason"},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oracle_predict_latency_seconds",
			Help:    "Latency of delay oracle calls",
			Buckets: prometheus.DefBuckets,
		},
	)
	return fb, lat
}

func init() {
	oracleFallbacks, oracleLatency = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers oracle metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(oracleFallbacks, oracleLatency)
}

// ResetMetrics reinitializes collectors for tests and registers them on reg
// when not nil.
func ResetMetrics(reg prometheus.Registerer) {
	oracleFallbacks, oracleLatency = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
