package routing

import "github.com/prometheus/client_golang/prometheus"

var (
	solveTotal    *prometheus.CounterVec
	solveDuration prometheus.Histogram
)

func newCollectors() (*prometheus.CounterVec, prometheus.Histogram) {
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_solve_total",
			Help: "Number of route searches by outcome",
		},
		[]string{"status"},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "route_solve_duration_seconds",
			Help:    "Wall-clock duration of route searches",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 20},
		},
	)
	return total, dur
}

func init() {
	solveTotal, solveDuration = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers routing metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(solveTotal, solveDuration)
}

// ResetMetrics reinitializes collectors for tests and registers them on reg
// when not nil.
func ResetMetrics(reg prometheus.Registerer) {
	solveTotal, solveDuration = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
