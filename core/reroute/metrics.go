package reroute

import "github.com/prometheus/client_golang/prometheus"

var (
	tickTotal     *prometheus.CounterVec
	rerouteTotal  *prometheus.CounterVec
	pendingPlans  prometheus.Gauge
	tickDuration  prometheus.Histogram
	notifyFailure prometheus.Counter
)

func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, prometheus.Gauge, prometheus.Histogram, prometheus.Counter) {
	ticks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reroute_ticks_total",
			Help: "Number of reroute polling ticks by result",
		},
		[]string{"result"},
	)
	reroutes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reroute_plans_total",
			Help: "Number of plan re-optimisations by result",
		},
		[]string{"result"},
	)
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reroute_pending_plans",
		Help: "Plans whose re-optimisation failed and will be retried",
	})
	dur := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reroute_tick_duration_seconds",
		Help:    "Duration of reroute polling ticks",
		Buckets: prometheus.DefBuckets,
	})
	notify := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reroute_notify_failures_total",
		Help: "Reroute notifications that could not be delivered",
	})
	return ticks, reroutes, pending, dur, notify
}

func init() {
	tickTotal, rerouteTotal, pendingPlans, tickDuration, notifyFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers reroute metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(tickTotal, rerouteTotal, pendingPlans, tickDuration, notifyFailure)
}

// ResetMetrics reinitializes collectors for tests and registers them on reg
// when not nil.
func ResetMetrics(reg prometheus.Registerer) {
	tickTotal, rerouteTotal, pendingPlans, tickDuration, notifyFailure = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
