package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/freightplan/core/metrics"
)

// PromSink records planning outcomes as Prometheus metrics.
type PromSink struct {
	decisions *prometheus.CounterVec
	score     prometheus.Histogram
	reroutes  *prometheus.CounterVec
	penalty   prometheus.Histogram
	objective prometheus.Gauge
	fallbacks *prometheus.CounterVec
	rerouted  prometheus.Gauge
}

// NewPromSink registers planning metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on reg, reusing collectors that
// are already registered. A nil registerer defaults to the global one.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_decisions_total",
			Help: "Mode decisions by selected mode or chain",
		}, []string{"selection", "multimodal"}),
		score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_decision_score",
			Help:    "Weighted objective of selected decisions",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}),
		reroutes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_reroutes_total",
			Help: "Plans re-optimised after a policy breach",
		}, []string{"reason", "changed"}),
		penalty: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_solve_penalty_minutes",
			Help:    "Delay penalty minutes carried by solved routes",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		objective: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_solve_objective_minutes",
			Help: "Objective of the last feasible route search",
		}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_fallback_estimates_total",
			Help: "Delay estimates produced by the fallback model",
		}, []string{"reason"}),
		rerouted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_last_tick_rerouted",
			Help: "Plans rerouted by the last reroute tick",
		}),
	}
	var err error
	if s.decisions, err = register(reg, s.decisions); err != nil {
		return nil, err
	}
	if s.score, err = register(reg, s.score); err != nil {
		return nil, err
	}
	if s.reroutes, err = register(reg, s.reroutes); err != nil {
		return nil, err
	}
	if s.penalty, err = register(reg, s.penalty); err != nil {
		return nil, err
	}
	if s.objective, err = register(reg, s.objective); err != nil {
		return nil, err
	}
	if s.fallbacks, err = register(reg, s.fallbacks); err != nil {
		return nil, err
	}
	if s.rerouted, err = register(reg, s.rerouted); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) RecordDecision(ev coremetrics.DecisionEvent) error {
	s.decisions.WithLabelValues(ev.Selection, strconv.FormatBool(ev.IsMultimodal)).Inc()
	s.score.Observe(ev.Score)
	return nil
}

func (s *PromSink) RecordReroute(ev coremetrics.RerouteEvent) error {
	s.reroutes.WithLabelValues(ev.Reason, strconv.FormatBool(ev.Previous != ev.Selection)).Inc()
	return nil
}

func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	if ev.Objective < 0 {
		return nil
	}
	s.penalty.Observe(ev.PenaltyUsed)
	s.objective.Set(float64(ev.Objective))
	return nil
}

func (s *PromSink) RecordOracleFallback(ev coremetrics.OracleFallbackEvent) error {
	s.fallbacks.WithLabelValues(ev.Reason).Inc()
	return nil
}

func (s *PromSink) RecordTick(ev coremetrics.TickEvent) error {
	s.rerouted.Set(float64(ev.Rerouted))
	return nil
}
