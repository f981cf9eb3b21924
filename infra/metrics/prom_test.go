package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/kilianp07/freightplan/core/metrics"
)

func newPromSink(t *testing.T, reg prometheus.Registerer) *PromSink {
	t.Helper()
	s, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink, ok := s.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink, got %T", s)
	}
	return sink
}

func TestPromSink_RecordDecision(t *testing.T) {
	sink := newPromSink(t, prometheus.NewRegistry())
	if err := sink.RecordDecision(coremetrics.DecisionEvent{Selection: "rail", Score: 893.775, Time: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.RecordDecision(coremetrics.DecisionEvent{Selection: "road>rail>road", IsMultimodal: true, Score: 1342.975}); err != nil {
		t.Fatalf("record: %v", err)
	}
	expected := `
# HELP planner_decisions_total Mode decisions by selected mode or chain
# TYPE planner_decisions_total counter
planner_decisions_total{multimodal="false",selection="rail"} 1
planner_decisions_total{multimodal="true",selection="road>rail>road"} 1
`
	if err := testutil.CollectAndCompare(sink.decisions, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	if c := testutil.CollectAndCount(sink.score); c == 0 {
		t.Errorf("score not recorded")
	}
}

func TestPromSink_Recorders(t *testing.T) {
	sink := newPromSink(t, prometheus.NewRegistry())
	_ = sink.RecordReroute(coremetrics.RerouteEvent{Reason: "EVENT_TRIGGERED", Previous: "road", Selection: "rail"})
	_ = sink.RecordReroute(coremetrics.RerouteEvent{Reason: "EVENT_TRIGGERED", Previous: "rail", Selection: "rail"})
	if got := testutil.ToFloat64(sink.reroutes.WithLabelValues("EVENT_TRIGGERED", "true")); got != 1 {
		t.Fatalf("changed reroutes = %v", got)
	}

	_ = sink.RecordSolve(coremetrics.SolveEvent{Status: "infeasible", Objective: -1})
	if got := testutil.ToFloat64(sink.objective); got != 0 {
		t.Fatalf("infeasible solve must not set objective, got %v", got)
	}
	_ = sink.RecordSolve(coremetrics.SolveEvent{Status: "feasible", Objective: 74, PenaltyUsed: 27})
	if got := testutil.ToFloat64(sink.objective); got != 74 {
		t.Fatalf("objective = %v", got)
	}

	_ = sink.RecordOracleFallback(coremetrics.OracleFallbackEvent{Reason: "malformed"})
	if got := testutil.ToFloat64(sink.fallbacks.WithLabelValues("malformed")); got != 1 {
		t.Fatalf("fallbacks = %v", got)
	}

	_ = sink.RecordTick(coremetrics.TickEvent{Rerouted: 3})
	if got := testutil.ToFloat64(sink.rerouted); got != 3 {
		t.Fatalf("rerouted gauge = %v", got)
	}
}

// A second sink on the same registry reuses the registered collectors.
func TestPromSink_ReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := newPromSink(t, reg)
	b := newPromSink(t, reg)
	_ = a.RecordOracleFallback(coremetrics.OracleFallbackEvent{Reason: "unavailable"})
	_ = b.RecordOracleFallback(coremetrics.OracleFallbackEvent{Reason: "unavailable"})
	if got := testutil.ToFloat64(a.fallbacks.WithLabelValues("unavailable")); got != 2 {
		t.Fatalf("expected shared counter at 2, got %v", got)
	}
}
