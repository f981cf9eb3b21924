package metrics

import (
	"time"

	"github.com/kilianp07/freightplan/core/model"
)

// DecisionEvent records one mode selection.
type DecisionEvent struct {
	PlanID       string
	Selection    string
	IsMultimodal bool
	Score        float64
	Metrics      model.ModeMetrics
	Time         time.Time
}

// Sink records planning outcomes for observability. Sinks may additionally
// implement any of the Recorder interfaces below; callers type-assert.
type Sink interface {
	RecordDecision(ev DecisionEvent) error
}

// RerouteEvent records a plan that was re-optimised after a policy breach.
type RerouteEvent struct {
	PlanID         string
	Reason         string
	Previous       string
	Selection      string
	TriggerEventID int64
	Time           time.Time
}

// RerouteRecorder records reroutes.
type RerouteRecorder interface {
	RecordReroute(ev RerouteEvent) error
}

// SolveEvent records one route search. Objective is -1 when no feasible
// solution was found.
type SolveEvent struct {
	Status      string
	Objective   int64
	Vehicles    int
	Stops       int
	PenaltyUsed float64
	Duration    time.Duration
	Time        time.Time
}

// SolveRecorder records route searches.
type SolveRecorder interface {
	RecordSolve(ev SolveEvent) error
}

// OracleFallbackEvent records a delay estimate produced without the oracle.
type OracleFallbackEvent struct {
	Reason           string
	DelayProb        float64
	ExpectedDelayMin float64
	Time             time.Time
}

// OracleFallbackRecorder records oracle fallbacks.
type OracleFallbackRecorder interface {
	RecordOracleFallback(ev OracleFallbackEvent) error
}

// TickEvent summarises a polling tick of the reroute engine.
type TickEvent struct {
	Scanned   int
	Triggered int
	Rerouted  int
	Failed    int
	Duration  time.Duration
	Time      time.Time
}

// TickRecorder records reroute ticks.
type TickRecorder interface {
	RecordTick(ev TickEvent) error
}

// NopSink implements Sink and every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDecision(DecisionEvent) error             { return nil }
func (NopSink) RecordReroute(RerouteEvent) error               { return nil }
func (NopSink) RecordSolve(SolveEvent) error                   { return nil }
func (NopSink) RecordOracleFallback(OracleFallbackEvent) error { return nil }
func (NopSink) RecordTick(TickEvent) error                     { return nil }

// OrNop returns s, or NopSink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return NopSink{}
	}
	return s
}
