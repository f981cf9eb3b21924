package events

import (
	"time"

	"github.com/kilianp07/freightplan/core/model"
)

// Event is implemented by every event published on the planning bus.
type Event interface {
	Kind() string
}

// DecisionEvent is published whenever the optimizer selects a mode or chain.
type DecisionEvent struct {
	PlanID   string
	Decision model.PlanDecision
	Time     time.Time
}

func (DecisionEvent) Kind() string { return "decision" }

// RerouteEvent is published after a plan was re-optimised and saved.
type RerouteEvent struct {
	PlanID       string
	Reason       string
	TriggerEvent int64
	Previous     string
	Decision     model.PlanDecision
	Time         time.Time
}

func (RerouteEvent) Kind() string { return "reroute" }

// TickEvent summarises one polling tick of the reroute engine.
type TickEvent struct {
	Scanned   int
	Triggered int
	Rerouted  int
	Failed    int
	Duration  time.Duration
	Time      time.Time
}

func (TickEvent) Kind() string { return "tick" }

// OracleFallbackEvent is published when a fallback estimate replaced the oracle.
// Reason is "unavailable" or "malformed".
type OracleFallbackEvent struct {
	Reason   string
	Err      error
	Estimate model.DelayEstimate
	Time     time.Time
}

func (OracleFallbackEvent) Kind() string { return "oracle_fallback" }

// SolveEvent records the outcome of one route search. Status is "feasible",
// "infeasible" or "timeout".
type SolveEvent struct {
	Status      string
	Objective   *int64
	Vehicles    int
	Stops       int
	PenaltyUsed float64
	Duration    time.Duration
	Time        time.Time
}

func (SolveEvent) Kind() string { return "solve" }
