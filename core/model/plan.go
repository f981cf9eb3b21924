package model

import (
	"fmt"
	"time"
)

// PlanStatus is the lifecycle state of a plan.
type PlanStatus string

const (
	PlanDraft            PlanStatus = "DRAFT"
	PlanActive           PlanStatus = "ACTIVE"
	PlanRerouteTriggered PlanStatus = "REROUTE_TRIGGERED"
	PlanCompleted        PlanStatus = "COMPLETED"
	PlanFailed           PlanStatus = "FAILED"
)

var planTransitions = map[PlanStatus][]PlanStatus{
	PlanDraft:            {PlanActive, PlanFailed},
	PlanActive:           {PlanRerouteTriggered, PlanCompleted, PlanFailed},
	PlanRerouteTriggered: {PlanActive, PlanFailed},
}

// CanTransition reports whether s may move to next.
func (s PlanStatus) CanTransition(next PlanStatus) bool {
	for _, n := range planTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s PlanStatus) Terminal() bool {
	return s == PlanCompleted || s == PlanFailed
}

// ParsePlanStatus validates a status name.
func ParsePlanStatus(s string) (PlanStatus, error) {
	switch st := PlanStatus(s); st {
	case PlanDraft, PlanActive, PlanRerouteTriggered, PlanCompleted, PlanFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown plan status %q", s)
}

// RerouteReasonEventTriggered marks decisions recomputed after a policy breach.
const RerouteReasonEventTriggered = "EVENT_TRIGGERED"

// Plan is a persisted freight plan with its latest mode decision.
type Plan struct {
	ID            string        `json:"id"`
	Status        PlanStatus    `json:"status"`
	DistanceKM    float64       `json:"distance_km"`
	Delay         DelayEstimate `json:"delay"`
	Weights       Weights       `json:"weights"`
	Decision      *PlanDecision `json:"decision,omitempty"`
	WasRerouted   bool          `json:"was_rerouted"`
	RerouteReason string        `json:"reroute_reason,omitempty"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Validate checks the inputs needed to recompute a decision.
func (p Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan id is required")
	}
	if p.DistanceKM <= 0 {
		return fmt.Errorf("plan %s: distance_km must be > 0", p.ID)
	}
	if err := p.Delay.Validate(); err != nil {
		return fmt.Errorf("plan %s: %w", p.ID, err)
	}
	return p.Weights.Validate()
}
