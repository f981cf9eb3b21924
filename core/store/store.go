// Package store defines the persistence port used by the planning core and
// an in-memory implementation.
package store

import (
	"context"
	"errors"

	"github.com/kilianp07/freightplan/core/model"
)

var (
	// ErrNotFound is returned for unknown plans.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a plan changed since it was read.
	ErrConflict = errors.New("persistence conflict")
)

// DecisionUpdate is the result of a re-optimisation. ExpectedVersion is the
// plan version the decision was computed from.
type DecisionUpdate struct {
	Decision        model.PlanDecision
	Reason          string
	ExpectedVersion int64
}

// EventFilter narrows FindEvents. Empty Types matches every type; Exclude
// wins over Types.
type EventFilter struct {
	Limit   int
	Types   []model.EventType
	Exclude []model.EventType
}

// Match reports whether an event of type t passes the filter.
func (f EventFilter) Match(t model.EventType) bool {
	for _, x := range f.Exclude {
		if x == t {
			return false
		}
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, x := range f.Types {
		if x == t {
			return true
		}
	}
	return false
}

// Store persists plans and events.
type Store interface {
	// ActivePlans returns every plan in ACTIVE state ordered by id.
	ActivePlans(ctx context.Context) ([]model.Plan, error)
	// PlansByStatus returns every plan in status ordered by id.
	PlansByStatus(ctx context.Context, status model.PlanStatus) ([]model.Plan, error)
	// SavePlanDecision stores a new decision, marks the plan rerouted when
	// Reason is set and bumps its version. It fails with ErrConflict when
	// the stored version differs from ExpectedVersion.
	SavePlanDecision(ctx context.Context, planID string, u DecisionUpdate) (model.Plan, error)
	// AppendEvent assigns the next event id and stores e.
	AppendEvent(ctx context.Context, e model.Event) (model.Event, error)
	// RecentEvents returns at most limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]model.Event, error)
	// FindEvents returns at most f.Limit events matching f, newest first.
	FindEvents(ctx context.Context, f EventFilter) ([]model.Event, error)

	GetPlan(ctx context.Context, id string) (model.Plan, error)
	// PutPlan creates or replaces a plan and returns it with its new version.
	// Replacing a plan may keep its status or take a legal transition;
	// anything else fails with ErrIllegalTransition.
	PutPlan(ctx context.Context, p model.Plan) (model.Plan, error)
	// UpdateStatus moves a plan to next when the transition is legal.
	UpdateStatus(ctx context.Context, id string, next model.PlanStatus) (model.Plan, error)

	Close() error
}

// ErrIllegalTransition is returned by UpdateStatus for forbidden moves.
var ErrIllegalTransition = errors.New("illegal status transition")
