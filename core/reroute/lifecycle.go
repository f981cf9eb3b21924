package reroute

import (
	"context"

	"github.com/kilianp07/freightplan/core/model"
)

// Activate moves a DRAFT plan to ACTIVE, making it eligible for rerouting.
func (e *Engine) Activate(ctx context.Context, planID string) (model.Plan, error) {
	return e.transition(ctx, planID, model.PlanActive)
}

// Complete closes a delivered plan.
func (e *Engine) Complete(ctx context.Context, planID string) (model.Plan, error) {
	return e.transition(ctx, planID, model.PlanCompleted)
}

// Fail marks a plan as failed.
func (e *Engine) Fail(ctx context.Context, planID string) (model.Plan, error) {
	return e.transition(ctx, planID, model.PlanFailed)
}

// transition holds the plan lock so status changes never interleave with a
// re-optimisation of the same plan. Terminal plans are dropped from the
// retry set.
func (e *Engine) transition(ctx context.Context, planID string, next model.PlanStatus) (model.Plan, error) {
	l := e.planLock(planID)
	l.Lock()
	defer l.Unlock()
	p, err := e.store.UpdateStatus(ctx, planID, next)
	if err != nil {
		return model.Plan{}, err
	}
	if next.Terminal() {
		e.mu.Lock()
		delete(e.pending, planID)
		e.mu.Unlock()
		e.locks.Delete(planID)
	}
	e.log.Infof("plan %s is now %s", planID, next)
	return p, nil
}
