package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/freightplan/core/model"
)

// MemoryStore keeps plans and events in memory. It is safe for concurrent
// use.
type MemoryStore struct {
	mu     sync.RWMutex
	plans  map[string]model.Plan
	events []model.Event
	nextID int64
	now    func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]model.Plan), now: time.Now}
}

var _ Store = (*MemoryStore)(nil)

func clonePlan(p model.Plan) model.Plan {
	if p.Decision != nil {
		d := *p.Decision
		d.Chain = append(model.Chain(nil), d.Chain...)
		p.Decision = &d
	}
	return p
}

func (m *MemoryStore) ActivePlans(ctx context.Context) ([]model.Plan, error) {
	return m.PlansByStatus(ctx, model.PlanActive)
}

func (m *MemoryStore) PlansByStatus(ctx context.Context, status model.PlanStatus) ([]model.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Plan
	for _, p := range m.plans {
		if p.Status == status {
			out = append(out, clonePlan(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SavePlanDecision(ctx context.Context, planID string, u DecisionUpdate) (model.Plan, error) {
	if err := ctx.Err(); err != nil {
		return model.Plan{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[planID]
	if !ok {
		return model.Plan{}, fmt.Errorf("plan %s: %w", planID, ErrNotFound)
	}
	if p.Version != u.ExpectedVersion {
		return model.Plan{}, fmt.Errorf("plan %s at version %d, expected %d: %w", planID, p.Version, u.ExpectedVersion, ErrConflict)
	}
	d := u.Decision
	d.Chain = append(model.Chain(nil), d.Chain...)
	p.Decision = &d
	if u.Reason != "" {
		p.WasRerouted = true
		p.RerouteReason = u.Reason
	}
	p.Version++
	p.UpdatedAt = m.now().UTC()
	m.plans[planID] = p
	return clonePlan(p), nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, e model.Event) (model.Event, error) {
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	if err := e.Validate(); err != nil {
		return model.Event{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	if e.TS.IsZero() {
		e.TS = m.now().UTC()
	}
	m.events = append(m.events, e)
	return e, nil
}

func (m *MemoryStore) RecentEvents(ctx context.Context, limit int) ([]model.Event, error) {
	return m.FindEvents(ctx, EventFilter{Limit: limit})
}

func (m *MemoryStore) FindEvents(ctx context.Context, f EventFilter) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Event, 0, min(f.Limit, len(m.events)))
	for i := len(m.events) - 1; i >= 0 && len(out) < f.Limit; i-- {
		if f.Match(m.events[i].Type) {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) GetPlan(ctx context.Context, id string) (model.Plan, error) {
	if err := ctx.Err(); err != nil {
		return model.Plan{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return model.Plan{}, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return clonePlan(p), nil
}

func (m *MemoryStore) PutPlan(ctx context.Context, p model.Plan) (model.Plan, error) {
	if err := ctx.Err(); err != nil {
		return model.Plan{}, err
	}
	if p.ID == "" {
		return model.Plan{}, fmt.Errorf("plan id is required")
	}
	if p.Status == "" {
		p.Status = model.PlanDraft
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if old, ok := m.plans[p.ID]; ok {
		if old.Status != p.Status && !old.Status.CanTransition(p.Status) {
			return model.Plan{}, fmt.Errorf("plan %s %s -> %s: %w", p.ID, old.Status, p.Status, ErrIllegalTransition)
		}
		p.Version = old.Version + 1
		p.CreatedAt = old.CreatedAt
	} else {
		p.Version = 1
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p = clonePlan(p)
	m.plans[p.ID] = p
	return clonePlan(p), nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id string, next model.PlanStatus) (model.Plan, error) {
	if err := ctx.Err(); err != nil {
		return model.Plan{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return model.Plan{}, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if !p.Status.CanTransition(next) {
		return model.Plan{}, fmt.Errorf("plan %s %s -> %s: %w", id, p.Status, next, ErrIllegalTransition)
	}
	p.Status = next
	p.Version++
	p.UpdatedAt = m.now().UTC()
	m.plans[id] = p
	return clonePlan(p), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
