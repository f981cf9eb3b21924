// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/store"
)

// Run exercises s. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("PlanLifecycle", func(t *testing.T) { testPlanLifecycle(t, newStore(t)) })
	t.Run("SaveDecision", func(t *testing.T) { testSaveDecision(t, newStore(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("ConcurrentSaves", func(t *testing.T) { testConcurrentSaves(t, newStore(t)) })
	t.Run("PutPlanKeepsLifecycle", func(t *testing.T) { testPutPlanKeepsLifecycle(t, newStore(t)) })
	t.Run("FilteredEvents", func(t *testing.T) { testFilteredEvents(t, newStore(t)) })
}

func plan(id string) model.Plan {
	return model.Plan{
		ID:         id,
		Status:     model.PlanActive,
		DistanceKM: 800,
		Delay:      model.DelayEstimate{DelayProb: 0.25, ExpectedDelayMin: 20},
		Weights:    model.DefaultWeights(),
	}
}

func testPlanLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetPlan(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	draft := plan("p-draft")
	draft.Status = model.PlanDraft
	got, err := s.PutPlan(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)

	_, err = s.PutPlan(ctx, plan("p-b"))
	require.NoError(t, err)
	_, err = s.PutPlan(ctx, plan("p-a"))
	require.NoError(t, err)

	active, err := s.ActivePlans(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "p-a", active[0].ID)
	assert.Equal(t, "p-b", active[1].ID)

	_, err = s.UpdateStatus(ctx, "p-draft", model.PlanCompleted)
	require.ErrorIs(t, err, store.ErrIllegalTransition)
	moved, err := s.UpdateStatus(ctx, "p-draft", model.PlanActive)
	require.NoError(t, err)
	assert.Equal(t, model.PlanActive, moved.Status)
	assert.Equal(t, int64(2), moved.Version)

	active, err = s.ActivePlans(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	fetched, err := s.GetPlan(ctx, "p-a")
	require.NoError(t, err)
	assert.Equal(t, 800.0, fetched.DistanceKM)
	assert.Equal(t, 0.25, fetched.Delay.DelayProb)
	assert.Equal(t, model.DefaultWeights(), fetched.Weights)
}

func testSaveDecision(t *testing.T, s store.Store) {
	ctx := context.Background()
	p, err := s.PutPlan(ctx, plan("p1"))
	require.NoError(t, err)

	dec := model.PlanDecision{
		Chain:        model.Chain{model.ModeRoad, model.ModeRail, model.ModeRoad},
		IsMultimodal: true,
		Metrics:      model.ModeMetrics{TimeMin: 100, DelayPenaltyMin: 10, EmissionsKg: 5, Cost: 50},
		Score:        42,
	}
	saved, err := s.SavePlanDecision(ctx, "p1", store.DecisionUpdate{
		Decision:        dec,
		Reason:          model.RerouteReasonEventTriggered,
		ExpectedVersion: p.Version,
	})
	require.NoError(t, err)
	assert.True(t, saved.WasRerouted)
	assert.Equal(t, model.RerouteReasonEventTriggered, saved.RerouteReason)
	assert.Equal(t, p.Version+1, saved.Version)
	require.NotNil(t, saved.Decision)
	assert.Equal(t, dec, *saved.Decision)

	_, err = s.SavePlanDecision(ctx, "p1", store.DecisionUpdate{Decision: dec, ExpectedVersion: p.Version})
	require.ErrorIs(t, err, store.ErrConflict)
	_, err = s.SavePlanDecision(ctx, "nope", store.DecisionUpdate{Decision: dec})
	require.ErrorIs(t, err, store.ErrNotFound)

	fetched, err := s.GetPlan(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, fetched.Decision)
	assert.Equal(t, "road>rail>road", fetched.Decision.Label())
}

func testEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	var last int64
	for i := 0; i < 5; i++ {
		e, err := model.NewEvent("test", model.SeverityLow, model.TrafficPayload{
			LocationID:      "loc",
			CongestionIndex: float64(i) / 10,
			AvgSpeedKPH:     30,
		})
		require.NoError(t, err)
		got, err := s.AppendEvent(ctx, e)
		require.NoError(t, err)
		if got.ID <= last {
			t.Fatalf("event ids must increase: %d after %d", got.ID, last)
		}
		last = got.ID
		assert.False(t, got.TS.IsZero())
	}

	_, err := s.AppendEvent(ctx, model.Event{Type: model.EventTraffic})
	require.ErrorIs(t, err, model.ErrInvalidEvent)

	recent, err := s.RecentEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, last, recent[0].ID)
	assert.Greater(t, recent[0].ID, recent[1].ID)
	assert.Greater(t, recent[1].ID, recent[2].ID)
	tp, ok := recent[0].Payload.(model.TrafficPayload)
	require.True(t, ok)
	assert.InDelta(t, 0.4, tp.CongestionIndex, 1e-9)

	all, err := s.RecentEvents(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func testConcurrentSaves(t *testing.T, s store.Store) {
	ctx := context.Background()
	p, err := s.PutPlan(ctx, plan("race"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SavePlanDecision(ctx, "race", store.DecisionUpdate{
				Decision:        model.PlanDecision{Mode: model.ModeRoad},
				ExpectedVersion: p.Version,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, conflicts)
}

func testPutPlanKeepsLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.PutPlan(ctx, plan("life"))
	require.NoError(t, err)

	back := plan("life")
	back.Status = model.PlanDraft
	_, err = s.PutPlan(ctx, back)
	require.ErrorIs(t, err, store.ErrIllegalTransition)

	same := plan("life")
	same.DistanceKM = 900
	got, err := s.PutPlan(ctx, same)
	require.NoError(t, err)
	assert.Equal(t, model.PlanActive, got.Status)
	assert.Equal(t, 900.0, got.DistanceKM)

	done := plan("life")
	done.Status = model.PlanCompleted
	_, err = s.PutPlan(ctx, done)
	require.NoError(t, err)

	_, err = s.UpdateStatus(ctx, "life", model.PlanActive)
	require.ErrorIs(t, err, store.ErrIllegalTransition)

	_, err = s.PutPlan(ctx, plan("stuck"))
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, "stuck", model.PlanRerouteTriggered)
	require.NoError(t, err)
	triggered, err := s.PlansByStatus(ctx, model.PlanRerouteTriggered)
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, "stuck", triggered[0].ID)
}

func testFilteredEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	appendEvent := func(p model.EventPayload) model.Event {
		t.Helper()
		e, err := model.NewEvent("test", model.SeverityModerate, p)
		require.NoError(t, err)
		got, err := s.AppendEvent(ctx, e)
		require.NoError(t, err)
		return got
	}
	weather := appendEvent(model.WeatherPayload{PrecipitationMM: 3})
	for i := 0; i < 4; i++ {
		appendEvent(model.ReroutePayload{PlanID: "p", NewMode: "road", TriggerEventID: weather.ID})
	}

	got, err := s.FindEvents(ctx, store.EventFilter{Limit: 2, Exclude: []model.EventType{model.EventReroute}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, weather.ID, got[0].ID)

	got, err = s.FindEvents(ctx, store.EventFilter{Limit: 10, Types: []model.EventType{model.EventReroute}})
	require.NoError(t, err)
	require.Len(t, got, 4)
	rp, ok := got[0].Payload.(model.ReroutePayload)
	require.True(t, ok)
	assert.Equal(t, weather.ID, rp.TriggerEventID)

	got, err = s.FindEvents(ctx, store.EventFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
