package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextmv-io/sdk/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/freightplan/core/matrix"
	"github.com/kilianp07/freightplan/core/routing"
)

func wide(n int) []routing.TimeWindow {
	out := make([]routing.TimeWindow, n)
	for i := range out {
		out[i] = routing.TimeWindow{Earliest: 0, Latest: 1440}
	}
	return out
}

func params(ls string) routing.SearchParams {
	p := routing.DefaultSearchParams()
	p.LocalSearch = ls
	p.TimeLimit = 2 * time.Second
	return p
}

func formulate(t *testing.T, in routing.Instance) *routing.Formulation {
	t.Helper()
	f, err := routing.NewFormulation(in, routing.Options{})
	require.NoError(t, err)
	return f
}

func requireRouter(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping router search in short mode")
	}
	if err := Available(); err != nil {
		t.Skipf("route library unavailable: %v", err)
	}
}

func TestProblemLayout(t *testing.T) {
	in := routing.Instance{
		Matrix:      matrix.TimeMatrix{{0, 4, 9}, {4, 0, 7}, {9, 7, 0}},
		Demands:     []int{0, 2, 3},
		Windows:     []routing.TimeWindow{{Earliest: 0, Latest: 1440}, {Earliest: 10, Latest: 40}, {Earliest: 0, Latest: 2000}},
		Capacities:  []int{5, 6},
		NumVehicles: 2,
		Depot:       1,
	}
	pr := newProblem(formulate(t, in))

	require.Len(t, pr.stops, 2)
	assert.Equal(t, "0", pr.stops[0].ID)
	assert.Equal(t, "2", pr.stops[1].ID)
	assert.Equal(t, []string{"v0", "v1"}, pr.vehicles)
	assert.Equal(t, []int{0, 3}, pr.quantities)
	assert.Equal(t, []int{5, 6}, pr.capacities)
	assert.Equal(t, 6, pr.size())

	// windows are clamped to the horizon and carry the wait cap in seconds
	assert.Equal(t, at(1440), pr.windows[1].TimeWindow.End)
	assert.Equal(t, routing.DefaultMaxWaitMin*60, pr.windows[0].MaxWait)
	assert.Equal(t, at(0), pr.shifts[1].Start)

	m := pr.matrix(60)
	assert.Equal(t, 9.0*60, m[0][1], "customer to customer")
	assert.Equal(t, 4.0*60, m[0][2], "customer to vehicle start")
	assert.Equal(t, 7.0*60, m[5][1], "vehicle end to customer")
	assert.Zero(t, m[2][3], "depot to depot")
}

func TestSequencesDropsDepotStops(t *testing.T) {
	in := routing.Instance{
		Matrix:      matrix.TimeMatrix{{0, 1, 1}, {1, 0, 1}, {1, 1, 0}},
		Demands:     []int{0, 1, 1},
		Windows:     wide(3),
		Capacities:  []int{2, 2},
		NumVehicles: 2,
	}
	pr := newProblem(formulate(t, in))
	plan := route.Plan{Vehicles: []route.PlannedVehicle{
		{ID: "v1", Route: []route.PlannedStop{{Stop: route.Stop{ID: "v1-start"}}, {Stop: route.Stop{ID: "2"}}, {Stop: route.Stop{ID: "1"}}, {Stop: route.Stop{ID: "v1-end"}}}},
		{ID: "v0"},
	}}
	seqs, err := pr.sequences(plan)
	require.NoError(t, err)
	assert.Equal(t, [][]int{nil, {2, 1}}, seqs)

	_, err = pr.sequences(route.Plan{Vehicles: []route.PlannedVehicle{{ID: "truck"}}})
	assert.Error(t, err)
}

func TestStoreOptionsFollowSearchParams(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	opts := storeOptions(ctx, params(routing.LocalSearchGuided))
	assert.LessOrEqual(t, opts.Limits.Duration, 500*time.Millisecond)
	assert.Equal(t, routing.DefaultMaxIterations, opts.Limits.Solutions)

	opts = storeOptions(context.Background(), params(routing.LocalSearchNone))
	assert.Equal(t, 2*time.Second, opts.Limits.Duration)
	assert.Equal(t, 1, opts.Limits.Solutions)

	opts = storeOptions(context.Background(), params(routing.LocalSearchGreedyDescent))
	assert.Equal(t, 1, opts.Diagram.Expansion.Limit)
}

func TestSolveRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := routing.Instance{
		Matrix:      matrix.TimeMatrix{{0, 1}, {1, 0}},
		Demands:     []int{0, 1},
		Windows:     wide(2),
		Capacities:  []int{1},
		NumVehicles: 1,
	}
	_, err := New(nil).Solve(ctx, formulate(t, in), params(routing.LocalSearchGuided))
	require.ErrorIs(t, err, context.Canceled)
}

func TestSolveDepotOnly(t *testing.T) {
	in := routing.Instance{
		Matrix:      matrix.TimeMatrix{{0}},
		Demands:     []int{0},
		Windows:     wide(1),
		Capacities:  []int{1},
		NumVehicles: 1,
	}
	f := formulate(t, in)
	sol, err := New(nil).Solve(context.Background(), f, params(routing.LocalSearchGuided))
	require.NoError(t, err)
	require.NoError(t, f.Verify(sol))
	assert.Equal(t, int64(0), *sol.Objective)
}

func TestSolveVisitsBothStops(t *testing.T) {
	requireRouter(t)
	in := routing.Instance{
		Matrix:      matrix.TimeMatrix{{0, 20, 35}, {20, 0, 19}, {35, 19, 0}},
		Demands:     []int{0, 1, 1},
		Windows:     wide(3),
		Capacities:  []int{2},
		NumVehicles: 1,
	}
	f := formulate(t, in)
	sol, err := New(nil).Solve(context.Background(), f, params(routing.LocalSearchGuided))
	require.NoError(t, err)
	require.NoError(t, f.Verify(sol))
	assert.Equal(t, int64(74), *sol.Objective)
}

func TestSolveUsesSecondVehicleWhenFull(t *testing.T) {
	requireRouter(t)
	in := routing.Instance{
		Matrix:      matrix.TimeMatrix{{0, 5, 5, 9}, {5, 0, 3, 6}, {5, 3, 0, 4}, {9, 6, 4, 0}},
		Demands:     []int{0, 2, 2, 2},
		Windows:     wide(4),
		Capacities:  []int{4, 4},
		NumVehicles: 2,
	}
	f := formulate(t, in)
	sol, err := New(nil).Solve(context.Background(), f, params(routing.LocalSearchGuided))
	require.NoError(t, err)
	require.NoError(t, f.Verify(sol))
	for _, r := range sol.Routes {
		assert.LessOrEqual(t, len(r.Stops)-2, 2)
	}
}

func TestSolveNoSolution(t *testing.T) {
	requireRouter(t)
	in := routing.Instance{
		Matrix:      matrix.TimeMatrix{{0, 1, 1}, {1, 0, 1}, {1, 1, 0}},
		Demands:     []int{0, 3, 1},
		Windows:     wide(3),
		Capacities:  []int{2},
		NumVehicles: 1,
	}
	_, err := New(nil).Solve(context.Background(), formulate(t, in), params(routing.LocalSearchGuided))
	if !errors.Is(err, routing.ErrNoSolution) {
		t.Fatalf("expected ErrNoSolution got %v", err)
	}
}

func TestSolverIntegration(t *testing.T) {
	requireRouter(t)
	s, err := routing.NewSolver(New(nil), routing.WithSearchParams(routing.SearchParams{
		LocalSearch:   routing.LocalSearchGuided,
		TimeLimit:     2 * time.Second,
		MaxIterations: 20,
	}))
	require.NoError(t, err)
	in := routing.Instance{
		Demands:     []int{0, 1, 1},
		Windows:     wide(3),
		Capacities:  []int{2},
		NumVehicles: 1,
	}
	res, err := s.SolveDelayAware(context.Background(), in,
		matrix.TimeMatrix{{0, 12, 20}, {12, 0, 15}, {20, 15, 0}},
		matrix.PenaltyMatrix{{0, 8, 15}, {8, 0, 4}, {15, 4, 0}}, 1)
	require.NoError(t, err)
	require.Equal(t, routing.StatusFeasible, res.Status)
	assert.Equal(t, 27.0, res.PenaltyUsed)

	res, err = s.Solve(context.Background(), routing.Instance{
		Matrix:  matrix.TimeMatrix{{0, 12, 20}, {12, 0, 15}, {20, 15, 0}},
		Demands: in.Demands, Windows: in.Windows, Capacities: []int{1}, NumVehicles: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, routing.StatusInfeasible, res.Status)
}
