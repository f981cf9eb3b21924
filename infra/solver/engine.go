// Package solver adapts the nextmv route library to routing.Engine.
//
// A routing.Formulation is translated into a route.Router: every customer
// becomes a stop, every vehicle starts and ends at the depot, the capacity
// dimension maps to route.Capacity and the time dimension to route.Windows
// and route.Shifts. Travel times and arc costs are both served by index from
// the formulation's matrix, so the router optimises the same objective the
// formulation verifies.
package solver

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nextmv-io/sdk/route"
	"github.com/nextmv-io/sdk/store"

	"github.com/kilianp07/freightplan/core/logger"
	"github.com/kilianp07/freightplan/core/routing"
)

// unassignedPenalty outweighs any route of a single day horizon, so stops
// are only left out when no vehicle can serve them.
const unassignedPenalty = 1_000_000

// epoch anchors horizon minutes to wall-clock instants for the router.
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Engine runs the nextmv router behind routing.Engine.
type Engine struct {
	log     logger.Logger
	threads int
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreads sets the router's worker count. A single thread keeps the
// search reproducible.
func WithThreads(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.threads = n
		}
	}
}

// New returns an Engine.
func New(log logger.Logger, opts ...Option) *Engine {
	e := &Engine{log: logger.OrNop(log), threads: 1}
	for _, o := range opts {
		o(e)
	}
	return e
}

var _ routing.Engine = (*Engine)(nil)

// Solve builds a router for f and returns the last solution found within
// the deadline of ctx. It returns routing.ErrNoSolution when the router
// leaves any stop unassigned.
func (e *Engine) Solve(ctx context.Context, f *routing.Formulation, p routing.SearchParams) (routing.Solution, error) {
	if err := p.Validate(); err != nil {
		return routing.Solution{}, err
	}
	if err := ctx.Err(); err != nil {
		return routing.Solution{}, err
	}
	pr := newProblem(f)
	if len(pr.stops) == 0 {
		return f.BuildSolution(make([][]int, f.NumVehicles())), nil
	}

	router, err := route.NewRouter(
		pr.stops,
		pr.vehicles,
		route.Threads(e.threads),
		route.Starts(pr.depots()),
		route.Ends(pr.depots()),
		route.Shifts(pr.shifts),
		route.Windows(pr.windows),
		route.Capacity(pr.quantities, pr.capacities),
		route.Unassigned(pr.penalties),
		route.TravelTimeMeasures(pr.timeMeasures()),
		route.ValueFunctionMeasures(pr.costMeasures()),
	)
	if err != nil {
		return routing.Solution{}, fmt.Errorf("build router: %w", err)
	}
	slv, err := router.Solver(storeOptions(ctx, p))
	if err != nil {
		return routing.Solution{}, fmt.Errorf("build solver: %w", err)
	}

	last := slv.Last(ctx)
	if last.Store == nil {
		if err := ctx.Err(); err != nil {
			return routing.Solution{}, err
		}
		return routing.Solution{}, fmt.Errorf("%w: router returned no plan", routing.ErrNoSolution)
	}
	plan := router.Plan().Get(last.Store)
	if n := len(plan.Unassigned); n > 0 {
		return routing.Solution{}, fmt.Errorf("%w: %d stops unassigned", routing.ErrNoSolution, n)
	}
	seqs, err := pr.sequences(plan)
	if err != nil {
		return routing.Solution{}, err
	}
	sol := f.BuildSolution(seqs)
	e.log.Debugf("router finished with objective %d", *sol.Objective)
	return sol, nil
}

// storeOptions maps search parameters onto the router's search limits.
// The duration limit never outlives ctx.
func storeOptions(ctx context.Context, p routing.SearchParams) store.Options {
	opts := store.DefaultOptions()
	opts.Limits.Duration = p.TimeLimit
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < opts.Limits.Duration {
			opts.Limits.Duration = max(left, time.Millisecond)
		}
	}
	switch p.LocalSearch {
	case routing.LocalSearchNone:
		opts.Limits.Solutions = 1
	case routing.LocalSearchGreedyDescent:
		opts.Diagram.Expansion.Limit = 1
	}
	if p.MaxIterations > 0 && p.LocalSearch != routing.LocalSearchNone {
		opts.Limits.Solutions = p.MaxIterations
	}
	return opts
}

// problem is the router input derived from a formulation. Router indices
// are laid out as customers first, then one start and one end per vehicle.
type problem struct {
	f          *routing.Formulation
	customers  []int
	stops      []route.Stop
	vehicles   []string
	shifts     []route.TimeWindow
	windows    []route.Window
	quantities []int
	capacities []int
	penalties  []int
	byID       map[string]int
}

func newProblem(f *routing.Formulation) *problem {
	pr := &problem{f: f, customers: f.Customers(), byID: map[string]int{}}
	maxWait := f.Options().MaxWaitMin * 60
	for _, c := range pr.customers {
		id := strconv.Itoa(c)
		w := f.Window(c)
		pr.byID[id] = c
		pr.stops = append(pr.stops, route.Stop{ID: id})
		pr.windows = append(pr.windows, route.Window{
			TimeWindow: route.TimeWindow{Start: at(w.Earliest), End: at(w.Latest)},
			MaxWait:    maxWait,
		})
		pr.quantities = append(pr.quantities, f.Demand(c))
		pr.penalties = append(pr.penalties, unassignedPenalty)
	}
	depot := f.Window(f.Depot())
	for v := 0; v < f.NumVehicles(); v++ {
		pr.vehicles = append(pr.vehicles, "v"+strconv.Itoa(v))
		pr.shifts = append(pr.shifts, route.TimeWindow{Start: at(depot.Earliest), End: at(depot.Latest)})
		pr.capacities = append(pr.capacities, f.Capacity(v))
	}
	return pr
}

func at(minute int) time.Time { return epoch.Add(time.Duration(minute) * time.Minute) }

// node maps a router index back to a formulation stop.
func (pr *problem) node(i int) int {
	if i < len(pr.customers) {
		return pr.customers[i]
	}
	return pr.f.Depot()
}

func (pr *problem) depots() []route.Position {
	return make([]route.Position, len(pr.vehicles))
}

func (pr *problem) size() int { return len(pr.customers) + 2*len(pr.vehicles) }

// matrix returns the formulation transit between router indices scaled by
// unit.
func (pr *problem) matrix(unit float64) [][]float64 {
	n := pr.size()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = float64(pr.f.Transit(pr.node(i), pr.node(j))) * unit
		}
	}
	return out
}

func (pr *problem) perVehicle(m route.ByIndex) []route.ByIndex {
	out := make([]route.ByIndex, len(pr.vehicles))
	for v := range out {
		out[v] = m
	}
	return out
}

// timeMeasures serve travel time in seconds.
func (pr *problem) timeMeasures() []route.ByIndex {
	return pr.perVehicle(route.Matrix(pr.matrix(60)))
}

// costMeasures serve the objective in matrix minutes.
func (pr *problem) costMeasures() []route.ByIndex {
	return pr.perVehicle(route.Matrix(pr.matrix(1)))
}

// sequences turns a router plan into customer sequences indexed by vehicle.
// Start and end stops of the router are dropped.
func (pr *problem) sequences(plan route.Plan) ([][]int, error) {
	seqs := make([][]int, len(pr.vehicles))
	vidx := make(map[string]int, len(pr.vehicles))
	for v, id := range pr.vehicles {
		vidx[id] = v
	}
	for _, pv := range plan.Vehicles {
		v, ok := vidx[pv.ID]
		if !ok {
			return nil, fmt.Errorf("router returned unknown vehicle %q", pv.ID)
		}
		for _, s := range pv.Route {
			if c, ok := pr.byID[s.ID]; ok {
				seqs[v] = append(seqs[v], c)
			}
		}
	}
	return seqs, nil
}

var (
	availOnce sync.Once
	availErr  error
)

// Available reports whether the route library can be loaded in this
// process. The library resolves its implementation at first use and panics
// when it is missing.
func Available() error {
	availOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				availErr = fmt.Errorf("route library: %v", r)
			}
		}()
		_, availErr = route.NewRouter(
			[]route.Stop{{ID: "0"}},
			[]string{"v0"},
		)
	})
	return availErr
}
