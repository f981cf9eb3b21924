package routing

import (
	"errors"
	"fmt"
)

const (
	// DefaultHorizonMin is the planning horizon spanned by the depot window.
	DefaultHorizonMin = 24 * 60
	// DefaultMaxWaitMin bounds waiting between arrival and service at a stop.
	DefaultMaxWaitMin = 30
)

var (
	// ErrCapacityExceeded is returned when a route's load exceeds its vehicle.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrWindowViolated is returned when no schedule meets every time window.
	ErrWindowViolated = errors.New("time window violated")
	// ErrInvalidRoute is returned for routes that are structurally wrong.
	ErrInvalidRoute = errors.New("invalid route")
)

// Options tune the time dimension.
type Options struct {
	HorizonMin int `json:"horizon_min"`
	MaxWaitMin int `json:"max_wait_min"`
}

// SetDefaults fills zero fields.
func (o *Options) SetDefaults() {
	if o.HorizonMin <= 0 {
		o.HorizonMin = DefaultHorizonMin
	}
	if o.MaxWaitMin <= 0 {
		o.MaxWaitMin = DefaultMaxWaitMin
	}
}

// Formulation is the solver-facing view of an Instance: a transit cost over
// the matrix, a capacity dimension and a time dimension.
//
// Capacity: the demand accumulated along a route never exceeds the vehicle
// capacity. Time: the cumulative time at a stop equals the cumulative time at
// its predecessor plus the transit plus a slack in [0, MaxWaitMin], and must
// fall within the stop's window. The depot window is [0, HorizonMin] at both
// ends of every route.
type Formulation struct {
	inst Instance
	opts Options
}

// NewFormulation validates inst and builds its formulation.
func NewFormulation(inst Instance, opts Options) (*Formulation, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	opts.SetDefaults()
	return &Formulation{inst: inst, opts: opts}, nil
}

func (f *Formulation) Size() int          { return len(f.inst.Matrix) }
func (f *Formulation) NumVehicles() int   { return f.inst.NumVehicles }
func (f *Formulation) Depot() int         { return f.inst.Depot }
func (f *Formulation) Options() Options   { return f.opts }
func (f *Formulation) Demand(i int) int   { return f.inst.Demands[i] }
func (f *Formulation) Capacity(v int) int { return f.inst.Capacities[v] }

// Transit is the arc cost and travel time from i to j.
func (f *Formulation) Transit(i, j int) int { return f.inst.Matrix[i][j] }

// Window returns the allowed cumulative time range at stop i.
func (f *Formulation) Window(i int) TimeWindow {
	if i == f.inst.Depot {
		return TimeWindow{Earliest: 0, Latest: f.opts.HorizonMin}
	}
	w := f.inst.Windows[i]
	if w.Latest > f.opts.HorizonMin {
		w.Latest = f.opts.HorizonMin
	}
	return w
}

// Customers returns every non-depot stop in index order.
func (f *Formulation) Customers() []int {
	out := make([]int, 0, f.Size()-1)
	for i := 0; i < f.Size(); i++ {
		if i != f.inst.Depot {
			out = append(out, i)
		}
	}
	return out
}

// Route brackets stops with the depot.
func (f *Formulation) Route(stops []int) []int {
	out := make([]int, 0, len(stops)+2)
	out = append(out, f.inst.Depot)
	out = append(out, stops...)
	return append(out, f.inst.Depot)
}

// Cost sums the transit of consecutive stops.
func (f *Formulation) Cost(route []int) int {
	total := 0
	for k := 1; k < len(route); k++ {
		total += f.Transit(route[k-1], route[k])
	}
	return total
}

// Check validates a depot-to-depot route for vehicle v against both
// dimensions.
func (f *Formulation) Check(v int, route []int) error {
	_, err := f.Arrivals(v, route)
	return err
}

// Feasible reports whether the customer sequence stops is a valid route for
// vehicle v.
func (f *Formulation) Feasible(v int, stops []int) bool {
	return f.Check(v, f.Route(stops)) == nil
}

// Arrivals returns one feasible schedule for the route: the cumulative time
// at each position. The earliest possible return to the depot is chosen and
// earlier positions are scheduled as late as the wait bound requires.
func (f *Formulation) Arrivals(v int, route []int) ([]int, error) {
	if v < 0 || v >= f.inst.NumVehicles {
		return nil, fmt.Errorf("%w: vehicle %d out of range", ErrInvalidRoute, v)
	}
	if len(route) < 2 || route[0] != f.inst.Depot || route[len(route)-1] != f.inst.Depot {
		return nil, fmt.Errorf("%w: route must start and end at depot %d", ErrInvalidRoute, f.inst.Depot)
	}
	load := 0
	for k, s := range route {
		if s < 0 || s >= f.Size() {
			return nil, fmt.Errorf("%w: stop %d out of range", ErrInvalidRoute, s)
		}
		if s == f.inst.Depot && k != 0 && k != len(route)-1 {
			return nil, fmt.Errorf("%w: depot visited mid-route", ErrInvalidRoute)
		}
		if k == len(route)-1 {
			break
		}
		load += f.Demand(s)
		if load > f.Capacity(v) {
			return nil, fmt.Errorf("%w: vehicle %d load %d > %d at stop %d", ErrCapacityExceeded, v, load, f.Capacity(v), s)
		}
	}

	// forward pass: reachable cumulative interval per position
	lo := make([]int, len(route))
	hi := make([]int, len(route))
	w := f.Window(route[0])
	lo[0], hi[0] = w.Earliest, w.Latest
	for k := 1; k < len(route); k++ {
		t := f.Transit(route[k-1], route[k])
		w := f.Window(route[k])
		lo[k] = max(lo[k-1]+t, w.Earliest)
		hi[k] = min(hi[k-1]+t+f.opts.MaxWaitMin, w.Latest)
		if lo[k] > hi[k] {
			return nil, fmt.Errorf("%w: stop %d window [%d,%d] unreachable", ErrWindowViolated, route[k], w.Earliest, w.Latest)
		}
	}

	// backward pass: pick a consistent schedule
	out := make([]int, len(route))
	last := len(route) - 1
	out[last] = lo[last]
	for k := last - 1; k >= 0; k-- {
		t := f.Transit(route[k], route[k+1])
		out[k] = max(lo[k], out[k+1]-t-f.opts.MaxWaitMin)
	}
	return out, nil
}

// Verify checks a solution: one route per vehicle, every customer visited
// exactly once, every route feasible and route totals consistent with the
// objective.
func (f *Formulation) Verify(sol Solution) error {
	if !sol.Feasible() {
		return fmt.Errorf("%w: no objective", ErrInvalidRoute)
	}
	if len(sol.Routes) != f.inst.NumVehicles {
		return fmt.Errorf("%w: %d routes for %d vehicles", ErrInvalidRoute, len(sol.Routes), f.inst.NumVehicles)
	}
	seen := make([]bool, f.Size())
	seenVehicle := make([]bool, f.inst.NumVehicles)
	var total int64
	for _, r := range sol.Routes {
		if r.VehicleID < 0 || r.VehicleID >= f.inst.NumVehicles || seenVehicle[r.VehicleID] {
			return fmt.Errorf("%w: duplicate or unknown vehicle %d", ErrInvalidRoute, r.VehicleID)
		}
		seenVehicle[r.VehicleID] = true
		if err := f.Check(r.VehicleID, r.Stops); err != nil {
			return err
		}
		for _, s := range r.Stops[1 : len(r.Stops)-1] {
			if seen[s] {
				return fmt.Errorf("%w: stop %d visited twice", ErrInvalidRoute, s)
			}
			seen[s] = true
		}
		if c := f.Cost(r.Stops); c != r.TotalTimeMin {
			return fmt.Errorf("%w: vehicle %d total %d, arcs sum to %d", ErrInvalidRoute, r.VehicleID, r.TotalTimeMin, c)
		}
		total += int64(r.TotalTimeMin)
	}
	for _, s := range f.Customers() {
		if !seen[s] {
			return fmt.Errorf("%w: stop %d not visited", ErrInvalidRoute, s)
		}
	}
	if *sol.Objective != total {
		return fmt.Errorf("%w: objective %d, routes sum to %d", ErrInvalidRoute, *sol.Objective, total)
	}
	return nil
}

// BuildSolution turns customer sequences, one per vehicle, into a Solution
// with per-route totals and the objective.
func (f *Formulation) BuildSolution(seqs [][]int) Solution {
	routes := make([]Route, len(seqs))
	var total int64
	for v, seq := range seqs {
		r := f.Route(seq)
		routes[v] = Route{VehicleID: v, Stops: r, TotalTimeMin: f.Cost(r)}
		total += int64(routes[v].TotalTimeMin)
	}
	return Solution{Routes: routes, Objective: &total}
}
