package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/freightplan/core/events"
	"github.com/kilianp07/freightplan/core/logger"
	"github.com/kilianp07/freightplan/core/matrix"
	"github.com/kilianp07/freightplan/internal/eventbus"
)

// ErrNoSolution is returned by an Engine that proved or gave up on
// feasibility before its deadline.
var ErrNoSolution = errors.New("no feasible solution")

// Search strategies understood by engines.
const (
	FirstSolutionPathCheapestArc = "path_cheapest_arc"
	LocalSearchGuided            = "guided_local_search"
	LocalSearchGreedyDescent     = "greedy_descent"
	LocalSearchNone              = "none"
)

const (
	// DefaultTimeLimit is the wall-clock budget of a search.
	DefaultTimeLimit = 10 * time.Second
	// DefaultMaxIterations caps guided local search rounds.
	DefaultMaxIterations = 200
)

// SearchParams configure an Engine run.
type SearchParams struct {
	FirstSolution string        `json:"first_solution"`
	LocalSearch   string        `json:"local_search"`
	TimeLimit     time.Duration `json:"time_limit"`
	// MaxIterations caps local search rounds. Zero means unbounded within
	// TimeLimit.
	MaxIterations int `json:"max_iterations"`
}

// DefaultSearchParams returns cheapest-arc construction followed by guided
// local search within DefaultTimeLimit.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		FirstSolution: FirstSolutionPathCheapestArc,
		LocalSearch:   LocalSearchGuided,
		TimeLimit:     DefaultTimeLimit,
		MaxIterations: DefaultMaxIterations,
	}
}

// SetDefaults fills empty fields.
func (p *SearchParams) SetDefaults() {
	if p.FirstSolution == "" {
		p.FirstSolution = FirstSolutionPathCheapestArc
	}
	if p.LocalSearch == "" {
		p.LocalSearch = LocalSearchGuided
	}
	if p.TimeLimit <= 0 {
		p.TimeLimit = DefaultTimeLimit
	}
}

// Validate rejects unknown strategies.
func (p SearchParams) Validate() error {
	if p.FirstSolution != FirstSolutionPathCheapestArc {
		return fmt.Errorf("unsupported first solution strategy %q", p.FirstSolution)
	}
	switch p.LocalSearch {
	case LocalSearchGuided, LocalSearchGreedyDescent, LocalSearchNone:
	default:
		return fmt.Errorf("unsupported local search %q", p.LocalSearch)
	}
	if p.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be >= 0")
	}
	return nil
}

// Engine is the route search procedure. Implementations must honour ctx and
// return the best solution found when it expires, or ctx.Err() when none was
// found yet.
type Engine interface {
	Solve(ctx context.Context, f *Formulation, p SearchParams) (Solution, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, f *Formulation, p SearchParams) (Solution, error)

func (fn EngineFunc) Solve(ctx context.Context, f *Formulation, p SearchParams) (Solution, error) {
	return fn(ctx, f, p)
}

// Status is the outcome of a Solve call.
type Status string

const (
	StatusFeasible   Status = "feasible"
	StatusInfeasible Status = "infeasible"
	StatusTimeout    Status = "timeout"
)

// Result is returned by Solver.Solve. Solution is only populated when Status
// is StatusFeasible. Err carries the engine failure behind a non feasible
// status, if any.
type Result struct {
	Solution    Solution      `json:"solution"`
	Status      Status        `json:"status"`
	PenaltyUsed float64       `json:"delay_penalty_used"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// DefaultGracePeriod is how long the solver waits past the deadline for the
// engine to hand back its best solution.
const DefaultGracePeriod = 200 * time.Millisecond

// Solver runs an Engine under a wall-clock budget and turns every engine
// outcome into a Result.
type Solver struct {
	engine Engine
	params SearchParams
	opts   Options
	grace  time.Duration
	log    logger.Logger
	bus    eventbus.Publisher[events.Event]
	now    func() time.Time
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithSearchParams overrides DefaultSearchParams.
func WithSearchParams(p SearchParams) SolverOption {
	return func(s *Solver) {
		p.SetDefaults()
		s.params = p
	}
}

// WithOptions sets the time dimension options.
func WithOptions(o Options) SolverOption {
	return func(s *Solver) { s.opts = o }
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) SolverOption {
	return func(s *Solver) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithLogger sets the solver logger.
func WithLogger(l logger.Logger) SolverOption {
	return func(s *Solver) { s.log = logger.OrNop(l) }
}

// WithBus publishes a SolveEvent after every call.
func WithBus(b eventbus.Publisher[events.Event]) SolverOption {
	return func(s *Solver) {
		if b != nil {
			s.bus = b
		}
	}
}

// NewSolver returns a Solver delegating to engine.
func NewSolver(engine Engine, opts ...SolverOption) (*Solver, error) {
	if engine == nil {
		return nil, errors.New("routing: nil engine")
	}
	s := &Solver{
		engine: engine,
		params: DefaultSearchParams(),
		grace:  DefaultGracePeriod,
		log:    logger.Nop{},
		bus:    eventbus.Nop[events.Event]{},
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.params.Validate(); err != nil {
		return nil, err
	}
	s.opts.SetDefaults()
	return s, nil
}

// Params returns the search parameters in use.
func (s *Solver) Params() SearchParams { return s.params }

type engineOutcome struct {
	sol Solution
	err error
}

// Solve searches inst within the time limit. Only a malformed instance is
// reported as an error; infeasibility, engine failures and deadline expiry
// are statuses.
func (s *Solver) Solve(ctx context.Context, inst Instance) (Result, error) {
	f, err := NewFormulation(inst, s.opts)
	if err != nil {
		return Result{}, err
	}
	start := s.now()
	res := s.run(ctx, f)
	res.Duration = s.now().Sub(start)
	s.report(f, res)
	return res, nil
}

// SolveDelayAware builds the delay-aware matrix from base and penalty, solves
// inst over it and reports how much penalty the chosen routes absorbed.
// inst.Matrix is ignored.
func (s *Solver) SolveDelayAware(ctx context.Context, inst Instance, base matrix.TimeMatrix, penalty matrix.PenaltyMatrix, alpha float64) (Result, error) {
	m, err := matrix.Build(base, penalty, alpha)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInstance, err)
	}
	inst.Matrix = m
	f, err := NewFormulation(inst, s.opts)
	if err != nil {
		return Result{}, err
	}
	start := s.now()
	res := s.run(ctx, f)
	if res.Status == StatusFeasible {
		used, err := matrix.PenaltyUsed(res.Solution.StopSequences(), penalty)
		if err != nil {
			return Result{}, err
		}
		res.PenaltyUsed = used
	}
	res.Duration = s.now().Sub(start)
	s.report(f, res)
	return res, nil
}

func (s *Solver) run(parent context.Context, f *Formulation) Result {
	ctx, cancel := context.WithTimeout(parent, s.params.TimeLimit)
	defer cancel()

	done := make(chan engineOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- engineOutcome{err: fmt.Errorf("engine panic: %v", r)}
			}
		}()
		sol, err := s.engine.Solve(ctx, f, s.params)
		done <- engineOutcome{sol: sol, err: err}
	}()

	var out engineOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		select {
		case out = <-done:
		case <-time.After(s.grace):
			return Result{Status: StatusTimeout, Err: ctx.Err()}
		}
	}
	return s.classify(ctx, f, out)
}

func (s *Solver) classify(ctx context.Context, f *Formulation, out engineOutcome) Result {
	switch {
	case out.err == nil:
		if err := f.Verify(out.sol); err != nil {
			s.log.Warnf("engine returned an invalid solution: %v", err)
			return Result{Status: StatusInfeasible, Err: err}
		}
		return Result{Solution: out.sol, Status: StatusFeasible}
	case errors.Is(out.err, ErrNoSolution):
		return Result{Status: StatusInfeasible, Err: out.err}
	case errors.Is(out.err, context.DeadlineExceeded), errors.Is(out.err, context.Canceled), ctx.Err() != nil:
		return Result{Status: StatusTimeout, Err: out.err}
	default:
		s.log.Errorf("route search failed: %v", out.err)
		return Result{Status: StatusInfeasible, Err: out.err}
	}
}

func (s *Solver) report(f *Formulation, res Result) {
	solveTotal.WithLabelValues(string(res.Status)).Inc()
	solveDuration.Observe(res.Duration.Seconds())
	s.log.Debugw("route search finished", map[string]any{
		"status":       string(res.Status),
		"stops":        f.Size(),
		"vehicles":     f.NumVehicles(),
		"duration_ms":  res.Duration.Milliseconds(),
		"penalty_used": res.PenaltyUsed,
	})
	s.bus.Publish(events.SolveEvent{
		Status:      string(res.Status),
		Objective:   res.Solution.Objective,
		Vehicles:    f.NumVehicles(),
		Stops:       f.Size(),
		PenaltyUsed: res.PenaltyUsed,
		Duration:    res.Duration,
		Time:        s.now(),
	})
}
