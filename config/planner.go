package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/modes"
	"github.com/kilianp07/freightplan/core/routing"
	"github.com/kilianp07/freightplan/infra/postgres"
)

// DefaultAlpha weighs the penalty matrix when building delay-aware times.
const DefaultAlpha = 1.0

// PlannerConfig holds the objective weights and the candidate chains.
type PlannerConfig struct {
	Weights model.Weights `json:"weights"`
	// Chains are rendered as "road>rail>road" or "road,rail,road". Empty
	// means the default chains.
	Chains []string `json:"chains"`
	// Alpha is nil when unset so that an explicit 0 disables penalties.
	Alpha *float64 `json:"alpha"`
}

func (c *PlannerConfig) SetDefaults() {
	c.Weights = c.Weights.OrDefault()
	if c.Alpha == nil {
		a := DefaultAlpha
		c.Alpha = &a
	}
}

func (c PlannerConfig) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.Alpha != nil && *c.Alpha < 0 {
		return fmt.Errorf("alpha must be >= 0, got %v", *c.Alpha)
	}
	_, err := c.ParsedChains()
	return err
}

// AlphaValue returns the configured alpha or DefaultAlpha.
func (c PlannerConfig) AlphaValue() float64 {
	if c.Alpha == nil {
		return DefaultAlpha
	}
	return *c.Alpha
}

// ParsedChains converts Chains, returning nil when none are configured.
func (c PlannerConfig) ParsedChains() ([]model.Chain, error) {
	if len(c.Chains) == 0 {
		return nil, nil
	}
	out := make([]model.Chain, 0, len(c.Chains))
	for i, s := range c.Chains {
		ch, err := model.ParseChain(s)
		if err != nil {
			return nil, fmt.Errorf("chains[%d]: %w", i, err)
		}
		out = append(out, ch)
	}
	return out, nil
}

// ModesConfig overrides entries of the default mode table, keyed by mode
// name.
type ModesConfig map[string]model.ModeParams

// Params merges the overrides onto modes.DefaultTable and validates the
// result.
func (c ModesConfig) Params() (modes.Params, error) {
	table := modes.DefaultTable()
	for name, p := range c {
		m, err := model.ParseMode(name)
		if err != nil {
			return modes.Params{}, fmt.Errorf("%w: %v", modes.ErrConfiguration, err)
		}
		table[m] = p
	}
	return modes.NewParams(table)
}

func (c ModesConfig) Validate() error {
	_, err := c.Params()
	return err
}

// SolverConfig tunes the route search.
type SolverConfig struct {
	FirstSolution string        `json:"first_solution"`
	LocalSearch   string        `json:"local_search"`
	TimeLimit     time.Duration `json:"time_limit"`
	MaxIterations int           `json:"max_iterations"`
	HorizonMin    int           `json:"horizon_min"`
	// MaxWaitMin of 0 selects routing.DefaultMaxWaitMin.
	MaxWaitMin  int           `json:"max_wait_min"`
	GracePeriod time.Duration `json:"grace_period"`
}

func (c *SolverConfig) SetDefaults() {
	p := c.SearchParams()
	p.SetDefaults()
	c.FirstSolution, c.LocalSearch, c.TimeLimit = p.FirstSolution, p.LocalSearch, p.TimeLimit
	if c.MaxIterations == 0 {
		c.MaxIterations = routing.DefaultMaxIterations
	}
	o := c.Options()
	o.SetDefaults()
	c.HorizonMin, c.MaxWaitMin = o.HorizonMin, o.MaxWaitMin
	if c.GracePeriod <= 0 {
		c.GracePeriod = routing.DefaultGracePeriod
	}
}

func (c SolverConfig) Validate() error {
	return c.SearchParams().Validate()
}

// SearchParams returns the engine parameters.
func (c SolverConfig) SearchParams() routing.SearchParams {
	return routing.SearchParams{
		FirstSolution: c.FirstSolution,
		LocalSearch:   c.LocalSearch,
		TimeLimit:     c.TimeLimit,
		MaxIterations: c.MaxIterations,
	}
}

// Options returns the time dimension options.
func (c SolverConfig) Options() routing.Options {
	return routing.Options{HorizonMin: c.HorizonMin, MaxWaitMin: c.MaxWaitMin}
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend  string          `json:"backend"`
	Postgres postgres.Config `json:"postgres"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StoreMemory
	}
	if c.Backend == StorePostgres {
		c.Postgres.SetDefaults()
	}
}

func (c StoreConfig) Validate() error {
	switch c.Backend {
	case StoreMemory:
		return nil
	case StorePostgres:
		return c.Postgres.Validate()
	case "":
		return errors.New("backend is required")
	}
	return fmt.Errorf("unknown backend %q", c.Backend)
}
