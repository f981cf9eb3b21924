package reroute

import (
	"fmt"
	"time"

	"github.com/kilianp07/freightplan/core/model"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultEventLimit   = 10
	DefaultWorkers      = 4
)

// Config controls the reroute polling loop.
type Config struct {
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" koanf:"poll_interval"`
	// EventLimit is how many of the most recent events each tick inspects.
	// The engine's own reroute events are not counted.
	EventLimit int `json:"event_limit" yaml:"event_limit" koanf:"event_limit"`
	// Workers bounds concurrent plan re-optimisations.
	Workers int `json:"workers" yaml:"workers" koanf:"workers"`
	// Dedupe skips events already handled by a previous tick. Nil means true.
	// Disabling it re-evaluates the last EventLimit events on every tick.
	Dedupe *bool               `json:"dedupe" yaml:"dedupe" koanf:"dedupe"`
	Policy model.ReroutePolicy `json:"policy" yaml:"policy" koanf:"policy"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.EventLimit <= 0 {
		c.EventLimit = DefaultEventLimit
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Dedupe == nil {
		v := true
		c.Dedupe = &v
	}
	if c.Policy == (model.ReroutePolicy{}) {
		c.Policy = model.DefaultReroutePolicy()
	}
}

// Validate checks the configuration after SetDefaults.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("reroute.poll_interval must be > 0")
	}
	if c.EventLimit <= 0 || c.Workers <= 0 {
		return fmt.Errorf("reroute.event_limit and reroute.workers must be > 0")
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("reroute.policy: %w", err)
	}
	return nil
}

// DedupeEnabled reports whether handled events are skipped.
func (c Config) DedupeEnabled() bool {
	return c.Dedupe == nil || *c.Dedupe
}
