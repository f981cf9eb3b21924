package ingest

import (
	"errors"
	"fmt"
	"time"
)

// DefaultInterval matches the cadence of the upstream feeds.
const DefaultInterval = 5 * time.Minute

// Location is a sampled point, usually a depot, port or customer site.
type Location struct {
	ID   string  `json:"id" yaml:"id" koanf:"id"`
	Name string  `json:"name" yaml:"name" koanf:"name"`
	Kind string  `json:"kind" yaml:"kind" koanf:"kind"`
	Lat  float64 `json:"lat" yaml:"lat" koanf:"lat"`
	Lon  float64 `json:"lon" yaml:"lon" koanf:"lon"`
}

// Config controls the ingest poller.
type Config struct {
	Enabled   bool          `json:"enabled" yaml:"enabled" koanf:"enabled"`
	Interval  time.Duration `json:"interval" yaml:"interval" koanf:"interval"`
	Traffic   bool          `json:"traffic" yaml:"traffic" koanf:"traffic"`
	Weather   bool          `json:"weather" yaml:"weather" koanf:"weather"`
	Locations []Location    `json:"locations" yaml:"locations" koanf:"locations"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
}

// Validate checks locations when the poller is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Locations) == 0 {
		return errors.New("ingest.locations must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Locations))
	for i, l := range c.Locations {
		if l.ID == "" {
			return fmt.Errorf("ingest.locations[%d]: id is required", i)
		}
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("ingest.locations[%d]: duplicate id %q", i, l.ID)
		}
		seen[l.ID] = struct{}{}
		if l.Lat < -90 || l.Lat > 90 || l.Lon < -180 || l.Lon > 180 {
			return fmt.Errorf("ingest.locations[%d]: coordinates out of range", i)
		}
	}
	return nil
}
