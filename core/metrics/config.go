package metrics

import (
	"fmt"

	"github.com/kilianp07/freightplan/core/factory"
)

// DefaultPrometheusAddr is where /metrics is served when Prometheus is enabled.
const DefaultPrometheusAddr = ":9090"

// Config selects the metrics sinks and the Prometheus listener.
type Config struct {
	Sinks          []factory.ModuleConfig `json:"sinks" yaml:"sinks" koanf:"sinks"`
	PrometheusAddr string                 `json:"prometheus_addr" yaml:"prometheus_addr" koanf:"prometheus_addr"`
	// ServePrometheus starts the /metrics endpoint.
	ServePrometheus bool `json:"serve_prometheus" yaml:"serve_prometheus" koanf:"serve_prometheus"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = DefaultPrometheusAddr
	}
}

// Validate checks that every sink names a type.
func (c Config) Validate() error {
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("metrics.sinks[%d]: type is required", i)
		}
	}
	return nil
}
