package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/freightplan/core/ingest"
	"github.com/kilianp07/freightplan/core/metrics"
	"github.com/kilianp07/freightplan/core/reroute"
	"github.com/kilianp07/freightplan/infra/monitoring"
	"github.com/kilianp07/freightplan/infra/mqtt"
	"github.com/kilianp07/freightplan/infra/oracle"
	"github.com/kilianp07/freightplan/infra/weather"
)

// EnvPrefix marks environment overrides. Nested keys are separated by a
// double underscore: FP_REROUTE__POLL_INTERVAL=10s sets reroute.poll_interval.
const EnvPrefix = "FP_"

type Config struct {
	Planner PlannerConfig  `json:"planner"`
	Modes   ModesConfig    `json:"modes"`
	Reroute reroute.Config `json:"reroute"`
	Solver  SolverConfig   `json:"solver"`
	Oracle  oracle.Config  `json:"oracle"`
	Weather weather.Config `json:"weather"`
	Store   StoreConfig    `json:"store"`
	MQTT    mqtt.Config    `json:"mqtt"`
	Metrics metrics.Config `json:"metrics"`
	Ingest  ingest.Config  `json:"ingest"`
	Logging LoggingConfig  `json:"logging"`
	// Monitoring reports engine failures to Sentry when a DSN is set.
	Monitoring monitoring.Config `json:"monitoring"`
}

// Load reads path, applies FP_ environment overrides, fills defaults and
// validates every section. An empty path loads defaults and environment
// only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Planner.SetDefaults()
	c.Reroute.SetDefaults()
	c.Solver.SetDefaults()
	c.Oracle.SetDefaults()
	c.Weather.SetDefaults()
	c.Store.SetDefaults()
	if c.MQTT.Enabled() {
		c.MQTT.SetDefaults()
	}
	c.Metrics.SetDefaults()
	c.Ingest.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and prefixes errors with the section name.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"planner", c.Planner.Validate},
		{"modes", c.Modes.Validate},
		{"reroute", c.Reroute.Validate},
		{"solver", c.Solver.Validate},
		{"oracle", c.Oracle.Validate},
		{"weather", c.Weather.Validate},
		{"store", c.Store.Validate},
		{"mqtt", c.MQTT.Validate},
		{"metrics", c.Metrics.Validate},
		{"ingest", c.Ingest.Validate},
		{"logging", c.Logging.Validate},
		{"monitoring", c.Monitoring.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	return nil
}
