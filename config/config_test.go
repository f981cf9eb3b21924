package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/routing"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `planner:
  weights:
    time: 0.5
    delay: 0.5
  chains:
    - "road>rail>road"
    - "road,sea,road"
  alpha: 0
modes:
  rail:
    speed_kph: 80
    emission_kg_per_km: 0.04
    cost_per_km: 6
    transfer_penalty_min: 30
reroute:
  poll_interval: 10s
  event_limit: 25
  dedupe: false
  policy:
    congestion_threshold: 0.8
    rain_threshold_mm: 12
    delay_prob_threshold: 0.5
solver:
  time_limit: 2s
  local_search: greedy_descent
oracle:
  url: "http://ml:8000"
  timeout: 3s
store:
  backend: postgres
  postgres:
    dsn: "postgres://freight@localhost/freight"
mqtt:
  broker: "tcp://localhost:1883"
  topic_prefix: "fleet/plans"
metrics:
  serve_prometheus: true
  sinks:
    - type: "prometheus"
ingest:
  enabled: true
  interval: 1m
  traffic: true
  locations:
    - id: "paris"
      lat: 48.85
      lon: 2.35
logging:
  level: debug
monitoring:
  environment: staging
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	chains, err := cfg.Planner.ParsedChains()
	if err != nil {
		t.Fatalf("chains: %v", err)
	}
	params, err := cfg.Modes.Params()
	if err != nil {
		t.Fatalf("modes: %v", err)
	}
	rail, _ := params.Get(model.ModeRail)
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"weights", cfg.Planner.Weights, model.Weights{Time: 0.5, Delay: 0.5}},
		{"chains", len(chains) == 2 && chains[1].String() == "road>sea>road", true},
		{"alpha", cfg.Planner.AlphaValue(), 0.0},
		{"rail speed", rail.SpeedKPH, 80.0},
		{"poll_interval", cfg.Reroute.PollInterval, 10 * time.Second},
		{"event_limit", cfg.Reroute.EventLimit, 25},
		{"workers default", cfg.Reroute.Workers, 4},
		{"dedupe", cfg.Reroute.DedupeEnabled(), false},
		{"policy", cfg.Reroute.Policy.DelayProbThreshold, 0.5},
		{"time_limit", cfg.Solver.TimeLimit, 2 * time.Second},
		{"local_search", cfg.Solver.LocalSearch, routing.LocalSearchGreedyDescent},
		{"max_wait default", cfg.Solver.MaxWaitMin, routing.DefaultMaxWaitMin},
		{"oracle timeout", cfg.Oracle.Timeout, 3 * time.Second},
		{"store backend", cfg.Store.Backend, StorePostgres},
		{"postgres defaults", cfg.Store.Postgres.MaxConns, int32(10)},
		{"mqtt prefix", cfg.MQTT.TopicPrefix, "fleet/plans"},
		{"mqtt retries default", cfg.MQTT.MaxRetries, 3},
		{"metrics sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "prometheus", true},
		{"metrics addr", cfg.Metrics.PrometheusAddr, ":9090"},
		{"ingest interval", cfg.Ingest.Interval, time.Minute},
		{"ingest location", cfg.Ingest.Locations[0].ID, "paris"},
		{"logging", cfg.Logging.Level, "debug"},
		{"monitoring env", cfg.Monitoring.Environment, "staging"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Store.Backend != StoreMemory {
		t.Errorf("backend = %q", cfg.Store.Backend)
	}
	if cfg.Planner.Weights != model.DefaultWeights() {
		t.Errorf("weights = %+v", cfg.Planner.Weights)
	}
	if cfg.Planner.AlphaValue() != DefaultAlpha {
		t.Errorf("alpha = %v", cfg.Planner.AlphaValue())
	}
	if cfg.Reroute.Policy != model.DefaultReroutePolicy() {
		t.Errorf("policy = %+v", cfg.Reroute.Policy)
	}
	if cfg.MQTT.Enabled() || cfg.Oracle.Enabled() {
		t.Errorf("optional integrations should be disabled")
	}
	if cfg.Solver.TimeLimit != routing.DefaultTimeLimit {
		t.Errorf("time limit = %v", cfg.Solver.TimeLimit)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "config.json", `{"reroute": {"event_limit": 5}}`)
	t.Setenv("FP_REROUTE__EVENT_LIMIT", "40")
	t.Setenv("FP_REROUTE__POLL_INTERVAL", "2m")
	t.Setenv("FP_ORACLE__URL", "https://ml.example.com")
	t.Setenv("FP_LOGGING__LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Reroute.EventLimit != 40 {
		t.Errorf("event_limit = %d", cfg.Reroute.EventLimit)
	}
	if cfg.Reroute.PollInterval != 2*time.Minute {
		t.Errorf("poll_interval = %v", cfg.Reroute.PollInterval)
	}
	if cfg.Oracle.URL != "https://ml.example.com" {
		t.Errorf("oracle url = %q", cfg.Oracle.URL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"negative weight": "planner:\n  weights:\n    time: -1\n",
		"bad chain":       "planner:\n  chains: [\"road>boat\"]\n",
		"bad mode speed":  "modes:\n  road:\n    speed_kph: 0\n",
		"unknown mode":    "modes:\n  hyperloop:\n    speed_kph: 900\n",
		"policy":          "reroute:\n  policy:\n    delay_prob_threshold: 2\n",
		"local search":    "solver:\n  local_search: tabu\n",
		"store backend":   "store:\n  backend: sqlite\n",
		"postgres dsn":    "store:\n  backend: postgres\n",
		"oracle scheme":   "oracle:\n  url: ml:8000\n",
		"mqtt qos":        "mqtt:\n  broker: tcp://b:1883\n  qos: 3\n",
		"metrics sink":    "metrics:\n  sinks:\n    - conf: {}\n",
		"ingest":          "ingest:\n  enabled: true\n",
		"log level":       "logging:\n  level: loud\n",
		"sample rate":     "monitoring:\n  traces_sample_rate: 2\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, "c.yaml", data)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := Load(writeConfig(t, "c.toml", "x = 1")); err == nil {
		t.Fatal("expected format error")
	}
}
