package metrics_test

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/freightplan/core/factory"
	metrics "github.com/kilianp07/freightplan/core/metrics"
	_ "github.com/kilianp07/freightplan/infra/metrics"
)

// Test decoding from YAML with multiple sinks.
func TestMetricsConfigDecodeYAML(t *testing.T) {
	data := `sinks:
  - type: nop
  - type: nop
prometheus_addr: ":9100"
`
	var cfg metrics.Config
	if err := yaml.Unmarshal([]byte(data), &cfg); err != nil {
		t.Fatalf("yaml unmarshal: %v", err)
	}
	if cfg.PrometheusAddr != ":9100" {
		t.Fatalf("unexpected addr %q", cfg.PrometheusAddr)
	}
	s, err := metrics.NewSink(cfg.Sinks)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := s.(*metrics.MultiSink); !ok {
		t.Fatalf("expected MultiSink")
	}
}

// Test decoding from JSON with invalid sink type.
func TestMetricsConfigDecodeJSON_Invalid(t *testing.T) {
	data := `{"sinks":[{"type":"missing"}]}`
	var cfg metrics.Config
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := metrics.NewSink(cfg.Sinks); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestMetricsConfigValidate(t *testing.T) {
	cfg := metrics.Config{Sinks: []factory.ModuleConfig{{}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing type error")
	}
	cfg = metrics.Config{}
	cfg.SetDefaults()
	if cfg.PrometheusAddr != metrics.DefaultPrometheusAddr {
		t.Fatalf("default addr not applied: %q", cfg.PrometheusAddr)
	}
}
