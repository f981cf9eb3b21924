package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/freightplan/core/factory"
	metrics "github.com/kilianp07/freightplan/core/metrics"
	_ "github.com/kilianp07/freightplan/infra/metrics"
)

func TestSinkTypesIncludeBuiltins(t *testing.T) {
	assert.Subset(t, metrics.SinkTypes(), []string{"influx", "nop", "prometheus"})
}

func TestNewSinkUnknownTypeNamesTheEntry(t *testing.T) {
	_, err := metrics.NewSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "statsd"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sinks[1] "statsd"`)
}

func TestNewSinkInfluxNeedsBucket(t *testing.T) {
	_, err := metrics.NewSink([]factory.ModuleConfig{{Type: "influx", Conf: map[string]any{"url": "http://influx:8086"}}})
	assert.Error(t, err)
}

func TestNewSinkShapes(t *testing.T) {
	s, err := metrics.NewSink(nil)
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	m, ok := s.(*metrics.MultiSink)
	require.True(t, ok, "expected MultiSink, got %T", s)
	assert.Len(t, m.Sinks, 2)
	assert.NoError(t, m.RecordDecision(metrics.DecisionEvent{PlanID: "P-1", Selection: "rail", Time: time.Now()}))
}
