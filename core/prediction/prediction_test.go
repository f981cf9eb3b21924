package prediction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/freightplan/core/events"
	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/internal/eventbus"
)

func fixedNow() time.Time { return time.Date(2024, 3, 6, 14, 30, 0, 0, time.UTC) } // Wednesday

func TestNormalizeDefaultsAndClamps(t *testing.T) {
	r := Features{}.Normalize(fixedNow())
	assert.Equal(t, 1.0, r.DistanceKM)
	assert.Equal(t, 30.0, r.BaselineTimeMin)
	assert.Equal(t, 500.0, r.WeightKG)
	assert.Equal(t, 2, r.Priority)
	assert.Equal(t, 14, r.HourOfDay)
	assert.Equal(t, 2, r.DayOfWeek)
	assert.Equal(t, 25.0, r.TemperatureC)
	assert.Equal(t, 2.0, r.WindSpeedMPS)
	assert.Equal(t, 0.4, r.CongestionIndex)
	assert.Equal(t, 35.0, r.AvgSpeedKPH)

	r = Features{
		DistanceKM: 0.2,
		Priority:   9,
		WeightKG:   -4,
		Weather:    &model.WeatherSnapshot{TemperatureC: -3, PrecipitationMM: -1, WindSpeedMPS: -2},
		Traffic:    &model.TrafficSnapshot{CongestionIndex: 1.7, AvgSpeedKPH: 0.3},
	}.Normalize(fixedNow())
	assert.Equal(t, 1.0, r.DistanceKM)
	assert.Equal(t, 3, r.Priority)
	assert.Equal(t, 1.0, r.WeightKG)
	assert.Equal(t, -3.0, r.TemperatureC)
	assert.Equal(t, 0.0, r.PrecipitationMM)
	assert.Equal(t, 0.0, r.WindSpeedMPS)
	assert.Equal(t, 1.0, r.CongestionIndex)
	assert.Equal(t, 1.0, r.AvgSpeedKPH)
}

func TestFallbackFormula(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		prob float64
		min  float64
	}{
		{"defaults", Request{CongestionIndex: 0.4, BaselineTimeMin: 30}, 0.267, 8},
		{"rain", Request{CongestionIndex: 0.6, PrecipitationMM: 18, BaselineTimeMin: 30}, 0.9, 48},
		{"short baseline", Request{CongestionIndex: 0.1, BaselineTimeMin: 0.5}, 0.9, 2},
		{"calm", Request{BaselineTimeMin: 60}, 0, 0},
	}
	for _, c := range cases {
		got := Fallback(c.req)
		if got.DelayProb != c.prob || got.ExpectedDelayMin != c.min {
			t.Errorf("%s: got %+v", c.name, got)
		}
		if got.ModelVersion != FallbackModelVersion {
			t.Errorf("%s: unexpected version %s", c.name, got.ModelVersion)
		}
	}
}

func TestFallbackOracleUsesRemote(t *testing.T) {
	remote := StaticOracle{Default: model.DelayEstimate{DelayProb: 0.3, ExpectedDelayMin: 12, ModelVersion: "v3"}}
	o := NewFallbackOracle(remote)
	got, err := o.Predict(context.Background(), Features{DistanceKM: 10})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	assert.Equal(t, "v3", got.ModelVersion)
}

func TestFallbackOracleOnUnavailable(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)

	bus := eventbus.NewTyped[events.Event]()
	sub := bus.Subscribe()
	o := NewFallbackOracle(StaticOracle{Err: ErrUnavailable}, WithBus(bus), WithClock(fixedNow))
	got, err := o.Predict(context.Background(), Features{Traffic: &model.TrafficSnapshot{CongestionIndex: 0.85, AvgSpeedKPH: 20}})
	if err != nil {
		t.Fatalf("fallback must not surface an error: %v", err)
	}
	assert.Equal(t, FallbackModelVersion, got.ModelVersion)
	assert.Equal(t, 17.0, got.ExpectedDelayMin)
	if v := testutil.ToFloat64(oracleFallbacks.WithLabelValues("unavailable")); v != 1 {
		t.Fatalf("expected 1 fallback got %v", v)
	}
	ev := (<-sub).(events.OracleFallbackEvent)
	if ev.Reason != "unavailable" || !errors.Is(ev.Err, ErrUnavailable) {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestFallbackOracleOnMalformedEstimate(t *testing.T) {
	o := NewFallbackOracle(StaticOracle{Default: model.DelayEstimate{DelayProb: 3}})
	got, err := o.Predict(context.Background(), Features{})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	assert.Equal(t, FallbackModelVersion, got.ModelVersion)
}

func TestFallbackOracleTimeout(t *testing.T) {
	slow := OracleFunc(func(ctx context.Context, _ Features) (model.DelayEstimate, error) {
		<-ctx.Done()
		return model.DelayEstimate{}, ctx.Err()
	})
	o := NewFallbackOracle(slow, WithTimeout(10*time.Millisecond))
	got, err := o.Predict(context.Background(), Features{})
	if err != nil {
		t.Fatalf("timeout must fall back: %v", err)
	}
	assert.Equal(t, FallbackModelVersion, got.ModelVersion)
}

func TestFallbackOraclePropagatesOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	o := NewFallbackOracle(StaticOracle{Err: boom})
	if _, err := o.Predict(context.Background(), Features{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom got %v", err)
	}
}

func TestFallbackOracleCallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := NewFallbackOracle(StaticOracle{Err: ErrUnavailable})
	if _, err := o.Predict(ctx, Features{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation got %v", err)
	}
}

func TestFallbackOracleWithoutRemote(t *testing.T) {
	o := NewFallbackOracle(nil)
	got, err := o.Predict(context.Background(), Features{BaselineTimeMin: 60, Weather: &model.WeatherSnapshot{PrecipitationMM: 5}})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	// congestion default 0.4 -> 8 + 10 = 18 minutes, 18/60 = 0.3
	assert.Equal(t, 18.0, got.ExpectedDelayMin)
	assert.Equal(t, 0.3, got.DelayProb)
}
