package modes

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/freightplan/core/model"
)

const eps = 1e-9

func newCalc(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(DefaultParams())
	require.NoError(t, err)
	return c
}

func TestNewParamsRejectsBadConfig(t *testing.T) {
	cases := map[string]map[model.Mode]model.ModeParams{
		"zero speed":     {model.ModeRoad: {SpeedKPH: 0}},
		"negative cost":  {model.ModeRoad: {SpeedKPH: 10, CostPerKM: -1}},
		"nan emission":   {model.ModeRoad: {SpeedKPH: 10, EmissionKgPerKM: math.NaN()}},
		"unknown mode":   {model.ModeRoad: {SpeedKPH: 10}, "hyperloop": {SpeedKPH: 900}},
		"empty":          {},
		"infinite speed": {model.ModeAir: {SpeedKPH: math.Inf(1)}},
	}
	for name, table := range cases {
		if _, err := NewParams(table); !errors.Is(err, ErrConfiguration) {
			t.Errorf("%s: expected ErrConfiguration got %v", name, err)
		}
	}
}

func TestParamsAreCopied(t *testing.T) {
	table := DefaultTable()
	p, err := NewParams(table)
	require.NoError(t, err)
	table[model.ModeRoad] = model.ModeParams{SpeedKPH: 1}
	got, _ := p.Get(model.ModeRoad)
	assert.Equal(t, 40.0, got.SpeedKPH)
	assert.Equal(t, model.AllModes(), p.Modes())
}

func TestComputeReferenceValues(t *testing.T) {
	c := newCalc(t)
	delay := model.DelayEstimate{DelayProb: 0.25, ExpectedDelayMin: 20}
	got, err := c.ComputeMap(800, delay)
	require.NoError(t, err)

	road := got[model.ModeRoad]
	assert.InDelta(t, 1200, road.TimeMin, eps)
	assert.InDelta(t, 0.25*1200+20, road.DelayPenaltyMin, eps)
	assert.InDelta(t, 96, road.EmissionsKg, eps)
	assert.InDelta(t, 9600, road.Cost, eps)

	rail := got[model.ModeRail]
	assert.InDelta(t, 800.0/60*60+45, rail.TimeMin, eps)

	air := got[model.ModeAir]
	assert.InDelta(t, 96+90, air.TimeMin, eps)
	assert.InDelta(t, 480, air.EmissionsKg, eps)
}

func TestComputeOrderIsCanonical(t *testing.T) {
	res, err := newCalc(t).Compute(10, model.DelayEstimate{})
	require.NoError(t, err)
	var got []model.Mode
	for _, r := range res {
		got = append(got, r.Mode)
	}
	assert.Equal(t, model.AllModes(), got)
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	c := newCalc(t)
	for _, d := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		if _, err := c.Compute(d, model.DelayEstimate{}); !errors.Is(err, ErrInvalidDistance) {
			t.Errorf("distance %v: expected ErrInvalidDistance got %v", d, err)
		}
	}
	if _, err := c.Compute(10, model.DelayEstimate{DelayProb: 2}); !errors.Is(err, model.ErrInvalidEstimate) {
		t.Fatalf("expected invalid estimate got %v", err)
	}
}

func TestMetricsMonotonicAndLinear(t *testing.T) {
	c := newCalc(t)
	delay := model.DelayEstimate{DelayProb: 0.1, ExpectedDelayMin: 5}
	for _, m := range model.AllModes() {
		prev := -1.0
		for _, d := range []float64{1, 10, 100, 1000} {
			mm, err := c.Metrics(m, d, delay)
			require.NoError(t, err)
			if mm.TimeMin <= prev {
				t.Fatalf("%s: time not strictly increasing at %v", m, d)
			}
			prev = mm.TimeMin
			one, _ := c.Metrics(m, 1, delay)
			assert.InDelta(t, one.EmissionsKg*d, mm.EmissionsKg, 1e-6)
			assert.InDelta(t, one.Cost*d, mm.Cost, 1e-6)
		}
	}
}

func TestChainMetricsOmitExpectedDelay(t *testing.T) {
	c := newCalc(t)
	delay := model.DelayEstimate{DelayProb: 0.5, ExpectedDelayMin: 100}
	chain := model.Chain{model.ModeRoad, model.ModeRail, model.ModeRoad}
	mm, err := c.ChainMetrics(chain, 300, delay)
	require.NoError(t, err)
	// legs of 100km: road 150min, rail 100+45min, road 150min
	assert.InDelta(t, 445, mm.TimeMin, eps)
	assert.InDelta(t, 0.5*445, mm.DelayPenaltyMin, eps)
	assert.InDelta(t, 100*0.12*2+100*0.04, mm.EmissionsKg, eps)
	assert.InDelta(t, 100*12*2+100*6, mm.Cost, eps)
}

func TestEvaluateChainScoreMatchesMetrics(t *testing.T) {
	c := newCalc(t)
	w := model.DefaultWeights()
	delay := model.DelayEstimate{DelayProb: 0.25, ExpectedDelayMin: 20}
	for _, chain := range DefaultChains() {
		score, mm, err := c.EvaluateChain(chain, 800, delay, w)
		require.NoError(t, err)
		manual := w.Time*mm.TimeMin + w.Delay*mm.DelayPenaltyMin + w.Emissions*mm.EmissionsKg + w.Cost*mm.Cost
		assert.InDelta(t, manual, score, eps)
		assert.Equal(t, Score(mm, w), score)
	}
}

func TestChainErrors(t *testing.T) {
	c := newCalc(t)
	if _, err := c.ChainMetrics(nil, 10, model.DelayEstimate{}); err == nil {
		t.Fatal("expected empty chain error")
	}
	p, err := NewParams(map[model.Mode]model.ModeParams{model.ModeRoad: {SpeedKPH: 40}})
	require.NoError(t, err)
	roadOnly, err := NewCalculator(p)
	require.NoError(t, err)
	if _, err := roadOnly.ChainMetrics(model.Chain{model.ModeRoad, model.ModeSea}, 10, model.DelayEstimate{}); !errors.Is(err, model.ErrUnknownMode) {
		t.Fatalf("expected unknown mode got %v", err)
	}
	if _, err := NewCalculator(Params{}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error got %v", err)
	}
}
