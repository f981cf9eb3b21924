package modes

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/freightplan/core/model"
)

// ErrInvalidDistance is returned for non-positive distances.
var ErrInvalidDistance = errors.New("distance_km must be > 0")

// Calculator computes ModeMetrics. It holds no mutable state and is safe for
// concurrent use.
type Calculator struct {
	params Params
}

// NewCalculator returns a Calculator over p. A zero Params is rejected.
func NewCalculator(p Params) (*Calculator, error) {
	if len(p.order) == 0 {
		return nil, fmt.Errorf("%w: no modes configured", ErrConfiguration)
	}
	return &Calculator{params: p}, nil
}

// Params returns the parameter table.
func (c *Calculator) Params() Params { return c.params }

func checkInputs(distanceKM float64, delay model.DelayEstimate) error {
	if !(distanceKM > 0) || math.IsInf(distanceKM, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidDistance, distanceKM)
	}
	return delay.Validate()
}

// legTime returns travel minutes plus the transfer penalty.
func legTime(distanceKM float64, mp model.ModeParams) float64 {
	return distanceKM/mp.SpeedKPH*60 + mp.TransferPenaltyMin
}

// Metrics computes the single-mode metrics of m:
//
//	time      = d/speed*60 + transfer
//	delay     = prob*time + expected_delay
//	emissions = d*emission_factor
//	cost      = d*cost_per_km
func (c *Calculator) Metrics(m model.Mode, distanceKM float64, delay model.DelayEstimate) (model.ModeMetrics, error) {
	if err := checkInputs(distanceKM, delay); err != nil {
		return model.ModeMetrics{}, err
	}
	mp, ok := c.params.Get(m)
	if !ok {
		return model.ModeMetrics{}, fmt.Errorf("%w: %s not configured", model.ErrUnknownMode, m)
	}
	t := legTime(distanceKM, mp)
	return model.ModeMetrics{
		TimeMin:         t,
		DelayPenaltyMin: delay.DelayProb*t + delay.ExpectedDelayMin,
		EmissionsKg:     distanceKM * mp.EmissionKgPerKM,
		Cost:            distanceKM * mp.CostPerKM,
	}, nil
}

// ModeResult pairs a mode with its metrics.
type ModeResult struct {
	Mode    model.Mode
	Metrics model.ModeMetrics
}

// Compute returns metrics for every configured mode in canonical order.
func (c *Calculator) Compute(distanceKM float64, delay model.DelayEstimate) ([]ModeResult, error) {
	if err := checkInputs(distanceKM, delay); err != nil {
		return nil, err
	}
	out := make([]ModeResult, 0, len(c.params.order))
	for _, m := range c.params.order {
		mm, err := c.Metrics(m, distanceKM, delay)
		if err != nil {
			return nil, err
		}
		out = append(out, ModeResult{Mode: m, Metrics: mm})
	}
	return out, nil
}

// ComputeMap is Compute keyed by mode.
func (c *Calculator) ComputeMap(distanceKM float64, delay model.DelayEstimate) (map[model.Mode]model.ModeMetrics, error) {
	res, err := c.Compute(distanceKM, delay)
	if err != nil {
		return nil, err
	}
	out := make(map[model.Mode]model.ModeMetrics, len(res))
	for _, r := range res {
		out[r.Mode] = r.Metrics
	}
	return out, nil
}

// ChainMetrics aggregates metrics over a chain whose legs share the
// distance equally.
//
// Each leg contributes prob*leg_time to the delay penalty. Unlike Metrics, the
// expected delay minutes are not added, neither per leg nor once per chain.
// Candidate for unification with Metrics.
func (c *Calculator) ChainMetrics(chain model.Chain, distanceKM float64, delay model.DelayEstimate) (model.ModeMetrics, error) {
	if len(chain) == 0 {
		return model.ModeMetrics{}, fmt.Errorf("empty chain")
	}
	if err := checkInputs(distanceKM, delay); err != nil {
		return model.ModeMetrics{}, err
	}
	seg := distanceKM / float64(len(chain))
	var total model.ModeMetrics
	for _, m := range chain {
		mp, ok := c.params.Get(m)
		if !ok {
			return model.ModeMetrics{}, fmt.Errorf("chain %s: %w: %s not configured", chain, model.ErrUnknownMode, m)
		}
		t := legTime(seg, mp)
		total = total.Add(model.ModeMetrics{
			TimeMin:         t,
			DelayPenaltyMin: delay.DelayProb * t,
			EmissionsKg:     seg * mp.EmissionKgPerKM,
			Cost:            seg * mp.CostPerKM,
		})
	}
	return total, nil
}
