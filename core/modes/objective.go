package modes

import (
	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/freightplan/core/model"
)

// DefaultChains returns the multimodal candidates considered by default.
func DefaultChains() []model.Chain {
	return []model.Chain{
		{model.ModeRoad, model.ModeRail, model.ModeRoad},
		{model.ModeRoad, model.ModeSea, model.ModeRoad},
	}
}

// Score is the weighted planning objective; lower is better.
//
//	w_time*time + w_delay*delay + w_emissions*emissions + w_cost*cost
func Score(m model.ModeMetrics, w model.Weights) float64 {
	return floats.Dot(w.Vector(), m.Vector())
}

// EvaluateChain returns the score and aggregated metrics of chain. The score
// is Score applied to the returned metrics.
func (c *Calculator) EvaluateChain(chain model.Chain, distanceKM float64, delay model.DelayEstimate, w model.Weights) (float64, model.ModeMetrics, error) {
	mm, err := c.ChainMetrics(chain, distanceKM, delay)
	if err != nil {
		return 0, model.ModeMetrics{}, err
	}
	return Score(mm, w), mm, nil
}
