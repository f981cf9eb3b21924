// Package planner selects the transport mode or multimodal chain that
// minimises the weighted planning objective.
package planner

import (
	"fmt"

	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/modes"
)

// Candidate is one scored option considered by the optimizer.
type Candidate struct {
	Mode         model.Mode        `json:"mode,omitempty"`
	Chain        model.Chain       `json:"chain,omitempty"`
	IsMultimodal bool              `json:"is_multimodal"`
	Metrics      model.ModeMetrics `json:"metrics"`
	Score        float64           `json:"score"`
}

// Decision converts the candidate into a PlanDecision.
func (c Candidate) Decision() model.PlanDecision {
	d := model.PlanDecision{
		IsMultimodal: c.IsMultimodal,
		Metrics:      c.Metrics,
		Score:        c.Score,
	}
	if c.IsMultimodal {
		d.Chain = append(model.Chain(nil), c.Chain...)
	} else {
		d.Mode = c.Mode
	}
	return d
}

// Optimizer compares single-mode and multimodal candidates. It is immutable
// after construction and safe for concurrent use.
type Optimizer struct {
	calc   *modes.Calculator
	chains []model.Chain
}

// New returns an optimizer over calc. When chains is empty the default
// chains are used.
func New(calc *modes.Calculator, chains []model.Chain) (*Optimizer, error) {
	if calc == nil {
		return nil, fmt.Errorf("%w: nil calculator", modes.ErrConfiguration)
	}
	if len(chains) == 0 {
		chains = modes.DefaultChains()
	}
	cp := make([]model.Chain, 0, len(chains))
	for i, ch := range chains {
		if len(ch) == 0 {
			return nil, fmt.Errorf("%w: chain %d is empty", modes.ErrConfiguration, i)
		}
		for _, m := range ch {
			if _, ok := calc.Params().Get(m); !ok {
				return nil, fmt.Errorf("%w: chain %s uses unconfigured mode %s", modes.ErrConfiguration, ch, m)
			}
		}
		cp = append(cp, append(model.Chain(nil), ch...))
	}
	return &Optimizer{calc: calc, chains: cp}, nil
}

// Chains returns a copy of the configured chains.
func (o *Optimizer) Chains() []model.Chain {
	out := make([]model.Chain, len(o.chains))
	for i, ch := range o.chains {
		out[i] = append(model.Chain(nil), ch...)
	}
	return out
}

// Candidates scores every single mode in canonical order followed by every
// chain in configuration order. Zero weights are replaced by the defaults.
func (o *Optimizer) Candidates(distanceKM float64, delay model.DelayEstimate, w model.Weights) ([]Candidate, error) {
	w = w.OrDefault()
	if err := w.Validate(); err != nil {
		return nil, err
	}
	single, err := o.calc.Compute(distanceKM, delay)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(single)+len(o.chains))
	for _, r := range single {
		out = append(out, Candidate{Mode: r.Mode, Metrics: r.Metrics, Score: modes.Score(r.Metrics, w)})
	}
	for _, ch := range o.chains {
		score, mm, err := o.calc.EvaluateChain(ch, distanceKM, delay, w)
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{Chain: ch, IsMultimodal: true, Metrics: mm, Score: score})
	}
	return out, nil
}

// Select returns the lowest scoring candidate. The best single mode is
// found first, then each chain replaces it only when strictly better, so ties
// keep the earlier candidate.
func (o *Optimizer) Select(distanceKM float64, delay model.DelayEstimate, w model.Weights) (model.PlanDecision, error) {
	cands, err := o.Candidates(distanceKM, delay, w)
	if err != nil {
		return model.PlanDecision{}, err
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score < best.Score {
			best = c
		}
	}
	return best.Decision(), nil
}
