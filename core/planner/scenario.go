package planner

import (
	"fmt"

	"github.com/kilianp07/freightplan/core/model"
)

// Scenario is a named set of network conditions used for evaluation runs.
type Scenario struct {
	Name    string                `json:"name"`
	Traffic model.TrafficSnapshot `json:"traffic"`
	Weather model.WeatherSnapshot `json:"weather"`
	Delay   model.DelayEstimate   `json:"delay"`
}

// Scenarios returns the reference scenarios: normal, traffic and weather.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name:    "normal",
			Traffic: model.TrafficSnapshot{CongestionIndex: 0.2},
			Delay:   model.DelayEstimate{DelayProb: 0.1, ExpectedDelayMin: 5},
		},
		{
			Name:    "traffic",
			Traffic: model.TrafficSnapshot{CongestionIndex: 0.85},
			Delay:   model.DelayEstimate{DelayProb: 0.4, ExpectedDelayMin: 15},
		},
		{
			Name:    "weather",
			Traffic: model.TrafficSnapshot{CongestionIndex: 0.6},
			Weather: model.WeatherSnapshot{PrecipitationMM: 18},
			Delay:   model.DelayEstimate{DelayProb: 0.7, ExpectedDelayMin: 30},
		},
	}
}

// ScenarioByName looks up a reference scenario.
func ScenarioByName(name string) (Scenario, error) {
	for _, s := range Scenarios() {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("unknown scenario %q", name)
}

// ScenarioResult compares a fixed baseline mode with the optimizer's choice.
type ScenarioResult struct {
	Scenario  string             `json:"scenario"`
	Baseline  model.ModeMetrics  `json:"baseline"`
	Optimised model.PlanDecision `json:"optimised"`
	KPIs      KPIs               `json:"improvements"`
}

// Evaluate runs s against the optimizer using baseline as the reference mode.
func (o *Optimizer) Evaluate(s Scenario, distanceKM float64, baseline model.Mode, w model.Weights) (ScenarioResult, error) {
	base, err := o.calc.Metrics(baseline, distanceKM, s.Delay)
	if err != nil {
		return ScenarioResult{}, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	dec, err := o.Select(distanceKM, s.Delay, w)
	if err != nil {
		return ScenarioResult{}, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return ScenarioResult{
		Scenario:  s.Name,
		Baseline:  base,
		Optimised: dec,
		KPIs:      CompareKPIs(KPIInputFrom(base), KPIInputFrom(dec.Metrics)),
	}, nil
}
