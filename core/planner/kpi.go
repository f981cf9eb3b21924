package planner

import (
	"math"

	"github.com/kilianp07/freightplan/core/model"
)

// KPIInput is the subset of metrics compared between two plans.
type KPIInput struct {
	DelayMin    float64 `json:"delay_min"`
	EmissionsKg float64 `json:"emissions_kg"`
	Cost        float64 `json:"cost"`
}

// KPIInputFrom extracts the comparable fields of m. The delay penalty stands
// in for delay minutes.
func KPIInputFrom(m model.ModeMetrics) KPIInput {
	return KPIInput{DelayMin: m.DelayPenaltyMin, EmissionsKg: m.EmissionsKg, Cost: m.Cost}
}

// KPIs are relative improvements of an optimised plan over a baseline, in
// percent. Positive reductions and savings are improvements; a positive cost
// change is a cost increase.
type KPIs struct {
	DelayReductionPct float64 `json:"delay_reduction_pct"`
	EmissionsSavedPct float64 `json:"emissions_saved_pct"`
	CostChangePct     float64 `json:"cost_change_pct"`
}

// CompareKPIs computes the KPIs rounded to two decimals. Denominators are
// clamped to at least 1.
func CompareKPIs(baseline, optimised KPIInput) KPIs {
	return KPIs{
		DelayReductionPct: pct(baseline.DelayMin-optimised.DelayMin, baseline.DelayMin),
		EmissionsSavedPct: pct(baseline.EmissionsKg-optimised.EmissionsKg, baseline.EmissionsKg),
		CostChangePct:     pct(optimised.Cost-baseline.Cost, baseline.Cost),
	}
}

func pct(diff, base float64) float64 {
	return round2(diff / math.Max(1, base) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
