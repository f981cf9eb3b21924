package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Mode identifies a transport mode.
type Mode string

const (
	ModeRoad Mode = "road"
	ModeRail Mode = "rail"
	ModeSea  Mode = "sea"
	ModeAir  Mode = "air"
)

// modeOrder is the canonical iteration order used for tie-breaking.
var modeOrder = [...]Mode{ModeRoad, ModeRail, ModeSea, ModeAir}

// AllModes returns every known mode in canonical order.
func AllModes() []Mode {
	out := make([]Mode, len(modeOrder))
	copy(out, modeOrder[:])
	return out
}

// ErrUnknownMode is returned when a mode name cannot be parsed.
var ErrUnknownMode = errors.New("unknown transport mode")

// ParseMode converts a case-insensitive name into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range modeOrder {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) String() string { return string(m) }

// ModeParams holds the static characteristics of a mode.
type ModeParams struct {
	SpeedKPH           float64 `json:"speed_kph"`
	EmissionKgPerKM    float64 `json:"emission_kg_per_km"`
	CostPerKM          float64 `json:"cost_per_km"`
	TransferPenaltyMin float64 `json:"transfer_penalty_min"`
}

// ModeMetrics aggregates time, delay, emissions and cost for a movement.
type ModeMetrics struct {
	TimeMin         float64 `json:"time_min"`
	DelayPenaltyMin float64 `json:"delay_penalty_min"`
	EmissionsKg     float64 `json:"emissions_kg"`
	Cost            float64 `json:"cost"`
}

// Add returns the component-wise sum of m and o.
func (m ModeMetrics) Add(o ModeMetrics) ModeMetrics {
	return ModeMetrics{
		TimeMin:         m.TimeMin + o.TimeMin,
		DelayPenaltyMin: m.DelayPenaltyMin + o.DelayPenaltyMin,
		EmissionsKg:     m.EmissionsKg + o.EmissionsKg,
		Cost:            m.Cost + o.Cost,
	}
}

// Vector returns the metrics in weight order: time, delay, emissions, cost.
func (m ModeMetrics) Vector() []float64 {
	return []float64{m.TimeMin, m.DelayPenaltyMin, m.EmissionsKg, m.Cost}
}

// Chain is an ordered sequence of modes forming one multimodal itinerary.
type Chain []Mode

// String renders the chain as "road>rail>road".
func (c Chain) String() string {
	parts := make([]string, len(c))
	for i, m := range c {
		parts[i] = string(m)
	}
	return strings.Join(parts, ">")
}

// ParseChain parses a chain rendered by Chain.String or a comma separated list.
func ParseChain(s string) (Chain, error) {
	sep := ">"
	if strings.Contains(s, ",") {
		sep = ","
	}
	var out Chain
	for _, p := range strings.Split(s, sep) {
		m, err := ParseMode(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty chain")
	}
	return out, nil
}

// Weights are the coefficients of the weighted planning objective.
type Weights struct {
	Time      float64 `json:"time"`
	Delay     float64 `json:"delay"`
	Emissions float64 `json:"emissions"`
	Cost      float64 `json:"cost"`
}

// DefaultWeights returns time 0.4, delay 0.3, emissions 0.2, cost 0.1.
func DefaultWeights() Weights {
	return Weights{Time: 0.4, Delay: 0.3, Emissions: 0.2, Cost: 0.1}
}

// IsZero reports whether all weights are unset.
func (w Weights) IsZero() bool { return w == Weights{} }

// OrDefault returns w, or DefaultWeights when w is the zero value.
func (w Weights) OrDefault() Weights {
	if w.IsZero() {
		return DefaultWeights()
	}
	return w
}

// Validate rejects negative coefficients.
func (w Weights) Validate() error {
	for _, v := range w.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weights must be finite: %+v", w)
		}
	}
	if w.Time < 0 || w.Delay < 0 || w.Emissions < 0 || w.Cost < 0 {
		return fmt.Errorf("weights must be non-negative: %+v", w)
	}
	return nil
}

// Vector returns the weights in metric order.
func (w Weights) Vector() []float64 {
	return []float64{w.Time, w.Delay, w.Emissions, w.Cost}
}

// PlanDecision is the outcome of mode selection. Exactly one of Mode or
// Chain is set, as indicated by IsMultimodal.
type PlanDecision struct {
	Mode         Mode        `json:"selected_mode,omitempty"`
	Chain        Chain       `json:"selected_chain,omitempty"`
	IsMultimodal bool        `json:"is_multimodal"`
	Metrics      ModeMetrics `json:"metrics"`
	Score        float64     `json:"score"`
}

// Label returns the selected mode or the rendered chain.
func (d PlanDecision) Label() string {
	if d.IsMultimodal {
		return d.Chain.String()
	}
	return string(d.Mode)
}
