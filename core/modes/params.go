// Package modes computes per-mode and multimodal chain metrics from an
// immutable table of mode parameters.
package modes

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/freightplan/core/model"
)

// ErrConfiguration marks invalid static mode parameters. It is fatal at
// startup.
var ErrConfiguration = errors.New("invalid mode configuration")

// Params is an immutable mode parameter table. Build it with NewParams.
type Params struct {
	order []model.Mode
	table map[model.Mode]model.ModeParams
}

// DefaultTable returns the reference parameters for road, rail, sea and air.
func DefaultTable() map[model.Mode]model.ModeParams {
	return map[model.Mode]model.ModeParams{
		model.ModeRoad: {SpeedKPH: 40, EmissionKgPerKM: 0.12, CostPerKM: 12, TransferPenaltyMin: 0},
		model.ModeRail: {SpeedKPH: 60, EmissionKgPerKM: 0.04, CostPerKM: 6, TransferPenaltyMin: 45},
		model.ModeSea:  {SpeedKPH: 30, EmissionKgPerKM: 0.02, CostPerKM: 4, TransferPenaltyMin: 120},
		model.ModeAir:  {SpeedKPH: 500, EmissionKgPerKM: 0.6, CostPerKM: 45, TransferPenaltyMin: 90},
	}
}

// DefaultParams returns DefaultTable as validated Params.
func DefaultParams() Params {
	p, err := NewParams(DefaultTable())
	if err != nil {
		panic(err)
	}
	return p
}

// NewParams copies and validates table. Every speed must be strictly positive
// and every other factor non-negative and finite. Modes are kept in
// canonical order.
func NewParams(table map[model.Mode]model.ModeParams) (Params, error) {
	if len(table) == 0 {
		return Params{}, fmt.Errorf("%w: empty mode table", ErrConfiguration)
	}
	p := Params{table: make(map[model.Mode]model.ModeParams, len(table))}
	for _, m := range model.AllModes() {
		mp, ok := table[m]
		if !ok {
			continue
		}
		if err := validate(m, mp); err != nil {
			return Params{}, err
		}
		p.order = append(p.order, m)
		p.table[m] = mp
	}
	if len(p.order) != len(table) {
		for m := range table {
			if _, ok := p.table[m]; !ok {
				return Params{}, fmt.Errorf("%w: %w", ErrConfiguration, model.ErrUnknownMode)
			}
		}
	}
	return p, nil
}

func validate(m model.Mode, mp model.ModeParams) error {
	if !(mp.SpeedKPH > 0) || math.IsInf(mp.SpeedKPH, 0) {
		return fmt.Errorf("%w: %s speed_kph must be > 0, got %v", ErrConfiguration, m, mp.SpeedKPH)
	}
	for name, v := range map[string]float64{
		"emission_kg_per_km":   mp.EmissionKgPerKM,
		"cost_per_km":          mp.CostPerKM,
		"transfer_penalty_min": mp.TransferPenaltyMin,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s %s must be >= 0, got %v", ErrConfiguration, m, name, v)
		}
	}
	return nil
}

// Modes returns the configured modes in canonical order.
func (p Params) Modes() []model.Mode {
	return append([]model.Mode(nil), p.order...)
}

// Get returns the parameters of m.
func (p Params) Get(m model.Mode) (model.ModeParams, bool) {
	mp, ok := p.table[m]
	return mp, ok
}
