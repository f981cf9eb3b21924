package model

import (
	"errors"
	"fmt"
	"math"
)

// DelayEstimate is the oracle's prediction for a movement.
type DelayEstimate struct {
	DelayProb        float64 `json:"delay_prob"`
	ExpectedDelayMin float64 `json:"expected_delay_min"`
	ModelVersion     string  `json:"model_version,omitempty"`
}

// ErrInvalidEstimate is returned for probabilities outside [0,1] or negative delays.
var ErrInvalidEstimate = errors.New("invalid delay estimate")

// Validate checks the estimate ranges.
func (d DelayEstimate) Validate() error {
	if math.IsNaN(d.DelayProb) || d.DelayProb < 0 || d.DelayProb > 1 {
		return fmt.Errorf("%w: delay_prob %v", ErrInvalidEstimate, d.DelayProb)
	}
	if math.IsNaN(d.ExpectedDelayMin) || d.ExpectedDelayMin < 0 {
		return fmt.Errorf("%w: expected_delay_min %v", ErrInvalidEstimate, d.ExpectedDelayMin)
	}
	return nil
}

// TrafficSnapshot is an area level traffic observation.
type TrafficSnapshot struct {
	CongestionIndex float64 `json:"congestion_index"`
	AvgSpeedKPH     float64 `json:"avg_speed_kph"`
}

// WeatherSnapshot is a point weather observation.
type WeatherSnapshot struct {
	TemperatureC    float64 `json:"temperature_c"`
	PrecipitationMM float64 `json:"precipitation_mm"`
	WindSpeedMPS    float64 `json:"wind_speed_mps"`
}
