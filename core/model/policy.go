package model

import (
	"fmt"
	"math"
)

// ReroutePolicy holds the thresholds whose breach triggers re-optimisation.
// Comparisons are strict: a value equal to its threshold does not trigger.
type ReroutePolicy struct {
	CongestionThreshold float64 `json:"congestion_threshold" yaml:"congestion_threshold" koanf:"congestion_threshold"`
	RainThresholdMM     float64 `json:"rain_threshold_mm" yaml:"rain_threshold_mm" koanf:"rain_threshold_mm"`
	DelayProbThreshold  float64 `json:"delay_prob_threshold" yaml:"delay_prob_threshold" koanf:"delay_prob_threshold"`
}

// DefaultReroutePolicy returns congestion 0.75, rain 10 mm and delay probability 0.6.
func DefaultReroutePolicy() ReroutePolicy {
	return ReroutePolicy{CongestionThreshold: 0.75, RainThresholdMM: 10, DelayProbThreshold: 0.6}
}

// Validate checks the threshold ranges.
func (p ReroutePolicy) Validate() error {
	if math.IsNaN(p.CongestionThreshold) || p.CongestionThreshold < 0 || p.CongestionThreshold > 1 {
		return fmt.Errorf("congestion_threshold %v outside [0,1]", p.CongestionThreshold)
	}
	if math.IsNaN(p.RainThresholdMM) || p.RainThresholdMM < 0 {
		return fmt.Errorf("rain_threshold_mm %v must be >= 0", p.RainThresholdMM)
	}
	if math.IsNaN(p.DelayProbThreshold) || p.DelayProbThreshold < 0 || p.DelayProbThreshold > 1 {
		return fmt.Errorf("delay_prob_threshold %v outside [0,1]", p.DelayProbThreshold)
	}
	return nil
}
