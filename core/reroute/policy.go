package reroute

import (
	"fmt"

	"github.com/kilianp07/freightplan/core/model"
)

// Triggered reports whether e breaches p and, when it does, which threshold.
// Reroute events never trigger.
func Triggered(e model.Event, p model.ReroutePolicy) (bool, string) {
	switch pl := e.Payload.(type) {
	case model.TrafficPayload:
		if pl.CongestionIndex > p.CongestionThreshold {
			return true, fmt.Sprintf("congestion %.2f > %.2f", pl.CongestionIndex, p.CongestionThreshold)
		}
	case model.WeatherPayload:
		if pl.PrecipitationMM > p.RainThresholdMM {
			return true, fmt.Sprintf("precipitation %.1fmm > %.1fmm", pl.PrecipitationMM, p.RainThresholdMM)
		}
	case model.DelayPayload:
		if pl.DelayProb > p.DelayProbThreshold {
			return true, fmt.Sprintf("delay probability %.2f > %.2f", pl.DelayProb, p.DelayProbThreshold)
		}
	}
	return false, ""
}
