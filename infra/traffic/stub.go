// Package traffic provides area traffic estimates. StubProvider is a
// deterministic model used until a live feed is wired in.
package traffic

import (
	"context"
	"math"
	"time"

	"github.com/kilianp07/freightplan/core/model"
)

// Source tags events produced from stub snapshots.
const Source = "stub-traffic"

// DefaultFreeFlowKPH is the uncongested road speed.
const DefaultFreeFlowKPH = 50.0

// Snapshot is a traffic observation for one point.
type Snapshot struct {
	Lat             float64
	Lon             float64
	TS              time.Time
	CongestionIndex float64
	AvgSpeedKPH     float64
	Source          string
}

// Model returns the part of the snapshot the planner consumes.
func (s Snapshot) Model() model.TrafficSnapshot {
	return model.TrafficSnapshot{CongestionIndex: s.CongestionIndex, AvgSpeedKPH: s.AvgSpeedKPH}
}

// StubProvider derives congestion from time of day, weekday and rain.
type StubProvider struct {
	FreeFlowKPH float64
}

// NewStubProvider returns a provider with the default free flow speed.
func NewStubProvider() StubProvider {
	return StubProvider{FreeFlowKPH: DefaultFreeFlowKPH}
}

// Snapshot estimates traffic at (lat, lon) for ts. The location does not
// influence the estimate.
func (p StubProvider) Snapshot(lat, lon float64, ts time.Time, rainMM float64) Snapshot {
	ts = ts.UTC()
	freeFlow := p.FreeFlowKPH
	if freeFlow <= 0 {
		freeFlow = DefaultFreeFlowKPH
	}
	base := peakCurve(ts.Hour()*60+ts.Minute()) * 0.75 * weekdayModifier(ts.Weekday())
	congestion := math.Min(1, base*rainModifier(rainMM))
	speed := math.Max(5, freeFlow*(0.25+0.75*(1-congestion)))
	return Snapshot{
		Lat:             lat,
		Lon:             lon,
		TS:              ts,
		CongestionIndex: round(congestion, 3),
		AvgSpeedKPH:     round(speed, 1),
		Source:          Source,
	}
}

// Traffic adapts Snapshot to the ingest provider interface.
func (p StubProvider) Traffic(ctx context.Context, lat, lon float64, at time.Time, rainMM float64) (model.TrafficSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.TrafficSnapshot{}, err
	}
	return p.Snapshot(lat, lon, at, rainMM).Model(), nil
}

// EdgeFactor is a multiplicative travel time adjustment for one edge.
type EdgeFactor struct {
	EdgeID          string
	Factor          float64
	DeltaMin        float64
	CongestionIndex float64
	AvgSpeedKPH     float64
	TS              time.Time
}

// EdgeFactor converts the area snapshot at (lat, lon) into a factor in
// [1, 1.6] applied to baseMin.
func (p StubProvider) EdgeFactor(edgeID string, baseMin, lat, lon float64, ts time.Time, rainMM float64) EdgeFactor {
	s := p.Snapshot(lat, lon, ts, rainMM)
	factor := 1 + s.CongestionIndex*0.6
	return EdgeFactor{
		EdgeID:          edgeID,
		Factor:          round(factor, 3),
		DeltaMin:        round(math.Max(0, (factor-1)*baseMin), 2),
		CongestionIndex: s.CongestionIndex,
		AvgSpeedKPH:     s.AvgSpeedKPH,
		TS:              s.TS,
	}
}

// peakCurve blends two sinusoids into morning and evening peaks, in [0,1].
func peakCurve(minutes int) float64 {
	x := float64(minutes) / (24 * 60) * 2 * math.Pi
	v := (math.Sin(2*x-0.5) + math.Sin(2*x+1)) / 2
	return (v + 1) / 2
}

func weekdayModifier(d time.Weekday) float64 {
	if d == time.Saturday || d == time.Sunday {
		return 0.7
	}
	return 1
}

func rainModifier(rainMM float64) float64 {
	if rainMM <= 0 || math.IsNaN(rainMM) {
		return 1
	}
	return math.Min(1+rainMM*0.08, 1.4)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
