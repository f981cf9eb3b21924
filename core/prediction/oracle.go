package prediction

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/kilianp07/freightplan/core/model"
)

// Oracle predicts the delay distribution of a movement.
type Oracle interface {
	Predict(ctx context.Context, f Features) (model.DelayEstimate, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, f Features) (model.DelayEstimate, error)

func (fn OracleFunc) Predict(ctx context.Context, f Features) (model.DelayEstimate, error) {
	return fn(ctx, f)
}

var (
	// ErrUnavailable covers transport failures, timeouts and non-2xx answers.
	ErrUnavailable = errors.New("delay oracle unavailable")
	// ErrMalformed covers responses missing fields or carrying out of range values.
	ErrMalformed = errors.New("delay oracle response malformed")
)

// Features describes one movement. Zero values mean "unknown" and are
// replaced by defaults during normalisation. Nil snapshots fall back to
// typical conditions.
type Features struct {
	DistanceKM      float64
	BaselineTimeMin float64
	WeightKG        float64
	Priority        int
	At              time.Time
	Weather         *model.WeatherSnapshot
	Traffic         *model.TrafficSnapshot
}

// Request is the normalised payload accepted by the ML delay service.
type Request struct {
	DistanceKM      float64 `json:"distance_km"`
	BaselineTimeMin float64 `json:"baseline_time_min"`
	WeightKG        float64 `json:"weight_kg"`
	Priority        int     `json:"priority"`
	HourOfDay       int     `json:"hour_of_day"`
	DayOfWeek       int     `json:"day_of_week"`
	TemperatureC    float64 `json:"temperature_c"`
	PrecipitationMM float64 `json:"precipitation_mm"`
	WindSpeedMPS    float64 `json:"wind_speed_mps"`
	CongestionIndex float64 `json:"congestion_index"`
	AvgSpeedKPH     float64 `json:"avg_speed_kph"`
}

const (
	defaultBaselineMin = 30.0
	defaultWeightKG    = 500.0
	defaultPriority    = 2
	defaultTempC       = 25.0
	defaultWindMPS     = 2.0
	defaultCongestion  = 0.4
	defaultAvgSpeedKPH = 35.0
)

// Normalize applies defaults and clamps every field to the range the ML
// service validates. now is used when f.At is zero.
func (f Features) Normalize(now time.Time) Request {
	at := f.At
	if at.IsZero() {
		at = now
	}
	at = at.UTC()
	r := Request{
		DistanceKM:      math.Max(1, f.DistanceKM),
		BaselineTimeMin: orDefault(f.BaselineTimeMin, defaultBaselineMin),
		WeightKG:        math.Max(1, orDefault(f.WeightKG, defaultWeightKG)),
		Priority:        defaultPriority,
		HourOfDay:       at.Hour(),
		DayOfWeek:       (int(at.Weekday()) + 6) % 7,
		TemperatureC:    defaultTempC,
		WindSpeedMPS:    defaultWindMPS,
		CongestionIndex: defaultCongestion,
		AvgSpeedKPH:     defaultAvgSpeedKPH,
	}
	r.BaselineTimeMin = math.Max(1, r.BaselineTimeMin)
	if f.Priority != 0 {
		r.Priority = min(3, max(1, f.Priority))
	}
	if w := f.Weather; w != nil {
		r.TemperatureC = w.TemperatureC
		r.PrecipitationMM = math.Max(0, w.PrecipitationMM)
		r.WindSpeedMPS = math.Max(0, w.WindSpeedMPS)
	}
	if t := f.Traffic; t != nil {
		r.CongestionIndex = math.Min(1, math.Max(0, t.CongestionIndex))
		r.AvgSpeedKPH = math.Max(1, orDefault(t.AvgSpeedKPH, defaultAvgSpeedKPH))
	}
	return r
}

func orDefault(v, def float64) float64 {
	if v == 0 || math.IsNaN(v) {
		return def
	}
	return v
}

// FallbackModelVersion tags estimates produced without the remote oracle.
const FallbackModelVersion = "fallback_v0"

// Fallback derives a deterministic estimate from congestion and rain:
// delay = max(0, congestion*20 + rain*2) minutes and
// prob = min(0.9, delay / max(1, baseline)). The probability is rounded to 3
// decimals and the delay to 1 decimal.
func Fallback(r Request) model.DelayEstimate {
	delayMin := math.Max(0, r.CongestionIndex*20+r.PrecipitationMM*2)
	prob := math.Min(0.9, delayMin/math.Max(1, r.BaselineTimeMin))
	return model.DelayEstimate{
		DelayProb:        roundTo(prob, 3),
		ExpectedDelayMin: roundTo(delayMin, 1),
		ModelVersion:     FallbackModelVersion,
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// StaticOracle returns configured estimates keyed by rounded distance, or
// Default for anything else. Err, when set, is returned instead.
type StaticOracle struct {
	Default    model.DelayEstimate
	ByDistance map[int]model.DelayEstimate
	Err        error
}

// Predict implements Oracle.
func (s StaticOracle) Predict(ctx context.Context, f Features) (model.DelayEstimate, error) {
	if err := ctx.Err(); err != nil {
		return model.DelayEstimate{}, err
	}
	if s.Err != nil {
		return model.DelayEstimate{}, s.Err
	}
	if s.ByDistance != nil {
		if d, ok := s.ByDistance[int(math.Round(f.DistanceKM))]; ok {
			return d, nil
		}
	}
	return s.Default, nil
}
