package prediction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/freightplan/core/model"
)

// WeatherSource reports current conditions at a point.
type WeatherSource interface {
	Weather(ctx context.Context, lat, lon float64) (model.WeatherSnapshot, error)
}

// TrafficSource estimates traffic at a point. rainMM lets the estimate
// account for current precipitation.
type TrafficSource interface {
	Traffic(ctx context.Context, lat, lon float64, at time.Time, rainMM float64) (model.TrafficSnapshot, error)
}

// FeaturesFrom fills the missing weather and traffic snapshots of f with
// live conditions at (lat, lon). Snapshots already set are kept and nil
// sources are skipped. Weather is sampled first so its precipitation feeds
// the traffic estimate. A failing source leaves its snapshot nil, so the
// oracle falls back to typical conditions; the failures are returned joined
// alongside the features.
func FeaturesFrom(ctx context.Context, f Features, lat, lon float64, ws WeatherSource, ts TrafficSource) (Features, error) {
	if f.At.IsZero() {
		f.At = time.Now()
	}
	var errs []error
	if f.Weather == nil && ws != nil {
		w, err := ws.Weather(ctx, lat, lon)
		if err != nil {
			errs = append(errs, fmt.Errorf("weather: %w", err))
		} else {
			f.Weather = &w
		}
	}
	if f.Traffic == nil && ts != nil {
		var rain float64
		if f.Weather != nil {
			rain = f.Weather.PrecipitationMM
		}
		tr, err := ts.Traffic(ctx, lat, lon, f.At, rain)
		if err != nil {
			errs = append(errs, fmt.Errorf("traffic: %w", err))
		} else {
			f.Traffic = &tr
		}
	}
	return f, errors.Join(errs...)
}
