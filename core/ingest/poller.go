// Package ingest turns traffic and weather observations into persisted
// events that the reroute engine consumes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/freightplan/core/logger"
	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/store"
)

// TrafficProvider estimates congestion at a point. rainMM lets providers
// account for weather; it is zero when unknown.
type TrafficProvider interface {
	Traffic(ctx context.Context, lat, lon float64, at time.Time, rainMM float64) (model.TrafficSnapshot, error)
}

// WeatherProvider reports current conditions at a point.
type WeatherProvider interface {
	Weather(ctx context.Context, lat, lon float64) (model.WeatherSnapshot, error)
}

// ClassifyCongestion maps a congestion index to a severity.
func ClassifyCongestion(ci float64) model.Severity {
	switch {
	case ci >= 0.7:
		return model.SeverityHigh
	case ci >= 0.35:
		return model.SeverityModerate
	}
	return model.SeverityLow
}

// ClassifyWeather maps rain and wind to a severity.
func ClassifyWeather(w model.WeatherSnapshot) model.Severity {
	switch {
	case w.PrecipitationMM > 8 || w.WindSpeedMPS > 15:
		return model.SeverityHigh
	case w.PrecipitationMM > 2 || w.WindSpeedMPS > 8:
		return model.SeverityModerate
	}
	return model.SeverityLow
}

type source[P any] struct {
	provider P
	name     string
}

// Poller samples every configured location and appends one event per
// provider and location.
type Poller struct {
	cfg     Config
	store   store.Store
	traffic *source[TrafficProvider]
	weather *source[WeatherProvider]
	log     logger.Logger
	now     func() time.Time
}

// Option configures a Poller.
type Option func(*Poller)

// WithTraffic enables traffic sampling. name becomes the event source.
func WithTraffic(p TrafficProvider, name string) Option {
	return func(pl *Poller) {
		if p != nil {
			pl.traffic = &source[TrafficProvider]{provider: p, name: name}
		}
	}
}

// WithWeather enables weather sampling. name becomes the event source.
func WithWeather(p WeatherProvider, name string) Option {
	return func(pl *Poller) {
		if p != nil {
			pl.weather = &source[WeatherProvider]{provider: p, name: name}
		}
	}
}

// WithLogger sets the poller logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Poller) { p.log = logger.OrNop(l) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPoller builds a poller over st.
func NewPoller(cfg Config, st store.Store, opts ...Option) (*Poller, error) {
	if st == nil {
		return nil, errors.New("ingest: nil store")
	}
	cfg.SetDefaults()
	p := &Poller{cfg: cfg, store: st, log: logger.Nop{}, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PollOnce samples every location once and returns the number of appended
// events. Provider failures skip that observation. Store failures are
// collected and returned after the remaining locations were processed.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	var (
		inserted int
		errs     []error
	)
	for _, loc := range p.cfg.Locations {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		n, err := p.pollLocation(ctx, loc)
		inserted += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return inserted, errors.Join(errs...)
}

func (p *Poller) pollLocation(ctx context.Context, loc Location) (int, error) {
	at := p.now().UTC()
	inserted := 0
	var rainMM float64

	if p.weather != nil {
		w, err := p.weather.provider.Weather(ctx, loc.Lat, loc.Lon)
		if err != nil {
			failuresTotal.WithLabelValues(string(model.EventWeather)).Inc()
			p.log.Warnf("weather fetch failed for %s: %v", loc.ID, err)
		} else {
			rainMM = math.Max(0, w.PrecipitationMM)
			payload := model.WeatherPayload{
				LocationID:      loc.ID,
				TemperatureC:    w.TemperatureC,
				PrecipitationMM: rainMM,
				WindSpeedMPS:    math.Max(0, w.WindSpeedMPS),
			}
			if err := p.append(ctx, p.weather.name, ClassifyWeather(w), payload, at); err != nil {
				return inserted, err
			}
			inserted++
		}
	}

	if p.traffic != nil {
		tr, err := p.traffic.provider.Traffic(ctx, loc.Lat, loc.Lon, at, rainMM)
		if err != nil {
			failuresTotal.WithLabelValues(string(model.EventTraffic)).Inc()
			p.log.Warnf("traffic snapshot failed for %s: %v", loc.ID, err)
			return inserted, nil
		}
		payload := model.TrafficPayload{
			LocationID:      loc.ID,
			CongestionIndex: math.Min(1, math.Max(0, tr.CongestionIndex)),
			AvgSpeedKPH:     math.Max(0, tr.AvgSpeedKPH),
		}
		if err := p.append(ctx, p.traffic.name, ClassifyCongestion(payload.CongestionIndex), payload, at); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (p *Poller) append(ctx context.Context, src string, sev model.Severity, payload model.EventPayload, at time.Time) error {
	e, err := model.NewEvent(src, sev, payload)
	if err != nil {
		failuresTotal.WithLabelValues(string(payload.EventType())).Inc()
		return fmt.Errorf("build %s event: %w", payload.EventType(), err)
	}
	e.TS = at
	saved, err := p.store.AppendEvent(ctx, e)
	if err != nil {
		failuresTotal.WithLabelValues(string(payload.EventType())).Inc()
		return fmt.Errorf("append %s event: %w", payload.EventType(), err)
	}
	eventsTotal.WithLabelValues(string(saved.Type)).Inc()
	p.log.Debugw("event ingested", map[string]any{"id": saved.ID, "type": saved.Type, "severity": saved.Severity})
	return nil
}

// Run polls immediately and then on every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		n, err := p.PollOnce(ctx)
		if err != nil && ctx.Err() == nil {
			p.log.Errorf("ingest poll failed: %v", err)
		}
		if n > 0 {
			p.log.Infof("ingested %d events", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
