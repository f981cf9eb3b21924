package prediction

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/freightplan/core/events"
	"github.com/kilianp07/freightplan/core/logger"
	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/internal/eventbus"
)

// DefaultTimeout bounds a single oracle call.
const DefaultTimeout = 5 * time.Second

// FallbackOracle guards a remote Oracle with a timeout and substitutes
// Fallback when the call fails with ErrUnavailable or ErrMalformed. Any other
// error, including cancellation of the caller's context, is returned as is.
type FallbackOracle struct {
	next    Oracle
	timeout time.Duration
	log     logger.Logger
	bus     eventbus.Publisher[events.Event]
	now     func() time.Time
}

// Option configures a FallbackOracle.
type Option func(*FallbackOracle)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *FallbackOracle) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger used to report fallbacks.
func WithLogger(l logger.Logger) Option {
	return func(o *FallbackOracle) { o.log = logger.OrNop(l) }
}

// WithBus publishes an OracleFallbackEvent for every substitution.
func WithBus(b eventbus.Publisher[events.Event]) Option {
	return func(o *FallbackOracle) {
		if b != nil {
			o.bus = b
		}
	}
}

// WithClock overrides time.Now, used for the hour/day features.
func WithClock(now func() time.Time) Option {
	return func(o *FallbackOracle) {
		if now != nil {
			o.now = now
		}
	}
}

// NewFallbackOracle wraps next. A nil next always yields the fallback
// estimate, which matches running without a configured ML service.
func NewFallbackOracle(next Oracle, opts ...Option) *FallbackOracle {
	o := &FallbackOracle{
		next:    next,
		timeout: DefaultTimeout,
		log:     logger.Nop{},
		bus:     eventbus.Nop[events.Event]{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Predict implements Oracle.
func (o *FallbackOracle) Predict(ctx context.Context, f Features) (model.DelayEstimate, error) {
	if o.next == nil {
		return o.fallback(f, "disabled", nil), nil
	}
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	est, err := o.next.Predict(callCtx, f)
	oracleLatency.Observe(time.Since(start).Seconds())
	if err == nil {
		if verr := est.Validate(); verr != nil {
			err = errors.Join(ErrMalformed, verr)
		}
	}
	if err == nil {
		return est, nil
	}
	// The caller gave up: this is not an oracle failure.
	if ctx.Err() != nil {
		return model.DelayEstimate{}, ctx.Err()
	}
	switch {
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return o.fallback(f, "unavailable", err), nil
	case errors.Is(err, ErrMalformed):
		return o.fallback(f, "malformed", err), nil
	}
	return model.DelayEstimate{}, err
}

func (o *FallbackOracle) fallback(f Features, reason string, cause error) model.DelayEstimate {
	est := Fallback(f.Normalize(o.now()))
	oracleFallbacks.WithLabelValues(reason).Inc()
	if cause != nil {
		o.log.Warnf("delay oracle %s, using fallback estimate: %v", reason, cause)
	} else {
		o.log.Debugf("delay oracle %s, using fallback estimate", reason)
	}
	o.bus.Publish(events.OracleFallbackEvent{Reason: reason, Err: cause, Estimate: est, Time: o.now()})
	return est
}
