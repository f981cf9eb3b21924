// Package reroute re-optimises active plans when traffic, weather or delay
// events breach the configured policy.
package reroute

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/freightplan/core/events"
	"github.com/kilianp07/freightplan/core/logger"
	"github.com/kilianp07/freightplan/core/metrics"
	"github.com/kilianp07/freightplan/core/model"
	"github.com/kilianp07/freightplan/core/monitoring"
	"github.com/kilianp07/freightplan/core/planner"
	"github.com/kilianp07/freightplan/core/store"
	"github.com/kilianp07/freightplan/internal/eventbus"
)

// EventSource tags the reroute events appended by the engine.
const EventSource = "reroute-engine"

var (
	// errSkipped marks plans that left the ACTIVE state before they were handled.
	errSkipped = errors.New("plan no longer eligible")
	// errInvalidPlan marks plans whose inputs cannot produce a decision.
	// Retrying them is pointless until the plan is rewritten.
	errInvalidPlan = errors.New("invalid plan")
)

// TickReport summarises one tick.
type TickReport struct {
	// Scanned counts events inspected by this tick.
	Scanned int
	// Triggered counts events that breached the policy.
	Triggered int
	Rerouted  int
	Skipped   int
	Failed    int
	// Pending lists plans that will be retried on the next tick.
	Pending   []string
	HighWater int64
}

// Engine polls recent events and re-optimises active plans.
type Engine struct {
	cfg      Config
	opt      *planner.Optimizer
	store    store.Store
	notifier Notifier
	log      logger.Logger
	sink     metrics.Sink
	bus      eventbus.Publisher[events.Event]
	monitor  monitoring.Monitor
	now      func() time.Time

	tickMu    sync.Mutex
	mu        sync.Mutex
	restored  bool
	highWater int64
	pending   map[string]struct{}
	locks     sync.Map
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the downstream notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = logger.OrNop(l) }
}

// WithSink records reroutes and ticks on s.
func WithSink(s metrics.Sink) Option {
	return func(e *Engine) { e.sink = metrics.OrNop(s) }
}

// WithBus publishes RerouteEvent and TickEvent values on b.
func WithBus(b eventbus.Publisher[events.Event]) Option {
	return func(e *Engine) {
		if b != nil {
			e.bus = b
		}
	}
}

// WithMonitor reports invalid plans and failed ticks to m.
func WithMonitor(m monitoring.Monitor) Option {
	return func(e *Engine) { e.monitor = monitoring.OrNop(m) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New builds an engine. cfg is defaulted and validated.
func New(cfg Config, opt *planner.Optimizer, st store.Store, opts ...Option) (*Engine, error) {
	if opt == nil || st == nil {
		return nil, errors.New("reroute: optimizer and store are required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		opt:      opt,
		store:    st,
		notifier: NopNotifier{},
		monitor:  monitoring.Nop{},
		log:      logger.Nop{},
		sink:     metrics.NopSink{},
		bus:      eventbus.Nop[events.Event]{},
		now:      time.Now,
		pending:  make(map[string]struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// HighWater returns the id of the newest handled event.
func (e *Engine) HighWater() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.highWater
}

// Pending returns the ids of plans awaiting a retry, sorted.
func (e *Engine) Pending() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedKeys(e.pending)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) planLock(id string) *sync.Mutex {
	l, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// Restore rebuilds the engine state persisted in the store: the high-water
// mark from the trigger ids carried by past reroute events and the pending
// set from plans left in REROUTE_TRIGGERED. Tick calls it once before the
// first scan.
func (e *Engine) Restore(ctx context.Context) error {
	var hw int64
	if e.cfg.DedupeEnabled() {
		past, err := e.store.FindEvents(ctx, store.EventFilter{
			Limit: e.cfg.EventLimit,
			Types: []model.EventType{model.EventReroute},
		})
		if err != nil {
			return fmt.Errorf("reroute history: %w", err)
		}
		for _, ev := range past {
			if p, ok := ev.Payload.(model.ReroutePayload); ok {
				hw = max(hw, p.TriggerEventID)
			}
		}
	}
	stuck, err := e.store.PlansByStatus(ctx, model.PlanRerouteTriggered)
	if err != nil {
		return fmt.Errorf("interrupted plans: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.highWater = max(e.highWater, hw)
	for _, p := range stuck {
		e.pending[p.ID] = struct{}{}
	}
	e.restored = true
	if hw > 0 || len(stuck) > 0 {
		e.log.Infof("restored high-water %d and %d interrupted plans", e.highWater, len(stuck))
	}
	return nil
}

// Run ticks every PollInterval until ctx is cancelled. Failing or panicking
// ticks are logged and counted; they never stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	e.log.Infof("reroute engine started, polling every %s", e.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			e.log.Infof("reroute engine stopped")
			return nil
		case <-ticker.C:
			if _, err := e.safeTick(ctx); err != nil && ctx.Err() == nil {
				e.log.Errorf("reroute tick: %v", err)
				e.monitor.CaptureException(err, map[string]string{"component": "reroute"})
			}
		}
	}
}

func (e *Engine) safeTick(ctx context.Context) (rep TickReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			tickTotal.WithLabelValues("panic").Inc()
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return e.Tick(ctx)
}

// Tick runs one polling cycle. Events other than the engine's own reroute
// events are inspected newest first; with dedupe enabled, events at or below
// the high-water mark are skipped. When
// any event breaches the policy every ACTIVE plan is re-optimised; otherwise
// only plans left pending by an earlier failed save are retried. Concurrent
// calls are serialised.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	start := e.now()

	e.mu.Lock()
	restored := e.restored
	e.mu.Unlock()
	if !restored {
		if err := e.Restore(ctx); err != nil {
			tickTotal.WithLabelValues("error").Inc()
			return TickReport{}, err
		}
	}

	e.mu.Lock()
	hw := e.highWater
	retry := sortedKeys(e.pending)
	e.mu.Unlock()

	rep := TickReport{HighWater: hw}
	recent, err := e.store.FindEvents(ctx, store.EventFilter{
		Limit:   e.cfg.EventLimit,
		Exclude: []model.EventType{model.EventReroute},
	})
	if err != nil {
		tickTotal.WithLabelValues("error").Inc()
		return rep, fmt.Errorf("recent events: %w", err)
	}

	newest := hw
	var trigger *model.Event
	var why string
	for i := range recent {
		ev := recent[i]
		if e.cfg.DedupeEnabled() && ev.ID <= hw {
			continue
		}
		rep.Scanned++
		newest = max(newest, ev.ID)
		ok, reason := Triggered(ev, e.cfg.Policy)
		if !ok {
			continue
		}
		rep.Triggered++
		if trigger == nil {
			trigger, why = &ev, reason
		}
	}

	var targets []string
	if trigger != nil {
		e.log.Infof("event %d (%s) breached policy: %s", trigger.ID, trigger.Type, why)
		active, err := e.store.ActivePlans(ctx)
		if err != nil {
			tickTotal.WithLabelValues("error").Inc()
			return rep, fmt.Errorf("active plans: %w", err)
		}
		seen := make(map[string]bool, len(active))
		for _, p := range active {
			targets = append(targets, p.ID)
			seen[p.ID] = true
		}
		for _, id := range retry {
			if !seen[id] {
				targets = append(targets, id)
			}
		}
	} else {
		targets = retry
	}

	var triggerID int64
	if trigger != nil {
		triggerID = trigger.ID
	}
	failed := make(map[string]struct{})
	var resMu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for _, id := range targets {
		g.Go(func() error {
			err := e.guardedReoptimise(ctx, id, triggerID)
			resMu.Lock()
			defer resMu.Unlock()
			switch {
			case err == nil:
				rep.Rerouted++
				rerouteTotal.WithLabelValues("rerouted").Inc()
			case errors.Is(err, errSkipped):
				rep.Skipped++
				rerouteTotal.WithLabelValues("skipped").Inc()
			case errors.Is(err, errInvalidPlan):
				rep.Failed++
				rerouteTotal.WithLabelValues("invalid").Inc()
				e.log.Errorf("reroute plan %s: %v", id, err)
				e.monitor.CaptureException(err, map[string]string{"component": "reroute", "plan_id": id})
			default:
				rep.Failed++
				failed[id] = struct{}{}
				rerouteTotal.WithLabelValues("failed").Inc()
				e.log.Warnf("reroute plan %s: %v, will retry", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	e.mu.Lock()
	e.highWater = newest
	e.pending = failed
	e.mu.Unlock()
	pendingPlans.Set(float64(len(failed)))

	rep.HighWater = newest
	rep.Pending = sortedKeys(failed)
	dur := e.now().Sub(start)
	tickDuration.Observe(dur.Seconds())
	if rep.Failed > 0 {
		tickTotal.WithLabelValues("partial").Inc()
	} else {
		tickTotal.WithLabelValues("ok").Inc()
	}
	if rec, ok := e.sink.(metrics.TickRecorder); ok {
		if err := rec.RecordTick(metrics.TickEvent{
			Scanned: rep.Scanned, Triggered: rep.Triggered, Rerouted: rep.Rerouted,
			Failed: rep.Failed, Duration: dur, Time: start,
		}); err != nil {
			e.log.Warnf("record tick: %v", err)
		}
	}
	e.bus.Publish(events.TickEvent{
		Scanned: rep.Scanned, Triggered: rep.Triggered, Rerouted: rep.Rerouted,
		Failed: rep.Failed, Duration: dur, Time: start,
	})
	if rep.Scanned > 0 || len(targets) > 0 {
		e.log.Debugw("reroute tick", map[string]any{
			"scanned":    rep.Scanned,
			"triggered":  rep.Triggered,
			"rerouted":   rep.Rerouted,
			"failed":     rep.Failed,
			"high_water": newest,
		})
	}
	return rep, nil
}

func (e *Engine) guardedReoptimise(ctx context.Context, id string, triggerID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.reoptimise(ctx, id, triggerID)
}

// reoptimise moves the plan through REROUTE_TRIGGERED, saves the new
// decision against the version it was computed from and returns it to
// ACTIVE. A plan found in REROUTE_TRIGGERED is resumed.
func (e *Engine) reoptimise(ctx context.Context, id string, triggerID int64) error {
	l := e.planLock(id)
	l.Lock()
	defer l.Unlock()

	p, err := e.store.GetPlan(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errSkipped
		}
		return err
	}
	if p.Status != model.PlanActive && p.Status != model.PlanRerouteTriggered {
		return errSkipped
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errInvalidPlan, err)
	}
	if p.Status == model.PlanActive {
		if p, err = e.store.UpdateStatus(ctx, id, model.PlanRerouteTriggered); err != nil {
			return err
		}
	}
	previous := ""
	if p.Decision != nil {
		previous = p.Decision.Label()
	}

	dec, err := e.opt.Select(p.DistanceKM, p.Delay, p.Weights)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	saved, err := e.store.SavePlanDecision(ctx, id, store.DecisionUpdate{
		Decision:        dec,
		Reason:          model.RerouteReasonEventTriggered,
		ExpectedVersion: p.Version,
	})
	if err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	if _, err := e.store.UpdateStatus(ctx, id, model.PlanActive); err != nil {
		return fmt.Errorf("reactivate: %w", err)
	}
	e.announce(ctx, saved, previous, triggerID)
	return nil
}

// announce emits the reroute notification through every channel. Failures
// are logged; the decision is already persisted.
func (e *Engine) announce(ctx context.Context, p model.Plan, previous string, triggerID int64) {
	n := model.ReroutePayload{
		PlanID:         p.ID,
		Reason:         p.RerouteReason,
		NewMode:        p.Decision.Label(),
		TriggerEventID: triggerID,
	}
	if err := e.notifier.Notify(ctx, n); err != nil {
		notifyFailure.Inc()
		e.log.Warnf("notify reroute of plan %s: %v", p.ID, err)
	}
	ev, err := model.NewEvent(EventSource, model.SeverityModerate, n)
	if err == nil {
		ev.PlanID = p.ID
		_, err = e.store.AppendEvent(ctx, ev)
	}
	if err != nil {
		e.log.Warnf("append reroute event for plan %s: %v", p.ID, err)
	}
	now := e.now()
	if rec, ok := e.sink.(metrics.RerouteRecorder); ok {
		if err := rec.RecordReroute(metrics.RerouteEvent{
			PlanID: p.ID, Reason: n.Reason, Previous: previous, Selection: n.NewMode,
			TriggerEventID: triggerID, Time: now,
		}); err != nil {
			e.log.Warnf("record reroute: %v", err)
		}
	}
	e.bus.Publish(events.RerouteEvent{
		PlanID: p.ID, Reason: n.Reason, TriggerEvent: triggerID,
		Previous: previous, Decision: *p.Decision, Time: now,
	})
	e.log.Infof("plan %s rerouted: %s -> %s", p.ID, previous, n.NewMode)
}
