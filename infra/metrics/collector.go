package metrics

import (
	"context"

	"github.com/kilianp07/freightplan/core/events"
	coremetrics "github.com/kilianp07/freightplan/core/metrics"
	"github.com/kilianp07/freightplan/infra/logger"
	"github.com/kilianp07/freightplan/internal/eventbus"
)

// StartEventCollector subscribes to bus and forwards decision, solve and
// oracle fallback events to sink. Reroutes and ticks are recorded by the
// reroute engine itself. The returned channel is closed once the collector
// has stopped, which happens when ctx is cancelled or the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.Event], sink coremetrics.Sink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log := logger.New("metrics-collector")
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := forward(ev, sink); err != nil {
					log.Warnf("record %s: %v", ev.Kind(), err)
				}
			}
		}
	}()
	return done
}

func forward(ev events.Event, sink coremetrics.Sink) error {
	switch e := ev.(type) {
	case events.DecisionEvent:
		return sink.RecordDecision(coremetrics.DecisionEvent{
			PlanID:       e.PlanID,
			Selection:    e.Decision.Label(),
			IsMultimodal: e.Decision.IsMultimodal,
			Score:        e.Decision.Score,
			Metrics:      e.Decision.Metrics,
			Time:         e.Time,
		})
	case events.SolveEvent:
		r, ok := sink.(coremetrics.SolveRecorder)
		if !ok {
			return nil
		}
		objective := int64(-1)
		if e.Objective != nil {
			objective = *e.Objective
		}
		return r.RecordSolve(coremetrics.SolveEvent{
			Status:      e.Status,
			Objective:   objective,
			Vehicles:    e.Vehicles,
			Stops:       e.Stops,
			PenaltyUsed: e.PenaltyUsed,
			Duration:    e.Duration,
			Time:        e.Time,
		})
	case events.OracleFallbackEvent:
		r, ok := sink.(coremetrics.OracleFallbackRecorder)
		if !ok {
			return nil
		}
		return r.RecordOracleFallback(coremetrics.OracleFallbackEvent{
			Reason:           e.Reason,
			DelayProb:        e.Estimate.DelayProb,
			ExpectedDelayMin: e.Estimate.ExpectedDelayMin,
			Time:             e.Time,
		})
	}
	return nil
}
