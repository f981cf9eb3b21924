package metrics

import "errors"

// MultiSink fans records out to several sinks. Every sink is tried; the
// returned error joins the individual failures.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordDecision(ev DecisionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordDecision(ev))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordReroute(ev RerouteEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(RerouteRecorder); ok {
			errs = append(errs, r.RecordReroute(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordSolve(ev SolveEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(SolveRecorder); ok {
			errs = append(errs, r.RecordSolve(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordOracleFallback(ev OracleFallbackEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(OracleFallbackRecorder); ok {
			errs = append(errs, r.RecordOracleFallback(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordTick(ev TickEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(TickRecorder); ok {
			errs = append(errs, r.RecordTick(ev))
		}
	}
	return errors.Join(errs...)
}
