package metrics

import (
	"fmt"

	"github.com/kilianp07/freightplan/core/factory"
)

var sinkRegistry = factory.NewRegistry[Sink]()

// RegisterSink adds a sink factory identified by name. Adapters register
// themselves from init.
func RegisterSink(name string, f factory.Factory[Sink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkTypes lists the registered sink names.
func SinkTypes() []string { return sinkRegistry.Types() }

// NewSink builds the sinks listed under metrics.sinks. No entry yields
// NopSink, one entry the sink itself and several a MultiSink fanning every
// record out.
func NewSink(cfgs []factory.ModuleConfig) (Sink, error) {
	switch len(cfgs) {
	case 0:
		return NopSink{}, nil
	case 1:
		s, err := sinkRegistry.Create(cfgs[0])
		if err != nil {
			return nil, fmt.Errorf("sink %q: %w", cfgs[0].Type, err)
		}
		return s, nil
	}
	sinks := make([]Sink, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, fmt.Errorf("sinks[%d] %q: %w", i, c.Type, err)
		}
		sinks = append(sinks, s)
	}
	return NewMultiSink(sinks...), nil
}
