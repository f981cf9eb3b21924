// Package factory provides a generic registry used to build pluggable
// modules, such as metrics sinks, from configuration. A module is selected by
// a type string and configured by a map of raw settings that the factory
// decodes into its own typed struct.
//
//	reg := factory.NewRegistry[metrics.Sink]()
//	_ = reg.Register("nop", func(map[string]any) (metrics.Sink, error) {
//	    return metrics.NopSink{}, nil
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "nop"})
package factory
