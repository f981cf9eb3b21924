// Package metrics defines the planning metrics sink. A Sink records mode
// decisions and may implement extra recorders for reroutes, route searches,
// oracle fallbacks and reroute ticks. Concrete sinks live in infra/metrics
// and register themselves in the factory so that NewSink can build them
// from configuration, wrapping several in a MultiSink.
package metrics
