// Package events defines the planning events emitted on the event bus.
//
// Available event types:
//   - DecisionEvent: a plan decision was computed
//   - RerouteEvent: an active plan was re-optimised after a policy breach
//   - TickEvent: summary of one reroute polling tick
//   - OracleFallbackEvent: the delay oracle was replaced by the fallback estimate
//   - SolveEvent: outcome of a route search
package events
