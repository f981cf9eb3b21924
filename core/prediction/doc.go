// Package prediction defines the delay oracle contract used by the planner.
// An Oracle turns route features into a DelayEstimate. FallbackOracle wraps a
// remote oracle and substitutes a deterministic estimate derived from the
// congestion and rain inputs whenever the remote side is unavailable or
// answers with a malformed payload, so planning can always proceed.
package prediction
