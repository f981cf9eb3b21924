// Package infra holds the adapters behind the planning core: Postgres
// persistence, the MQTT notifier, metrics sinks, the route search engine
// and the HTTP clients for the delay oracle, traffic and weather feeds.
// These packages depend only on interfaces defined in core.
package infra
