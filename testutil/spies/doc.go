// Package spies provides test doubles for the observability ports:
// a slog.Handler that captures records, a contextual logger, a metrics collector and a tracing collector.
package spies
