// Package oteladapters provides OpenTelemetry implementations of the observability ports
// eventstore.MetricsCollector, eventstore.TracingCollector and eventstore.ContextualLogger.
//
// They can be passed to every component, e.g., the Providers, domain.New and projector.New:
//
//	meter := otel.Meter("shop")
//	tracer := otel.Tracer("shop")
//
//	provider, _ := sqlengine.NewProviderFromPGXPool(pool,
//		sqlengine.WithMetrics(oteladapters.NewMetricsCollector(meter)),
//		sqlengine.WithTracing(oteladapters.NewTracingCollector(tracer)),
//		sqlengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("shop", nil)),
//	)
package oteladapters
