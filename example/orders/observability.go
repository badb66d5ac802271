package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/oteladapters"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore/promadapters"
)

const serviceName = "orders-example"

// Observability holds the adapters passed to the provider, the domain and the projectors.
type Observability struct {
	Logger           *slog.Logger
	ContextualLogger eventstore.ContextualLogger
	Metrics          eventstore.MetricsCollector
	Tracing          eventstore.TracingCollector

	registry *prometheus.Registry
	tracer   *sdktrace.TracerProvider
	server   *http.Server
}

func newObservability(cfg Config) *Observability {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	o := &Observability{
		Logger:   logger,
		Metrics:  promadapters.NewMetricsCollector(registry, promadapters.WithNamespace("orders")),
		registry: registry,
	}

	if cfg.Tracing {
		o.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(&spanLogger{logger: logger}))
		o.Tracing = oteladapters.NewTracingCollector(o.tracer.Tracer(serviceName))
		o.ContextualLogger = oteladapters.NewSlogBridgeLoggerWithHandler(logger.Handler())
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		o.server = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := o.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	return o
}

// Shutdown stops the metrics server and flushes the tracer provider.
func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.server != nil {
		if err := o.server.Shutdown(ctx); err != nil {
			o.Logger.Warn("shutting down metrics server failed", "error", err)
		}
	}

	if o.tracer != nil {
		if err := o.tracer.Shutdown(ctx); err != nil {
			o.Logger.Warn("shutting down tracer provider failed", "error", err)
		}
	}
}

// spanLogger logs every finished span at debug level.
type spanLogger struct {
	logger *slog.Logger
}

func (s *spanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (s *spanLogger) OnEnd(span sdktrace.ReadOnlySpan) {
	s.logger.Debug("span finished",
		"name", span.Name(),
		"trace_id", span.SpanContext().TraceID().String(),
		"status", span.Status().Code.String(),
		"duration_ms", float64(span.EndTime().Sub(span.StartTime()).Microseconds())/1000)
}

func (s *spanLogger) Shutdown(context.Context) error { return nil }

func (s *spanLogger) ForceFlush(context.Context) error { return nil }
