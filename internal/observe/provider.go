package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/TylorChan/Vocabulary-Builder-App/internal/config"
)

// serviceName is reported as service.name on every metric and span.
const serviceName = "vocabtutor"

// ProviderConfig configures [NewTelemetry].
type ProviderConfig struct {
	// Version is reported as service.version.
	Version string

	// Server identifies this instance. The listen address and TLS mode become
	// resource attributes, and together with the host name form
	// service.instance.id.
	Server config.ServerConfig

	// TraceExporter receives finished spans. When nil, spans are recorded
	// but not exported.
	TraceExporter sdktrace.SpanExporter

	// Global registers the providers as the process-wide OTel providers.
	// Tests leave it unset so parallel instances do not collide.
	Global bool
}

// Telemetry owns the meter and tracer providers of one server instance and
// the Prometheus registry its /metrics endpoint serves.
type Telemetry struct {
	// Registry gathers the OTel metrics plus the Go runtime and process
	// collectors.
	Registry *prometheus.Registry

	// Metrics holds the service instruments, bound to this instance's
	// meter provider.
	Metrics *Metrics

	mp *sdkmetric.MeterProvider
	tp *sdktrace.TracerProvider
}

// NewTelemetry builds the OTel providers for the server described by cfg.
// Metrics are exported through a dedicated Prometheus registry rather than
// the client_golang default one.
func NewTelemetry(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, resourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("observe: register go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("observe: register process collector: %w", err)
	}

	exp, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	metrics, err := NewMetrics(mp)
	if err != nil {
		_ = mp.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("observe: create metrics: %w", err)
	}

	if cfg.Global {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	}
	return &Telemetry{Registry: registry, Metrics: metrics, mp: mp, tp: tp}, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{Registry: t.Registry})
}

// Shutdown flushes and closes both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.mp.Shutdown(ctx), t.tp.Shutdown(ctx))
}

func resourceAttributes(cfg ProviderConfig) []attribute.KeyValue {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	listen := cfg.Server.ListenAddr
	if listen == "" {
		listen = config.DefaultListenAddr
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
		semconv.ServiceInstanceID(host + listen),
		semconv.HostName(host),
		attribute.String("vocabtutor.listen_addr", listen),
		attribute.Bool("vocabtutor.tls", cfg.Server.TLS != nil),
	}
}
