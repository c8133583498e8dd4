package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"catalog/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

const instrumentationName = "catalog"

// Telemetry bundles the logger, tracer and meter providers used by the service.
type Telemetry struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Registry       *prometheus.Registry
	Logger         *slog.Logger

	otlpConn *grpc.ClientConn
}

// New builds the telemetry stack. Spans are exported over OTLP/gRPC only when
// cfg.Endpoint is set; metrics are always exposed through the Prometheus registry.
func New(ctx context.Context, cfg *config.TelemetryConfig, logOutput io.Writer) (*Telemetry, error) {
	logger := initLogger(cfg, logOutput)

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp, conn, err := initTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mp, err := initMeterProvider(res, registry)
	if err != nil {
		_ = tp.Shutdown(ctx)
		if conn != nil {
			_ = conn.Close()
		}
		return nil, fmt.Errorf("failed to initialize meter provider: %w", err)
	}
	otel.SetMeterProvider(mp)

	logger.Info("Telemetry initialized",
		slog.String("otlp_endpoint", cfg.Endpoint),
		slog.Bool("trace_export", cfg.Endpoint != ""),
	)

	return &Telemetry{
		TracerProvider: tp,
		MeterProvider:  mp,
		Registry:       registry,
		Logger:         logger,
		otlpConn:       conn,
	}, nil
}

// Tracer returns the service tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.TracerProvider.Tracer(instrumentationName)
}

// Meter returns the service meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.MeterProvider.Meter(instrumentationName)
}

// MetricsHandler serves the Prometheus registry in the text exposition format.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{Registry: t.Registry})
}

// Shutdown flushes and stops the tracer and meter providers, then closes the
// OTLP connection.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.Logger.Info("Shutting down telemetry")
	err := errors.Join(
		t.TracerProvider.Shutdown(ctx),
		t.MeterProvider.Shutdown(ctx),
	)
	if t.otlpConn != nil {
		err = errors.Join(err, t.otlpConn.Close())
	}
	return err
}
