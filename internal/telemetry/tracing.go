package telemetry

import (
	"context"
	"fmt"

	"catalog/internal/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// initTracerProvider returns the provider and, when spans are exported, the
// gRPC connection the exporter uses. The exporter does not own that
// connection, so the caller closes it after the provider shuts down.
func initTracerProvider(ctx context.Context, cfg *config.TelemetryConfig, res *resource.Resource) (*sdktrace.TracerProvider, *grpc.ClientConn, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	var conn *grpc.ClientConn
	if cfg.Endpoint != "" {
		var err error
		conn, err = grpc.NewClient(cfg.Endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}

		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	return sdktrace.NewTracerProvider(opts...), conn, nil
}
