// Package otelx installs the global OpenTelemetry tracer provider used by the
// retrieval engine and scheduler spans.
package otelx

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/bakkerme/curator-streams/internal/config"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http/protobuf"

	defaultServiceName = "curator-streams"
)

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Init configures tracing from cfg. When tracing is disabled the global no-op
// provider stays in place and the returned Shutdown does nothing.
func Init(ctx context.Context, logger *slog.Logger, cfg config.OTelEnvConfig) (Shutdown, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return noop, nil
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	sampleRatio := min(max(cfg.SampleRatio, 0), 1)

	exporter, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(2*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry tracing enabled",
		slog.String("service_name", serviceName),
		slog.String("otlp_endpoint", Endpoint(cfg)),
		slog.String("otlp_protocol", Protocol(cfg)),
		slog.Float64("sample_ratio", sampleRatio))

	return tp.Shutdown, nil
}

func newTraceExporter(ctx context.Context, cfg config.OTelEnvConfig) (*otlptrace.Exporter, error) {
	endpoint := Endpoint(cfg)
	switch Protocol(cfg) {
	case protocolHTTP:
		opts := []otlptracehttp.Option{}
		if strings.Contains(endpoint, "://") {
			opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	case protocolGRPC:
		host, err := grpcHost(endpoint)
		if err != nil {
			return nil, err
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(host)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTEL_EXPORTER_OTLP_PROTOCOL %q (expected grpc or http/protobuf)", cfg.Protocol)
	}
}

// grpcHost strips the scheme from endpoints given as URLs.
func grpcHost(endpoint string) (string, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse OTEL_EXPORTER_OTLP_ENDPOINT: %w", err)
	}
	return u.Host, nil
}

// Endpoint returns the configured collector endpoint or the protocol default.
func Endpoint(cfg config.OTelEnvConfig) string {
	if v := strings.TrimSpace(cfg.Endpoint); v != "" {
		return v
	}
	if Protocol(cfg) == protocolHTTP {
		return "localhost:4318"
	}
	return "localhost:4317"
}

// Protocol normalises the configured OTLP protocol; "http" means http/protobuf.
func Protocol(cfg config.OTelEnvConfig) string {
	switch v := strings.ToLower(strings.TrimSpace(cfg.Protocol)); v {
	case "":
		return protocolGRPC
	case "http":
		return protocolHTTP
	default:
		return v
	}
}
