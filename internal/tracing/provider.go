package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// サポートするトレースエクスポーター
const (
	ExporterNone   = "none"
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// Config はトレーシングの設定。
type Config struct {
	Exporter       string
	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string
}

// ShutdownFunc は保留中のspanをフラッシュしてプロバイダーを停止する。
type ShutdownFunc func(ctx context.Context) error

// Setup は設定に応じてグローバルTracerProviderを構成する。
// ExporterNoneの場合はグローバルプロバイダーを変更せず（no-op）、何もしないShutdownFuncを返す。
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.Exporter {
	case "", ExporterNone:
		return noop, nil

	case ExporterOTLP:
		if cfg.OTLPEndpoint == "" {
			return nil, fmt.Errorf("OTLP endpoint is required for OTLP tracing exporter; set OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}

	case ExporterStdout:
		slog.Warn("stdout traces exporter enabled - for development only",
			slog.String("exporter", ExporterStdout),
		)
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
