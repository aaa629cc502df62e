// Package tracing はOpenTelemetryによる分散トレーシングの初期化とspanヘルパーを提供する。
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName はアプリケーションのtracer名。
const TracerName = "github.com/hitoshi/memberboard"

// StartSpan は指定名のspanを開始する。
// 呼び出し側はdefer span.End()で終了させること。
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// SetSpanError はspanにエラーを記録し、ステータスをErrorにする。
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess はspanのステータスをOkにする。
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
