// Package tracing 为 FIX 会话引擎提供基于 OpenTelemetry 的分布式追踪，
// 结构沿用 tracing.InitTracer 的 OTLP/gRPC 导出管线（spec §11 ambient stack）。
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	obsconfig "github.com/wyfcoding/pkg/internal/obs/config"
)

// Init 配置全局 TracerProvider，返回进程退出前调用的关闭函数。
// cfg.Enabled 为 false 时返回一个空操作的关闭函数。
func Init(cfg obsconfig.TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	ratio := cfg.SamplerRatio
	if ratio <= 0 {
		ratio = 1.0
	}
	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	slog.Info("tracer provider initialized", "service", cfg.ServiceName, "endpoint", cfg.OTLPEndpoint)
	return tp.Shutdown, nil
}

// StartSessionSpan 为一次入站消息处理开启一个 Span，调用方负责 End()。
func StartSessionSpan(ctx context.Context, senderCompID string, msgType string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("github.com/wyfcoding/pkg/connectivity/fix").Start(ctx, "fix.handle_inbound")
	span.SetAttributes(
		attribute.String("fix.sender_comp_id", senderCompID),
		attribute.String("fix.msg_type", msgType),
	)
	return ctx, span
}

// RecordError 将错误写入当前 Span 并标记状态为 Error。
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
