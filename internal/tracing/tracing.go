// Package tracing wires OpenTelemetry with an OTLP gRPC exporter and
// provides span helpers for the query and action pipelines.
package tracing

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fieldline/copilot/internal/config"
)

const defaultServiceName = "fieldline-copilot"

var (
	tracer   oteltrace.Tracer
	provider *trace.TracerProvider
)

// Initialize sets up OTLP tracing. A tracer handle always exists
// afterwards, so the Start* helpers are safe when tracing is disabled.
func Initialize(cfg config.TracingConfig, logger *zap.Logger) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	tracer = otel.Tracer(cfg.ServiceName)

	if !cfg.Enabled {
		logger.Info("Tracing disabled")
		return nil
	}

	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "localhost:4317"
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracer = otel.Tracer(cfg.ServiceName)

	logger.Info("Tracing initialized", zap.String("endpoint", cfg.OTLPEndpoint))
	return nil
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// StartSpan creates a new span with the given name.
func StartSpan(ctx context.Context, spanName string) (context.Context, oteltrace.Span) {
	if tracer == nil {
		tracer = otel.Tracer(defaultServiceName)
	}
	return tracer.Start(ctx, spanName)
}

// StartQuerySpan opens a span for one orchestrated query.
func StartQuerySpan(ctx context.Context, queryID, domain, operation string) (context.Context, oteltrace.Span) {
	ctx, span := StartSpan(ctx, "orchestrator.query")
	span.SetAttributes(
		attribute.String("copilot.query_id", queryID),
		attribute.String("copilot.domain", domain),
		attribute.String("copilot.operation", operation),
	)
	return ctx, span
}

// StartActionSpan opens a span for one action execution.
func StartActionSpan(ctx context.Context, actionID, domain, operation string) (context.Context, oteltrace.Span) {
	ctx, span := StartSpan(ctx, "actions.execute")
	span.SetAttributes(
		attribute.String("copilot.action_id", actionID),
		attribute.String("copilot.domain", domain),
		attribute.String("copilot.operation", operation),
	)
	return ctx, span
}

// StartPhaseSpan opens a span for one plan phase.
func StartPhaseSpan(ctx context.Context, phaseID string, parallel bool) (context.Context, oteltrace.Span) {
	ctx, span := StartSpan(ctx, "orchestrator.phase")
	span.SetAttributes(
		attribute.String("copilot.phase_id", phaseID),
		attribute.Bool("copilot.parallel", parallel),
	)
	return ctx, span
}

// StartAdapterSpan opens a span for one domain adapter call.
func StartAdapterSpan(ctx context.Context, domain, operation string) (context.Context, oteltrace.Span) {
	ctx, span := StartSpan(ctx, "adapter.query")
	span.SetAttributes(
		attribute.String("copilot.domain", domain),
		attribute.String("copilot.operation", operation),
	)
	return ctx, span
}

// W3CTraceparent renders the current span as a traceparent header value.
func W3CTraceparent(ctx context.Context) string {
	span := oteltrace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	sc := span.SpanContext()
	return fmt.Sprintf("00-%s-%s-%02x",
		sc.TraceID().String(),
		sc.SpanID().String(),
		sc.TraceFlags(),
	)
}

// InjectTraceparent adds the traceparent header to an outbound request.
func InjectTraceparent(ctx context.Context, req *http.Request) {
	if traceparent := W3CTraceparent(ctx); traceparent != "" {
		req.Header.Set("traceparent", traceparent)
	}
}

// ExtractTraceparent continues a trace from an inbound traceparent
// header value. An absent or malformed header returns ctx unchanged.
func ExtractTraceparent(ctx context.Context, traceparent string) context.Context {
	traceID, spanID, flags, ok := ParseTraceparent(traceparent)
	if !ok {
		return ctx
	}
	tid, err := oteltrace.TraceIDFromHex(traceID)
	if err != nil {
		return ctx
	}
	sid, err := oteltrace.SpanIDFromHex(spanID)
	if err != nil {
		return ctx
	}
	sc := oteltrace.NewSpanContext(oteltrace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: oteltrace.TraceFlags(flags),
		Remote:     true,
	})
	return oteltrace.ContextWithRemoteSpanContext(ctx, sc)
}

// ParseTraceparent parses a W3C traceparent header.
func ParseTraceparent(traceparent string) (traceID, spanID string, flags byte, valid bool) {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return "", "", 0, false
	}
	if parts[0] != "00" {
		return "", "", 0, false
	}

	var flagsInt int
	if _, err := fmt.Sscanf(parts[3], "%02x", &flagsInt); err != nil {
		return "", "", 0, false
	}
	return parts[1], parts[2], byte(flagsInt), true
}
