package tracing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"raine/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	tracerName      = "raine"
	shutdownTimeout = 5 * time.Second
)

const (
	AttrRoomID     = attribute.Key("raine.room_id")
	AttrEventID    = attribute.Key("raine.event_id")
	AttrRecipients = attribute.Key("raine.recipients")
	AttrTokens     = attribute.Key("raine.tokens")
	AttrSucceeded  = attribute.Key("raine.succeeded")
	AttrFailed     = attribute.Key("raine.failed")
	AttrPruned     = attribute.Key("raine.pruned")
	AttrJob        = attribute.Key("raine.job")
)

// ShutdownFunc flushes buffered spans. It is safe to call when tracing
// was never enabled.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup installs the global tracer provider and propagators described by cfg.
// A disabled config leaves the otel no-op provider in place.
func Setup(ctx context.Context, cfg models.TracingConfig, logger *logrus.Logger) (ShutdownFunc, error) {
	if !cfg.Enabled {
		logger.Info("OpenTelemetry tracing is disabled")
		return noopShutdown, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(cfg.Environment),
	))
	if err != nil {
		return noopShutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.WithFields(logrus.Fields{
		"service":     cfg.ServiceName,
		"sample_rate": cfg.SampleRate,
		"exporter":    exporterName(cfg),
	}).Info("OpenTelemetry tracing initialized")

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		return nil
	}, nil
}

func exporterName(cfg models.TracingConfig) string {
	if cfg.UseStdout || cfg.OTLPEndpoint == "" {
		return "stdout"
	}
	return "otlphttp"
}

func newExporter(ctx context.Context, cfg models.TracingConfig) (sdktrace.SpanExporter, error) {
	if exporterName(cfg) == "stdout" {
		exp, err := stdouttrace.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, nil
	}

	// Bare host:port endpoints are plaintext collectors on the local network.
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint), otlptracehttp.WithInsecure()}
	if strings.Contains(cfg.OTLPEndpoint, "://") {
		opts = []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint)}
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}
	return exp, nil
}

// StartSpan opens a child span of whatever span ctx carries.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	if span := oteltrace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// RecordError marks the span in ctx as failed. A nil err is ignored.
func RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}
	if span := oteltrace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err, oteltrace.WithAttributes(attrs...))
		span.SetStatus(codes.Error, err.Error())
	}
}

func GetOtelTraceID(ctx context.Context) string {
	if sc := oteltrace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithOtelTracing is StartSpan plus copying the new trace id into the
// request info so log lines carry it.
func WithOtelTracing(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	ctx, span := StartSpan(ctx, name, attrs...)
	if traceID := GetOtelTraceID(ctx); traceID != "" {
		ctx = WithTraceID(ctx, traceID)
	}
	return ctx, span
}
