package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	initOnce sync.Once
	initErr  error

	providerMu sync.RWMutex
	provider   *sdktrace.TracerProvider
)

// InitOpenTelemetry installs a process-wide tracer provider for the named
// service. Repeated calls are no-ops returning the first outcome.
func InitOpenTelemetry(serviceName string) error {
	initOnce.Do(func() {
		res, err := resource.New(
			context.Background(),
			resource.WithAttributes(semconv.ServiceName(serviceName)),
		)
		if err != nil {
			initErr = err
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
			sdktrace.WithResource(res),
		)

		providerMu.Lock()
		provider = tp
		providerMu.Unlock()

		otel.SetTracerProvider(tp)
	})
	return initErr
}

// ShutdownOpenTelemetry flushes and stops the provider, if one was installed.
func ShutdownOpenTelemetry(ctx context.Context) error {
	providerMu.RLock()
	tp := provider
	providerMu.RUnlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan opens a span and mirrors its trace ID into the context ID set, so
// log lines and span data correlate.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))

	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}
	return ctx, span
}
