// Package telemetry defines the logging, metrics, and tracing interfaces
// used throughout Salvo. Components never log to a package-global logger;
// a Logger/Metrics/Tracer is injected at construction so callers can swap
// in the no-op set for tests or library embedding, the Clue-backed set for
// structured logs, or the OpenTelemetry-backed set for traces and metrics.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the core. The
// interface is intentionally small so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for instrumentation of
// the Trial Orchestrator and Adapter Layer (trial counts, retry counts,
// SendTurn latency, cost accumulation).
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so core code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
}

// Span represents an in-flight tracing span.
//
// Example usage:
//
//	ctx, span := tracer.Start(ctx, "runner.send_turn")
//	defer span.End()
//	span.SetStatus(codes.Ok, "completed")
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Bundle groups the three telemetry facets so constructors can accept one
// argument instead of three. A zero-value Bundle is not valid; use
// NewNoopBundle for a safe default.
type Bundle struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// NewNoopBundle returns a Bundle that discards all telemetry. Useful for
// tests and for library consumers that have not wired observability.
func NewNoopBundle() Bundle {
	return Bundle{Logger: NewNoopLogger(), Metrics: NewNoopMetrics(), Tracer: NewNoopTracer()}
}
