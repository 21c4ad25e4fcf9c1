package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation scope names.
const (
	ScopeCommands = "github.com/taspa/console/commands"
	ScopePlatform = "github.com/taspa/console/platform"
	ScopeSession  = "github.com/taspa/console/session"
)

// Tracer returns a tracer for scope from tp, falling back to the otel global
// provider when tp is nil.
func Tracer(tp trace.TracerProvider, scope string) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(scope)
}

// StartCommandSpan creates a span for a CLI command execution.
//
// Usage:
//
//	ctx, span := telemetry.StartCommandSpan(ctx, "users.list")
//	defer span.End()
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	ctx, span := Tracer(nil, ScopeCommands).Start(ctx, "command."+cmdName)

	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)

	return ctx, span
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
// This should be called when an operation fails.
//
// Usage:
//
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	    return err
//	}
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.Bool("error", true),
	)
}

// End records err (if any) or success on span and ends it.
//
// Usage:
//
//	ctx, span := tracer.Start(ctx, "session.login")
//	defer func() { telemetry.End(span, err) }()
func End(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err != nil {
		span.SetAttributes(attrs...)
		RecordError(span, err)
	} else {
		RecordSuccess(span, attrs...)
	}
	span.End()
}
