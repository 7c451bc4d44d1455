package command

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hrderby/contest-hub/internal/application/command"

// Recorder receives command outcomes. *metrics.Manager implements it.
type Recorder interface {
	ObserveCalculation(boardKey string, entries, skipped int, took time.Duration, err error)
	ObserveEnrollment(created bool)
	ObserveUnenrollment(removed int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCalculation(string, int, int, time.Duration, error) {}
func (nopRecorder) ObserveEnrollment(bool)                                    {}
func (nopRecorder) ObserveUnenrollment(int)                                   {}

// Telemetry bundles the observability hooks shared by command handlers.
// Zero fields fall back to slog.Default, the global otel tracer and no metrics.
type Telemetry struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics Recorder
}

func (t Telemetry) withDefaults() Telemetry {
	if t.Logger == nil {
		t.Logger = slog.Default()
	}
	if t.Tracer == nil {
		t.Tracer = otel.Tracer(tracerName)
	}
	if t.Metrics == nil {
		t.Metrics = nopRecorder{}
	}
	return t
}

func (t Telemetry) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.Tracer.Start(ctx, op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
