package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"nebulaviz/internal/infrastructure"
)

// TracerName is the instrumentation scope of pipeline spans
const TracerName = "nebulaviz.pipeline"

// runTracer wraps spans and instruments for one pipeline
type runTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.Metrics
}

func newRunTracer(tracer trace.Tracer, metrics *infrastructure.Metrics) *runTracer {
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(TracerName)
	}
	if metrics == nil {
		metrics = infrastructure.MustNoopMetrics()
	}
	return &runTracer{tracer: tracer, metrics: metrics}
}

// startRun opens the root span of a run
func (rt *runTracer) startRun(ctx context.Context, runID string) (context.Context, trace.Span) {
	return rt.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("run.id", runID)),
	)
}

// startStage opens a child span for one stage
func (rt *runTracer) startStage(ctx context.Context, stage Stage) (context.Context, trace.Span) {
	return rt.tracer.Start(ctx, "pipeline."+string(stage),
		trace.WithAttributes(attribute.String("stage", string(stage))),
	)
}

// endStage records the stage duration and closes its span
func (rt *runTracer) endStage(ctx context.Context, span trace.Span, stage Stage, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage)+" failed")
	}
	rt.metrics.StageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("outcome", outcome),
	))
	span.End()
}

// recordPlaintext tracks decrypted payload size
func (rt *runTracer) recordPlaintext(ctx context.Context, size int) {
	rt.metrics.PlaintextBytes.Record(ctx, int64(size))
}

// recordRows counts kept and dropped rows
func (rt *runTracer) recordRows(ctx context.Context, kept, dropped int) {
	if kept > 0 {
		rt.metrics.RowsNormalized.Add(ctx, int64(kept), metric.WithAttributes(attribute.String("outcome", "kept")))
	}
	if dropped > 0 {
		rt.metrics.RowsNormalized.Add(ctx, int64(dropped), metric.WithAttributes(attribute.String("outcome", "dropped")))
	}
}

// finishRun closes the root span and records the run outcome
func (rt *runTracer) finishRun(ctx context.Context, span trace.Span, result Result) {
	attrs := []attribute.KeyValue{attribute.String("status", string(result.Status))}
	if result.ErrorKind != "" {
		attrs = append(attrs, attribute.String("error_kind", string(result.ErrorKind)))
	}

	span.SetAttributes(
		attribute.String("run.status", string(result.Status)),
		attribute.Int("run.total", result.Summary.Total),
		attribute.Float64("run.duration_seconds", result.Duration.Seconds()),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, string(result.ErrorKind))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	rt.metrics.RunsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	rt.metrics.RunDuration.Record(ctx, result.Duration.Seconds(), metric.WithAttributes(attrs...))
	span.End()
}
