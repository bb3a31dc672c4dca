package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Compendium tracer.
const tracerName = "github.com/MrWong99/compendium"

// Attribute keys set on catalog spans.
const (
	AttrQuery      = attribute.Key("catalog.query")
	AttrCategories = attribute.Key("catalog.categories")
	AttrResults    = attribute.Key("catalog.results")
	AttrOutcome    = attribute.Key("catalog.outcome")
	AttrDir        = attribute.Key("catalog.dir")
	AttrFiles      = attribute.Key("catalog.files")
	AttrInvalid    = attribute.Key("catalog.invalid_files")
	AttrAdded      = attribute.Key("catalog.added")
	AttrSkipped    = attribute.Key("catalog.skipped")
)

// Tracer returns the Compendium tracer from the global provider, which
// [InitProvider] replaces when telemetry is configured.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace ID of the span in ctx, or "" when there is
// none. HTTP responses echo it so clients can quote it in reports.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// StartQuerySpan starts an internal span for a catalog query named
// "catalog."+op, tagged with the raw query text and any requested
// categories. Record the answer with [SetQueryOutcome].
func StartQuerySpan(ctx context.Context, op, query string, categories []string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{AttrQuery.String(query)}
	if len(categories) > 0 {
		attrs = append(attrs, AttrCategories.StringSlice(categories))
	}
	return StartSpan(ctx, "catalog."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// SetQueryOutcome annotates the query span in ctx with the number of
// results and the outcome label also used for metrics.
func SetQueryOutcome(ctx context.Context, results int, outcome string) {
	trace.SpanFromContext(ctx).SetAttributes(
		AttrResults.Int(results),
		AttrOutcome.String(outcome),
	)
}

// LoadSpan covers one load of a catalog directory.
type LoadSpan struct {
	span trace.Span
}

// StartLoadSpan starts the span for loading the catalog in dir.
func StartLoadSpan(ctx context.Context, dir string) (context.Context, LoadSpan) {
	ctx, span := StartSpan(ctx, "catalog.load",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrDir.String(dir)),
	)
	return ctx, LoadSpan{span: span}
}

// End records the load counts and ends the span. A non-nil err marks the
// load as failed.
func (s LoadSpan) End(files, invalid, added, skipped int, err error) {
	s.span.SetAttributes(
		AttrFiles.Int(files),
		AttrInvalid.Int(invalid),
		AttrAdded.Int(added),
		AttrSkipped.Int(skipped),
	)
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, "catalog load failed")
	}
	s.span.End()
}

// Logger returns base enriched with trace_id and span_id from the span in
// ctx, so catalog diagnostics can be matched with their load or query span.
// Without a recording span base is returned unchanged.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
