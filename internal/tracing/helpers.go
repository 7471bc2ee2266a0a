package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names partition spans by subsystem: article repository reads versus
// the rank/invalidation pipeline.
const (
	dbTracerName       = "scribe/db"
	pipelineTracerName = "scribe/pipeline"
)

// DBOperation labels a database span. The ranking core only ever reads from
// the system of record.
type DBOperation string

// DBOperationQuery is a SELECT against the article or relation tables.
const DBOperationQuery DBOperation = "query"

// StartDBSpan opens a client span for a repository read, named
// "<operation> <table>". The returned func ends the span, recording err when
// non-nil:
//
//	ctx, endSpan := tracing.StartDBSpan(ctx, "articles", tracing.DBOperationQuery)
//	defer endSpan(err)
func StartDBSpan(ctx context.Context, table string, operation DBOperation) (context.Context, func(error)) {
	name := string(operation)
	if table != "" {
		name += " " + table
	}

	ctx, span := otel.Tracer(dbTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", string(operation)),
			attribute.String("db.sql.table", table),
		),
	)
	return ctx, endFunc(span)
}

// StartSpan opens an internal span for a pipeline phase, such as a queue
// drain or a verification pass.
func StartSpan(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(pipelineTracerName).Start(ctx, name)
	return ctx, endFunc(span)
}

// SetAttributes attaches attributes to the span active in ctx, if any.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

func endFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
