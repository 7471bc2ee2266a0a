package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordedSpans installs an in-memory tracer provider for the test and
// returns the recorder collecting ended spans.
func recordedSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Errorf("shutdown tracer provider: %v", err)
		}
	})
	return recorder
}

func singleSpan(t *testing.T, recorder *tracetest.SpanRecorder) sdktrace.ReadOnlySpan {
	t.Helper()
	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	return spans[0]
}

func attrValue(span sdktrace.ReadOnlySpan, key attribute.Key) (string, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value.AsString(), true
		}
	}
	return "", false
}

func TestStartDBSpan_RepositoryRead(t *testing.T) {
	for _, table := range []string{"articles", "user_likes", "user_favorites"} {
		t.Run(table, func(t *testing.T) {
			recorder := recordedSpans(t)

			_, endSpan := StartDBSpan(context.Background(), table, DBOperationQuery)
			endSpan(nil)

			span := singleSpan(t, recorder)
			if want := "query " + table; span.Name() != want {
				t.Errorf("span name = %q, want %q", span.Name(), want)
			}
			if got, ok := attrValue(span, "db.system"); !ok || got != "postgresql" {
				t.Errorf("db.system = %q (present=%v), want postgresql", got, ok)
			}
			if got, ok := attrValue(span, "db.operation"); !ok || got != "query" {
				t.Errorf("db.operation = %q (present=%v), want query", got, ok)
			}
			if got, ok := attrValue(span, "db.sql.table"); !ok || got != table {
				t.Errorf("db.sql.table = %q (present=%v), want %q", got, ok, table)
			}
		})
	}
}

func TestStartDBSpan_RecordsError(t *testing.T) {
	recorder := recordedSpans(t)
	queryErr := errors.New("pq: connection refused")

	_, endSpan := StartDBSpan(context.Background(), "articles", DBOperationQuery)
	endSpan(queryErr)

	span := singleSpan(t, recorder)
	if span.Status().Code != codes.Error {
		t.Errorf("status code = %v, want %v", span.Status().Code, codes.Error)
	}
	if span.Status().Description != queryErr.Error() {
		t.Errorf("status description = %q, want %q", span.Status().Description, queryErr.Error())
	}
	if len(span.Events()) == 0 {
		t.Error("expected a recorded error event on the span")
	}
}

func TestStartSpan_PipelinePhase(t *testing.T) {
	recorder := recordedSpans(t)

	_, endSpan := StartSpan(context.Background(), "invalidation.drain")
	endSpan(nil)

	span := singleSpan(t, recorder)
	if span.Name() != "invalidation.drain" {
		t.Errorf("span name = %q, want invalidation.drain", span.Name())
	}
	if span.Status().Code == codes.Error {
		t.Errorf("unexpected error status on a clean span")
	}
}

func TestStartSpan_RecordsError(t *testing.T) {
	recorder := recordedSpans(t)
	drainErr := errors.New("queue unavailable")

	_, endSpan := StartSpan(context.Background(), "invalidation.drain")
	endSpan(drainErr)

	span := singleSpan(t, recorder)
	if span.Status().Code != codes.Error {
		t.Errorf("status code = %v, want %v", span.Status().Code, codes.Error)
	}
}

func TestSetAttributes_ActiveSpan(t *testing.T) {
	recorder := recordedSpans(t)

	ctx, endSpan := StartSpan(context.Background(), "invalidation.verify")
	SetAttributes(ctx,
		attribute.Int("verify.sampled", 100),
		attribute.Int("verify.repaired", 2),
	)
	endSpan(nil)

	span := singleSpan(t, recorder)
	found := 0
	for _, attr := range span.Attributes() {
		if attr.Key == "verify.sampled" || attr.Key == "verify.repaired" {
			found++
		}
	}
	if found != 2 {
		t.Errorf("found %d verify attributes on span, want 2", found)
	}
}

func TestSetAttributes_NoActiveSpan(t *testing.T) {
	// Must not panic when ctx carries no span.
	SetAttributes(context.Background(), attribute.String("orphan", "value"))
}
