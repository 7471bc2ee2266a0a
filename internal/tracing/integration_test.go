package tracing_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/scribeworks/scribe/internal/middleware"
	"github.com/scribeworks/scribe/internal/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
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

// A scores request traverses the tracing middleware, a pipeline span, and a
// repository span. All three must land in one trace under the normalized
// route name.
func TestRequestTrace_ScoresRoute(t *testing.T) {
	recorder := installRecorder(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, endScores := tracing.StartSpan(r.Context(), "rank.scores")
		tracing.SetAttributes(ctx, attribute.String("article.id", "2048"))

		_, endQuery := tracing.StartDBSpan(ctx, "articles", tracing.DBOperationQuery)
		endQuery(nil)

		endScores(nil)
		w.WriteHeader(http.StatusOK)
	})

	traced := middleware.Tracing("scribe-api")(handler)
	rr := httptest.NewRecorder()
	traced.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/articles/2048/scores", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	spans := recorder.Ended()
	if len(spans) != 3 {
		for i, span := range spans {
			t.Logf("span %d: %s", i, span.Name())
		}
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}

	names := make(map[string]bool, len(spans))
	for _, span := range spans {
		names[span.Name()] = true
	}
	for _, want := range []string{"GET /api/articles/{id}/scores", "rank.scores", "query articles"} {
		if !names[want] {
			t.Errorf("missing span %q", want)
		}
	}

	traceID := spans[0].SpanContext().TraceID()
	for i, span := range spans {
		if span.SpanContext().TraceID() != traceID {
			t.Errorf("span %d (%s) in trace %s, want %s", i, span.Name(), span.SpanContext().TraceID(), traceID)
		}
	}
}

// With the provider disabled the helpers must stay inert no-ops.
func TestDisabledProvider_HelpersAreNoOps(t *testing.T) {
	provider, err := tracing.NewProvider(tracing.Config{ServiceName: "scribe-api", Enabled: false})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if provider.IsEnabled() {
		t.Fatal("provider reports enabled for a disabled config")
	}

	ctx, endSpan := tracing.StartSpan(context.Background(), "rank.rotate")
	tracing.SetAttributes(ctx, attribute.String("period", "week"))
	endSpan(nil)
}

func TestMiddleware_TraceIDMatchesRecordedSpan(t *testing.T) {
	recorder := installRecorder(t)

	var handlerTraceID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerTraceID = middleware.GetTraceID(r)
		w.WriteHeader(http.StatusOK)
	})

	traced := middleware.Tracing("scribe-api")(handler)
	rr := httptest.NewRecorder()
	traced.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/articles/hot", nil))

	if handlerTraceID == "" {
		t.Fatal("handler saw no trace id")
	}
	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].SpanContext().TraceID().String(); got != handlerTraceID {
		t.Errorf("handler trace id %s, span trace id %s", handlerTraceID, got)
	}
}
