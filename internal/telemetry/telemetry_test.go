package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	prev := Tracer
	Tracer = tp.Tracer("test")
	t.Cleanup(func() { Tracer = prev })
	return recorder
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func newTracedRouter(status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TracingMiddleware())
	r.GET("/api/payments/:id", func(c *gin.Context) { c.Status(status) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestTracingMiddlewareTagsPaymentID(t *testing.T) {
	recorder := recordSpans(t)
	r := newTracedRouter(http.StatusOK)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/payments/pay-1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	spans := recorder.Ended()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "GET /api/payments/:id", span.Name())
	assert.Equal(t, span.SpanContext().TraceID().String(), w.Header().Get("X-Trace-ID"))

	id, ok := spanAttr(span, AttrPaymentID)
	require.True(t, ok)
	assert.Equal(t, "pay-1", id.AsString())

	code, ok := spanAttr(span, "http.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), code.AsInt64())
	assert.Equal(t, codes.Unset, span.Status().Code)
}

func TestTracingMiddlewareSkipsPaymentIDOnOtherRoutes(t *testing.T) {
	recorder := recordSpans(t)
	r := newTracedRouter(http.StatusOK)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	_, ok := spanAttr(spans[0], AttrPaymentID)
	assert.False(t, ok)
}

func TestTracingMiddlewareMarksServerErrors(t *testing.T) {
	recorder := recordSpans(t)
	r := newTracedRouter(http.StatusBadGateway)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/payments/pay-1", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
