package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"interruptd/pkg/config"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := tracer
	tracer = tp.Tracer("test")
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { tracer = prev })
	return rec
}

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init("api", config.OtelConfig{}, zap.NewNop())
	require.NoError(t, err)
	shutdown()
}

func TestGinMiddleware_RecordsRouteSpan(t *testing.T) {
	rec := withRecorder(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/patterns/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/patterns/abc", nil))

	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, "GET /api/patterns/:id", rec.Ended()[0].Name())
}

func TestHeaders_RoundTrip(t *testing.T) {
	withRecorder(t)
	ctx, span := MQPublishSpan(context.Background(), "events", "day.logged")
	headers := map[string]interface{}{}
	InjectHeaders(ctx, headers)
	span.End()

	assert.Contains(t, headers, "traceparent")

	got := ExtractHeaders(context.Background(), headers)
	_, consume := MQConsumeSpan(got, "activity.q", "day.logged")
	defer consume.End()
	assert.Equal(t, span.SpanContext().TraceID(), consume.SpanContext().TraceID())
}

func TestInSpan_RecordsError(t *testing.T) {
	rec := withRecorder(t)
	err := InSpan(context.Background(), "db.tx", func(context.Context) error { return errors.New("boom") })
	assert.Error(t, err)
	require.Len(t, rec.Ended(), 1)
	assert.Len(t, rec.Ended()[0].Events(), 1)
}
