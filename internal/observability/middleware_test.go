package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestLoggingMiddleware_CorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("http").WithOutput(&buf)

	router := gin.New()
	router.Use(RequestLoggingMiddleware(logger))

	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen = GetCorrelationID(c.Request.Context())
		c.String(http.StatusOK, "pong")
	})

	t.Run("generates an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		assert.Equal(t, rec.Header().Get(RequestIDHeader), seen)
	})

	t.Run("propagates a caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "abc-123", seen)
		assert.Contains(t, buf.String(), `"correlation_id":"abc-123"`)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	router := gin.New()
	router.Use(RecoveryMiddleware(NewLogger("http").WithOutput(&buf)))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.Contains(t, buf.String(), "Panic recovered")
}

func TestHealthHandler(t *testing.T) {
	hc := NewHealthChecker("hr-analytics-bot", "test")
	hc.Register("datasets", DatasetHealthCheck(func() (int, error) {
		return 0, context.DeadlineExceeded
	}))

	router := gin.New()
	router.GET("/health", HealthHandler(hc))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
}

func TestCORSWithLogging_Preflight(t *testing.T) {
	router := gin.New()
	router.Use(CORSWithLogging(NewLogger("http").WithOutput(&bytes.Buffer{})))
	router.POST("/api/v1/query", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/query", nil)
	req.Header.Set("Origin", "http://localhost:8501")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTracingMiddleware_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(previous)

	router := gin.New()
	router.Use(TracingMiddleware())
	router.GET("/api/v1/datasets", func(c *gin.Context) {
		_, span := StartSpan(c.Request.Context(), "list")
		EndSpan(span, nil)
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/datasets", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "list", spans[0].Name())
	assert.Equal(t, "GET /api/v1/datasets", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().TraceID(), spans[0].SpanContext().TraceID())
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing("hr-analytics-bot", false, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestRequestLoggingMiddleware_StatusAndUser(t *testing.T) {
	var buf bytes.Buffer
	router := gin.New()
	router.Use(RequestLoggingMiddleware(NewLogger("http").WithOutput(&buf)))
	router.GET("/api/v1/history", func(c *gin.Context) {
		c.Set("user_id", "user-7")
		c.Status(http.StatusUnauthorized)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))

	out := buf.String()
	assert.Contains(t, out, "HTTP request rejected")
	assert.Contains(t, out, `"route":"/api/v1/history"`)
	assert.Contains(t, out, `"user_id":"user-7"`)
}

func TestRouteOf_Unmatched(t *testing.T) {
	router := gin.New()
	var route string
	router.NoRoute(func(c *gin.Context) {
		route = routeOf(c)
		c.Status(http.StatusNotFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin", nil))
	assert.Equal(t, unmatchedRoute, route)
}
