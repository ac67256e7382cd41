package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation ID in both directions
const RequestIDHeader = "X-Request-ID"

// unmatchedRoute keeps 404 probes from minting a metrics series per path
const unmatchedRoute = "unmatched"

// sizeWriter counts bytes written to the client
type sizeWriter struct {
	gin.ResponseWriter
	written int
}

func (w *sizeWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

func (w *sizeWriter) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.written += n
	return n, err
}

func wrapWriter(c *gin.Context) *sizeWriter {
	if sw, ok := c.Writer.(*sizeWriter); ok {
		return sw
	}
	sw := &sizeWriter{ResponseWriter: c.Writer}
	c.Writer = sw
	return sw
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

// RequestLoggingMiddleware assigns a correlation ID and writes one log line per request
func RequestLoggingMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader(RequestIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		c.Set("correlation_id", correlationID)
		c.Header(RequestIDHeader, correlationID)

		ctx := WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		sw := wrapWriter(c)

		c.Next()

		// Auth runs inside the api group, so the user is only known afterwards
		if uid := c.GetString("user_id"); uid != "" {
			ctx = WithUserID(ctx, uid)
		}

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"method":        c.Request.Method,
			"route":         routeOf(c),
			"path":          c.Request.URL.Path,
			"status":        status,
			"duration_ms":   time.Since(start).Milliseconds(),
			"response_size": sw.written,
			"ip":            c.ClientIP(),
		}

		switch {
		case len(c.Errors) > 0:
			fields["errors"] = c.Errors.String()
			logger.Error(ctx, "HTTP request failed", c.Errors.Last().Err, fields)
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, "HTTP request failed", nil, fields)
		case status >= http.StatusBadRequest:
			logger.Warn(ctx, "HTTP request rejected", fields)
		default:
			logger.Info(ctx, "HTTP request completed", fields)
		}
	}
}

// MetricsMiddleware records request totals, latency and response size by route template
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		sw := wrapWriter(c)

		c.Next()

		RecordHTTPMetrics(c.Request.Method, routeOf(c), c.Writer.Status(), time.Since(start), sw.written)
	}
}

// RecoveryMiddleware turns a handler panic into a 500 with the standard error body
func RecoveryMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			logger.Error(c.Request.Context(), "Panic recovered", nil, map[string]interface{}{
				"panic":  rec,
				"method": c.Request.Method,
				"route":  routeOf(c),
			})

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "An unexpected error occurred",
				},
			})
		}()

		c.Next()
	}
}

// HealthHandler serves the aggregated health response; degraded still answers 200
func HealthHandler(checker *HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := checker.GetHealthResponse(c.Request.Context())

		status := http.StatusOK
		if response.Status == HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, response)
	}
}

// MetricsEndpoint exposes the Prometheus registry through gin
func MetricsEndpoint() gin.HandlerFunc {
	return gin.WrapH(MetricsHandler())
}

// CORSWithLogging lets the web form be served from another origin during development
func CORSWithLogging(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, "+RequestIDHeader)
		h.Set("Access-Control-Expose-Headers", RequestIDHeader)

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}

		if origin := c.GetHeader("Origin"); origin != "" {
			logger.Debug(c.Request.Context(), "CORS preflight request", map[string]interface{}{
				"origin": origin,
				"method": c.GetHeader("Access-Control-Request-Method"),
			})
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}
