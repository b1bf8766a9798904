package tracing

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
)

// HTTPMiddleware creates Gin middleware that continues the caller's trace
// and wraps each request in a server span.
func HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ExtractHeaders(c.Request.Context(), c.Request.Header)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		ctx, span := StartSpan(ctx, c.Request.Method+" "+name,
			String("http.method", c.Request.Method),
			String("http.route", name),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(Int("http.status_code", c.Writer.Status()))
		if c.Writer.Status() >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
	}
}
