package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/sparkfeed/internal/util"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware traces HTTP requests with the official otelgin
// middleware followed by SpanAttributesMiddleware
func TracingMiddleware(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{otelgin.Middleware(serviceName), SpanAttributesMiddleware()}
}

// SpanAttributesMiddleware adds feed attributes to the request span once
// the handler has run. It must be registered after otelgin, which ends the
// span when its own c.Next returns.
func SpanAttributesMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		if userID := util.OptionalUserID(c); userID != "" {
			span.SetAttributes(attribute.String("user.id", userID))
		}
		if requestID := c.GetString(RequestIDKey); requestID != "" {
			span.SetAttributes(attribute.String("request.id", requestID))
		}
		if owner := c.Query("owner"); owner != "" {
			span.SetAttributes(attribute.String("feed.owner", owner))
		}
		if kinds := c.QueryArray("kind"); len(kinds) > 0 {
			span.SetAttributes(attribute.StringSlice("feed.kinds", kinds))
		}
		if limit := c.Query("limit"); limit != "" {
			span.SetAttributes(attribute.String("query.limit", limit))
		}
		span.SetAttributes(attribute.Bool("query.paged", c.Query("cursor") != ""))

		// Record Gin errors as span events
		for _, ginErr := range c.Errors {
			if ginErr.Err != nil {
				span.RecordError(ginErr.Err, trace.WithStackTrace(true))
				span.SetStatus(codes.Error, ginErr.Error())
			}
		}
	}
}
