package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"

	maxIDLength = 128
)

// TraceContextMiddleware propagates caller supplied trace and request ids, or
// mints fresh ones, into the gin context, the request context and the
// response headers. Ids that are too long or carry unexpected characters are
// replaced rather than echoed.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ids := [...]struct {
			header string
			key    contextkey.Key
		}{
			{traceIDHeader, contextkey.TraceID},
			{requestIDHeader, contextkey.RequestID},
		}
		ctx := c.Request.Context()
		for _, id := range ids {
			v := incomingID(c.GetHeader(id.header))
			c.Set(string(id.key), v)
			c.Header(id.header, v)
			ctx = context.WithValue(ctx, id.key, v)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func incomingID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxIDLength {
		return uuid.NewString()
	}
	for _, r := range raw {
		ok := r == '-' || r == '_' || r == '.' || r == ':' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !ok {
			return uuid.NewString()
		}
	}
	return raw
}

// RequestLogger writes one access line per request. Server errors log at
// error, client errors at warn. Paths in quiet are skipped unless they fail.
func RequestLogger(quiet ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if _, ok := skip[path]; ok && status < http.StatusBadRequest {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", path),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, "request failed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn(ctx, "request rejected", fields...)
		default:
			logger.Info(ctx, "request completed", fields...)
		}
	}
}
