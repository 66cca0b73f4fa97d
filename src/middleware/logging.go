package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/khabaroff/shop-admin-console/src/logging"
)

// quietPaths are probed constantly and only logged at debug level
var quietPaths = []string{"/health", "/ready", "/metrics"}

// LoggingMiddleware logs all HTTP requests with structured fields
func LoggingMiddleware() gin.HandlerFunc {
	logger := logging.NewLogger("http")

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		if strings.HasPrefix(path, "/reset-password/") {
			// Reset tokens travel in the path
			path = "/reset-password/:token"
		}

		c.Next()

		status := c.Writer.Status()

		event := logger.Info()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case isQuiet(path):
			event = logger.Debug()
		}

		event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int("bytes", c.Writer.Size()).
			Str("client_ip", c.ClientIP())

		if query != "" {
			event.Str("query", query)
		}
		if len(c.Errors) > 0 {
			event.Str("error", c.Errors.String())
		}

		switch {
		case status >= 500:
			event.Msg("server error")
		case status >= 400:
			event.Msg("client error")
		default:
			event.Msg("request")
		}
	}
}

func isQuiet(path string) bool {
	for _, p := range quietPaths {
		if path == p {
			return true
		}
	}
	return false
}
