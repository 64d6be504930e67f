package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/seometer/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to (error_type, error_code).
	ErrorClassifier func(err error) (string, string)
	// QuietErrorTypes are logged at debug level. Used for expected denials.
	QuietErrorTypes []string
	// ContextKeys are gin keys copied into the access log when set.
	ContextKeys []string
}

var quietRoutes = map[string]bool{"/health": true, "/metrics": true}

// GinMiddleware assigns the request id and writes one access log line per request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	quiet := make(map[string]bool, len(cfg.QuietErrorTypes))
	for _, t := range cfg.QuietErrorTypes {
		quiet[t] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := make([]zap.Field, 0, 12)
		fields = append(fields,
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		)
		for _, key := range cfg.ContextKeys {
			if v := c.GetString(key); v != "" {
				fields = append(fields, zap.String(key, v))
			}
		}

		level := zapcore.InfoLevel
		if quietRoutes[route] {
			level = zapcore.DebugLevel
		}
		if last := c.Errors.Last(); last != nil {
			var errType, errCode string
			if cfg.ErrorClassifier != nil {
				errType, errCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errType), zap.String("error_code", errCode))
			if cfg.Debug {
				fields = append(fields, zap.Error(last.Err))
			}
			if quiet[errType] {
				level = zapcore.DebugLevel
			}
		}
		if status >= http.StatusInternalServerError {
			level = zapcore.ErrorLevel
		}

		// The auth middleware has put user_id on the request context by now.
		if ce := FromContext(c.Request.Context()).Check(level, "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestIDFor(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Header(requestIDHeader, id)
	return id
}
