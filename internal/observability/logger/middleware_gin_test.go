package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var errDenied = errors.New("denied")

func newObservedEngine(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(err error) (string, string) {
			if errors.Is(err, errDenied) {
				return "quota_exceeded", "keyword_searches"
			}
			return "internal_error", ""
		},
		QuietErrorTypes: []string{"quota_exceeded"},
		ContextKeys:     []string{"usage_category"},
	}))
	return r, logs
}

func TestGinMiddlewareEchoesRequestID(t *testing.T) {
	r, logs := newObservedEngine(t)
	r.GET("/api/usage", func(c *gin.Context) {
		c.Set("usage_category", "keyword_searches")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "/api/usage", fields["route"])
	assert.Equal(t, "keyword_searches", fields["usage_category"])
}

func TestGinMiddlewareLevels(t *testing.T) {
	r, logs := newObservedEngine(t)
	r.GET("/denied", func(c *gin.Context) {
		_ = c.Error(errDenied)
		c.Status(http.StatusPaymentRequired)
	})
	r.GET("/broken", func(c *gin.Context) {
		_ = c.Error(errors.New("db down"))
		c.Status(http.StatusInternalServerError)
	})

	for _, path := range []string{"/denied", "/broken"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "quota_exceeded", entries[0].ContextMap()["error_type"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.NotEmpty(t, entries[1].ContextMap()["request_id"])
}
