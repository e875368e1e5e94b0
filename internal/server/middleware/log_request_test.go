package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogRequest(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := echo.New()
	e.Use(RequestID())
	e.Use(LogRequest(LogRequestConfig{
		Logger: zap.New(core).Sugar(),
		Enabled: func(c echo.Context) bool {
			return c.Path() != "/health"
		},
	}))
	e.POST("/api/v1/messages", func(c echo.Context) error {
		c.Set("user_id", "u1")
		return c.JSON(http.StatusConflict, map[string]string{"error_code": "not_sent"})
	})
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(XRequestID, "req-1")
	e.ServeHTTP(httptest.NewRecorder(), req)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.EqualValues(t, http.StatusConflict, fields["status"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "u1", fields["user_id"])
	assert.Equal(t, "/api/v1/messages", fields["uri"])
}
