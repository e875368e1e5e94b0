package server

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/nguyentranbao-ct/chat-sync/internal/config"
	pkgmdw "github.com/nguyentranbao-ct/chat-sync/internal/server/middleware"
)

// NewEcho builds the HTTP surface the presentation layer talks to.
func NewEcho(conf *config.Config, handler Controller, logger *zap.SugaredLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = pkgmdw.NewValidator()
	e.HTTPErrorHandler = pkgmdw.ErrorHandler(logger.Named("http"))

	logConfig := pkgmdw.LogRequestConfig{
		Logger: logger.Named("http"),
		Enabled: func(c echo.Context) bool {
			uri := c.Request().RequestURI
			return uri != "/health" && uri != "/metrics" && c.Path() != "/api/v1/stream"
		},
	}

	if conf.Server.CORSOrigin != "" {
		e.Use(pkgmdw.CORS(regexp.MustCompile(conf.Server.CORSOrigin)))
	}
	e.Use(pkgmdw.Metrics())
	e.Use(pkgmdw.RequestID())
	e.Use(pkgmdw.LogRequest(logConfig))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Errorw("PANIC RECOVER", "error", err, "stack", string(stack),
				"request_id", pkgmdw.GetRequestID(c))
			return nil
		},
	}))
	if conf.Server.Pprof {
		pkgmdw.Pprof(e)
	}

	e.GET("/health", handler.Health)

	api := e.Group("/api/v1")
	api.POST("/sessions", pkgmdw.WrapHandler(handler.OpenSession))
	api.DELETE("/sessions/current", pkgmdw.WrapHandler(handler.CloseSession))
	api.GET("/messages", handler.ListMessages)
	api.POST("/messages", pkgmdw.WrapHandler(handler.SendMessage))
	api.GET("/connectivity", handler.GetConnectivity)
	api.PUT("/connectivity", pkgmdw.WrapHandler(handler.SetConnectivity))
	api.GET("/stream", handler.Stream)

	return e
}

func StartServer(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	conf *config.Config,
	handler Controller,
	logger *zap.SugaredLogger,
) {
	e := NewEcho(conf, handler, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Infow("starting HTTP server", "addr", conf.Server.Addr)
				if err := e.Start(conf.Server.Addr); !errors.Is(err, http.ErrServerClosed) {
					logger.Errorw("HTTP server stopped", "error", err)
					sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}
