package middleware

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

// MetricsConfig configures the request latency histogram.
type MetricsConfig struct {
	Skipper   Skipper
	Namespace string
	Subsystem string
	Buckets   []float64
	// GroupStatus records 2xx, 4xx... instead of the exact code.
	GroupStatus  bool
	MetricsPath  string
	NotFoundPath string
}

// DefaultMetricsConfig leaves websocket upgrades out: a stream lives as long
// as its session and would swamp the latency buckets.
var DefaultMetricsConfig = MetricsConfig{
	Skipper:   SkipWebSocket,
	Namespace: "chatsync",
	Subsystem: "http",
	// 1ms to ~2.6s; reads come from memory and sends are one remote insert.
	Buckets:      prometheus.ExponentialBuckets(0.001, 2, 12),
	MetricsPath:  "/metrics",
	NotFoundPath: "/not-found",
}

// SkipWebSocket skips upgrade requests.
func SkipWebSocket(c echo.Context) bool {
	return c.IsWebSocket()
}

func isNotFoundHandler(handler echo.HandlerFunc) bool {
	return reflect.ValueOf(handler).Pointer() == reflect.ValueOf(echo.NotFoundHandler).Pointer()
}

// Metrics returns an echo middleware with default config for instrumentation.
func Metrics() echo.MiddlewareFunc {
	return MetricsWithConfig(DefaultMetricsConfig)
}

// MetricsWithConfig records one observation per request, labelled by status,
// method and route. Unmatched paths share NotFoundPath to bound cardinality.
func MetricsWithConfig(config MetricsConfig) echo.MiddlewareFunc {
	if config.Skipper == nil {
		config.Skipper = DefaultSkipper
	}
	latency, err := newHTTPMetrics(config)
	if err != nil {
		panic(err)
	}

	var scrape echo.HandlerFunc
	if config.MetricsPath != "" {
		scrape = echo.WrapHandler(promhttp.Handler())
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if scrape != nil && c.Request().RequestURI == config.MetricsPath {
				return scrape(c)
			}
			if config.Skipper(c) {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				// render now so the recorded status is the one the client sees
				c.Error(err)
			}

			latency.WithLabelValues(
				config.statusLabel(c.Response().Status),
				c.Request().Method,
				config.routeLabel(c),
			).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (config MetricsConfig) statusLabel(status int) string {
	if !config.GroupStatus {
		return strconv.Itoa(status)
	}
	if status < 100 || status > 599 {
		return "5xx"
	}
	return fmt.Sprintf("%dxx", status/100)
}

func (config MetricsConfig) routeLabel(c echo.Context) string {
	if isNotFoundHandler(c.Handler()) && config.NotFoundPath != "" {
		return config.NotFoundPath
	}
	return c.Path()
}

func newHTTPMetrics(config MetricsConfig) (*prometheus.HistogramVec, error) {
	return util.RegisterHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "request_duration_seconds",
		Help:      "Time spent serving a route",
		Buckets:   config.Buckets,
	}, "code", "method", "path")
}
