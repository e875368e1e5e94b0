package middleware

import (
	"net/http"
	"net/http/pprof"

	"github.com/labstack/echo/v4"
)

// Router is satisfied by *echo.Echo and *echo.Group.
type Router interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

const pprofPrefix = "/debug/pprof"

var pprofProfiles = []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"}

var pprofEndpoints = map[string]http.HandlerFunc{
	"/":        pprof.Index,
	"/cmdline": pprof.Cmdline,
	"/profile": pprof.Profile,
	"/symbol":  pprof.Symbol,
	"/trace":   pprof.Trace,
}

// Pprof mounts the runtime profiling endpoints under /debug/pprof on r.
func Pprof(r Router) {
	for path, h := range pprofEndpoints {
		r.GET(pprofPrefix+path, echo.WrapHandler(h))
	}
	for _, name := range pprofProfiles {
		r.GET(pprofPrefix+"/"+name, echo.WrapHandler(pprof.Handler(name)))
	}
}
