package main

import (
	"net/http"
	"net/http/pprof"
	rtp "runtime/pprof"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const pprofPrefix = "/debug/pprof/"

// attachProfiler mounts the net/http/pprof handlers, one route per
// profile known to the runtime.
func attachProfiler(r *router.Router) {
	handlers := map[string]http.Handler{
		"":        http.HandlerFunc(pprof.Index),
		"cmdline": http.HandlerFunc(pprof.Cmdline),
		"profile": http.HandlerFunc(pprof.Profile),
		"symbol":  http.HandlerFunc(pprof.Symbol),
		"trace":   http.HandlerFunc(pprof.Trace),
	}

	for _, p := range rtp.Profiles() {
		handlers[p.Name()] = pprof.Handler(p.Name())
	}

	for name, h := range handlers {
		r.GET(pprofPrefix+name, fasthttpadaptor.NewFastHTTPHandler(h))
	}
}
