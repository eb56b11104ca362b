package main

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

const (
	healthyState       = "Cloud Files HTTP Gateway is "
	defaultContentType = "text/plain; charset=utf-8"
)

// sessionProbe reports when the current session expires, or why there is
// no usable session.
type sessionProbe func() (expires time.Time, err error)

// attachHealthy serves /-/ready/ and /-/healthy/. Ready only means the
// process is up, healthy means requests can be forwarded.
func attachHealthy(r *router.Router, probe sessionProbe) {
	r.GET("/-/ready/", func(c *fasthttp.RequestCtx) {
		writeHealth(c, fasthttp.StatusOK, "ready")
	})

	r.GET("/-/healthy/", func(c *fasthttp.RequestCtx) {
		expires, err := probe()
		if err != nil {
			writeHealth(c, fasthttp.StatusServiceUnavailable, "unhealthy: "+err.Error())
			return
		}

		writeHealth(c, fasthttp.StatusOK, "healthy, session expires "+humanize.Time(expires))
	})
}

func writeHealth(c *fasthttp.RequestCtx, code int, state string) {
	c.Response.Reset()
	c.SetStatusCode(code)
	c.SetContentType(defaultContentType)
	c.SetBodyString(healthyState + state)
}
