package proxy

import (
	"errors"
	"fmt"
	"html"

	"github.com/valyala/fasthttp"
)

const errorPage = "<html><body><h1>%d: %s - %s</h1><p>%s</p></body></html>"

var (
	errBadRequest       = errors.New("bad request")
	errMethodNotAllowed = errors.New("method not allowed")
)

type page struct {
	title string
	err   string
	desc  string
}

var pages = map[int]page{
	fasthttp.StatusBadGateway: {
		title: "Bad Gateway",
		err:   "Cloud Files session cannot be created",
		desc:  "A Cloud Files session could not be created.",
	},
	fasthttp.StatusServiceUnavailable: {
		title: "Service Unavailable",
		err:   "Cloud Files session not ready",
		desc:  "A Cloud Files session does not currently exist, please try your request again.",
	},
	fasthttp.StatusMethodNotAllowed: {
		title: "Method Not Allowed",
		err:   "supplied method was not allowed",
		desc:  "The method you used to access this resource was not allowed or was invalid.",
	},
	fasthttp.StatusBadRequest: {
		title: "Bad Request",
		err:   "supplied path was invalid",
		desc:  "The path you requested does not address an account, container or object.",
	},
	fasthttp.StatusUnauthorized: {
		title: "Unauthorized",
		err:   "authorization failed",
		desc:  "The method and request path combination you specified requires additional or valid authentication.",
	},
	fasthttp.StatusInternalServerError: {
		title: "Internal Server Error",
		err:   "An error occurred processing your request",
		desc:  "There was an error processing your request, this is an issue with the server not your request.",
	},
}

// upstreamFailure is rendered when the session exists but the backend could
// not be reached.
var upstreamFailure = page{
	title: "Bad Gateway",
	err:   "Cloud Files request failed",
	desc:  "The upstream Cloud Files server could not be reached.",
}

// renderError writes the HTML error page of code. Unknown codes are
// rendered as internal server errors.
func renderError(ctx *fasthttp.RequestCtx, code int) {
	p, ok := pages[code]
	if !ok {
		code = fasthttp.StatusInternalServerError
		p = pages[code]
	}
	writePage(ctx, code, p)
}

func writePage(ctx *fasthttp.RequestCtx, code int, p page) {
	ctx.Response.Reset()
	ctx.SetStatusCode(code)
	ctx.SetContentType("text/html")
	ctx.SetBodyString(fmt.Sprintf(errorPage, code,
		html.EscapeString(p.title), html.EscapeString(p.err), html.EscapeString(p.desc)))
}
