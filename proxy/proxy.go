package proxy

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/cloudfiles/cloudfiles-http-gw/cloudfiles"
	"github.com/valyala/fasthttp"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// genericMetaPrefix marks metadata headers whose entity prefix is chosen by
// the route they are sent to.
const genericMetaPrefix = "X-Meta-"

// hopHeaders are connection scoped and never forwarded.
var hopHeaders = []string{
	fasthttp.HeaderConnection,
	"Keep-Alive",
	fasthttp.HeaderProxyAuthenticate,
	fasthttp.HeaderProxyAuthorization,
	fasthttp.HeaderTE,
	fasthttp.HeaderTrailer,
	fasthttp.HeaderTransferEncoding,
	fasthttp.HeaderUpgrade,
}

type (
	// Observer is told about every answered request.
	Observer interface {
		ObserveProxy(method string, code int)
	}

	// Proxy republishes the Cloud Files API of the current session.
	Proxy struct {
		log       *zap.Logger
		client    cloudfiles.HTTPClient
		timeout   time.Duration
		authorize Authorizer
		observer  Observer
		expired   func()

		session atomic.Value
		failure *atomic.Error
	}

	// Option configures a Proxy.
	Option func(p *Proxy)
)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Proxy) {
		if l == nil {
			return
		}
		p.log = l
	}
}

// WithClient replaces the upstream HTTP client.
func WithClient(c cloudfiles.HTTPClient) Option {
	return func(p *Proxy) {
		if c == nil {
			return
		}
		p.client = c
	}
}

// WithTimeout bounds every upstream round trip.
func WithTimeout(d time.Duration) Option {
	return func(p *Proxy) {
		if d <= 0 {
			return
		}
		p.timeout = d
	}
}

// WithAuthorizer sets the request authorizer. The default allows everything.
func WithAuthorizer(a Authorizer) Option {
	return func(p *Proxy) {
		if a == nil {
			return
		}
		p.authorize = a
	}
}

// WithObserver sets the request observer.
func WithObserver(o Observer) Option {
	return func(p *Proxy) { p.observer = o }
}

// WithExpiredHook sets a callback run when the backend rejects the session
// token.
func WithExpiredHook(fn func()) Option {
	return func(p *Proxy) { p.expired = fn }
}

// New creates a proxy without a session. Until SetSession or Refresh
// succeeds every request is answered with 503.
func New(opts ...Option) *Proxy {
	p := &Proxy{
		log: zap.NewNop(),
		client: &fasthttp.Client{
			Name:                     "cloudfiles-http-gw",
			NoDefaultUserAgentHeader: true,
			DisablePathNormalizing:   true,
		},
		timeout:   cloudfiles.DefaultTimeout,
		authorize: AllowAll,
		failure:   atomic.NewError(nil),
	}

	for i := range opts {
		opts[i](p)
	}

	return p
}

// SetSession publishes a new session and clears the last failure.
func (p *Proxy) SetSession(s *cloudfiles.Session) {
	p.session.Store(s)
	p.failure.Store(nil)
}

// Fail drops the current session and remembers why it could not be
// created.
func (p *Proxy) Fail(err error) {
	p.session.Store((*cloudfiles.Session)(nil))
	p.failure.Store(err)
}

// Session returns the published session, or nil.
func (p *Proxy) Session() *cloudfiles.Session {
	s, _ := p.session.Load().(*cloudfiles.Session)
	return s
}

// Err returns the last session failure.
func (p *Proxy) Err() error {
	return p.failure.Load()
}

// Refresh fetches a session from the authenticator and publishes it.
// Cancellation of ctx is not recorded as a failure.
func (p *Proxy) Refresh(ctx context.Context, a *cloudfiles.Authenticator) error {
	s, err := a.Session(ctx)
	switch {
	case err == nil:
		p.SetSession(s)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		p.Fail(err)
		return err
	}
}

// otherMethod labels observations of methods no route accepts, so clients
// cannot grow the label set.
const otherMethod = "other"

func observedMethod(method string) string {
	if supported.has(method) {
		return method
	}
	return otherMethod
}

// Handler serves one inbound request.
func (p *Proxy) Handler(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())

	defer func() {
		if p.observer != nil {
			p.observer.ObserveProxy(observedMethod(method), ctx.Response.StatusCode())
		}
	}()

	rawPath := string(ctx.URI().PathOriginal())
	if i := strings.IndexByte(rawPath, '?'); i >= 0 {
		rawPath = rawPath[:i]
	}

	if !p.authorize(method, &ctx.Request.Header, rawPath) {
		renderError(ctx, fasthttp.StatusUnauthorized)
		return
	}

	if !supported.has(method) {
		renderError(ctx, fasthttp.StatusMethodNotAllowed)
		return
	}

	if err := p.Err(); err != nil {
		p.log.Debug("session is not available", zap.Error(err))
		renderError(ctx, fasthttp.StatusBadGateway)
		return
	}

	s := p.Session()
	if !s.Valid() {
		renderError(ctx, fasthttp.StatusServiceUnavailable)
		return
	}

	r, err := resolve(method, rawPath)
	switch {
	case errors.Is(err, errMethodNotAllowed):
		renderError(ctx, fasthttp.StatusMethodNotAllowed)
		return
	case err != nil:
		renderError(ctx, fasthttp.StatusBadRequest)
		return
	}

	p.forward(ctx, s, method, r)
}

func (p *Proxy) forward(ctx *fasthttp.RequestCtx, s *cloudfiles.Session, method string, r route) {
	base := s.StorageURL()
	if r.category == cloudfiles.CategoryCDN {
		base = s.CDNURL()
	}

	upstream, err := url.Parse(base + r.path())
	if err != nil || base == "" {
		p.log.Error("could not build upstream url",
			zap.Stringer("category", r.category),
			zap.Error(err))
		renderError(ctx, fasthttp.StatusInternalServerError)
		return
	}

	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)

	ctx.QueryArgs().CopyTo(args)
	if r.listing(method) && !args.Has("format") {
		args.Set("format", "json")
	}
	upstream.RawQuery = string(args.QueryString())

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	ctx.Request.CopyTo(req)
	req.SetRequestURI(upstream.String())
	req.Header.SetHost(upstream.Host)

	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	stripCredentials(&req.Header)
	req.Header.Set(cloudfiles.HeaderAuthToken, s.Token())

	if err = rewriteMetadata(&req.Header, r.kind); err != nil {
		p.log.Debug("invalid metadata header", zap.Error(err))
		renderError(ctx, fasthttp.StatusBadRequest)
		return
	}

	if err = p.client.DoTimeout(req, &ctx.Response, p.timeout); err != nil {
		p.log.Warn("upstream request failed",
			zap.String("method", method),
			zap.String("path", r.path()),
			zap.Error(err))
		writePage(ctx, fasthttp.StatusBadGateway, upstreamFailure)
		return
	}

	for _, h := range hopHeaders {
		ctx.Response.Header.Del(h)
	}

	if ctx.Response.StatusCode() == fasthttp.StatusUnauthorized {
		p.log.Info("backend rejected session token")
		p.session.Store((*cloudfiles.Session)(nil))
		if p.expired != nil {
			p.expired()
		}
	}

	p.log.Debug("request forwarded",
		zap.String("method", method),
		zap.String("category", r.category.String()),
		zap.String("container", r.container),
		zap.String("object", r.object),
		zap.Int("status", ctx.Response.StatusCode()))
}

// rewriteMetadata maps X-Meta-<key> headers to the entity prefix of kind.
func rewriteMetadata(h *fasthttp.RequestHeader, kind cloudfiles.MetaKind) error {
	var generic [][2]string

	h.VisitAll(func(key, val []byte) {
		name := string(key)
		if len(name) > len(genericMetaPrefix) && strings.EqualFold(name[:len(genericMetaPrefix)], genericMetaPrefix) {
			generic = append(generic, [2]string{name, string(val)})
		}
	})

	for _, kv := range generic {
		h.Del(kv[0])

		name, value, err := cloudfiles.EncodeMetadata(kind, kv[0][len(genericMetaPrefix):], kv[1])
		if err != nil {
			return err
		}
		h.Set(name, value)
	}

	return nil
}
