package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudfiles/cloudfiles-http-gw/cloudfiles"
	"github.com/cloudfiles/cloudfiles-http-gw/logger"
	"github.com/cloudfiles/cloudfiles-http-gw/metrics"
	"github.com/cloudfiles/cloudfiles-http-gw/proxy"
	"github.com/cloudfiles/cloudfiles-http-gw/relay"
	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type (
	app struct {
		log      *zap.Logger
		logLevel zap.AtomicLevel
		cfg      *viper.Viper
		web      *fasthttp.Server

		auth    *cloudfiles.Authenticator
		proxy   *proxy.Proxy
		relay   *relay.Server
		metrics *metrics.GateMetrics

		refreshInterval time.Duration
		refresh         chan struct{}

		jobDone chan struct{}
		webDone chan struct{}
	}

	// App is an interface for the main gateway function.
	App interface {
		Wait()
		Worker(context.Context)
		Serve(context.Context)
	}

	// Option is an application option.
	Option func(a *app)
)

// WithLogger returns Option to set a specific logger.
func WithLogger(l *zap.Logger, lvl zap.AtomicLevel) Option {
	return func(a *app) {
		if l == nil {
			return
		}
		a.log = l
		a.logLevel = lvl
	}
}

// WithConfig returns Option to use specific Viper configuration.
func WithConfig(c *viper.Viper) Option {
	return func(a *app) {
		if c == nil {
			return
		}
		a.cfg = c
	}
}

func newApp(ctx context.Context, opt ...Option) App {
	a := &app{
		log:      zap.L(),
		logLevel: zap.NewAtomicLevel(),
		cfg:      viper.GetViper(),
		web:      new(fasthttp.Server),

		refresh: make(chan struct{}, 1),
		jobDone: make(chan struct{}),
		webDone: make(chan struct{}),
	}

	for i := range opt {
		opt[i](a)
	}

	if a.cfg.GetBool(cfgMetrics) {
		a.metrics = metrics.NewGateMetrics(prometheus.DefaultRegisterer)
	}

	client := a.newClient()

	transportOpts := []cloudfiles.TransportOption{
		cloudfiles.WithHTTPClient(client),
		cloudfiles.WithTimeout(a.cfg.GetDuration(cfgRequestTimeout)),
		cloudfiles.WithTransportLogger(a.log),
	}
	if a.metrics != nil {
		transportOpts = append(transportOpts, cloudfiles.WithObserver(a.metrics))
	}

	var err error
	if a.auth, err = a.newAuthenticator(cloudfiles.NewTransport(transportOpts...)); err != nil {
		a.log.Fatal("could not create authenticator", zap.Error(err))
	}

	authorizer, err := newAuthorizer(a.cfg)
	if err != nil {
		a.log.Fatal("could not create authorizer", zap.Error(err))
	}

	proxyOpts := []proxy.Option{
		proxy.WithLogger(a.log),
		proxy.WithClient(client),
		proxy.WithTimeout(a.cfg.GetDuration(cfgRequestTimeout)),
		proxy.WithAuthorizer(authorizer),
		proxy.WithExpiredHook(a.sessionExpired),
	}
	if a.metrics != nil {
		proxyOpts = append(proxyOpts, proxy.WithObserver(a.metrics))
	}
	a.proxy = proxy.New(proxyOpts...)

	if a.cfg.GetBool(cfgRelayEnabled) {
		a.relay = relay.NewServer(relay.SessionUploader(a.auth),
			relay.WithLogger(a.log),
			relay.WithHeaderTimeout(a.cfg.GetDuration(cfgRelayHeaderTimeout)))
	}

	a.refreshInterval = a.cfg.GetDuration(cfgAuthRefresh)
	if a.refreshInterval <= 0 {
		a.refreshInterval = defaultRefreshInterval
	}

	// -- setup FastHTTP server: --
	a.web.Name = "cloudfiles-http-gw"
	a.web.ReadBufferSize = a.cfg.GetInt(cfgWebReadBufferSize)
	a.web.WriteBufferSize = a.cfg.GetInt(cfgWebWriteBufferSize)
	a.web.ReadTimeout = a.cfg.GetDuration(cfgWebReadTimeout)
	a.web.WriteTimeout = a.cfg.GetDuration(cfgWebWriteTimeout)
	a.web.MaxRequestBodySize = a.cfg.GetInt(cfgWebMaxRequestBodySize)
	a.web.NoDefaultServerHeader = true
	a.web.NoDefaultContentType = true
	a.web.Logger = logger.Fasthttp(a.log)
	// -- -- -- -- -- -- -- -- -- --

	return a
}

func (a *app) newClient() *fasthttp.Client {
	connectTimeout := a.cfg.GetDuration(cfgConnectTimeout)
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	return &fasthttp.Client{
		Name:                     "cloudfiles-http-gw",
		NoDefaultUserAgentHeader: true,
		DisablePathNormalizing:   true,
		MaxConnsPerHost:          64,
		Dial: func(addr string) (net.Conn, error) {
			return fasthttp.DialTimeout(addr, connectTimeout)
		},
	}
}

func (a *app) newAuthenticator(t *cloudfiles.Transport) (*cloudfiles.Authenticator, error) {
	endpoint, err := cloudfiles.ParseEndpoint(a.cfg.GetString(cfgAuthEndpoint))
	if err != nil {
		return nil, err
	}

	opts := []cloudfiles.AuthOption{
		cloudfiles.WithLogger(a.log),
		cloudfiles.WithTransport(t),
		cloudfiles.WithValidity(a.cfg.GetDuration(cfgAuthValidity)),
		cloudfiles.WithServiceNet(a.cfg.GetBool(cfgAuthServiceNet)),
	}
	if a.metrics != nil {
		opts = append(opts, cloudfiles.WithAuthObserver(a.metrics))
	}

	return cloudfiles.NewAuthenticator(endpoint,
		a.cfg.GetString(cfgAuthUsername),
		a.cfg.GetString(cfgAuthAPIKey),
		opts...)
}

func newAuthorizer(v *viper.Viper) (proxy.Authorizer, error) {
	switch name := strings.ToLower(v.GetString(cfgProxyAuthorizer)); name {
	case "", authorizerNone:
		return proxy.AllowAll, nil
	case authorizerReadOnly:
		return proxy.ReadOnly, nil
	case authorizerKey:
		keys := v.GetStringSlice(cfgProxyKeys)
		if len(keys) == 0 {
			return nil, fmt.Errorf("%s authorizer requires %s", authorizerKey, cfgProxyKeys)
		}
		return proxy.KeyAuthorizer(keys...), nil
	default:
		return nil, fmt.Errorf("unknown authorizer %q", name)
	}
}

// sessionExpired is called by the proxy when the backend rejects the
// current token.
func (a *app) sessionExpired() {
	a.auth.Invalidate()

	select {
	case a.refresh <- struct{}{}:
	default:
	}
}

// healthy reports the expiry of the session the proxy forwards with.
func (a *app) healthy() (time.Time, error) {
	if err := a.proxy.Err(); err != nil {
		return time.Time{}, err
	}

	s := a.proxy.Session()
	if !s.Valid() {
		return time.Time{}, errors.New("no valid session")
	}
	return s.ExpiresAt(), nil
}

func (a *app) Wait() {
	a.log.Info("application started", zap.String("version", Version))

	select {
	case <-a.jobDone: // wait for job is stopped
		<-a.webDone
	case <-a.webDone: // wait for web-server is stopped
		<-a.jobDone
	}

	a.log.Info("application finished")
}

// Worker keeps the proxy session fresh until ctx is done.
func (a *app) Worker(ctx context.Context) {
	dur := a.refreshInterval
	tick := time.NewTimer(dur)

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	a.refreshSession(ctx)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-tick.C:
			a.refreshSession(ctx)
			tick.Reset(dur)
		case <-a.refresh:
			a.refreshSession(ctx)
		case <-sighup:
			a.reload()
		}
	}

	signal.Stop(sighup)
	tick.Stop()

	a.log.Info("session worker stopped")

	close(a.jobDone)
}

func (a *app) refreshSession(ctx context.Context) {
	err := a.proxy.Refresh(ctx, a.auth)

	switch {
	case err == nil:
		a.setHealth(1)
	case errors.Is(err, context.Canceled):
		// shutting down
	default:
		a.setHealth(0)
		a.log.Error("could not refresh session",
			zap.Stringer("state", a.auth.State()),
			zap.Error(err))
	}
}

// reload re-reads the config file and applies the new log level.
func (a *app) reload() {
	if a.cfg.GetString(cfgConfig) != "" {
		if err := a.cfg.ReadInConfig(); err != nil {
			a.log.Warn("could not reload config", zap.Error(err))
			return
		}
	}

	lvl := logger.Level(a.cfg.GetString(cfgLoggerLevel))
	a.logLevel.SetLevel(lvl)
	a.log.Info("config reloaded", zap.Stringer("log_level", lvl))
}

func (a *app) setHealth(s int32) {
	if a.metrics != nil {
		a.metrics.SetHealth(s)
	}
}

func (a *app) Serve(ctx context.Context) {
	defer close(a.webDone)

	r := router.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	// attaching /-/(ready,healthy)
	attachHealthy(r, a.healthy)

	// enable metrics
	if a.cfg.GetBool(cfgMetrics) {
		a.log.Info("enabled /metrics/")
		attachMetrics(r, a.log)
	}

	// enable pprof
	if a.cfg.GetBool(cfgPprof) {
		a.log.Info("enabled /debug/pprof/")
		attachProfiler(r)
	}

	// everything else is the Cloud Files API
	r.NotFound = a.proxy.Handler
	a.web.Handler = r.Handler

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("stop web-server", zap.Error(a.web.Shutdown()))
		return nil
	})

	bind := a.cfg.GetString(cfgListenAddress)
	g.Go(func() error {
		a.log.Info("run gateway server", zap.String("address", bind))
		if err := a.web.ListenAndServe(bind); err != nil {
			return fmt.Errorf("could not start server: %w", err)
		}
		return nil
	})

	if a.relay != nil {
		addr := a.cfg.GetString(cfgRelayAddress)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			a.log.Fatal("could not start relay", zap.String("address", addr), zap.Error(err))
		}

		g.Go(func() error {
			return a.relay.Serve(gctx, ln)
		})
	}

	if err := g.Wait(); err != nil {
		a.log.Fatal("gateway stopped", zap.Error(err))
	}
}
