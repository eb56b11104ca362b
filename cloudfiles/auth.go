package cloudfiles

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Endpoint is an authentication service.
type Endpoint struct {
	Name    string
	AuthURL string
}

// Known authentication endpoints.
var (
	EndpointUS = Endpoint{Name: "us", AuthURL: "https://auth.api.rackspacecloud.com/v1.0"}
	EndpointUK = Endpoint{Name: "uk", AuthURL: "https://lon.auth.api.rackspacecloud.com/v1.0"}
)

// ParseEndpoint accepts "us", "uk" or an absolute auth URL.
func ParseEndpoint(s string) (Endpoint, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", EndpointUS.Name:
		return EndpointUS, nil
	case EndpointUK.Name:
		return EndpointUK, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, ErrInvalidEndpoint.Wrap(err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Endpoint{}, ErrInvalidEndpoint.New("%q is neither a known region nor an absolute url", s)
	}

	return Endpoint{Name: u.Host, AuthURL: u.String()}, nil
}

// AuthState is the token lifecycle state of an Authenticator.
type AuthState int

// Authenticator states.
const (
	StateUnauthenticated AuthState = iota
	StateAuthenticating
	StateValid
	StateExpired
)

func (s AuthState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateValid:
		return "valid"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

type (
	// Authenticator acquires sessions and caches them. At most one auth
	// exchange is in flight at any time; callers arriving meanwhile wait
	// for its result.
	Authenticator struct {
		endpoint   Endpoint
		username   string
		apiKey     string
		transport  *Transport
		log        *zap.Logger
		validity   time.Duration
		serviceNet bool
		clock      func() time.Time
		purge      *rate.Limiter
		observer   AuthObserver

		mu      sync.Mutex
		state   AuthState
		session *Session
		pending []chan authResult
	}

	// AuthOption configures an Authenticator.
	AuthOption func(a *Authenticator)

	// AuthObserver is told about every completed auth exchange.
	AuthObserver interface {
		ObserveAuth(err error)
	}

	authResult struct {
		session *Session
		err     error
	}
)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) AuthOption {
	return func(a *Authenticator) {
		if l != nil {
			a.log = l
		}
	}
}

// WithTransport sets the transport used by the authenticator and the
// sessions it creates.
func WithTransport(t *Transport) AuthOption {
	return func(a *Authenticator) {
		if t != nil {
			a.transport = t
		}
	}
}

// WithValidity overrides the token validity window.
func WithValidity(d time.Duration) AuthOption {
	return func(a *Authenticator) {
		if d > 0 {
			a.validity = d
		}
	}
}

// WithServiceNet routes storage requests over the service network.
func WithServiceNet(enabled bool) AuthOption {
	return func(a *Authenticator) { a.serviceNet = enabled }
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) AuthOption {
	return func(a *Authenticator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithAuthObserver attaches an auth observer.
func WithAuthObserver(o AuthObserver) AuthOption {
	return func(a *Authenticator) { a.observer = o }
}

// NewAuthenticator creates an authenticator for the given credentials.
func NewAuthenticator(endpoint Endpoint, username, apiKey string, opts ...AuthOption) (*Authenticator, error) {
	switch {
	case endpoint.AuthURL == "":
		return nil, ErrInvalidEndpoint.New("empty auth url")
	case username == "":
		return nil, ErrRequest.New("empty username")
	case apiKey == "":
		return nil, ErrRequest.New("empty api key")
	}

	a := &Authenticator{
		endpoint: endpoint,
		username: username,
		apiKey:   apiKey,
		log:      zap.NewNop(),
		validity: DefaultValidity,
		clock:    time.Now,
		purge:    NewPurgeLimiter(),
	}

	for i := range opts {
		opts[i](a)
	}

	if a.transport == nil {
		a.transport = NewTransport(WithTransportLogger(a.log))
	}

	return a, nil
}

// Endpoint returns the authentication endpoint.
func (a *Authenticator) Endpoint() Endpoint { return a.endpoint }

// State reports the lifecycle state. A cached session past its validity
// window is reported as expired.
func (a *Authenticator) State() AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateValid && !a.session.Valid() {
		return StateExpired
	}
	return a.state
}

// Session returns a valid session, authenticating when there is none or the
// cached one expired.
func (a *Authenticator) Session(ctx context.Context) (*Session, error) {
	a.mu.Lock()

	if a.state == StateValid {
		if a.session.Valid() {
			s := a.session
			a.mu.Unlock()
			return s, nil
		}

		a.state = StateExpired
		a.log.Debug("session expired",
			zap.String("user", a.username),
			zap.Time("expired_at", a.session.ExpiresAt()))
	}

	wait := make(chan authResult, 1)
	a.pending = append(a.pending, wait)

	if a.state != StateAuthenticating {
		a.state = StateAuthenticating
		go a.authenticate()
	}

	a.mu.Unlock()

	select {
	case res := <-wait:
		return res.session, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached session, e.g. after the backend rejected its
// token.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateAuthenticating {
		return
	}

	a.state = StateUnauthenticated
	a.session = nil
}

func (a *Authenticator) authenticate() {
	a.log.Debug("authenticating",
		zap.String("user", a.username),
		zap.String("endpoint", a.endpoint.AuthURL))

	s, err := a.exchange(context.Background())

	a.mu.Lock()
	if err != nil {
		a.state = StateUnauthenticated
		a.session = nil
	} else {
		a.state = StateValid
		a.session = s
	}
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	if err != nil {
		a.log.Error("authentication failed",
			zap.String("user", a.username),
			zap.Int("waiters", len(pending)),
			zap.Error(err))
	} else {
		a.log.Info("session created",
			zap.String("user", a.username),
			zap.String("storage_url", s.StorageURL()),
			zap.Time("expires_at", s.ExpiresAt()),
			zap.Int("waiters", len(pending)))
	}

	if a.observer != nil {
		a.observer.ObserveAuth(err)
	}

	for _, ch := range pending {
		ch <- authResult{session: s, err: err}
	}
}

func (a *Authenticator) exchange(ctx context.Context) (*Session, error) {
	var session *Session

	req := NewAuthRequest(opAuthenticate, a.endpoint.AuthURL).
		SetHeader(HeaderAuthUser, a.username).
		SetHeader(HeaderAuthKey, a.apiKey).
		SetParser(func(r *Response) error {
			var err error
			session, err = NewSession(SessionParams{
				Username:     a.username,
				Token:        r.Get(HeaderAuthToken),
				IssuedAt:     a.clock(),
				Validity:     a.validity,
				StorageURL:   r.Get(HeaderStorageURL),
				CDNURL:       r.Get(HeaderCDNManagementURL),
				ServiceNet:   a.serviceNet,
				Transport:    a.transport,
				Logger:       a.log,
				Clock:        a.clock,
				PurgeLimiter: a.purge,
			})
			return err
		})

	err := a.transport.Run(ctx, req)
	switch {
	case err == nil:
		return session, nil
	case IsUnauthorized(err):
		return nil, ErrAuthenticationFailed.Wrap(err)
	case ErrSessionCreation.Has(err):
		return nil, err
	default:
		return nil, ErrSessionCreation.Wrap(err)
	}
}
