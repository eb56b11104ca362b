package cloudfiles

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultValidity is how long an issued token is trusted.
const DefaultValidity = 12 * time.Hour

// CDN purges are limited by the backend to 25 a day per account.
const (
	purgeBurst    = 25
	purgeInterval = 24 * time.Hour / purgeBurst
)

// Session is a time bounded capability token plus the backend base URLs.
// It is read-only once created and safe for concurrent use.
type Session struct {
	Username string

	token      string
	issuedAt   time.Time
	validity   time.Duration
	storageURL string
	cdnURL     string
	serviceNet bool

	// publicURL is the storage URL without the service network prefix.
	publicURL string

	transport *Transport
	log       *zap.Logger
	clock     func() time.Time
	purge     *rate.Limiter
}

// SessionParams describe a session obtained from an auth exchange.
type SessionParams struct {
	Username   string
	Token      string
	IssuedAt   time.Time
	Validity   time.Duration
	StorageURL string
	CDNURL     string
	ServiceNet bool

	Transport *Transport
	Logger    *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
	// PurgeLimiter is shared between the sessions of one account.
	PurgeLimiter *rate.Limiter
}

// NewPurgeLimiter returns the account wide CDN purge budget.
func NewPurgeLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(purgeInterval), purgeBurst)
}

// NewSession validates p and creates a session.
func NewSession(p SessionParams) (*Session, error) {
	if p.Token == "" {
		return nil, ErrSessionCreation.New("empty auth token")
	}

	storage, err := parseBaseURL(p.StorageURL, p.ServiceNet)
	if err != nil {
		return nil, ErrSessionCreation.New("invalid storage url %q: %v", p.StorageURL, err)
	}

	public, err := parseBaseURL(p.StorageURL, false)
	if err != nil {
		return nil, ErrSessionCreation.New("invalid storage url %q: %v", p.StorageURL, err)
	}

	var cdn string
	if p.CDNURL != "" {
		if cdn, err = parseBaseURL(p.CDNURL, false); err != nil {
			return nil, ErrSessionCreation.New("invalid cdn url %q: %v", p.CDNURL, err)
		}
	}

	s := &Session{
		Username:   p.Username,
		token:      p.Token,
		issuedAt:   p.IssuedAt,
		validity:   p.Validity,
		storageURL: storage,
		publicURL:  public,
		cdnURL:     cdn,
		serviceNet: p.ServiceNet,
		transport:  p.Transport,
		log:        p.Logger,
		clock:      p.Clock,
		purge:      p.PurgeLimiter,
	}

	if s.validity <= 0 {
		s.validity = DefaultValidity
	}
	if s.transport == nil {
		s.transport = NewTransport()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.issuedAt.IsZero() {
		s.issuedAt = s.clock()
	}
	if s.purge == nil {
		s.purge = NewPurgeLimiter()
	}

	return s, nil
}

func parseBaseURL(raw string, serviceNet bool) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if u.Scheme == "" || u.Host == "" {
		return "", ErrRequest.New("absolute url required")
	}

	if serviceNet {
		u.Host = serviceNetHostPrefix + u.Host
	}

	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}

// Token returns the capability token.
func (s *Session) Token() string { return s.token }

// IssuedAt returns the moment the token was obtained.
func (s *Session) IssuedAt() time.Time { return s.issuedAt }

// ExpiresAt returns the end of the validity window.
func (s *Session) ExpiresAt() time.Time { return s.issuedAt.Add(s.validity) }

// Valid reports whether the token can still be used.
func (s *Session) Valid() bool {
	return s != nil && s.token != "" && s.clock().Before(s.ExpiresAt())
}

// StorageURL returns the storage base URL, service network prefixed when
// requested.
func (s *Session) StorageURL() string { return s.storageURL }

// PublicStorageURL returns the storage base URL reachable from outside the
// service network.
func (s *Session) PublicStorageURL() string {
	if s.publicURL == "" {
		return s.storageURL
	}
	return s.publicURL
}

// CDNURL returns the CDN management base URL, empty when not provided.
func (s *Session) CDNURL() string { return s.cdnURL }

// ServiceNet reports whether storage requests use the service network.
func (s *Session) ServiceNet() bool { return s.serviceNet }

func (s *Session) run(ctx context.Context, r *Request) error {
	return s.transport.Run(ctx, r)
}
