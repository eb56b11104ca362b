package cloudfiles

import (
	"context"
	"encoding/json"
	"io"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every round trip.
const DefaultTimeout = 15 * time.Second

// Wire headers.
const (
	HeaderAuthUser         = "X-Auth-User"
	HeaderAuthKey          = "X-Auth-Key"
	HeaderAuthToken        = "X-Auth-Token"
	HeaderStorageURL       = "X-Storage-Url"
	HeaderCDNManagementURL = "X-Cdn-Management-Url"
	HeaderTransID          = "X-Trans-Id"
	HeaderETag             = "Etag"
	HeaderDestination      = "Destination"

	HeaderAccountContainerCount = "X-Account-Container-Count"
	HeaderAccountObjectCount    = "X-Account-Object-Count"
	HeaderAccountBytesUsed      = "X-Account-Bytes-Used"
	HeaderContainerObjectCount  = "X-Container-Object-Count"
	HeaderContainerBytesUsed    = "X-Container-Bytes-Used"

	HeaderCDNEnabled      = "X-Cdn-Enabled"
	HeaderCDNURI          = "X-Cdn-Uri"
	HeaderCDNSSLURI       = "X-Cdn-Ssl-Uri"
	HeaderCDNStreamingURI = "X-Cdn-Streaming-Uri"
	HeaderCDNIosURI       = "X-Cdn-Ios-Uri"
	HeaderTTL             = "X-Ttl"
	HeaderLogRetention    = "X-Log-Retention"
	HeaderPurgeEmail      = "X-Purge-Email"

	HeaderTempURLKey     = "X-Account-Meta-Temp-Url-Key"
	HeaderAccessLog      = "X-Container-Meta-Access-Log-Delivery"
	HeaderWebIndex       = "X-Container-Meta-Web-Index"
	HeaderWebError       = "X-Container-Meta-Web-Error"
	HeaderContentType    = fasthttp.HeaderContentType
	HeaderContentLength  = fasthttp.HeaderContentLength
	HeaderLastModified   = fasthttp.HeaderLastModified
	serviceNetHostPrefix = "snet-"
)

type (
	// HTTPClient performs one round trip. *fasthttp.Client satisfies it.
	HTTPClient interface {
		DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
	}

	// Observer receives the outcome of every round trip. Status is zero for
	// transport failures.
	Observer interface {
		ObserveRequest(op string, status int, elapsed time.Duration)
	}

	// Transport executes requests described by operations.
	Transport struct {
		client   HTTPClient
		timeout  time.Duration
		log      *zap.Logger
		observer Observer
	}

	// TransportOption configures a Transport.
	TransportOption func(t *Transport)

	// ResponseParser maps a validated response to the caller's result.
	ResponseParser func(r *Response) error

	// Response is a validated backend response.
	Response struct {
		OK         bool
		TransferID string
		StatusCode int
		Header     map[string]string
		Metadata   map[string]string
		Body       []byte
		// JSON holds the decoded body, a []interface{} or
		// map[string]interface{}, for JSON operations.
		JSON   interface{}
		Format BodyFormat
	}

	// Request is built once per call and run once.
	Request struct {
		op      *Operation
		session *Session
		authURL string

		header    map[string]string
		query     url.Values
		container string
		object    string

		body         []byte
		stream       io.Reader
		streamLength int64

		parser ResponseParser
	}
)

// WithHTTPClient replaces the default fasthttp client.
func WithHTTPClient(c HTTPClient) TransportOption {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTimeout sets the per request timeout.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithTransportLogger sets the logger.
func WithTransportLogger(l *zap.Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

// WithObserver attaches a round trip observer.
func WithObserver(o Observer) TransportOption {
	return func(t *Transport) { t.observer = o }
}

// NewTransport creates a transport backed by fasthttp.
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		client: &fasthttp.Client{
			Name:                   "cloudfiles-http-gw",
			DisablePathNormalizing: true,
			MaxConnsPerHost:        64,
		},
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
	}

	for i := range opts {
		opts[i](t)
	}

	return t
}

// Timeout returns the per request timeout.
func (t *Transport) Timeout() time.Duration { return t.timeout }

// NewRequest starts a storage or CDN request on behalf of s.
func NewRequest(op *Operation, s *Session) *Request {
	return &Request{
		op:      op,
		session: s,
		header:  make(map[string]string),
		query:   make(url.Values),
	}
}

// NewAuthRequest starts an auth request against authURL.
func NewAuthRequest(op *Operation, authURL string) *Request {
	r := NewRequest(op, nil)
	r.authURL = authURL
	return r
}

// SetHeader sets a dynamic request header.
func (r *Request) SetHeader(key, value string) *Request {
	r.header[textproto.CanonicalMIMEHeaderKey(key)] = value
	return r
}

// SetQuery sets a dynamic query parameter.
func (r *Request) SetQuery(key, value string) *Request {
	r.query.Set(key, value)
	return r
}

// SetContainer binds the target container.
func (r *Request) SetContainer(name string) *Request {
	r.container = name
	return r
}

// SetObject binds the target object.
func (r *Request) SetObject(name string) *Request {
	r.object = name
	return r
}

// SetBody sets an in-memory body.
func (r *Request) SetBody(body []byte) *Request {
	r.body = body
	r.stream = nil
	return r
}

// SetStream sets a streamed body of length bytes.
func (r *Request) SetStream(stream io.Reader, length int64) *Request {
	r.stream = stream
	r.streamLength = length
	r.body = nil
	return r.SetHeader(HeaderContentLength, strconv.FormatInt(length, 10))
}

// SetMetadata encodes custom metadata as prefixed headers.
func (r *Request) SetMetadata(kind MetaKind, meta map[string]string) error {
	for k, v := range meta {
		header, value, err := EncodeMetadata(kind, k, v)
		if err != nil {
			return err
		}
		r.SetHeader(header, value)
	}
	return nil
}

// SetParser registers the result mapper. Requests without one never run.
func (r *Request) SetParser(p ResponseParser) *Request {
	r.parser = p
	return r
}

// validate checks every precondition that does not need the network.
func (r *Request) validate() error {
	if err := r.op.Validate(); err != nil {
		return err
	}

	if r.parser == nil {
		return ErrConfiguration.New("%s: no response parser registered", r.op.Name)
	}

	for _, h := range r.op.RequiredHeaders {
		if _, ok := r.header[textproto.CanonicalMIMEHeaderKey(h)]; !ok {
			return ErrRequest.New("%s: missing required header %s", r.op.Name, h)
		}
	}

	if r.op.RequiredBody && len(r.body) == 0 && r.stream == nil {
		return ErrRequest.New("%s: request body required", r.op.Name)
	}

	if r.object != "" && r.container == "" {
		return ErrRequest.New("%s: object %q without container", r.op.Name, r.object)
	}

	if r.op.Category == CategoryAuth {
		return nil
	}

	switch {
	case r.session == nil:
		return ErrNotAuthenticated.New("%s: no session", r.op.Name)
	case !r.session.Valid():
		return ErrNotAuthenticated.New("%s: session expired", r.op.Name)
	}

	return nil
}

// URL returns the full request URL.
func (r *Request) URL() (string, error) {
	var base string

	switch r.op.Category {
	case CategoryAuth:
		base = r.authURL
	case CategoryStorage:
		base = r.session.StorageURL()
	case CategoryCDN:
		base = r.session.CDNURL()
	}

	if base == "" {
		return "", ErrRequest.New("%s: no %s base url", r.op.Name, r.op.Category)
	}

	var path string
	switch {
	case r.object != "":
		path = ObjectPath(r.container, r.object)
	case r.container != "":
		path = ContainerPath(r.container)
	}

	query := make(url.Values, len(r.op.Query)+len(r.query))
	for k, v := range r.op.Query {
		query.Set(k, v)
	}
	for k, v := range r.query {
		query[k] = v
	}

	uri := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	return uri, nil
}

// Run performs exactly one round trip for r and hands the validated
// response to its parser.
func (t *Transport) Run(ctx context.Context, r *Request) error {
	if r == nil || r.op == nil {
		return ErrConfiguration.New("empty request")
	}

	if err := r.validate(); err != nil {
		return err
	}

	uri, err := r.URL()
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(r.op.Method)
	req.SetRequestURI(uri)

	for k, v := range r.header {
		req.Header.Set(k, v)
	}

	if r.op.Category != CategoryAuth {
		req.Header.Set(HeaderAuthToken, r.session.Token())
	}

	switch {
	case r.stream != nil:
		req.SetBodyStream(r.stream, int(r.streamLength))
	case len(r.body) > 0:
		req.SetBody(r.body)
	}

	if err = ctx.Err(); err != nil {
		return t.failure(r.op, ErrTransport.Wrap(err))
	}

	timeout := t.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	start := time.Now()
	err = t.client.DoTimeout(req, resp, timeout)
	elapsed := time.Since(start)

	if err != nil {
		t.observe(r.op.Name, 0, elapsed)
		t.log.Debug("request failed",
			zap.String("operation", r.op.Name),
			zap.Stringer("elapsed", elapsed),
			zap.Error(err))

		return t.failure(r.op, ErrTransport.Wrap(err))
	}

	response := newResponse(r.op, resp)
	t.observe(r.op.Name, response.StatusCode, elapsed)

	t.log.Debug("request completed",
		zap.String("operation", r.op.Name),
		zap.String("method", r.op.Method),
		zap.Int("status", response.StatusCode),
		zap.String("trans_id", response.TransferID),
		zap.Stringer("elapsed", elapsed))

	if err = classify(r.op, response); err != nil {
		return &ResponseError{
			Op:         r.op.Name,
			StatusCode: response.StatusCode,
			Response:   response,
			Err:        err,
		}
	}

	response.OK = true

	return r.parser(response)
}

func (t *Transport) failure(op *Operation, err error) error {
	return &ResponseError{
		Op:       op.Name,
		Response: &Response{TransferID: uuid.NewString(), Format: op.ExpectedBody},
		Err:      err,
	}
}

func (t *Transport) observe(op string, status int, elapsed time.Duration) {
	if t.observer != nil {
		t.observer.ObserveRequest(op, status, elapsed)
	}
}

func newResponse(op *Operation, resp *fasthttp.Response) *Response {
	r := &Response{
		StatusCode: resp.StatusCode(),
		Header:     make(map[string]string),
		Format:     op.ExpectedBody,
	}

	resp.Header.VisitAll(func(key, val []byte) {
		r.Header[textproto.CanonicalMIMEHeaderKey(string(key))] = string(val)
	})

	r.Body = append([]byte(nil), resp.Body()...)
	r.Metadata = filterAllMetadata(r.Header)

	if r.TransferID = r.Header[HeaderTransID]; r.TransferID == "" {
		r.TransferID = uuid.NewString()
	}

	return r
}

// classify checks the response against the operation contract.
func classify(op *Operation, r *Response) error {
	if !op.ExpectedStatus.Contains(r.StatusCode) {
		return ErrProtocol.New("unexpected status %d, expected %s", r.StatusCode, op.ExpectedStatus)
	}

	for _, h := range op.ExpectedHeaders {
		if _, ok := r.Header[textproto.CanonicalMIMEHeaderKey(h)]; !ok {
			return ErrProtocol.New("missing expected header %s", h)
		}
	}

	if statusNoContent(r.StatusCode) {
		return nil
	}

	switch op.ExpectedBody {
	case BodyBinary:
		if len(r.Body) == 0 {
			return ErrProtocol.New("empty response body")
		}
	case BodyJSON:
		var v interface{}
		if err := json.Unmarshal(r.Body, &v); err != nil {
			return ErrProtocol.Wrap(err)
		}

		switch v.(type) {
		case []interface{}, map[string]interface{}:
			r.JSON = v
		default:
			return ErrProtocol.New("json body is neither a list nor an object")
		}
	}

	return nil
}

// Get returns a response header.
func (r *Response) Get(name string) string {
	return r.Header[textproto.CanonicalMIMEHeaderKey(name)]
}

// Int parses a numeric response header, zero if absent or malformed.
func (r *Response) Int(name string) int64 {
	v, err := strconv.ParseInt(r.Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Bool parses a boolean response header.
func (r *Response) Bool(name string) bool {
	v, _ := strconv.ParseBool(r.Get(name))
	return v
}

// Decode unmarshals the JSON body into v. A "no content" response leaves v
// untouched.
func (r *Response) Decode(v interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return ErrProtocol.Wrap(err)
	}
	return nil
}
