package cloudfiles

import (
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"
	"github.com/zeebo/errs"
)

var (
	// ErrConfiguration marks an internally inconsistent operation.
	ErrConfiguration = errs.Class("operation configuration")
	// ErrRequest marks missing or invalid caller supplied parameters.
	ErrRequest = errs.Class("request construction")
	// ErrAuthenticationFailed is returned when credentials are rejected.
	ErrAuthenticationFailed = errs.Class("authentication failed")
	// ErrSessionCreation is returned when the auth exchange fails for any
	// other reason.
	ErrSessionCreation = errs.Class("session creation")
	// ErrNotAuthenticated is returned for requests without a valid session.
	ErrNotAuthenticated = errs.Class("not authenticated")
	// ErrProtocol marks a response that violates the operation contract.
	ErrProtocol = errs.Class("protocol")
	// ErrTransport marks a request that got no response at all.
	ErrTransport = errs.Class("transport")
	// ErrHashMismatch is returned when the stored ETag differs from the
	// local checksum.
	ErrHashMismatch = errs.Class("hash mismatch")
	// ErrPurgeLimit is returned when the CDN purge budget is exhausted.
	ErrPurgeLimit = errs.Class("cdn purge limit")
	// ErrInvalidEndpoint is returned for unknown auth endpoints.
	ErrInvalidEndpoint = errs.Class("invalid endpoint")
)

// ResponseError is a failed run: either a transport failure (StatusCode is
// zero) or a protocol failure carrying the real status code.
type ResponseError struct {
	Op         string
	StatusCode int
	Response   *Response
	Err        error
}

func (e *ResponseError) Error() string {
	if e.Transport() {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Transport reports whether no valid response was received.
func (e *ResponseError) Transport() bool { return e.StatusCode == 0 }

// Protocol reports whether a response was received but rejected.
func (e *ResponseError) Protocol() bool { return e.StatusCode != 0 }

// StatusCode extracts the HTTP status of a failed run, zero otherwise.
func StatusCode(err error) int {
	var re *ResponseError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool { return StatusCode(err) == fasthttp.StatusNotFound }

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool { return StatusCode(err) == fasthttp.StatusUnauthorized }
