package proxy

import (
	"bytes"
	"crypto/subtle"

	"github.com/valyala/fasthttp"
)

// Authorizer decides whether an inbound request may be forwarded.
type Authorizer func(method string, header *fasthttp.RequestHeader, path string) bool

type fromHeader = func(h *fasthttp.RequestHeader) []byte

const bearerKey = "Bearer"

// AllowAll lets every request through.
func AllowAll(string, *fasthttp.RequestHeader, string) bool { return true }

// ReadOnly allows only GET and HEAD requests.
func ReadOnly(method string, _ *fasthttp.RequestHeader, _ string) bool {
	return method == fasthttp.MethodGet || method == fasthttp.MethodHead
}

// KeyFromHeader extracts a key from the Authorization request header.
func KeyFromHeader(h *fasthttp.RequestHeader) []byte {
	auth := h.Peek(fasthttp.HeaderAuthorization)
	if auth == nil || !bytes.HasPrefix(auth, []byte(bearerKey)) {
		return nil
	}
	if auth = bytes.TrimPrefix(auth, []byte(bearerKey+" ")); len(auth) == 0 {
		return nil
	}
	return auth
}

// KeyFromCookie extracts a key from the Bearer cookie.
func KeyFromCookie(h *fasthttp.RequestHeader) []byte {
	auth := h.Cookie(bearerKey)
	if len(auth) == 0 {
		return nil
	}

	return auth
}

// KeyAuthorizer allows requests that present one of keys, either as an
// `Authorization: Bearer <key>` header or as a Bearer cookie. With no keys
// every request is refused.
func KeyAuthorizer(keys ...string) Authorizer {
	known := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			known = append(known, []byte(k))
		}
	}

	return func(_ string, h *fasthttp.RequestHeader, _ string) bool {
		for _, extract := range []fromHeader{KeyFromHeader, KeyFromCookie} {
			key := extract(h)
			if key == nil {
				continue
			}

			for _, k := range known {
				if subtle.ConstantTimeCompare(key, k) == 1 {
					return true
				}
			}
		}

		return false
	}
}

// Chain allows a request only when every authorizer does.
func Chain(list ...Authorizer) Authorizer {
	return func(method string, h *fasthttp.RequestHeader, path string) bool {
		for _, allow := range list {
			if allow != nil && !allow(method, h, path) {
				return false
			}
		}
		return true
	}
}

// stripCredentials removes the proxy credentials before forwarding.
func stripCredentials(h *fasthttp.RequestHeader) {
	if KeyFromHeader(h) != nil {
		h.Del(fasthttp.HeaderAuthorization)
	}
	h.DelCookie(bearerKey)
}
