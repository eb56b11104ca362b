package cloudfiles

import (
	"strings"
)

// MetaKind selects the header prefix used for custom metadata.
type MetaKind int

// Metadata kinds.
const (
	MetaAccount MetaKind = iota
	MetaContainer
	MetaObject
	MetaCDN
)

var metaPrefixes = [...]string{
	MetaAccount:   "X-Account-Meta-",
	MetaContainer: "X-Container-Meta-",
	MetaObject:    "X-Object-Meta-",
	MetaCDN:       "X-Cdn-Meta-",
}

// Prefix returns the wire header prefix of the kind.
func (k MetaKind) Prefix() string {
	if k < 0 || int(k) >= len(metaPrefixes) {
		return ""
	}
	return metaPrefixes[k]
}

func (k MetaKind) String() string {
	switch k {
	case MetaAccount:
		return "account"
	case MetaContainer:
		return "container"
	case MetaObject:
		return "object"
	case MetaCDN:
		return "cdn"
	default:
		return "unknown"
	}
}

// EncodeMetadata maps a custom metadata pair to its wire header.
func EncodeMetadata(kind MetaKind, key, value string) (string, string, error) {
	prefix := kind.Prefix()
	if prefix == "" {
		return "", "", ErrRequest.New("unknown metadata kind %d", kind)
	}

	if !validToken(key) {
		return "", "", ErrRequest.New("invalid %s metadata key %q", kind, key)
	}

	if strings.ContainsAny(value, "\r\n") {
		return "", "", ErrRequest.New("invalid %s metadata value for %q", kind, key)
	}

	return prefix + key, value, nil
}

// DecodeMetadata is the inverse of EncodeMetadata. The prefix is matched
// case-insensitively, the key is returned verbatim.
func DecodeMetadata(kind MetaKind, header, value string) (string, string, bool) {
	prefix := kind.Prefix()
	if prefix == "" || len(header) <= len(prefix) {
		return "", "", false
	}

	if !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}

	return header[len(prefix):], value, true
}

// FilterMetadata returns the custom metadata of the kind found in headers.
func FilterMetadata(kind MetaKind, headers map[string]string) map[string]string {
	result := make(map[string]string)

	for h, v := range headers {
		// checks that key and val not empty
		if len(h) == 0 || len(v) == 0 {
			continue
		}

		if key, val, ok := DecodeMetadata(kind, h, v); ok {
			result[key] = val
		}
	}

	return result
}

// filterAllMetadata demultiplexes every known prefix at once.
func filterAllMetadata(headers map[string]string) map[string]string {
	result := make(map[string]string)

	for kind := range metaPrefixes {
		for k, v := range FilterMetadata(MetaKind(kind), headers) {
			result[k] = v
		}
	}

	return result
}

// validToken checks RFC 7230 token characters.
func validToken(s string) bool {
	if s == "" {
		return false
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}

	return true
}
