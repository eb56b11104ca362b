package cloudfiles

import (
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
)

// StatusRateLimited is sent by the storage backend when too many requests
// arrive for one account.
const StatusRateLimited = 498

// StatusSet is the set of status codes an operation accepts.
type StatusSet []int

// Status groups.
var (
	StatusInformational = statusRange(100, 101)
	StatusSuccessful    = statusRange(200, 206)
	StatusRedirection   = Status(300, 301, 302, 303, 304, 305, 307)
	StatusClientError   = append(statusRange(400, 417), StatusRateLimited)
	StatusServerError   = statusRange(500, 505)

	knownStatus = concatStatus(StatusInformational, StatusSuccessful, StatusRedirection,
		StatusClientError, StatusServerError)
)

// Status builds a set with exactly the given codes.
func Status(codes ...int) StatusSet { return StatusSet(codes) }

func statusRange(from, to int) StatusSet {
	set := make(StatusSet, 0, to-from+1)
	for code := from; code <= to; code++ {
		set = append(set, code)
	}
	return set
}

func concatStatus(sets ...StatusSet) StatusSet {
	var out StatusSet
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}

// Contains checks membership.
func (s StatusSet) Contains(code int) bool {
	for _, c := range s {
		if c == code {
			return true
		}
	}
	return false
}

func (s StatusSet) known() bool {
	if len(s) == 0 {
		return false
	}
	for _, c := range s {
		if !knownStatus.Contains(c) {
			return false
		}
	}
	return true
}

func (s StatusSet) String() string {
	if len(s) == 1 {
		return strconv.Itoa(s[0])
	}
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = strconv.Itoa(c)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func statusNoContent(code int) bool { return code == fasthttp.StatusNoContent }
