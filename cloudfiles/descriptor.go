package cloudfiles

import (
	"github.com/valyala/fasthttp"
)

// Category selects the base URL a request is sent to.
type Category int

// Request categories.
const (
	CategoryAuth Category = iota + 1
	CategoryStorage
	CategoryCDN
)

func (c Category) String() string {
	switch c {
	case CategoryAuth:
		return "auth"
	case CategoryStorage:
		return "storage"
	case CategoryCDN:
		return "cdn"
	default:
		return "unknown"
	}
}

// BodyFormat is the expected shape of a response body.
type BodyFormat int

// Body formats.
const (
	BodyNone BodyFormat = iota
	BodyBinary
	BodyJSON
)

func (f BodyFormat) String() string {
	switch f {
	case BodyNone:
		return "none"
	case BodyBinary:
		return "binary"
	case BodyJSON:
		return "json"
	default:
		return "unknown"
	}
}

// MethodCopy is the server side copy method.
const MethodCopy = "COPY"

var knownMethods = map[string]struct{}{
	fasthttp.MethodGet:     {},
	fasthttp.MethodPut:     {},
	fasthttp.MethodPost:    {},
	fasthttp.MethodDelete:  {},
	fasthttp.MethodHead:    {},
	fasthttp.MethodOptions: {},
	MethodCopy:             {},
}

// Operation is the static contract of one API call. Values are defined once
// and never mutated.
type Operation struct {
	Name     string
	Method   string
	Category Category

	// Query holds static query parameters, e.g. format=json.
	Query map[string]string

	RequiredHeaders []string
	RequiredBody    bool

	ExpectedHeaders []string
	ExpectedBody    BodyFormat
	ExpectedStatus  StatusSet
}

// Validate checks that the operation is internally consistent.
func (o *Operation) Validate() error {
	switch {
	case o == nil:
		return ErrConfiguration.New("empty operation")
	case o.Name == "":
		return ErrConfiguration.New("operation without name")
	}

	if _, ok := knownMethods[o.Method]; !ok {
		return ErrConfiguration.New("%s: unknown method %q", o.Name, o.Method)
	}

	switch o.Category {
	case CategoryAuth, CategoryStorage, CategoryCDN:
	default:
		return ErrConfiguration.New("%s: unknown request category %d", o.Name, o.Category)
	}

	switch o.ExpectedBody {
	case BodyNone, BodyBinary, BodyJSON:
	default:
		return ErrConfiguration.New("%s: unknown body format %d", o.Name, o.ExpectedBody)
	}

	if !o.ExpectedStatus.known() {
		return ErrConfiguration.New("%s: invalid expected status %s", o.Name, o.ExpectedStatus)
	}

	if o.RequiredBody && (o.Method == fasthttp.MethodGet || o.Method == fasthttp.MethodHead) {
		return ErrConfiguration.New("%s: %s request cannot carry a body", o.Name, o.Method)
	}

	return nil
}
