package relay

import (
	"strconv"
	"strings"

	"github.com/zeebo/errs"
)

const (
	fieldSize = 32
	fields    = 5

	// HeaderSize is the size of a packed header.
	HeaderSize = fields * fieldSize
)

// Error is the class of relay errors.
var Error = errs.Class("relay")

// Header precedes the raw object bytes of every relayed upload.
type Header struct {
	Length      int64
	Name        string
	Container   string
	ContentType string
	Hash        string
}

// Pack encodes the header as five space padded 32 byte fields. Longer values
// are truncated.
func (h Header) Pack() []byte {
	buf := make([]byte, 0, HeaderSize)
	for _, v := range h.values() {
		if len(v) > fieldSize {
			v = v[:fieldSize]
		}
		buf = append(buf, v...)
		buf = append(buf, strings.Repeat(" ", fieldSize-len(v))...)
	}
	return buf
}

func (h Header) values() [fields]string {
	return [fields]string{
		strconv.FormatInt(h.Length, 10),
		h.Name,
		h.Container,
		h.ContentType,
		h.Hash,
	}
}

// Unpack decodes a packed header.
func Unpack(data []byte) (Header, error) {
	var h Header

	if len(data) != HeaderSize {
		return h, Error.New("header must be %d bytes, got %d", HeaderSize, len(data))
	}

	field := func(i int) string {
		return strings.TrimSpace(string(data[i*fieldSize : (i+1)*fieldSize]))
	}

	length, err := strconv.ParseInt(field(0), 10, 64)
	if err != nil {
		return h, Error.New("invalid length %q", field(0))
	}
	if length <= 0 {
		return h, Error.New("length must be positive, got %d", length)
	}

	h = Header{
		Length:      length,
		Name:        field(1),
		Container:   field(2),
		ContentType: field(3),
		Hash:        field(4),
	}

	if h.Name == "" || h.Container == "" {
		return h, Error.New("object and container names are required")
	}

	return h, nil
}
