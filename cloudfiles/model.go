package cloudfiles

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Name limits enforced by the storage backend.
const (
	MaxContainerNameLength = 256
	MaxObjectNameLength    = 1024
)

const lastModifiedLayout = "2006-01-02T15:04:05.999999"

// Account describes the authenticated storage account.
type Account struct {
	Username       string
	ContainerCount int64
	ObjectCount    int64
	BytesUsed      int64
	Metadata       map[string]string
}

func (a *Account) String() string {
	return fmt.Sprintf("account %s: %d containers, %d objects, %s",
		a.Username, a.ContainerCount, a.ObjectCount, humanize.IBytes(uint64(a.BytesUsed)))
}

// Container is a storage container, optionally CDN enabled.
type Container struct {
	Name           string
	ObjectCount    int64
	BytesUsed      int64
	CDNEnabled     bool
	LoggingEnabled bool
	// TTL is the CDN cache lifetime.
	TTL             time.Duration
	CDNURI          string
	CDNSSLURI       string
	CDNStreamingURI string
	CDNIosURI       string
	Metadata        map[string]string
}

// Valid reports whether the container name is acceptable to the backend.
func (c *Container) Valid() bool { return c != nil && ValidContainerName(c.Name) }

// Path is the escaped request path of the container.
func (c *Container) Path() string { return ContainerPath(c.Name) }

func (c *Container) String() string {
	return fmt.Sprintf("container %s: %d objects, %s",
		c.Name, c.ObjectCount, humanize.IBytes(uint64(c.BytesUsed)))
}

// UnmarshalJSON decodes both storage and CDN listing entries.
func (c *Container) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name            string `json:"name"`
		Count           int64  `json:"count"`
		Bytes           int64  `json:"bytes"`
		CDNEnabled      bool   `json:"cdn_enabled"`
		LogRetention    bool   `json:"log_retention"`
		TTL             int64  `json:"ttl"`
		CDNURI          string `json:"cdn_uri"`
		CDNSSLURI       string `json:"cdn_ssl_uri"`
		CDNStreamingURI string `json:"cdn_streaming_uri"`
		CDNIosURI       string `json:"cdn_ios_uri"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Container{
		Name:            raw.Name,
		ObjectCount:     raw.Count,
		BytesUsed:       raw.Bytes,
		CDNEnabled:      raw.CDNEnabled,
		LoggingEnabled:  raw.LogRetention,
		TTL:             time.Duration(raw.TTL) * time.Second,
		CDNURI:          raw.CDNURI,
		CDNSSLURI:       raw.CDNSSLURI,
		CDNStreamingURI: raw.CDNStreamingURI,
		CDNIosURI:       raw.CDNIosURI,
	}

	return nil
}

// Object is a stored object. Data holds the content of small objects,
// large ones are sent from a stream.
type Object struct {
	Name         string
	Hash         string
	Bytes        int64
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
	Data         []byte

	// Subdir is set for pseudo-directory entries of delimited listings.
	Subdir bool

	stream io.Reader
}

// NewObject creates an object holding data.
func NewObject(name string, data []byte) *Object {
	return &Object{Name: name, Data: data, Bytes: int64(len(data))}
}

// SetStream binds a stream of length bytes as object content.
func (o *Object) SetStream(r io.Reader, length int64) {
	o.stream = r
	o.Bytes = length
	o.Data = nil
}

// Reader returns the object content.
func (o *Object) Reader() io.Reader {
	if o.stream != nil {
		return o.stream
	}
	return bytes.NewReader(o.Data)
}

// Valid reports whether the object name is acceptable to the backend.
func (o *Object) Valid() bool { return o != nil && ValidObjectName(o.Name) }

// Path is the escaped request path of the object inside container.
func (o *Object) Path(container string) string { return ObjectPath(container, o.Name) }

// UnmarshalJSON decodes object listing entries.
func (o *Object) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name         string `json:"name"`
		Subdir       string `json:"subdir"`
		Hash         string `json:"hash"`
		Bytes        int64  `json:"bytes"`
		ContentType  string `json:"content_type"`
		LastModified string `json:"last_modified"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Name == "" && raw.Subdir != "" {
		*o = Object{Name: raw.Subdir, Subdir: true}
		return nil
	}

	*o = Object{
		Name:        raw.Name,
		Hash:        raw.Hash,
		Bytes:       raw.Bytes,
		ContentType: raw.ContentType,
	}

	if raw.LastModified != "" {
		t, err := time.Parse(lastModifiedLayout, raw.LastModified)
		if err != nil {
			return fmt.Errorf("could not parse last_modified of %q: %w", raw.Name, err)
		}
		o.LastModified = t
	}

	return nil
}

// ContainerSet is an ordered container listing.
type ContainerSet struct {
	Containers []*Container
	// Requests is the number of round trips needed to assemble the set.
	Requests int
}

// Last returns the last container or nil.
func (s *ContainerSet) Last() *Container {
	if len(s.Containers) == 0 {
		return nil
	}
	return s.Containers[len(s.Containers)-1]
}

// ObjectSet is an ordered object listing of one container.
type ObjectSet struct {
	Container string
	Objects   []*Object
	// Requests is the number of round trips needed to assemble the set.
	Requests int
}

// Last returns the last object or nil.
func (s *ObjectSet) Last() *Object {
	if len(s.Objects) == 0 {
		return nil
	}
	return s.Objects[len(s.Objects)-1]
}

// ValidContainerName checks the backend container naming rules.
func ValidContainerName(name string) bool {
	return name != "" && len(name) <= MaxContainerNameLength && !strings.Contains(name, "/")
}

// ValidObjectName checks the backend object naming rules.
func ValidObjectName(name string) bool {
	return name != "" && len(name) <= MaxObjectNameLength
}

// ContainerPath returns the escaped request path of a container.
func ContainerPath(container string) string {
	return "/" + url.PathEscape(container)
}

// ObjectPath returns the escaped request path of an object. Slashes inside
// the object name are kept as path separators.
func ObjectPath(container, object string) string {
	return ContainerPath(container) + "/" + escapeSegments(object)
}

func escapeSegments(name string) string {
	segments := strings.Split(name, "/")
	for i := range segments {
		segments[i] = url.PathEscape(segments[i])
	}
	return strings.Join(segments, "/")
}

// SplitPath is the inverse of ObjectPath and ContainerPath.
func SplitPath(path string) (container, object string, err error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "", "", nil
	}

	parts := strings.SplitN(path, "/", 2)
	if container, err = url.PathUnescape(parts[0]); err != nil {
		return "", "", ErrRequest.Wrap(err)
	}

	if len(parts) == 2 {
		if object, err = url.PathUnescape(parts[1]); err != nil {
			return "", "", ErrRequest.Wrap(err)
		}
	}

	return container, object, nil
}
