package cloudfiles

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultContentType = "application/octet-stream"

// ListObjects fetches one page of objects.
func (s *Session) ListObjects(ctx context.Context, container string, opts ListOptions) (*ObjectSet, error) {
	if !ValidContainerName(container) {
		return nil, ErrRequest.New("invalid container name %q", container)
	}

	set := &ObjectSet{Container: container, Requests: 1}

	if _, _, err := s.objectPage(ctx, opts, set); err != nil {
		return nil, err
	}

	return set, nil
}

// ListAllObjects follows markers until the whole container is listed.
// opts.Limit is the page size, opts.Marker the starting point.
func (s *Session) ListAllObjects(ctx context.Context, container string, opts ListOptions) (*ObjectSet, error) {
	if !ValidContainerName(container) {
		return nil, ErrRequest.New("invalid container name %q", container)
	}

	set := &ObjectSet{Container: container}

	requests, err := paginate(ctx, opts.Limit, opts.Marker, func(ctx context.Context, limit int, marker string) (int, string, error) {
		page := opts
		page.Limit = limit
		page.Marker = marker
		return s.objectPage(ctx, page, set)
	})
	set.Requests = requests
	if err != nil {
		return nil, err
	}

	return set, nil
}

func (s *Session) objectPage(ctx context.Context, opts ListOptions, set *ObjectSet) (int, string, error) {
	var page []*Object

	req := NewRequest(opListObjects, s).
		SetContainer(set.Container).
		SetParser(func(r *Response) error { return r.Decode(&page) })
	opts.apply(req)

	if err := s.run(ctx, req); err != nil {
		return 0, "", err
	}

	set.Objects = append(set.Objects, page...)

	if last := set.Last(); last != nil {
		return len(page), last.Name, nil
	}
	return len(page), "", nil
}

// RetrieveObject downloads an object into memory.
func (s *Session) RetrieveObject(ctx context.Context, container, name string) (*Object, error) {
	if err := checkNames(container, name); err != nil {
		return nil, err
	}

	var obj *Object

	req := NewRequest(opRetrieveObject, s).
		SetContainer(container).
		SetObject(name).
		SetParser(func(r *Response) error {
			obj = objectFromHeaders(name, r)
			obj.Data = r.Body
			obj.Bytes = int64(len(r.Body))
			return nil
		})

	if err := s.run(ctx, req); err != nil {
		return nil, err
	}

	return obj, nil
}

// CreateObject uploads obj.Data. The stored ETag must match the local md5
// checksum. A missing content type is detected from the data.
func (s *Session) CreateObject(ctx context.Context, container string, obj *Object) error {
	if obj == nil {
		return ErrRequest.New("nil object")
	}
	if err := checkNames(container, obj.Name); err != nil {
		return err
	}
	if obj.stream != nil {
		return ErrRequest.New("object %q is streamed, use StreamUpload", obj.Name)
	}

	sum := md5.Sum(obj.Data)
	hash := hex.EncodeToString(sum[:])

	if obj.ContentType == "" {
		obj.ContentType = http.DetectContentType(obj.Data)
	}

	req := NewRequest(opCreateObject, s).
		SetContainer(container).
		SetObject(obj.Name).
		SetHeader(HeaderContentLength, strconv.Itoa(len(obj.Data))).
		SetHeader(HeaderETag, hash).
		SetHeader(HeaderContentType, obj.ContentType).
		SetBody(obj.Data).
		SetParser(func(r *Response) error {
			return verifyETag(obj.Name, hash, r.Get(HeaderETag))
		})
	if err := req.SetMetadata(MetaObject, obj.Metadata); err != nil {
		return err
	}

	if err := s.run(ctx, req); err != nil {
		return err
	}

	obj.Hash = hash
	obj.Bytes = int64(len(obj.Data))

	return nil
}

// DeleteObject removes an object.
func (s *Session) DeleteObject(ctx context.Context, container, name string) error {
	if err := checkNames(container, name); err != nil {
		return err
	}

	return s.run(ctx, NewRequest(opDeleteObject, s).
		SetContainer(container).
		SetObject(name).
		SetParser(noResult))
}

// ObjectMetadata fetches object attributes and custom metadata.
func (s *Session) ObjectMetadata(ctx context.Context, container, name string) (*Object, error) {
	if err := checkNames(container, name); err != nil {
		return nil, err
	}

	var obj *Object

	req := NewRequest(opObjectMetadata, s).
		SetContainer(container).
		SetObject(name).
		SetParser(func(r *Response) error {
			obj = objectFromHeaders(name, r)
			return nil
		})

	if err := s.run(ctx, req); err != nil {
		return nil, err
	}

	return obj, nil
}

// SetObjectMetadata replaces the custom metadata of an object.
func (s *Session) SetObjectMetadata(ctx context.Context, container, name string, meta map[string]string) error {
	if err := checkNames(container, name); err != nil {
		return err
	}

	req := NewRequest(opSetObjectMetadata, s).
		SetContainer(container).
		SetObject(name).
		SetParser(noResult)
	if err := req.SetMetadata(MetaObject, meta); err != nil {
		return err
	}

	return s.run(ctx, req)
}

// SetObjectContentType changes the stored content type. The backend replaces
// custom metadata on POST, so meta should carry the metadata to keep.
func (s *Session) SetObjectContentType(ctx context.Context, container, name, contentType string, meta map[string]string) error {
	if err := checkNames(container, name); err != nil {
		return err
	}
	if contentType == "" {
		return ErrRequest.New("empty content type")
	}

	req := NewRequest(opSetObjectContentType, s).
		SetContainer(container).
		SetObject(name).
		SetHeader(HeaderContentType, contentType).
		SetParser(noResult)
	if err := req.SetMetadata(MetaObject, meta); err != nil {
		return err
	}

	return s.run(ctx, req)
}

// CopyObject copies an object server side.
func (s *Session) CopyObject(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error {
	if err := checkNames(srcContainer, srcName); err != nil {
		return err
	}
	if err := checkNames(dstContainer, dstName); err != nil {
		return err
	}

	req := NewRequest(opCopyObject, s).
		SetContainer(srcContainer).
		SetObject(srcName).
		SetHeader(HeaderDestination, strings.TrimPrefix(ObjectPath(dstContainer, dstName), "/")).
		SetParser(noResult)

	return s.run(ctx, req)
}

func checkNames(container, object string) error {
	switch {
	case !ValidContainerName(container):
		return ErrRequest.New("invalid container name %q", container)
	case !ValidObjectName(object):
		return ErrRequest.New("invalid object name %q", object)
	}
	return nil
}

func objectFromHeaders(name string, r *Response) *Object {
	obj := &Object{
		Name:        name,
		Hash:        strings.Trim(r.Get(HeaderETag), `"`),
		Bytes:       r.Int(HeaderContentLength),
		ContentType: r.Get(HeaderContentType),
		Metadata:    FilterMetadata(MetaObject, r.Header),
	}

	if lm := r.Get(HeaderLastModified); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			obj.LastModified = t.UTC()
		}
	}

	return obj
}

func verifyETag(name, local, remote string) error {
	remote = strings.Trim(remote, `"`)
	if !strings.EqualFold(local, remote) {
		return ErrHashMismatch.New("object %q: local md5 %s, stored etag %s", name, local, remote)
	}
	return nil
}

// lastModified formats t the way listings do.
func lastModified(t time.Time) string { return t.UTC().Format(lastModifiedLayout) }
