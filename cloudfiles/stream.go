package cloudfiles

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

const sniffLen = 512

// detector records the content type of the first chunk written through it.
type detector struct {
	io.Writer
	sync.Once
	contentType string
}

func newDetector(w io.Writer) *detector {
	return &detector{Writer: w}
}

func (d *detector) Write(data []byte) (int, error) {
	d.Once.Do(func() {
		d.contentType = http.DetectContentType(data)
	})
	return d.Writer.Write(data)
}

// StreamUpload uploads an object bound with SetStream without buffering it.
// When obj.Hash is set the backend verifies it and the stored ETag is
// compared with it.
func (s *Session) StreamUpload(ctx context.Context, container string, obj *Object) error {
	if obj == nil || obj.stream == nil {
		return ErrRequest.New("object without stream")
	}
	if err := checkNames(container, obj.Name); err != nil {
		return err
	}
	if obj.Bytes <= 0 {
		return ErrRequest.New("object %q: stream length required", obj.Name)
	}

	body := obj.stream
	if obj.ContentType == "" {
		br := bufio.NewReaderSize(obj.stream, sniffLen)
		head, err := br.Peek(sniffLen)
		switch {
		case len(head) > 0:
			obj.ContentType = http.DetectContentType(head)
		case err != nil && err != io.EOF:
			return ErrRequest.Wrap(err)
		default:
			obj.ContentType = defaultContentType
		}
		body = br
	}

	req := NewRequest(opStreamUpload, s).
		SetContainer(container).
		SetObject(obj.Name).
		SetHeader(HeaderContentType, obj.ContentType).
		SetStream(body, obj.Bytes).
		SetParser(func(r *Response) error {
			etag := r.Get(HeaderETag)
			if obj.Hash != "" {
				return verifyETag(obj.Name, obj.Hash, etag)
			}
			obj.Hash = etag
			return nil
		})

	if obj.Hash != "" {
		req.SetHeader(HeaderETag, obj.Hash)
	}
	if err := req.SetMetadata(MetaObject, obj.Metadata); err != nil {
		return err
	}

	s.log.Debug("stream upload",
		zap.String("container", container),
		zap.String("object", obj.Name),
		zap.Int64("size", obj.Bytes))

	return s.run(ctx, req)
}

// StreamDownload writes the object content to w and returns its attributes.
// A content type missing from the response is detected from the data.
func (s *Session) StreamDownload(ctx context.Context, container, name string, w io.Writer) (*Object, error) {
	if err := checkNames(container, name); err != nil {
		return nil, err
	}

	var obj *Object

	req := NewRequest(opStreamDownload, s).
		SetContainer(container).
		SetObject(name).
		SetParser(func(r *Response) error {
			obj = objectFromHeaders(name, r)

			writer := newDetector(w)
			n, err := writer.Write(r.Body)
			if err != nil {
				return err
			}

			obj.Bytes = int64(n)
			if obj.ContentType == "" {
				obj.ContentType = writer.contentType
			}
			if declared := r.Get(HeaderContentLength); declared != "" && declared != strconv.Itoa(n) {
				return ErrProtocol.New("object %q: got %d bytes, declared %s", name, n, declared)
			}
			return nil
		})

	if err := s.run(ctx, req); err != nil {
		return nil, err
	}

	return obj, nil
}
