package cloudfiles

import (
	"context"
	"strconv"
)

// ListContainers fetches one page of containers.
func (s *Session) ListContainers(ctx context.Context, opts ListOptions) (*ContainerSet, error) {
	set := &ContainerSet{Requests: 1}

	if _, _, err := s.containerPage(ctx, opts, set); err != nil {
		return nil, err
	}

	return set, nil
}

// ListAllContainers follows markers until the whole account is listed.
// limit is the page size.
func (s *Session) ListAllContainers(ctx context.Context, limit int) (*ContainerSet, error) {
	set := new(ContainerSet)

	requests, err := paginate(ctx, limit, "", func(ctx context.Context, limit int, marker string) (int, string, error) {
		return s.containerPage(ctx, ListOptions{Limit: limit, Marker: marker}, set)
	})
	set.Requests = requests
	if err != nil {
		return nil, err
	}

	return set, nil
}

func (s *Session) containerPage(ctx context.Context, opts ListOptions, set *ContainerSet) (int, string, error) {
	var page []*Container

	req := NewRequest(opListContainers, s).
		SetParser(func(r *Response) error { return r.Decode(&page) })
	opts.apply(req)

	if err := s.run(ctx, req); err != nil {
		return 0, "", err
	}

	set.Containers = append(set.Containers, page...)

	if last := set.Last(); last != nil {
		return len(page), last.Name, nil
	}
	return len(page), "", nil
}

// CreateContainer creates a container with optional custom metadata.
func (s *Session) CreateContainer(ctx context.Context, name string, meta map[string]string) (*Container, error) {
	if !ValidContainerName(name) {
		return nil, ErrRequest.New("invalid container name %q", name)
	}

	req := NewRequest(opCreateContainer, s).
		SetContainer(name).
		SetParser(noResult)
	if err := req.SetMetadata(MetaContainer, meta); err != nil {
		return nil, err
	}

	if err := s.run(ctx, req); err != nil {
		return nil, err
	}

	return &Container{Name: name, Metadata: meta}, nil
}

// DeleteContainer removes an empty container.
func (s *Session) DeleteContainer(ctx context.Context, name string) error {
	if !ValidContainerName(name) {
		return ErrRequest.New("invalid container name %q", name)
	}

	return s.run(ctx, NewRequest(opDeleteContainer, s).SetContainer(name).SetParser(noResult))
}

// ContainerMetadata fetches container totals and custom metadata.
func (s *Session) ContainerMetadata(ctx context.Context, name string) (*Container, error) {
	if !ValidContainerName(name) {
		return nil, ErrRequest.New("invalid container name %q", name)
	}

	var container *Container

	req := NewRequest(opContainerMetadata, s).
		SetContainer(name).
		SetParser(func(r *Response) error {
			container = &Container{
				Name:           name,
				ObjectCount:    r.Int(HeaderContainerObjectCount),
				BytesUsed:      r.Int(HeaderContainerBytesUsed),
				LoggingEnabled: r.Bool(HeaderAccessLog),
				Metadata:       FilterMetadata(MetaContainer, r.Header),
			}
			return nil
		})

	if err := s.run(ctx, req); err != nil {
		return nil, err
	}

	return container, nil
}

// SetContainerMetadata stores custom container metadata.
func (s *Session) SetContainerMetadata(ctx context.Context, name string, meta map[string]string) error {
	if !ValidContainerName(name) {
		return ErrRequest.New("invalid container name %q", name)
	}

	req := NewRequest(opSetContainerMetadata, s).SetContainer(name).SetParser(noResult)
	if err := req.SetMetadata(MetaContainer, meta); err != nil {
		return err
	}

	return s.run(ctx, req)
}

// SetContainerLogging toggles access log delivery for a container.
func (s *Session) SetContainerLogging(ctx context.Context, name string, enabled bool) error {
	return s.setContainerHeader(ctx, opSetContainerLogging, name, HeaderAccessLog, strconv.FormatBool(enabled))
}

// SetWebIndex sets the object served for directory requests of a CDN
// enabled container.
func (s *Session) SetWebIndex(ctx context.Context, name, index string) error {
	return s.setContainerHeader(ctx, opSetWebIndex, name, HeaderWebIndex, index)
}

// SetWebError sets the suffix of error pages of a CDN enabled container.
func (s *Session) SetWebError(ctx context.Context, name, suffix string) error {
	return s.setContainerHeader(ctx, opSetWebError, name, HeaderWebError, suffix)
}

func (s *Session) setContainerHeader(ctx context.Context, op *Operation, name, header, value string) error {
	if !ValidContainerName(name) {
		return ErrRequest.New("invalid container name %q", name)
	}

	req := NewRequest(op, s).
		SetContainer(name).
		SetHeader(header, value).
		SetParser(noResult)

	return s.run(ctx, req)
}
