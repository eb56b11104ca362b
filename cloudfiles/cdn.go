package cloudfiles

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// CDN cache lifetime bounds.
const (
	MinCDNTTL = 900 * time.Second
	MaxCDNTTL = 1576800000 * time.Second
)

// ListCDNContainers fetches one page of CDN enabled containers.
func (s *Session) ListCDNContainers(ctx context.Context, opts ListOptions) (*ContainerSet, error) {
	set := &ContainerSet{Requests: 1}

	if _, _, err := s.cdnPage(ctx, opts, set); err != nil {
		return nil, err
	}

	return set, nil
}

// ListAllCDNContainers follows markers over every CDN container.
func (s *Session) ListAllCDNContainers(ctx context.Context, limit int) (*ContainerSet, error) {
	set := new(ContainerSet)

	requests, err := paginate(ctx, limit, "", func(ctx context.Context, limit int, marker string) (int, string, error) {
		return s.cdnPage(ctx, ListOptions{Limit: limit, Marker: marker}, set)
	})
	set.Requests = requests
	if err != nil {
		return nil, err
	}

	return set, nil
}

func (s *Session) cdnPage(ctx context.Context, opts ListOptions, set *ContainerSet) (int, string, error) {
	var page []*Container

	req := NewRequest(opListCDNContainers, s).
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

// EnableCDN publishes a container with the given cache lifetime.
func (s *Session) EnableCDN(ctx context.Context, name string, ttl time.Duration) (*Container, error) {
	if !ValidContainerName(name) {
		return nil, ErrRequest.New("invalid container name %q", name)
	}
	if ttl < MinCDNTTL || ttl > MaxCDNTTL {
		return nil, ErrRequest.New("cdn ttl %s out of range [%s, %s]", ttl, MinCDNTTL, MaxCDNTTL)
	}

	var container *Container

	req := NewRequest(opEnableCDN, s).
		SetContainer(name).
		SetHeader(HeaderCDNEnabled, titleBool(true)).
		SetHeader(HeaderTTL, strconv.FormatInt(int64(ttl/time.Second), 10)).
		SetParser(func(r *Response) error {
			container = cdnContainer(name, r)
			container.CDNEnabled = true
			container.TTL = ttl
			return nil
		})

	if err := s.run(ctx, req); err != nil {
		return nil, err
	}

	return container, nil
}

// DisableCDN stops publishing a container.
func (s *Session) DisableCDN(ctx context.Context, name string) error {
	if !ValidContainerName(name) {
		return ErrRequest.New("invalid container name %q", name)
	}

	req := NewRequest(opDisableCDN, s).
		SetContainer(name).
		SetHeader(HeaderCDNEnabled, titleBool(false)).
		SetParser(noResult)

	return s.run(ctx, req)
}

// CDNMetadata fetches the CDN attributes of a container.
func (s *Session) CDNMetadata(ctx context.Context, name string) (*Container, error) {
	if !ValidContainerName(name) {
		return nil, ErrRequest.New("invalid container name %q", name)
	}

	var container *Container

	req := NewRequest(opCDNMetadata, s).
		SetContainer(name).
		SetParser(func(r *Response) error {
			container = cdnContainer(name, r)
			return nil
		})

	if err := s.run(ctx, req); err != nil {
		return nil, err
	}

	return container, nil
}

// SetCDNMetadata stores custom CDN metadata of a container.
func (s *Session) SetCDNMetadata(ctx context.Context, name string, meta map[string]string) error {
	if !ValidContainerName(name) {
		return ErrRequest.New("invalid container name %q", name)
	}

	req := NewRequest(opSetCDNMetadata, s).SetContainer(name).SetParser(noResult)
	if err := req.SetMetadata(MetaCDN, meta); err != nil {
		return err
	}

	return s.run(ctx, req)
}

// SetCDNLogging toggles CDN access log retention.
func (s *Session) SetCDNLogging(ctx context.Context, name string, enabled bool) error {
	if !ValidContainerName(name) {
		return ErrRequest.New("invalid container name %q", name)
	}

	req := NewRequest(opSetCDNLogging, s).
		SetContainer(name).
		SetHeader(HeaderLogRetention, titleBool(enabled)).
		SetParser(noResult)

	return s.run(ctx, req)
}

// PurgeCDNObject evicts an object from the CDN edge caches, optionally
// notifying emails. Purges share a budget of 25 per day per account.
func (s *Session) PurgeCDNObject(ctx context.Context, container, name string, emails ...string) error {
	if err := checkNames(container, name); err != nil {
		return err
	}

	if !s.purge.Allow() {
		return ErrPurgeLimit.New("purge budget of %d per day exhausted", purgeBurst)
	}

	req := NewRequest(opPurgeCDNObject, s).
		SetContainer(container).
		SetObject(name).
		SetParser(noResult)
	if len(emails) > 0 {
		req.SetHeader(HeaderPurgeEmail, strings.Join(emails, ", "))
	}

	return s.run(ctx, req)
}

func cdnContainer(name string, r *Response) *Container {
	return &Container{
		Name:            name,
		CDNEnabled:      r.Bool(HeaderCDNEnabled),
		LoggingEnabled:  r.Bool(HeaderLogRetention),
		TTL:             time.Duration(r.Int(HeaderTTL)) * time.Second,
		CDNURI:          r.Get(HeaderCDNURI),
		CDNSSLURI:       r.Get(HeaderCDNSSLURI),
		CDNStreamingURI: r.Get(HeaderCDNStreamingURI),
		CDNIosURI:       r.Get(HeaderCDNIosURI),
		Metadata:        FilterMetadata(MetaCDN, r.Header),
	}
}

func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
