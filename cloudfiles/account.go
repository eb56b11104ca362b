package cloudfiles

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AccountMetadata fetches account totals and custom metadata.
func (s *Session) AccountMetadata(ctx context.Context) (*Account, error) {
	var account *Account

	req := NewRequest(opAccountMetadata, s).
		SetParser(func(r *Response) error {
			account = &Account{
				Username:       s.Username,
				ContainerCount: r.Int(HeaderAccountContainerCount),
				ObjectCount:    r.Int(HeaderAccountObjectCount),
				BytesUsed:      r.Int(HeaderAccountBytesUsed),
				Metadata:       FilterMetadata(MetaAccount, r.Header),
			}
			return nil
		})

	if err := s.run(ctx, req); err != nil {
		return nil, err
	}

	return account, nil
}

// SetAccountMetadata stores custom account metadata.
func (s *Session) SetAccountMetadata(ctx context.Context, meta map[string]string) error {
	req := NewRequest(opSetAccountMetadata, s).SetParser(noResult)
	if err := req.SetMetadata(MetaAccount, meta); err != nil {
		return err
	}

	return s.run(ctx, req)
}

// SetTempURLKey sets the secret used to sign temporary URLs.
func (s *Session) SetTempURLKey(ctx context.Context, key string) error {
	if key == "" {
		return ErrRequest.New("empty temp url key")
	}

	req := NewRequest(opSetTempURLKey, s).
		SetHeader(HeaderTempURLKey, key).
		SetParser(noResult)

	return s.run(ctx, req)
}

// TempURL returns a pre-signed URL granting method on the object until
// expires, signed with the account temp url key. The URL always points at
// the public storage host.
func (s *Session) TempURL(method, container, object, key string, expires time.Time) (string, error) {
	switch {
	case key == "":
		return "", ErrRequest.New("empty temp url key")
	case !ValidContainerName(container):
		return "", ErrRequest.New("invalid container name %q", container)
	case !ValidObjectName(object):
		return "", ErrRequest.New("invalid object name %q", object)
	}

	base, err := url.Parse(s.PublicStorageURL())
	if err != nil {
		return "", ErrRequest.Wrap(err)
	}

	path := strings.TrimRight(base.EscapedPath(), "/") + ObjectPath(container, object)
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return "", ErrRequest.Wrap(err)
	}

	exp := strconv.FormatInt(expires.Unix(), 10)

	mac := hmac.New(sha1.New, []byte(key))
	fmt.Fprintf(mac, "%s\n%s\n%s", strings.ToUpper(method), exp, unescaped)

	query := url.Values{}
	query.Set("temp_url_sig", hex.EncodeToString(mac.Sum(nil)))
	query.Set("temp_url_expires", exp)

	return base.Scheme + "://" + base.Host + path + "?" + query.Encode(), nil
}

func noResult(*Response) error { return nil }
