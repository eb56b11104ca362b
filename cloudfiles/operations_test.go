package cloudfiles

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

func TestAccountOperations(t *testing.T) {
	ctx := context.Background()
	f := newFakeSwift(t)
	f.put("a", "1.txt", []byte("12345"))
	f.put("b", "2.txt", []byte("678"))
	s := f.session()

	require.NoError(t, s.SetAccountMetadata(ctx, map[string]string{"Owner": "ops"}))

	account, err := s.AccountMetadata(ctx)
	require.NoError(t, err)
	require.Equal(t, &Account{
		Username:       testUser,
		ContainerCount: 2,
		ObjectCount:    2,
		BytesUsed:      8,
		Metadata:       map[string]string{"Owner": "ops"},
	}, account)

	require.True(t, ErrRequest.Has(s.SetTempURLKey(ctx, "")))
	require.NoError(t, s.SetTempURLKey(ctx, "k3y"))
	require.Equal(t, "k3y", f.last().header[HeaderTempURLKey])

	require.True(t, ErrRequest.Has(s.SetAccountMetadata(ctx, map[string]string{"bad key": "v"})))
}

func TestTempURL(t *testing.T) {
	s := &Session{storageURL: "https://storage101.dfw1.clouddrive.com/v1/MossoCloudFS_acc"}
	expires := time.Unix(1700000000, 0)

	raw, err := s.TempURL("get", "photos", "my cat.jpg", "secret", expires)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/v1/MossoCloudFS_acc/photos/my%20cat.jpg", u.EscapedPath())
	require.Equal(t, "1700000000", u.Query().Get("temp_url_expires"))

	mac := hmac.New(sha1.New, []byte("secret"))
	mac.Write([]byte("GET\n1700000000\n/v1/MossoCloudFS_acc/photos/my cat.jpg"))
	require.Equal(t, hex.EncodeToString(mac.Sum(nil)), u.Query().Get("temp_url_sig"))

	_, err = s.TempURL("GET", "photos", "cat.jpg", "", expires)
	require.True(t, ErrRequest.Has(err))
}

func TestTempURLServiceNet(t *testing.T) {
	s, err := NewSession(SessionParams{
		Token:      "token",
		StorageURL: "https://storage101.dfw1.clouddrive.com/v1/MossoCloudFS_acc",
		ServiceNet: true,
	})
	require.NoError(t, err)
	require.Equal(t, "snet-storage101.dfw1.clouddrive.com", mustHost(t, s.StorageURL()))
	require.Equal(t, "storage101.dfw1.clouddrive.com", mustHost(t, s.PublicStorageURL()))

	raw, err := s.TempURL("GET", "photos", "cat.jpg", "secret", time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.Equal(t, "storage101.dfw1.clouddrive.com", mustHost(t, raw))
}

func mustHost(t *testing.T, raw string) string {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Host
}

func TestContainerOperations(t *testing.T) {
	ctx := context.Background()
	f := newFakeSwift(t)
	s := f.session()

	_, err := s.CreateContainer(ctx, "a/b", nil)
	require.True(t, ErrRequest.Has(err))
	require.Zero(t, f.calls())

	c, err := s.CreateContainer(ctx, "photos", map[string]string{"Album": "2012"})
	require.NoError(t, err)
	require.Equal(t, "photos", c.Name)
	require.Equal(t, "2012", f.last().header["X-Container-Meta-Album"])

	require.NoError(t, s.SetContainerMetadata(ctx, "photos", map[string]string{"Owner": "me"}))
	require.NoError(t, s.SetContainerLogging(ctx, "photos", true))
	require.Equal(t, "true", f.last().header[HeaderAccessLog])
	require.NoError(t, s.SetWebIndex(ctx, "photos", "index.html"))
	require.Equal(t, "index.html", f.last().header[HeaderWebIndex])
	require.NoError(t, s.SetWebError(ctx, "photos", "error.html"))
	require.Equal(t, "error.html", f.last().header[HeaderWebError])

	f.put("photos", "cat.jpg", []byte("meow"))

	meta, err := s.ContainerMetadata(ctx, "photos")
	require.NoError(t, err)
	require.EqualValues(t, 1, meta.ObjectCount)
	require.EqualValues(t, 4, meta.BytesUsed)
	require.Equal(t, "2012", meta.Metadata["Album"])
	require.Equal(t, "me", meta.Metadata["Owner"])
	require.True(t, meta.LoggingEnabled)

	err = s.DeleteContainer(ctx, "photos")
	require.Equal(t, fasthttp.StatusConflict, StatusCode(err))

	require.NoError(t, s.DeleteObject(ctx, "photos", "cat.jpg"))
	require.NoError(t, s.DeleteContainer(ctx, "photos"))

	_, err = s.ContainerMetadata(ctx, "photos")
	require.True(t, IsNotFound(err))
}

func TestObjectOperations(t *testing.T) {
	ctx := context.Background()
	f := newFakeSwift(t)
	f.put("docs", "", nil)
	f.put("backup", "", nil)
	s := f.session()

	obj := NewObject("notes/today.txt", []byte("hello, world"))
	obj.Metadata = map[string]string{"Author": "me"}
	require.NoError(t, s.CreateObject(ctx, "docs", obj))
	require.Equal(t, md5hex([]byte("hello, world")), obj.Hash)
	require.Equal(t, "text/plain; charset=utf-8", obj.ContentType)

	put := f.last()
	require.Equal(t, "/v1/MossoCloudFS_acc/docs/notes/today.txt", put.path)
	require.Equal(t, obj.Hash, put.header[HeaderETag])
	require.Equal(t, "12", put.header[HeaderContentLength])

	got, err := s.RetrieveObject(ctx, "docs", "notes/today.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("hello, world"), got.Data)
	require.Equal(t, obj.Hash, got.Hash)
	require.Equal(t, "me", got.Metadata["Author"])
	require.False(t, got.LastModified.IsZero())

	require.NoError(t, s.SetObjectMetadata(ctx, "docs", "notes/today.txt", map[string]string{"Reviewed": "yes"}))
	require.NoError(t, s.SetObjectContentType(ctx, "docs", "notes/today.txt", "text/markdown",
		map[string]string{"Reviewed": "yes"}))

	head, err := s.ObjectMetadata(ctx, "docs", "notes/today.txt")
	require.NoError(t, err)
	require.EqualValues(t, 12, head.Bytes)
	require.Equal(t, "text/markdown", head.ContentType)
	require.Equal(t, map[string]string{"Reviewed": "yes"}, head.Metadata)

	require.NoError(t, s.CopyObject(ctx, "docs", "notes/today.txt", "backup", "today copy.txt"))
	require.Equal(t, "backup/today%20copy.txt", f.last().header[HeaderDestination])

	copied, err := s.RetrieveObject(ctx, "backup", "today copy.txt")
	require.NoError(t, err)
	require.Equal(t, got.Data, copied.Data)

	require.NoError(t, s.DeleteObject(ctx, "docs", "notes/today.txt"))
	_, err = s.RetrieveObject(ctx, "docs", "notes/today.txt")
	require.True(t, IsNotFound(err))

	calls := f.calls()
	require.True(t, ErrRequest.Has(s.CreateObject(ctx, "docs", NewObject("empty", nil))))
	require.True(t, ErrRequest.Has(s.DeleteObject(ctx, "", "x")))
	require.Equal(t, calls, f.calls())
}

func TestCreateObjectHashMismatch(t *testing.T) {
	f := newFakeSwift(t)
	f.override = func(ctx *fasthttp.RequestCtx) {
		ctx.Response.Header.Set(HeaderETag, "0123456789abcdef0123456789abcdef")
		ctx.SetStatusCode(fasthttp.StatusCreated)
	}

	err := f.session().CreateObject(context.Background(), "docs", NewObject("a", []byte("data")))
	require.True(t, ErrHashMismatch.Has(err))
}

func TestCDNOperations(t *testing.T) {
	ctx := context.Background()
	f := newFakeSwift(t)
	f.put("site", "index.html", []byte("<html></html>"))
	f.put("private", "", nil)
	s := f.session()

	_, err := s.EnableCDN(ctx, "site", time.Minute)
	require.True(t, ErrRequest.Has(err))
	_, err = s.EnableCDN(ctx, "site", MaxCDNTTL+time.Second)
	require.True(t, ErrRequest.Has(err))
	require.Zero(t, f.calls())

	c, err := s.EnableCDN(ctx, "site", 24*time.Hour)
	require.NoError(t, err)
	require.True(t, c.CDNEnabled)
	require.Equal(t, "http://c0.cdn.local/site", c.CDNURI)
	require.Equal(t, "https://c0.ssl.cdn.local/site", c.CDNSSLURI)

	enable := f.last()
	require.Equal(t, "cdn.local", enable.host)
	require.Equal(t, "86400", enable.header[HeaderTTL])
	require.Equal(t, "True", enable.header[HeaderCDNEnabled])

	require.NoError(t, s.SetCDNLogging(ctx, "site", true))
	require.NoError(t, s.SetCDNMetadata(ctx, "site", map[string]string{"Team": "web"}))
	require.Equal(t, "web", f.last().header["X-Cdn-Meta-Team"])

	meta, err := s.CDNMetadata(ctx, "site")
	require.NoError(t, err)
	require.True(t, meta.CDNEnabled)
	require.True(t, meta.LoggingEnabled)
	require.Equal(t, 24*time.Hour, meta.TTL)

	all, err := s.ListAllCDNContainers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all.Containers, 1)
	require.Equal(t, "site", all.Containers[0].Name)

	page, err := s.ListCDNContainers(ctx, ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Containers, 1)

	require.NoError(t, s.PurgeCDNObject(ctx, "site", "index.html", "a@example.com", "b@example.com"))
	purge := f.last()
	require.Equal(t, fasthttp.MethodDelete, purge.method)
	require.Equal(t, "a@example.com, b@example.com", purge.header[HeaderPurgeEmail])

	require.NoError(t, s.DisableCDN(ctx, "site"))
	meta, err = s.CDNMetadata(ctx, "site")
	require.NoError(t, err)
	require.False(t, meta.CDNEnabled)
}

func TestPurgeLimit(t *testing.T) {
	f := newFakeSwift(t)
	f.put("site", "a", []byte("a"))

	s, err := NewSession(SessionParams{
		Token:        testToken,
		StorageURL:   testStorageURL,
		CDNURL:       testCDNURL,
		Transport:    f.transport(),
		PurgeLimiter: rate.NewLimiter(rate.Every(time.Hour), 1),
	})
	require.NoError(t, err)

	require.NoError(t, s.PurgeCDNObject(context.Background(), "site", "a"))
	require.True(t, ErrPurgeLimit.Has(s.PurgeCDNObject(context.Background(), "site", "a")))
	require.Equal(t, 1, f.calls())
}

func TestStreaming(t *testing.T) {
	ctx := context.Background()
	f := newFakeSwift(t)
	f.put("media", "", nil)
	s := f.session()

	payload := bytes.Repeat([]byte("0123456789"), 1000)

	obj := &Object{Name: "big.bin", Hash: md5hex(payload)}
	obj.SetStream(bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, s.StreamUpload(ctx, "media", obj))
	require.Equal(t, "text/plain; charset=utf-8", obj.ContentType)
	require.Equal(t, "10000", f.last().header[HeaderContentLength])

	var buf bytes.Buffer
	got, err := s.StreamDownload(ctx, "media", "big.bin", &buf)
	require.NoError(t, err)
	require.Equal(t, payload, buf.Bytes())
	require.EqualValues(t, len(payload), got.Bytes)
	require.Equal(t, md5hex(payload), got.Hash)

	unhashed := &Object{Name: "small", ContentType: "application/x-custom"}
	unhashed.SetStream(strings.NewReader("abc"), 3)
	require.NoError(t, s.StreamUpload(ctx, "media", unhashed))
	require.Equal(t, md5hex([]byte("abc")), unhashed.Hash)

	require.True(t, ErrRequest.Has(s.StreamUpload(ctx, "media", NewObject("no-stream", []byte("x")))))
}
