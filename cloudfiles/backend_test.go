package cloudfiles

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap/zaptest"
)

const (
	testToken      = "AUTH_tk0123456789"
	testUser       = "tester"
	testKey        = "secret"
	testStorageURL = "http://storage.local/v1/MossoCloudFS_acc"
	testCDNURL     = "http://cdn.local/v1/MossoCloudFS_acc"
	testAccount    = "/v1/MossoCloudFS_acc"
)

type (
	recorded struct {
		method string
		host   string
		path   string
		query  map[string]string
		header map[string]string
	}

	fakeObject struct {
		data        []byte
		contentType string
		meta        map[string]string
		modified    time.Time
	}

	fakeContainer struct {
		meta    map[string]string
		objects map[string]*fakeObject
		cdn     bool
		ttl     int
		logging bool
	}

	// fakeSwift is a minimal in-memory storage and CDN backend.
	fakeSwift struct {
		t   *testing.T
		ln  *fasthttputil.InmemoryListener
		srv *fasthttp.Server

		mu          sync.Mutex
		requests    []recorded
		accountMeta map[string]string
		containers  map[string]*fakeContainer
		// override answers every request when set
		override fasthttp.RequestHandler
	}
)

func newFakeSwift(t *testing.T) *fakeSwift {
	f := &fakeSwift{
		t:           t,
		ln:          fasthttputil.NewInmemoryListener(),
		accountMeta: make(map[string]string),
		containers:  make(map[string]*fakeContainer),
	}

	f.srv = &fasthttp.Server{Handler: f.handle}

	go func() { _ = f.srv.Serve(f.ln) }()
	t.Cleanup(func() { _ = f.ln.Close() })

	return f
}

func (f *fakeSwift) client() *fasthttp.Client {
	return &fasthttp.Client{
		DisablePathNormalizing: true,
		Dial: func(string) (net.Conn, error) {
			return f.ln.Dial()
		},
	}
}

func (f *fakeSwift) transport() *Transport {
	return NewTransport(
		WithHTTPClient(f.client()),
		WithTransportLogger(zaptest.NewLogger(f.t)))
}

func (f *fakeSwift) session() *Session {
	s, err := NewSession(SessionParams{
		Username:   testUser,
		Token:      testToken,
		StorageURL: testStorageURL,
		CDNURL:     testCDNURL,
		Transport:  f.transport(),
		Logger:     zaptest.NewLogger(f.t),
	})
	require.NoError(f.t, err)
	return s
}

func (f *fakeSwift) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeSwift) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.requests)
	return f.requests[len(f.requests)-1]
}

func (f *fakeSwift) put(container, name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.containers[container]
	if !ok {
		c = &fakeContainer{meta: map[string]string{}, objects: map[string]*fakeObject{}}
		f.containers[container] = c
	}
	if name != "" {
		c.objects[name] = &fakeObject{
			data:        data,
			contentType: "text/plain",
			meta:        map[string]string{},
			modified:    time.Date(2012, 3, 4, 5, 6, 7, 0, time.UTC),
		}
	}
}

func (f *fakeSwift) handle(ctx *fasthttp.RequestCtx) {
	rec := recorded{
		method: string(ctx.Method()),
		host:   string(ctx.Host()),
		path:   string(ctx.Request.URI().PathOriginal()),
		query:  map[string]string{},
		header: map[string]string{},
	}
	ctx.QueryArgs().VisitAll(func(k, v []byte) { rec.query[string(k)] = string(v) })
	ctx.Request.Header.VisitAll(func(k, v []byte) { rec.header[string(k)] = string(v) })

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	override := f.override
	f.mu.Unlock()

	ctx.Response.Header.Set(HeaderTransID, "tx"+strconv.Itoa(f.calls()))

	if override != nil {
		override(ctx)
		return
	}

	if string(ctx.Request.Header.Peek(HeaderAuthToken)) != testToken {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		return
	}

	path := strings.TrimPrefix(rec.path, testAccount)
	container, object, err := SplitPath(path)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case rec.host == "cdn.local":
		f.handleCDN(ctx, container)
	case container == "":
		f.handleAccount(ctx)
	case object == "":
		f.handleContainer(ctx, container)
	default:
		f.handleObject(ctx, container, object)
	}
}

func (f *fakeSwift) handleAccount(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Method()) {
	case fasthttp.MethodHead:
		var objects, bytes int
		for _, c := range f.containers {
			for _, o := range c.objects {
				objects++
				bytes += len(o.data)
			}
		}
		ctx.Response.Header.Set(HeaderAccountContainerCount, strconv.Itoa(len(f.containers)))
		ctx.Response.Header.Set(HeaderAccountObjectCount, strconv.Itoa(objects))
		ctx.Response.Header.Set(HeaderAccountBytesUsed, strconv.Itoa(bytes))
		writeMeta(ctx, MetaAccount, f.accountMeta)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	case fasthttp.MethodPost:
		readMeta(ctx, MetaAccount, f.accountMeta)
		if v := ctx.Request.Header.Peek(HeaderTempURLKey); len(v) > 0 {
			f.accountMeta["Temp-Url-Key"] = string(v)
		}
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	case fasthttp.MethodGet:
		names := make([]string, 0, len(f.containers))
		for name := range f.containers {
			names = append(names, name)
		}
		page := listPage(ctx, names)
		entries := make([]map[string]interface{}, 0, len(page))
		for _, name := range page {
			c := f.containers[name]
			var bytes int
			for _, o := range c.objects {
				bytes += len(o.data)
			}
			entries = append(entries, map[string]interface{}{"name": name, "count": len(c.objects), "bytes": bytes})
		}
		writeJSON(ctx, entries)
	default:
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
	}
}

func (f *fakeSwift) handleContainer(ctx *fasthttp.RequestCtx, name string) {
	c, ok := f.containers[name]

	switch method := string(ctx.Method()); {
	case method == fasthttp.MethodPut:
		if !ok {
			c = &fakeContainer{meta: map[string]string{}, objects: map[string]*fakeObject{}}
			f.containers[name] = c
		}
		readMeta(ctx, MetaContainer, c.meta)
		ctx.SetStatusCode(fasthttp.StatusCreated)
	case !ok:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	case method == fasthttp.MethodDelete:
		if len(c.objects) > 0 {
			ctx.SetStatusCode(fasthttp.StatusConflict)
			return
		}
		delete(f.containers, name)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	case method == fasthttp.MethodHead:
		var bytes int
		for _, o := range c.objects {
			bytes += len(o.data)
		}
		ctx.Response.Header.Set(HeaderContainerObjectCount, strconv.Itoa(len(c.objects)))
		ctx.Response.Header.Set(HeaderContainerBytesUsed, strconv.Itoa(bytes))
		writeMeta(ctx, MetaContainer, c.meta)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	case method == fasthttp.MethodPost:
		readMeta(ctx, MetaContainer, c.meta)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	case method == fasthttp.MethodGet:
		prefix := string(ctx.QueryArgs().Peek("prefix"))
		names := make([]string, 0, len(c.objects))
		for n := range c.objects {
			if strings.HasPrefix(n, prefix) {
				names = append(names, n)
			}
		}
		page := listPage(ctx, names)
		entries := make([]map[string]interface{}, 0, len(page))
		for _, n := range page {
			o := c.objects[n]
			entries = append(entries, map[string]interface{}{
				"name":          n,
				"hash":          md5hex(o.data),
				"bytes":         len(o.data),
				"content_type":  o.contentType,
				"last_modified": lastModified(o.modified),
			})
		}
		writeJSON(ctx, entries)
	default:
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
	}
}

func (f *fakeSwift) handleObject(ctx *fasthttp.RequestCtx, container, name string) {
	c, ok := f.containers[container]
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	o, found := c.objects[name]

	switch method := string(ctx.Method()); {
	case method == fasthttp.MethodPut:
		data := append([]byte(nil), ctx.PostBody()...)
		if etag := string(ctx.Request.Header.Peek(HeaderETag)); etag != "" && etag != md5hex(data) {
			ctx.SetStatusCode(statusUnprocessable)
			return
		}
		o = &fakeObject{
			data:        data,
			contentType: string(ctx.Request.Header.ContentType()),
			meta:        map[string]string{},
			modified:    time.Now().UTC(),
		}
		readMeta(ctx, MetaObject, o.meta)
		c.objects[name] = o
		ctx.Response.Header.Set(HeaderETag, md5hex(data))
		ctx.SetStatusCode(fasthttp.StatusCreated)
	case !found:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	case method == fasthttp.MethodGet || method == fasthttp.MethodHead:
		ctx.Response.Header.Set(HeaderETag, md5hex(o.data))
		ctx.Response.Header.Set(HeaderLastModified, o.modified.Format(http.TimeFormat))
		ctx.SetContentType(o.contentType)
		writeMeta(ctx, MetaObject, o.meta)
		ctx.SetBody(o.data)
	case method == fasthttp.MethodDelete:
		delete(c.objects, name)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	case method == fasthttp.MethodPost:
		o.meta = map[string]string{}
		readMeta(ctx, MetaObject, o.meta)
		if ct := ctx.Request.Header.ContentType(); len(ct) > 0 {
			o.contentType = string(ct)
		}
		ctx.SetStatusCode(fasthttp.StatusAccepted)
	case method == MethodCopy:
		dst, dstName, err := SplitPath("/" + string(ctx.Request.Header.Peek(HeaderDestination)))
		if err != nil || f.containers[dst] == nil {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		cp := *o
		f.containers[dst].objects[dstName] = &cp
		ctx.SetStatusCode(fasthttp.StatusCreated)
	default:
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
	}
}

func (f *fakeSwift) handleCDN(ctx *fasthttp.RequestCtx, name string) {
	if name == "" {
		names := make([]string, 0)
		for n, c := range f.containers {
			if c.cdn {
				names = append(names, n)
			}
		}
		page := listPage(ctx, names)
		entries := make([]map[string]interface{}, 0, len(page))
		for _, n := range page {
			c := f.containers[n]
			entries = append(entries, map[string]interface{}{
				"name":          n,
				"cdn_enabled":   c.cdn,
				"ttl":           c.ttl,
				"log_retention": c.logging,
				"cdn_uri":       "http://c0.cdn.local/" + n,
			})
		}
		writeJSON(ctx, entries)
		return
	}

	c, ok := f.containers[name]
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}

	switch string(ctx.Method()) {
	case fasthttp.MethodPut:
		c.cdn = true
		c.ttl, _ = strconv.Atoi(string(ctx.Request.Header.Peek(HeaderTTL)))
		ctx.Response.Header.Set(HeaderCDNURI, "http://c0.cdn.local/"+name)
		ctx.Response.Header.Set(HeaderCDNSSLURI, "https://c0.ssl.cdn.local/"+name)
		ctx.SetStatusCode(fasthttp.StatusCreated)
	case fasthttp.MethodPost:
		if v := ctx.Request.Header.Peek(HeaderCDNEnabled); len(v) > 0 {
			c.cdn, _ = strconv.ParseBool(string(v))
		}
		if v := ctx.Request.Header.Peek(HeaderLogRetention); len(v) > 0 {
			c.logging, _ = strconv.ParseBool(string(v))
		}
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	case fasthttp.MethodHead:
		ctx.Response.Header.Set(HeaderCDNEnabled, titleBool(c.cdn))
		ctx.Response.Header.Set(HeaderTTL, strconv.Itoa(c.ttl))
		ctx.Response.Header.Set(HeaderLogRetention, titleBool(c.logging))
		ctx.Response.Header.Set(HeaderCDNURI, "http://c0.cdn.local/"+name)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	case fasthttp.MethodDelete:
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	default:
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
	}
}

// statusUnprocessable is what the backend answers on checksum errors.
const statusUnprocessable = 422

func listPage(ctx *fasthttp.RequestCtx, names []string) []string {
	sort.Strings(names)

	marker := string(ctx.QueryArgs().Peek("marker"))
	limit := ContainerLimit
	if l, err := strconv.Atoi(string(ctx.QueryArgs().Peek("limit"))); err == nil && l > 0 {
		limit = l
	}

	page := make([]string, 0, limit)
	for _, n := range names {
		if n <= marker {
			continue
		}
		if len(page) == limit {
			break
		}
		page = append(page, n)
	}

	return page
}

func writeJSON(ctx *fasthttp.RequestCtx, entries []map[string]interface{}) {
	if len(entries) == 0 {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}

	data, _ := json.Marshal(entries)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(data)
}

func readMeta(ctx *fasthttp.RequestCtx, kind MetaKind, into map[string]string) {
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		if key, val, ok := DecodeMetadata(kind, string(k), string(v)); ok {
			into[key] = val
		}
	})
}

func writeMeta(ctx *fasthttp.RequestCtx, kind MetaKind, meta map[string]string) {
	for k, v := range meta {
		ctx.Response.Header.Set(kind.Prefix()+k, v)
	}
}

func md5hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
