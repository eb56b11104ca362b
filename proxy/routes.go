package proxy

import (
	"strings"

	"github.com/cloudfiles/cloudfiles-http-gw/cloudfiles"
	"github.com/valyala/fasthttp"
)

// CDNPrefix is the path prefix that routes requests to the CDN management
// endpoint instead of storage.
const CDNPrefix = "/.cdn"

const (
	depthAccount = iota
	depthContainer
	depthObject
)

type (
	methodSet map[string]struct{}

	// route is the resolved backend target of an inbound request.
	route struct {
		category  cloudfiles.Category
		kind      cloudfiles.MetaKind
		container string
		object    string
	}
)

func methods(list ...string) methodSet {
	m := make(methodSet, len(list))
	for _, name := range list {
		m[name] = struct{}{}
	}
	return m
}

func (m methodSet) has(method string) bool {
	_, ok := m[method]
	return ok
}

var (
	storageRoutes = [...]methodSet{
		depthAccount: methods(fasthttp.MethodGet, fasthttp.MethodHead),
		depthContainer: methods(fasthttp.MethodGet, fasthttp.MethodPut, fasthttp.MethodDelete,
			fasthttp.MethodHead, fasthttp.MethodPost),
		depthObject: methods(fasthttp.MethodGet, fasthttp.MethodPut, fasthttp.MethodDelete,
			fasthttp.MethodHead, fasthttp.MethodPost, cloudfiles.MethodCopy),
	}

	cdnRoutes = [...]methodSet{
		depthAccount:   methods(fasthttp.MethodGet, fasthttp.MethodHead),
		depthContainer: methods(fasthttp.MethodGet, fasthttp.MethodHead, fasthttp.MethodPut, fasthttp.MethodPost),
		depthObject:    methods(fasthttp.MethodDelete),
	}

	storageKinds = [...]cloudfiles.MetaKind{
		depthAccount:   cloudfiles.MetaAccount,
		depthContainer: cloudfiles.MetaContainer,
		depthObject:    cloudfiles.MetaObject,
	}

	// supported is every method any route accepts.
	supported = func() methodSet {
		all := make(methodSet)
		for _, table := range [][3]methodSet{storageRoutes, cdnRoutes} {
			for _, set := range table {
				for name := range set {
					all[name] = struct{}{}
				}
			}
		}
		return all
	}()
)

// depth returns how many path segments the route addresses.
func (r route) depth() int {
	switch {
	case r.object != "":
		return depthObject
	case r.container != "":
		return depthContainer
	default:
		return depthAccount
	}
}

// listing reports whether a GET on the route returns a listing.
func (r route) listing(method string) bool {
	return method == fasthttp.MethodGet && r.depth() < depthObject
}

// path returns the escaped backend path relative to the session base URL.
func (r route) path() string {
	switch r.depth() {
	case depthObject:
		return cloudfiles.ObjectPath(r.container, r.object)
	case depthContainer:
		return cloudfiles.ContainerPath(r.container)
	default:
		return ""
	}
}

// resolve maps a raw request path to a route. It returns errBadRequest for
// malformed paths and errMethodNotAllowed when the route rejects the method.
func resolve(method, rawPath string) (route, error) {
	var (
		r     route
		table = storageRoutes
	)

	r.category = cloudfiles.CategoryStorage
	if rawPath == CDNPrefix || strings.HasPrefix(rawPath, CDNPrefix+"/") {
		r.category = cloudfiles.CategoryCDN
		rawPath = strings.TrimPrefix(rawPath, CDNPrefix)
		table = cdnRoutes
	}

	container, object, err := cloudfiles.SplitPath(rawPath)
	switch {
	case err != nil:
		return r, errBadRequest
	case container == "" && object != "":
		return r, errBadRequest
	case container != "" && !cloudfiles.ValidContainerName(container):
		return r, errBadRequest
	case object != "" && !cloudfiles.ValidObjectName(object):
		return r, errBadRequest
	}

	r.container, r.object = container, object
	if !table[r.depth()].has(method) {
		return r, errMethodNotAllowed
	}

	r.kind = storageKinds[r.depth()]
	if r.category == cloudfiles.CategoryCDN {
		r.kind = cloudfiles.MetaCDN
	}

	return r, nil
}
