package restconf

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/yndnr/jetconf-go/internal/datastore"
	"github.com/yndnr/jetconf-go/internal/server/h2server"
	"github.com/yndnr/jetconf-go/internal/server/route"
	"github.com/yndnr/jetconf-go/internal/telemetry/logger"
)

// ContentTypeYANGJSON is the media type of RESTCONF JSON documents.
const ContentTypeYANGJSON = "application/yang.api+json"

// apiRootDoc is the top-level API resource.
var apiRootDoc = []byte(`{
    "ietf-restconf:restconf": {
        "data": [ null ],
        "operations": [ null ]
    }
}`)

// Config configures the RESTCONF handlers.
type Config struct {
	// APIRoot is the URL prefix of the API, e.g. "/restconf".
	APIRoot string
	// DocRoot is the directory static files are served from.
	DocRoot string
	// DocDefaultName is served for requests naming a directory.
	DocDefaultName string
}

// Handler serves RESTCONF requests from a datastore.
type Handler struct {
	cfg      Config
	store    datastore.Store
	ops      *OpRegistry
	acl      *ACL
	dataRoot string
	opsRoot  string
}

// New creates a Handler. A nil ops uses NewOpRegistry; a nil acl allows
// everything.
func New(cfg Config, store datastore.Store, ops *OpRegistry, acl *ACL) *Handler {
	if cfg.APIRoot == "" {
		cfg.APIRoot = "/restconf"
	}
	cfg.APIRoot = "/" + strings.Trim(cfg.APIRoot, "/")
	if cfg.DocDefaultName == "" {
		cfg.DocDefaultName = "index.html"
	}
	if ops == nil {
		ops = NewOpRegistry()
	}
	if acl == nil {
		acl = NewACL(false, nil)
	}
	return &Handler{
		cfg:      cfg,
		store:    store,
		ops:      ops,
		acl:      acl,
		dataRoot: path.Join(cfg.APIRoot, "data"),
		opsRoot:  path.Join(cfg.APIRoot, "operations"),
	}
}

// Register installs the RESTCONF routes, the static file handler and the
// 400 default into routes.
func (h *Handler) Register(routes *h2server.Routes) {
	routes.Register(route.MethodPath(http.MethodGet, h.cfg.APIRoot), h2server.HandlerFunc(h.getAPIRoot))
	routes.Register(route.MethodPrefix(http.MethodGet, h.dataRoot), h2server.HandlerFunc(h.getData))
	routes.Register(route.MethodPrefix(http.MethodPost, h.dataRoot), h2server.HandlerFunc(h.createData))
	routes.Register(route.MethodPrefix(http.MethodPut, h.dataRoot), h2server.HandlerFunc(h.replaceData))
	routes.Register(route.MethodPrefix(http.MethodDelete, h.dataRoot), h2server.HandlerFunc(h.deleteData))
	routes.Register(route.MethodPrefix(http.MethodPost, h.opsRoot), h2server.HandlerFunc(h.invokeOp))
	if h.cfg.DocRoot != "" {
		routes.Register(route.Method(http.MethodGet), h2server.HandlerFunc(h.serveFile))
	}
	routes.RegisterDefault(h2server.HandlerFunc(unknownRequest))
}

func unknownRequest(s *h2server.Session, r *h2server.Request) error {
	return s.SendEmpty(r.StreamID, http.StatusBadRequest, true)
}

func (h *Handler) getAPIRoot(s *h2server.Session, r *h2server.Request) error {
	return s.SendResponse(r.StreamID, &h2server.Response{
		Status:      http.StatusOK,
		ContentType: ContentTypeYANGJSON,
		Body:        apiRootDoc,
	})
}

// resourcePath returns the datastore path below prefix named by the
// request. The request path must be prefix itself or continue with "/".
func resourcePath(prefix, reqPath string) (string, error) {
	rest := strings.TrimPrefix(reqPath, prefix)
	if rest != "" && !strings.HasPrefix(rest, "/") {
		return "", datastore.ErrNotFound
	}
	rest, err := url.PathUnescape(rest)
	if err != nil {
		return "", ErrBadRequest
	}
	return datastore.CleanPath(rest)
}

// fail answers r with the status err maps to.
func (h *Handler) fail(s *h2server.Session, r *h2server.Request, err error) error {
	code := statusFor(err)
	log := logger.L(r.Context())
	if code >= http.StatusInternalServerError {
		log.Error("request failed", "user", s.User(), "error", err)
	} else {
		log.Warn("request rejected", "user", s.User(), "status", code, "error", err)
	}
	return s.SendEmpty(r.StreamID, code, true)
}
