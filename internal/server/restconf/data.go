package restconf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strconv"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/jetconf-go/internal/datastore"
	"github.com/yndnr/jetconf-go/internal/server/h2server"
	"github.com/yndnr/jetconf-go/internal/telemetry/logger"
)

// getData reads a resource. The depth query parameter limits how many
// levels of the document are returned.
func (h *Handler) getData(s *h2server.Session, r *h2server.Request) error {
	p, err := resourcePath(h.dataRoot, r.Path)
	if err != nil {
		return h.fail(s, r, err)
	}
	logger.L(r.Context()).Info("api_get", "user", s.User(), "resource", p)

	if err := h.acl.CheckRead(s.User(), p); err != nil {
		return h.fail(s, r, err)
	}

	depth, err := parseDepth(r.Query().Get("depth"))
	if err != nil {
		return h.fail(s, r, err)
	}

	entry, err := h.store.Get(r.Context(), p)
	if err != nil {
		return h.fail(s, r, err)
	}

	doc, err := h.acl.FilterRead(s.User(), p, entry.Value)
	if err != nil {
		return h.fail(s, r, err)
	}

	doc, err = datastore.LimitDepth(doc, depth)
	if err != nil {
		return h.fail(s, r, err)
	}

	var body bytes.Buffer
	if err := json.Indent(&body, doc, "", "    "); err != nil {
		return h.fail(s, r, err)
	}

	etag := fmt.Sprintf(`"%016x"`, murmur3.Sum64(body.Bytes()))
	extra := h2server.Header{}
	extra.Add("etag", etag)
	if !entry.Modified.IsZero() {
		extra.Add("last-modified", entry.Modified.UTC().Format(http.TimeFormat))
	}

	if match := r.Header.Get("if-none-match"); match != "" && match == etag {
		return s.SendResponse(r.StreamID, &h2server.Response{
			Status: http.StatusNotModified,
			Header: extra,
		})
	}

	return s.SendResponse(r.StreamID, &h2server.Response{
		Status:      http.StatusOK,
		ContentType: ContentTypeYANGJSON,
		Header:      extra,
		Body:        body.Bytes(),
	})
}

// createData creates a child of the target resource. The body is an
// object with a single member naming the child.
func (h *Handler) createData(s *h2server.Session, r *h2server.Request) error {
	parent, err := resourcePath(h.dataRoot, r.Path)
	if err != nil {
		return h.fail(s, r, err)
	}
	logger.L(r.Context()).Info("api_post", "user", s.User(), "resource", parent)

	name, value, err := singleMember(r.Body)
	if err != nil {
		return h.fail(s, r, err)
	}
	p, err := datastore.CleanPath(path.Join(parent, name))
	if err != nil {
		return h.fail(s, r, err)
	}

	if err := h.acl.CheckRead(s.User(), p); err != nil {
		return h.fail(s, r, err)
	}
	if err := h.acl.CheckWrite(s.User(), p); err != nil {
		return h.fail(s, r, err)
	}

	if err := h.store.Create(r.Context(), p, value); err != nil {
		return h.fail(s, r, err)
	}

	extra := h2server.Header{}
	extra.Add("location", path.Join(h.dataRoot, p))
	return s.SendResponse(r.StreamID, &h2server.Response{
		Status:      http.StatusCreated,
		ContentType: "text/plain",
		Header:      extra,
		Body:        statusBody(http.StatusCreated),
	})
}

// replaceData creates or replaces the target resource with the body.
func (h *Handler) replaceData(s *h2server.Session, r *h2server.Request) error {
	p, err := resourcePath(h.dataRoot, r.Path)
	if err != nil {
		return h.fail(s, r, err)
	}
	logger.L(r.Context()).Info("api_put", "user", s.User(), "resource", p)

	if err := h.acl.CheckRead(s.User(), p); err != nil {
		return h.fail(s, r, err)
	}
	if err := h.acl.CheckWrite(s.User(), p); err != nil {
		return h.fail(s, r, err)
	}

	body := r.Body
	if len(body) == 0 {
		body = []byte("{}")
	}
	if _, err := h.store.Replace(r.Context(), p, body); err != nil {
		return h.fail(s, r, err)
	}
	return s.SendEmpty(r.StreamID, http.StatusNoContent, false)
}

// deleteData removes the target resource and everything below it.
func (h *Handler) deleteData(s *h2server.Session, r *h2server.Request) error {
	p, err := resourcePath(h.dataRoot, r.Path)
	if err != nil {
		return h.fail(s, r, err)
	}
	logger.L(r.Context()).Info("api_delete", "user", s.User(), "resource", p)

	if err := h.acl.CheckRead(s.User(), p); err != nil {
		return h.fail(s, r, err)
	}
	if err := h.acl.CheckWrite(s.User(), p); err != nil {
		return h.fail(s, r, err)
	}

	if err := h.store.Delete(r.Context(), p); err != nil {
		return h.fail(s, r, err)
	}
	return s.SendEmpty(r.StreamID, http.StatusNoContent, false)
}

// parseDepth parses the depth query parameter. "" and "unbounded" mean
// no limit.
func parseDepth(v string) (int, error) {
	if v == "" || v == "unbounded" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 65535 {
		return 0, fmt.Errorf("%w: depth %q", ErrBadRequest, v)
	}
	return n, nil
}

// singleMember splits a {"name": value} body.
func singleMember(body []byte) (string, json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("%w: body must have exactly one member", ErrBadRequest)
	}
	for k, v := range obj {
		if k == "" {
			break
		}
		return k, v, nil
	}
	return "", nil, fmt.Errorf("%w: empty member name", ErrBadRequest)
}

func statusBody(code int) []byte {
	return []byte(strconv.Itoa(code) + " " + http.StatusText(code) + "\n")
}
