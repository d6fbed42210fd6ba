package restconf

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/yndnr/jetconf-go/internal/server/h2server"
	"github.com/yndnr/jetconf-go/internal/telemetry/logger"
)

// invokeOp runs the operation named by the path, "module:name". Its
// input is the "module:input" member of the request body.
func (h *Handler) invokeOp(s *h2server.Session, r *h2server.Request) error {
	log := logger.L(r.Context())
	rest := strings.TrimPrefix(r.Path, h.opsRoot)
	name := strings.TrimPrefix(rest, "/")
	log.Info("invoke_op", "user", s.User(), "operation", name)

	module, op, ok := strings.Cut(name, ":")
	if !ok || !strings.HasPrefix(rest, "/") || module == "" || op == "" || strings.Contains(name, "/") {
		return h.fail(s, r, fmt.Errorf("%w: operation name %q is not fully qualified", ErrBadRequest, name))
	}

	body := map[string]json.RawMessage{}
	if len(r.Body) > 0 {
		if err := json.Unmarshal(r.Body, &body); err != nil {
			return h.fail(s, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		}
	}

	if err := h.acl.CheckInvoke(s.User()); err != nil {
		return h.fail(s, r, err)
	}

	fn, ok := h.ops.Lookup(name)
	if !ok {
		return h.fail(s, r, fmt.Errorf("%w: %s", ErrNoHandler, name))
	}

	out, err := fn(r.Context(), &OpRequest{
		Name:  name,
		Input: body[module+":input"],
		User:  s.User(),
	})
	if err != nil {
		return h.fail(s, r, err)
	}
	if out == nil {
		return s.SendEmpty(r.StreamID, http.StatusNoContent, false)
	}

	resp, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return h.fail(s, r, err)
	}
	return s.SendResponse(r.StreamID, &h2server.Response{
		Status:      http.StatusOK,
		ContentType: ContentTypeYANGJSON,
		Body:        resp,
	})
}
