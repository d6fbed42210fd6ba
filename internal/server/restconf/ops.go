package restconf

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/yndnr/jetconf-go/internal/infra/buildinfo"
)

// OpRequest is one operation invocation.
type OpRequest struct {
	// Name is the fully qualified name, "module:operation".
	Name string
	// Input is the value of the "module:input" member of the request
	// body, nil when absent.
	Input json.RawMessage
	// User is the authenticated client.
	User string
}

// OpFunc implements an operation. A nil output yields 204 No Content;
// anything else is marshalled as the JSON response body.
type OpFunc func(ctx context.Context, req *OpRequest) (any, error)

type opEntry struct {
	name string
	fn   OpFunc
}

// OpRegistry maps operation names to implementations. Lookup returns the
// first registered exact match, else the default.
type OpRegistry struct {
	mu      sync.RWMutex
	entries []opEntry
	def     OpFunc
}

// NewOpRegistry returns a registry holding the built-in operations.
func NewOpRegistry() *OpRegistry {
	r := &OpRegistry{}
	r.Register("jetconf:ping", Ping)
	r.Register("jetconf:get-version", GetVersion)
	return r
}

// Register appends an operation.
func (r *OpRegistry) Register(name string, fn OpFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, opEntry{name: name, fn: fn})
}

// RegisterDefault sets the operation used when no name matches.
func (r *OpRegistry) RegisterDefault(fn OpFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.def = fn
}

// Lookup returns the implementation of name.
func (r *OpRegistry) Lookup(name string) (OpFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.name == name {
			return e.fn, true
		}
	}
	return r.def, r.def != nil
}

// Names returns the registered operation names in registration order.
func (r *OpRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Ping answers with "pong" and the server time. An optional
// {"message": "..."} input is echoed back.
func Ping(ctx context.Context, req *OpRequest) (any, error) {
	var in struct {
		Message string `json:"message"`
	}
	if len(req.Input) > 0 {
		if err := json.Unmarshal(req.Input, &in); err != nil {
			return nil, ErrBadRequest
		}
	}
	out := map[string]any{
		"reply": "pong",
		"time":  time.Now().UTC().Format(time.RFC3339),
	}
	if in.Message != "" {
		out["message"] = in.Message
	}
	return map[string]any{"jetconf:output": out}, nil
}

// GetVersion returns the server build information.
func GetVersion(ctx context.Context, req *OpRequest) (any, error) {
	return map[string]any{"jetconf:output": buildinfo.Get()}, nil
}
