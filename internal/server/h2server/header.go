package h2server

import (
	"strings"

	"golang.org/x/net/http2/hpack"
)

// Header is an ordered list of header fields, pseudo-headers included.
type Header []hpack.HeaderField

// Get returns the first value for name, or "".
func (h Header) Get(name string) string {
	for _, f := range h {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name in order.
func (h Header) Values(name string) []string {
	var out []string
	for _, f := range h {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

// Add appends a field. HTTP/2 field names are lower case.
func (h *Header) Add(name, value string) {
	*h = append(*h, hpack.HeaderField{Name: strings.ToLower(name), Value: value})
}

// Method returns the :method pseudo-header.
func (h Header) Method() string { return h.Get(":method") }

// Path returns the :path pseudo-header, query string included.
func (h Header) Path() string { return h.Get(":path") }

// Clone returns a copy that shares no storage with h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	copy(out, h)
	return out
}

// splitPath separates a request target into path and raw query.
// Routing only ever sees the path part.
func splitPath(target string) (path, query string) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}
