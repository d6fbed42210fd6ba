package h2server

import (
	"context"
	"net/url"

	"github.com/yndnr/jetconf-go/internal/server/route"
)

// Request is a dispatched stream. Read methods carry a nil Body; write
// methods carry the complete body, possibly empty.
type Request struct {
	StreamID uint32
	// ID is a ULID assigned at dispatch and echoed as x-request-id.
	ID       string
	Method   string
	Path     string
	RawQuery string
	Header   Header
	Body     []byte

	ctx context.Context
}

// Context returns the request context. It carries the per-request logger
// and request id (see the logger package) and is cancelled when the
// connection ends.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Query parses RawQuery. Malformed pairs are skipped.
func (r *Request) Query() url.Values {
	v, _ := url.ParseQuery(r.RawQuery)
	return v
}

// Handler answers one request. It must end the stream through the
// session's send methods. A returned error on a stream that has not been
// answered yet is turned into a 500 response.
type Handler interface {
	ServeStream(s *Session, r *Request) error
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(s *Session, r *Request) error

// ServeStream calls f(s, r).
func (f HandlerFunc) ServeStream(s *Session, r *Request) error {
	return f(s, r)
}

// Routes is the route table type sessions resolve handlers from.
type Routes = route.Table[Handler]

// NewRoutes returns an empty route table.
func NewRoutes() *Routes {
	return route.New[Handler]()
}
