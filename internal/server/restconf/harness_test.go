package restconf

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/net/http2/hpack"

	"github.com/yndnr/jetconf-go/internal/datastore"
	"github.com/yndnr/jetconf-go/internal/server/h2server"
	"github.com/yndnr/jetconf-go/internal/telemetry/logger"
)

// scriptEngine replays a fixed list of events and records writes.
type scriptEngine struct {
	mu     sync.Mutex
	events []h2server.Event
	header h2server.Header
	body   []byte
	ended  bool
}

func (e *scriptEngine) Next() (h2server.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.events) == 0 {
		return nil, io.EOF
	}
	ev := e.events[0]
	e.events = e.events[1:]
	return ev, nil
}

func (e *scriptEngine) WriteHeaders(_ uint32, h h2server.Header, end bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.header = append(e.header, h.Clone()...)
	e.ended = e.ended || end
	return nil
}

func (e *scriptEngine) WriteData(_ uint32, data []byte, end bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.body = append(e.body, data...)
	e.ended = e.ended || end
	return nil
}

func (e *scriptEngine) Close() error { return nil }

type response struct {
	status int
	header h2server.Header
	body   []byte
}

func (r response) json(t *testing.T) any {
	t.Helper()
	var v any
	if err := json.Unmarshal(r.body, &v); err != nil {
		t.Fatalf("response body %q: %v", r.body, err)
	}
	return v
}

type harness struct {
	t       *testing.T
	store   *datastore.BadgerStore
	ops     *OpRegistry
	routes  *h2server.Routes
	docRoot string
	log     logger.Logger
}

func newHarness(t *testing.T, acl *ACL) *harness {
	t.Helper()

	store, err := datastore.OpenBadger(datastore.BadgerConfig{InMemory: true},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	docRoot := t.TempDir()
	writeFile(t, filepath.Join(docRoot, "index.html"), "<html>root</html>")
	writeFile(t, filepath.Join(docRoot, "css", "site.css"), "body{}")
	writeFile(t, filepath.Join(docRoot, "docs", "index.html"), "<html>docs</html>")

	l, err := logger.New(logger.Config{Level: "debug", Output: io.Discard})
	if err != nil {
		t.Fatal(err)
	}

	ops := NewOpRegistry()
	h := New(Config{APIRoot: "/restconf", DocRoot: docRoot}, store, ops, acl)
	routes := h2server.NewRoutes()
	h.Register(routes)

	return &harness{t: t, store: store, ops: ops, routes: routes, docRoot: docRoot, log: l}
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// do runs a single request from user through a session and returns the
// response written on its stream.
func (h *harness) do(user, method, target, body string, extra ...hpack.HeaderField) response {
	h.t.Helper()

	hdr := h2server.Header{
		{Name: ":method", Value: method},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "localhost"},
		{Name: ":path", Value: target},
	}
	hdr = append(hdr, extra...)

	eng := &scriptEngine{}
	if body == "" {
		eng.events = []h2server.Event{h2server.RequestEvent{StreamID: 1, Header: hdr, EndStream: true}}
	} else {
		eng.events = []h2server.Event{
			h2server.RequestEvent{StreamID: 1, Header: hdr},
			h2server.DataEvent{StreamID: 1, Data: []byte(body), EndStream: true},
		}
	}

	var peer *x509.Certificate
	if user != "" {
		peer = &x509.Certificate{Subject: pkix.Name{CommonName: user}}
	}

	s := h2server.NewSession(eng, h.routes, h2server.SessionConfig{ServerName: "jetconf-h2", Logger: h.log}, peer, nil)
	if err := s.Run(context.Background()); err != nil {
		h.t.Fatalf("Run() error = %v", err)
	}
	if !eng.ended {
		h.t.Fatalf("%s %s: stream not ended", method, target)
	}

	code, _ := strconv.Atoi(eng.header.Get(":status"))
	return response{status: code, header: eng.header, body: eng.body}
}

func (h *harness) expect(user, method, target, body string, want int) response {
	h.t.Helper()
	resp := h.do(user, method, target, body)
	if resp.status != want {
		h.t.Fatalf("%s %s = %d (%q), want %d", method, target, resp.status, resp.body, want)
	}
	return resp
}

func mustJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func assertJSON(t *testing.T, resp response, want string) {
	t.Helper()
	if got := resp.json(t); !reflect.DeepEqual(got, mustJSON(t, want)) {
		t.Errorf("body = %s, want %s", resp.body, want)
	}
}
