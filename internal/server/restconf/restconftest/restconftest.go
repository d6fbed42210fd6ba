// Package restconftest runs a complete RESTCONF server on a loopback port
// for client tests.
package restconftest

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/yndnr/jetconf-go/internal/datastore"
	"github.com/yndnr/jetconf-go/internal/infra/tlsroots"
	"github.com/yndnr/jetconf-go/internal/infra/tlsroots/tlstest"
	"github.com/yndnr/jetconf-go/internal/server/h2server"
	"github.com/yndnr/jetconf-go/internal/server/restconf"
	"github.com/yndnr/jetconf-go/internal/telemetry/logger"
)

// Admin is the user in the bundle's client certificate.
const Admin = "admin@example.com"

// Server is a running test server.
type Server struct {
	Addr   string
	Bundle *tlstest.Bundle
	Store  datastore.Store
	Ops    *restconf.OpRegistry
}

// Options tunes the server. The zero value disables access control.
type Options struct {
	ACL     *restconf.ACL
	DocRoot string
}

// Start runs a server until the test ends.
func Start(t testing.TB, opts Options) *Server {
	t.Helper()

	b := tlstest.New(t, Admin)
	pool, err := tlsroots.LoadCAFile(b.CAFile)
	if err != nil {
		t.Fatal(err)
	}
	w, err := tlsroots.NewWatcher(b.ServerCertFile, b.ServerKeyFile)
	if err != nil {
		t.Fatal(err)
	}

	store, err := datastore.OpenBadger(datastore.BadgerConfig{InMemory: true},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}

	l, err := logger.New(logger.Config{Output: io.Discard})
	if err != nil {
		t.Fatal(err)
	}

	ops := restconf.NewOpRegistry()
	routes := h2server.NewRoutes()
	restconf.New(restconf.Config{APIRoot: "/restconf", DocRoot: opts.DocRoot}, store, ops, opts.ACL).Register(routes)

	srv, err := h2server.New(h2server.Config{
		TLSConfig:        pool.ServerConfig(w.GetCertificate),
		HandshakeTimeout: 5 * time.Second,
		Session:          h2server.SessionConfig{ServerName: "jetconf-h2", UploadLimit: 1 << 20},
	}, routes, h2server.WithLogger(l))
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(context.Background(), ln)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		store.Close()
	})

	return &Server{Addr: ln.Addr().String(), Bundle: b, Store: store, Ops: ops}
}
