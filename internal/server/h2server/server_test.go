package h2server

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/http2"

	"github.com/yndnr/jetconf-go/internal/infra/tlsroots"
	"github.com/yndnr/jetconf-go/internal/infra/tlsroots/tlstest"
	"github.com/yndnr/jetconf-go/internal/server/route"
	"github.com/yndnr/jetconf-go/internal/telemetry/logger"
)

type testServer struct {
	srv    *Server
	addr   string
	bundle *tlstest.Bundle
	pool   *tlsroots.Pool
	done   chan error
}

func startTestServer(t *testing.T, routes *Routes) *testServer {
	t.Helper()

	b := tlstest.New(t, "admin@example.com")
	pool, err := tlsroots.LoadCAFile(b.CAFile)
	if err != nil {
		t.Fatal(err)
	}
	w, err := tlsroots.NewWatcher(b.ServerCertFile, b.ServerKeyFile)
	if err != nil {
		t.Fatal(err)
	}

	l, err := logger.New(logger.Config{Output: io.Discard})
	if err != nil {
		t.Fatal(err)
	}

	srv, err := New(Config{
		TLSConfig:        pool.ServerConfig(w.GetCertificate),
		HandshakeTimeout: 5 * time.Second,
		Session:          SessionConfig{ServerName: "jetconf-h2", UploadLimit: 1 << 20},
	}, routes, WithLogger(l))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ts := &testServer{srv: srv, addr: ln.Addr().String(), bundle: b, pool: pool, done: make(chan error, 1)}
	go func() { ts.done <- srv.Serve(context.Background(), ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return ts
}

func (ts *testServer) client(t *testing.T, certFile, keyFile string) *http.Client {
	t.Helper()
	var cfg *tls.Config
	if certFile == "" {
		cfg = &tls.Config{RootCAs: ts.pool.Pool()}
	} else {
		var err error
		cfg, err = ts.pool.ClientConfig(certFile, keyFile)
		if err != nil {
			t.Fatal(err)
		}
	}
	cfg.ServerName = "localhost"

	tr := &http2.Transport{TLSClientConfig: cfg}
	t.Cleanup(tr.CloseIdleConnections)
	return &http.Client{Transport: tr, Timeout: 5 * time.Second}
}

func (ts *testServer) url(path string) string {
	return "https://" + ts.addr + path
}

func testRoutes() *Routes {
	routes := NewRoutes()
	routes.Register(route.MethodPath("GET", "/restconf"), HandlerFunc(func(s *Session, r *Request) error {
		return s.SendResponse(r.StreamID, &Response{
			Status:      200,
			ContentType: "application/yang.api+json",
			Body:        []byte(`{"user":"` + s.User() + `"}`),
		})
	}))
	routes.Register(route.MethodPrefix("POST", "/restconf/data"), HandlerFunc(func(s *Session, r *Request) error {
		return s.SendResponse(r.StreamID, &Response{
			Status:      201,
			ContentType: "application/yang.api+json",
			Header:      Header{{Name: "location", Value: r.Path}},
			Body:        r.Body,
		})
	}))
	routes.Register(route.MethodPath("GET", "/big"), HandlerFunc(func(s *Session, r *Request) error {
		return s.SendResponse(r.StreamID, &Response{
			Status: 200,
			Body:   bytes.Repeat([]byte("z"), 200<<10),
		})
	}))
	return routes
}

func TestServer_EndToEnd(t *testing.T) {
	ts := startTestServer(t, testRoutes())
	c := ts.client(t, ts.bundle.ClientCertFile, ts.bundle.ClientKeyFile)

	t.Run("root", func(t *testing.T) {
		resp, err := c.Get(ts.url("/restconf?depth=1"))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode != 200 || resp.ProtoMajor != 2 {
			t.Errorf("status = %d proto = %s", resp.StatusCode, resp.Proto)
		}
		if string(body) != `{"user":"admin@example.com"}` {
			t.Errorf("body = %s", body)
		}
		if resp.Header.Get("Server") != "jetconf-h2" || resp.Header.Get("X-Request-Id") == "" {
			t.Errorf("headers = %v", resp.Header)
		}
	})

	t.Run("post with body", func(t *testing.T) {
		payload := `{"interfaces":{"interface":[{"name":"eth0"}]}}`
		resp, err := c.Post(ts.url("/restconf/data/interfaces"), "application/yang.api+json", strings.NewReader(payload))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode != 201 || string(body) != payload {
			t.Errorf("status = %d body = %s", resp.StatusCode, body)
		}
		if resp.Header.Get("Location") != "/restconf/data/interfaces" {
			t.Errorf("location = %q", resp.Header.Get("Location"))
		}
	})

	t.Run("unroutable", func(t *testing.T) {
		resp, err := c.Get(ts.url("/unknown/path"))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode != 400 || string(body) != "400 Bad Request\n" {
			t.Errorf("status = %d body = %q", resp.StatusCode, body)
		}
		if resp.Header.Get("Content-Type") != "text/plain" {
			t.Errorf("content-type = %q", resp.Header.Get("Content-Type"))
		}
	})

	t.Run("unsupported method", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPatch, ts.url("/restconf/data/x"), strings.NewReader("{}"))
		resp, err := c.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != 405 {
			t.Errorf("status = %d, want 405", resp.StatusCode)
		}
	})

	t.Run("large response", func(t *testing.T) {
		resp, err := c.Get(ts.url("/big"))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if len(body) != 200<<10 {
			t.Errorf("body = %d bytes, want %d", len(body), 200<<10)
		}
	})

	t.Run("concurrent streams", func(t *testing.T) {
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			go func(i int) {
				payload := strings.Repeat("p", 1000*(i+1))
				resp, err := c.Post(ts.url("/restconf/data/n"), "application/json", strings.NewReader(payload))
				if err != nil {
					errs <- err
					return
				}
				defer resp.Body.Close()
				body, _ := io.ReadAll(resp.Body)
				if string(body) != payload {
					errs <- io.ErrUnexpectedEOF
					return
				}
				errs <- nil
			}(i)
		}
		for i := 0; i < 8; i++ {
			if err := <-errs; err != nil {
				t.Errorf("stream %d: %v", i, err)
			}
		}
	})
}

func TestServer_RequiresClientCertificate(t *testing.T) {
	ts := startTestServer(t, testRoutes())
	c := ts.client(t, "", "")

	resp, err := c.Get(ts.url("/restconf"))
	if err == nil {
		resp.Body.Close()
		t.Fatal("request without client certificate succeeded")
	}
}

func TestServer_RejectsUnknownCA(t *testing.T) {
	ts := startTestServer(t, testRoutes())
	other := tlstest.New(t, "intruder@example.com")
	c := ts.client(t, other.ClientCertFile, other.ClientKeyFile)

	resp, err := c.Get(ts.url("/restconf"))
	if err == nil {
		resp.Body.Close()
		t.Fatal("request with a certificate from another CA succeeded")
	}
}

func TestServer_RejectsHTTP1(t *testing.T) {
	ts := startTestServer(t, testRoutes())

	cfg, err := ts.pool.ClientConfig(ts.bundle.ClientCertFile, ts.bundle.ClientKeyFile)
	if err != nil {
		t.Fatal(err)
	}
	cfg.ServerName = "localhost"
	cfg.NextProtos = []string{"http/1.1"}

	conn, err := tls.Dial("tcp", ts.addr, cfg)
	if err != nil {
		// No protocol overlap may already fail the handshake.
		return
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("server kept a connection that did not negotiate h2")
	}
}

func TestServer_Shutdown(t *testing.T) {
	ts := startTestServer(t, testRoutes())
	c := ts.client(t, ts.bundle.ClientCertFile, ts.bundle.ClientKeyFile)

	resp, err := c.Get(ts.url("/restconf"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ts.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case err := <-ts.done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after Shutdown")
	}

	if _, err := net.DialTimeout("tcp", ts.addr, time.Second); err == nil {
		t.Error("listener still accepting after Shutdown")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}, NewRoutes()); err == nil {
		t.Error("New() without TLS config should fail")
	}
	if _, err := New(Config{TLSConfig: &tls.Config{}}, nil); err == nil {
		t.Error("New() without routes should fail")
	}
}

func TestServer_ListenAddressInUse(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer taken.Close()

	srv, err := New(Config{Addr: taken.Addr().String(), TLSConfig: &tls.Config{}}, NewRoutes())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := srv.Listen(); err == nil || !strings.Contains(err.Error(), taken.Addr().String()) {
		t.Errorf("Listen() error = %v, want bind failure naming the address", err)
	}
	if err := srv.ListenAndServe(context.Background()); err == nil {
		t.Error("ListenAndServe() on a taken address should fail")
	}

	free, err := New(Config{Addr: "127.0.0.1:0", TLSConfig: &tls.Config{}}, NewRoutes())
	if err != nil {
		t.Fatal(err)
	}
	ln, err := free.Listen()
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	ln.Close()
}
