package h2server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/jetconf-go/internal/infra/tlsroots"
	"github.com/yndnr/jetconf-go/internal/telemetry/logger"
	"github.com/yndnr/jetconf-go/internal/telemetry/metric"
)

// Config holds the listener configuration.
type Config struct {
	// Addr is the TCP address for ListenAndServe.
	Addr string
	// TLSConfig must require client certificates and offer "h2" via ALPN;
	// see tlsroots.Pool.ServerConfig.
	TLSConfig *tls.Config
	// HandshakeTimeout bounds the TLS handshake and HTTP/2 preface
	// (default: 10s).
	HandshakeTimeout time.Duration
	// Session settings shared by every connection.
	Session SessionConfig
	// Engine settings advertised to peers.
	Engine EngineConfig
}

// EngineFactory creates the framing engine for an established connection.
type EngineFactory func(conn net.Conn, cfg EngineConfig) (Engine, error)

// Server accepts mutually authenticated TLS connections and runs one
// Session per connection.
type Server struct {
	cfg       Config
	routes    *Routes
	logger    logger.Logger
	metrics   *metric.Registry
	newEngine EngineFactory

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[*serverConn]struct{}

	running atomic.Bool
	wg      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithEngineFactory replaces the HTTP/2 framing engine.
func WithEngineFactory(f EngineFactory) Option {
	return func(s *Server) {
		s.newEngine = f
	}
}

// New creates a server for routes. routes must not be modified afterwards.
func New(cfg Config, routes *Routes, opts ...Option) (*Server, error) {
	if cfg.TLSConfig == nil {
		return nil, errors.New("h2server: TLS config is required")
	}
	if routes == nil {
		return nil, errors.New("h2server: route table is required")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:       cfg,
		routes:    routes,
		logger:    logger.Default(),
		metrics:   metric.Nop(),
		newEngine: NewEngine,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[*serverConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.Session.Logger == nil {
		s.cfg.Session.Logger = s.logger
	}
	if s.cfg.Session.Metrics == nil {
		s.cfg.Session.Metrics = s.metrics
	}
	return s, nil
}

// Listen binds cfg.Addr. Pass the listener to Serve.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("h2server: listen %s: %w", s.cfg.Addr, err)
	}
	return ln, nil
}

// ListenAndServe listens on cfg.Addr and serves until ctx is done or
// Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts plain TCP connections from ln and performs the TLS
// handshake itself. It returns nil after Shutdown or when ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.running.Store(true)
	s.mu.Lock()
	s.listeners[ln] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.listeners, ln)
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("h2 server listening", "address", ln.Addr().String())

	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return err
		}

		sc := &serverConn{raw: c}
		if !s.track(sc) {
			c.Close()
			return nil
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(sc)
			s.serveConn(ctx, sc)
		}()
	}
}

// Shutdown stops accepting, closes every open connection (pending
// requests are discarded) and waits for their sessions to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error
	s.mu.Lock()
	for ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) && firstErr == nil {
			firstErr = err
		}
	}
	for sc := range s.conns {
		sc.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

func (s *Server) serveConn(ctx context.Context, sc *serverConn) {
	log := s.logger.With("remote", sc.raw.RemoteAddr().String())

	tconn := tls.Server(sc.raw, s.cfg.TLSConfig)
	if err := tconn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		sc.raw.Close()
		return
	}

	if err := tconn.HandshakeContext(ctx); err != nil {
		log.Warn("tls handshake failed", "error", err)
		tconn.Close()
		return
	}

	state := tconn.ConnectionState()
	if state.NegotiatedProtocol != tlsroots.ProtoH2 {
		log.Warn("client did not negotiate h2", "protocol", state.NegotiatedProtocol)
		tconn.Close()
		return
	}

	var peer *x509.Certificate
	if len(state.PeerCertificates) > 0 {
		peer = state.PeerCertificates[0]
	}

	engine, err := s.newEngine(tconn, s.cfg.Engine)
	if err != nil {
		log.Warn("http2 preface failed", "error", err)
		tconn.Close()
		return
	}
	if !sc.setEngine(engine) {
		return
	}
	defer engine.Close()

	if err := tconn.SetDeadline(time.Time{}); err != nil {
		return
	}

	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ConnectionsActive.Inc()
	defer s.metrics.ConnectionsActive.Dec()

	sess := NewSession(engine, s.routes, s.cfg.Session, peer, sc.raw.RemoteAddr())
	sess.Logger().Info("connection established", "tls_version", tls.VersionName(state.Version))

	if err := sess.Run(ctx); err != nil {
		sess.Logger().Warn("connection ended with error", "error", err)
		return
	}
	sess.Logger().Debug("connection closed")
}

func (s *Server) track(sc *serverConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.conns[sc] = struct{}{}
	return true
}

func (s *Server) untrack(sc *serverConn) {
	s.mu.Lock()
	delete(s.conns, sc)
	s.mu.Unlock()
}

// serverConn is an accepted connection, closed through its engine once
// the preface is done.
type serverConn struct {
	raw net.Conn

	mu     sync.Mutex
	engine Engine
	closed bool
}

func (sc *serverConn) setEngine(e Engine) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		e.Close()
		return false
	}
	sc.engine = e
	return true
}

func (sc *serverConn) close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.closed = true
	if sc.engine != nil {
		sc.engine.Close()
		return
	}
	sc.raw.Close()
}
