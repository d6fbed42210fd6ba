package h2server

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/jetconf-go/internal/infra/tlsroots"
	"github.com/yndnr/jetconf-go/internal/telemetry/logger"
	"github.com/yndnr/jetconf-go/internal/telemetry/metric"
)

// Discard reasons reported to metrics.
const (
	discardReset    = "stream_reset"
	discardClosed   = "connection_closed"
	discardTooLarge = "too_large"
)

// SessionConfig holds the settings shared by every session of a server.
type SessionConfig struct {
	// ServerName is sent in the server header of every response.
	ServerName string
	// UploadLimit caps the body of a write request in bytes. 0 disables it.
	UploadLimit int64
	// RateLimit is the request rate allowed per connection, per second.
	// 0 disables it.
	RateLimit float64
	Logger    logger.Logger
	Metrics   *metric.Registry
}

// Session drives the request lifecycle of one connection.
type Session struct {
	engine  Engine
	routes  *Routes
	pending *Tracker
	cfg     SessionConfig
	limiter *rate.Limiter

	peerCert *x509.Certificate
	user     string
	remote   net.Addr
	logger   logger.Logger
	metrics  *metric.Registry
	ctx      context.Context

	// active is the stream whose handler is running.
	active *streamState
}

// streamState records what has been written on a dispatched stream.
type streamState struct {
	id          uint32
	requestID   string
	headersSent bool
	ended       bool
	status      int
}

// NewSession creates a session for one established connection. peer is
// the verified client certificate, nil if none was presented.
func NewSession(engine Engine, routes *Routes, cfg SessionConfig, peer *x509.Certificate, remote net.Addr) *Session {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.Nop()
	}

	s := &Session{
		engine:   engine,
		routes:   routes,
		pending:  NewTracker(),
		cfg:      cfg,
		peerCert: peer,
		user:     tlsroots.CertUser(peer),
		remote:   remote,
		metrics:  cfg.Metrics,
		ctx:      context.Background(),
	}

	remoteStr := ""
	if remote != nil {
		remoteStr = remote.String()
	}
	s.logger = cfg.Logger.With("remote", remoteStr, "user", s.user)

	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

// Run processes engine events until the connection ends or ctx is done.
// Pending requests left at that point are discarded without dispatch.
// A peer that simply goes away is not an error.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	stop := context.AfterFunc(ctx, func() { s.engine.Close() })
	defer stop()
	defer s.abortPending()

	for {
		ev, err := s.engine.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handleEvent(ev)
	}
}

// PeerCertificate returns the verified client certificate, or nil.
func (s *Session) PeerCertificate() *x509.Certificate { return s.peerCert }

// User returns the user name derived from the client certificate.
func (s *Session) User() string { return s.user }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() net.Addr { return s.remote }

// Logger returns the connection logger.
func (s *Session) Logger() logger.Logger { return s.logger }

// Pending returns the number of write requests waiting for their body.
func (s *Session) Pending() int { return s.pending.Len() }

func (s *Session) handleEvent(ev Event) {
	switch ev := ev.(type) {
	case RequestEvent:
		s.handleRequest(ev)
	case DataEvent:
		s.handleData(ev)
	case ResetEvent:
		s.handleReset(ev)
	case SettingsEvent:
		// Acknowledged by the engine.
	}
}

func (s *Session) handleRequest(ev RequestEvent) {
	if s.pending.Get(ev.StreamID) != nil {
		// Trailers on a buffered write request; their END_STREAM ends the body.
		if ev.EndStream {
			s.completePending(ev.StreamID)
		}
		return
	}

	method := ev.Header.Method()
	path, query := splitPath(ev.Header.Path())

	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Warn("request rate limit exceeded", "stream", ev.StreamID, "method", method, "path", path)
		s.reject(ev.StreamID, method, http.StatusTooManyRequests)
		return
	}

	switch method {
	case http.MethodGet, http.MethodDelete:
		s.dispatch(&Request{
			StreamID: ev.StreamID,
			Method:   method,
			Path:     path,
			RawQuery: query,
			Header:   ev.Header,
		})

	case http.MethodPut, http.MethodPost:
		s.pending.Add(&PendingRequest{
			StreamID: ev.StreamID,
			Method:   method,
			Path:     path,
			RawQuery: query,
			Header:   ev.Header,
		})
		s.metrics.PendingRequests.Inc()
		if ev.EndStream {
			s.completePending(ev.StreamID)
		}

	default:
		s.logger.Warn("unsupported method", "stream", ev.StreamID, "method", method, "path", path)
		s.reject(ev.StreamID, method, http.StatusMethodNotAllowed)
	}
}

func (s *Session) handleData(ev DataEvent) {
	p := s.pending.Get(ev.StreamID)
	if p == nil {
		// Already dispatched, never buffered, or duplicated by the peer.
		return
	}

	if limit := s.cfg.UploadLimit; limit > 0 && int64(len(p.Body)+len(ev.Data)) > limit {
		s.pending.Drop(ev.StreamID)
		s.metrics.PendingRequests.Dec()
		s.metrics.DiscardedTotal.WithLabelValues(discardTooLarge).Inc()
		s.logger.Warn("request body too large",
			"stream", ev.StreamID,
			"method", p.Method,
			"path", p.Path,
			"limit", limit,
		)
		s.reject(ev.StreamID, p.Method, http.StatusRequestEntityTooLarge)
		return
	}

	p.Body = append(p.Body, ev.Data...)
	if ev.EndStream {
		s.completePending(ev.StreamID)
	}
}

func (s *Session) handleReset(ev ResetEvent) {
	if s.pending.Drop(ev.StreamID) {
		s.metrics.PendingRequests.Dec()
		s.metrics.DiscardedTotal.WithLabelValues(discardReset).Inc()
		s.logger.Debug("pending request discarded on stream reset", "stream", ev.StreamID, "code", ev.Code.String())
	}
}

func (s *Session) completePending(id uint32) {
	p := s.pending.Take(id)
	if p == nil {
		return
	}
	s.metrics.PendingRequests.Dec()

	body := p.Body
	if body == nil {
		body = []byte{}
	}
	s.dispatch(&Request{
		StreamID: p.StreamID,
		Method:   p.Method,
		Path:     p.Path,
		RawQuery: p.RawQuery,
		Header:   p.Header,
		Body:     body,
	})
}

func (s *Session) abortPending() {
	if n := s.pending.Drain(); n > 0 {
		s.metrics.PendingRequests.Sub(float64(n))
		s.metrics.DiscardedTotal.WithLabelValues(discardClosed).Add(float64(n))
		s.logger.Debug("pending requests discarded on connection close", "count", n)
	}
}

// dispatch resolves and runs the handler for r on the session goroutine.
func (s *Session) dispatch(r *Request) {
	r.ID = ulid.Make().String()
	log := s.logger.With(
		"stream", r.StreamID,
		"method", r.Method,
		"path", r.Path,
		"request_id", r.ID,
	)
	r.ctx = logger.WithRequestID(logger.WithLogger(s.ctx, log), r.ID)

	st := &streamState{id: r.StreamID, requestID: r.ID}
	s.active = st
	defer func() { s.active = nil }()

	h, ok := s.routes.Resolve(r.Method, r.Path)
	if !ok || h == nil {
		s.metrics.UnroutableTotal.Inc()
		log.Warn("no route for request")
		s.sendError(log, r.StreamID, http.StatusBadRequest)
		s.metrics.RequestsTotal.WithLabelValues(r.Method, metric.StatusClass(st.status)).Inc()
		return
	}

	start := time.Now()
	err := s.invoke(h, r)
	elapsed := time.Since(start)
	s.metrics.HandlerDuration.WithLabelValues(r.Method).Observe(elapsed.Seconds())

	switch {
	case err != nil && !st.headersSent:
		log.Error("handler failed", "error", err)
		s.sendError(log, r.StreamID, http.StatusInternalServerError)
	case err != nil:
		log.Error("handler failed after responding", "error", err)
		if !st.ended {
			s.endStream(log, r.StreamID)
		}
	case !st.headersSent:
		log.Warn("handler returned without responding")
		s.sendError(log, r.StreamID, http.StatusInternalServerError)
	case !st.ended:
		log.Warn("handler left stream open")
		s.endStream(log, r.StreamID)
	}

	s.metrics.RequestsTotal.WithLabelValues(r.Method, metric.StatusClass(st.status)).Inc()
	log.Debug("request completed", "status", st.status, "duration_ms", elapsed.Milliseconds())
}

// invoke runs h, turning a panic into an error.
func (s *Session) invoke(h Handler, r *Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.L(r.Context()).Error("panic recovered", "error", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("h2server: handler panic: %v", rec)
		}
	}()
	return h.ServeStream(s, r)
}

// reject answers a stream that is never dispatched.
func (s *Session) reject(id uint32, method string, code int) {
	s.sendError(s.logger, id, code)
	s.metrics.RequestsTotal.WithLabelValues(method, metric.StatusClass(code)).Inc()
}

func (s *Session) sendError(log logger.Logger, id uint32, code int) {
	if err := s.SendEmpty(id, code, true); err != nil {
		log.Debug("write error response", "stream", id, "status", code, "error", err)
	}
}

func (s *Session) endStream(log logger.Logger, id uint32) {
	if err := s.SendData(id, nil, true); err != nil {
		log.Debug("end stream", "stream", id, "error", err)
	}
}
