package h2server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// Event is one framing-layer occurrence relevant to request handling.
type Event interface {
	isEvent()
}

// RequestEvent reports a complete header block opening a stream, or
// trailers on a stream that is already open.
type RequestEvent struct {
	StreamID  uint32
	Header    Header
	EndStream bool
}

// DataEvent reports one body fragment.
type DataEvent struct {
	StreamID  uint32
	Data      []byte
	EndStream bool
}

// SettingsEvent reports peer settings. The engine has already
// acknowledged them.
type SettingsEvent struct{}

// ResetEvent reports that a stream was reset by the peer, or by the
// engine after a stream-level protocol error.
type ResetEvent struct {
	StreamID uint32
	Code     http2.ErrCode
}

func (RequestEvent) isEvent()  {}
func (DataEvent) isEvent()     {}
func (SettingsEvent) isEvent() {}
func (ResetEvent) isEvent()    {}

// Engine is the framing layer a Session consumes. Next is only called
// from the session goroutine; Close may be called from any goroutine.
type Engine interface {
	// Next blocks until the next event. io.EOF means the peer went away.
	Next() (Event, error)
	WriteHeaders(streamID uint32, h Header, endStream bool) error
	WriteData(streamID uint32, data []byte, endStream bool) error
	Close() error
}

var (
	// ErrBadPreface is returned when a connection does not start with the
	// HTTP/2 client preface.
	ErrBadPreface = errors.New("h2server: invalid client preface")

	// ErrStreamClosed is returned when writing to a stream that is not
	// open: reset by the peer, refused, or already ended by the server.
	ErrStreamClosed = errors.New("h2server: stream closed")

	errEngineClosed = errors.New("h2server: engine closed")
)

// EngineConfig tunes the settings advertised to the peer.
type EngineConfig struct {
	MaxConcurrentStreams uint32
	MaxHeaderListSize    uint32
}

const (
	defaultMaxConcurrentStreams = 250
	defaultMaxHeaderListSize    = 1 << 20
	initialWindowSize           = 65535
	initialMaxFrameSize         = 16384
	initialHeaderTableSize      = 4096
)

// framerEngine implements Engine on top of http2.Framer.
type framerEngine struct {
	conn net.Conn
	fr   *http2.Framer
	bw   *bufio.Writer

	// hpack encoder state; guarded by wmu
	hbuf bytes.Buffer
	henc *hpack.Encoder

	wmu sync.Mutex

	// peer settings and send windows; session goroutine only.
	// streamWindow holds an entry for every open stream.
	maxFrameSize  uint32
	maxStreams    uint32
	initialWindow int32
	connWindow    int32
	streamWindow  map[uint32]int32

	backlog    []Event
	lastStream atomic.Uint32

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// NewEngine performs the server side of the HTTP/2 connection preface on
// conn and returns an engine reading frames from it. The caller is
// responsible for deadlines during the preface.
func NewEngine(conn net.Conn, cfg EngineConfig) (Engine, error) {
	if cfg.MaxConcurrentStreams == 0 {
		cfg.MaxConcurrentStreams = defaultMaxConcurrentStreams
	}
	if cfg.MaxHeaderListSize == 0 {
		cfg.MaxHeaderListSize = defaultMaxHeaderListSize
	}

	br := bufio.NewReader(conn)
	preface := make([]byte, len(http2.ClientPreface))
	if _, err := io.ReadFull(br, preface); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPreface, err)
	}
	if string(preface) != http2.ClientPreface {
		return nil, ErrBadPreface
	}

	e := &framerEngine{
		conn:          conn,
		bw:            bufio.NewWriterSize(conn, 8<<10),
		maxFrameSize:  initialMaxFrameSize,
		maxStreams:    cfg.MaxConcurrentStreams,
		initialWindow: initialWindowSize,
		connWindow:    initialWindowSize,
		streamWindow:  make(map[uint32]int32),
	}
	e.fr = http2.NewFramer(e.bw, br)
	e.fr.ReadMetaHeaders = hpack.NewDecoder(initialHeaderTableSize, nil)
	e.fr.MaxHeaderListSize = cfg.MaxHeaderListSize
	e.henc = hpack.NewEncoder(&e.hbuf)

	err := e.write(func() error {
		return e.fr.WriteSettings(
			http2.Setting{ID: http2.SettingMaxConcurrentStreams, Val: cfg.MaxConcurrentStreams},
			http2.Setting{ID: http2.SettingMaxHeaderListSize, Val: cfg.MaxHeaderListSize},
		)
	})
	if err != nil {
		return nil, fmt.Errorf("h2server: write settings: %w", err)
	}
	return e, nil
}

func (e *framerEngine) Next() (Event, error) {
	for {
		if len(e.backlog) > 0 {
			ev := e.backlog[0]
			e.backlog = e.backlog[1:]
			return ev, nil
		}
		ev, err := e.readEvent()
		if err != nil {
			return nil, err
		}
		if ev != nil {
			return ev, nil
		}
	}
}

// readEvent reads one frame. Control frames are handled in place and
// yield a nil event.
func (e *framerEngine) readEvent() (Event, error) {
	f, err := e.fr.ReadFrame()
	if err != nil {
		return e.readError(err)
	}

	switch f := f.(type) {
	case *http2.MetaHeadersFrame:
		return e.openStream(f)

	case *http2.DataFrame:
		if f.StreamID > e.lastStream.Load() {
			return e.readError(http2.ConnectionError(http2.ErrCodeProtocol))
		}
		// Replenish flow control right away; body size is policed above us.
		_, open := e.streamWindow[f.StreamID]
		if n := f.Length; n > 0 {
			if err := e.write(func() error {
				if err := e.fr.WriteWindowUpdate(0, n); err != nil {
					return err
				}
				if open && !f.StreamEnded() {
					return e.fr.WriteWindowUpdate(f.StreamID, n)
				}
				return nil
			}); err != nil {
				return nil, err
			}
		}
		data := make([]byte, len(f.Data()))
		copy(data, f.Data())
		return DataEvent{StreamID: f.StreamID, Data: data, EndStream: f.StreamEnded()}, nil

	case *http2.SettingsFrame:
		if f.IsAck() {
			return nil, nil
		}
		if err := f.ForeachSetting(e.applySetting); err != nil {
			return e.readError(err)
		}
		if err := e.write(e.fr.WriteSettingsAck); err != nil {
			return nil, err
		}
		return SettingsEvent{}, nil

	case *http2.PingFrame:
		if f.IsAck() {
			return nil, nil
		}
		return nil, e.write(func() error { return e.fr.WritePing(true, f.Data) })

	case *http2.WindowUpdateFrame:
		if f.StreamID == 0 {
			e.connWindow += int32(f.Increment)
		} else if w, ok := e.streamWindow[f.StreamID]; ok {
			e.streamWindow[f.StreamID] = w + int32(f.Increment)
		}
		return nil, nil

	case *http2.RSTStreamFrame:
		delete(e.streamWindow, f.StreamID)
		return ResetEvent{StreamID: f.StreamID, Code: f.ErrCode}, nil

	case *http2.GoAwayFrame:
		return nil, io.EOF

	default:
		// PRIORITY, PUSH_PROMISE and unknown frame types carry nothing for us.
		return nil, nil
	}
}

// openStream handles a header block. Blocks on open streams are trailers.
// New streams need an odd id above every earlier one and a free slot
// under the advertised concurrency limit.
func (e *framerEngine) openStream(f *http2.MetaHeadersFrame) (Event, error) {
	id := f.StreamID
	h := make(Header, len(f.Fields))
	copy(h, f.Fields)

	if _, open := e.streamWindow[id]; open {
		return RequestEvent{StreamID: id, Header: h, EndStream: f.StreamEnded()}, nil
	}
	if id%2 == 0 {
		return e.readError(http2.ConnectionError(http2.ErrCodeProtocol))
	}
	if id <= e.lastStream.Load() {
		return e.readError(http2.StreamError{StreamID: id, Code: http2.ErrCodeStreamClosed})
	}
	e.lastStream.Store(id)

	if uint32(len(e.streamWindow)) >= e.maxStreams {
		return e.readError(http2.StreamError{StreamID: id, Code: http2.ErrCodeRefusedStream})
	}
	e.streamWindow[id] = e.initialWindow
	return RequestEvent{StreamID: id, Header: h, EndStream: f.StreamEnded()}, nil
}

func (e *framerEngine) readError(err error) (Event, error) {
	var se http2.StreamError
	if errors.As(err, &se) {
		if werr := e.write(func() error { return e.fr.WriteRSTStream(se.StreamID, se.Code) }); werr != nil {
			return nil, werr
		}
		delete(e.streamWindow, se.StreamID)
		return ResetEvent{StreamID: se.StreamID, Code: se.Code}, nil
	}

	var ce http2.ConnectionError
	if errors.As(err, &ce) {
		_ = e.write(func() error {
			return e.fr.WriteGoAway(e.lastStream.Load(), http2.ErrCode(ce), nil)
		})
		return nil, err
	}

	if e.closed.Load() || errors.Is(err, net.ErrClosed) {
		return nil, io.EOF
	}
	return nil, err
}

func (e *framerEngine) applySetting(s http2.Setting) error {
	if err := s.Valid(); err != nil {
		return err
	}
	switch s.ID {
	case http2.SettingInitialWindowSize:
		delta := int32(s.Val) - e.initialWindow
		e.initialWindow = int32(s.Val)
		for id, w := range e.streamWindow {
			e.streamWindow[id] = w + delta
		}
	case http2.SettingMaxFrameSize:
		e.maxFrameSize = s.Val
	case http2.SettingHeaderTableSize:
		e.wmu.Lock()
		e.henc.SetMaxDynamicTableSizeLimit(s.Val)
		e.wmu.Unlock()
	}
	return nil
}

func (e *framerEngine) WriteHeaders(streamID uint32, h Header, endStream bool) error {
	e.wmu.Lock()
	defer e.wmu.Unlock()
	if e.closed.Load() {
		return errEngineClosed
	}
	if _, open := e.streamWindow[streamID]; !open {
		return ErrStreamClosed
	}

	e.hbuf.Reset()
	for _, f := range h {
		if err := e.henc.WriteField(f); err != nil {
			return fmt.Errorf("h2server: encode header %q: %w", f.Name, err)
		}
	}
	block := e.hbuf.Bytes()

	maxFrame := int(e.maxFrameSize)
	first := block
	if len(first) > maxFrame {
		first = block[:maxFrame]
	}
	block = block[len(first):]

	err := e.fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: first,
		EndStream:     endStream,
		EndHeaders:    len(block) == 0,
	})
	for err == nil && len(block) > 0 {
		frag := block
		if len(frag) > maxFrame {
			frag = block[:maxFrame]
		}
		block = block[len(frag):]
		err = e.fr.WriteContinuation(streamID, len(block) == 0, frag)
	}
	if err == nil {
		err = e.bw.Flush()
	}
	if endStream {
		delete(e.streamWindow, streamID)
	}
	return err
}

func (e *framerEngine) WriteData(streamID uint32, data []byte, endStream bool) error {
	if _, open := e.streamWindow[streamID]; !open {
		return ErrStreamClosed
	}

	for {
		if len(data) == 0 {
			if !endStream {
				return nil
			}
			err := e.write(func() error { return e.fr.WriteData(streamID, true, nil) })
			delete(e.streamWindow, streamID)
			return err
		}

		avail, err := e.awaitWindow(streamID)
		if err != nil {
			return err
		}

		n := len(data)
		if n > int(e.maxFrameSize) {
			n = int(e.maxFrameSize)
		}
		if n > int(avail) {
			n = int(avail)
		}
		chunk := data[:n]
		data = data[n:]
		last := endStream && len(data) == 0

		if err := e.write(func() error { return e.fr.WriteData(streamID, last, chunk) }); err != nil {
			return err
		}
		e.connWindow -= int32(n)
		e.streamWindow[streamID] -= int32(n)
		if last {
			delete(e.streamWindow, streamID)
			return nil
		}
	}
}

// awaitWindow returns the send window available on streamID, reading
// frames until the peer grants some. Events read meanwhile are queued
// for Next.
func (e *framerEngine) awaitWindow(streamID uint32) (int32, error) {
	for {
		sw, ok := e.streamWindow[streamID]
		if !ok {
			return 0, ErrStreamClosed
		}
		avail := sw
		if e.connWindow < avail {
			avail = e.connWindow
		}
		if avail > 0 {
			return avail, nil
		}

		ev, err := e.readEvent()
		if err != nil {
			return 0, err
		}
		if ev == nil {
			continue
		}
		e.backlog = append(e.backlog, ev)
		if r, ok := ev.(ResetEvent); ok && r.StreamID == streamID {
			return 0, ErrStreamClosed
		}
	}
}

// write runs fn under the write lock and flushes.
func (e *framerEngine) write(fn func() error) error {
	e.wmu.Lock()
	defer e.wmu.Unlock()
	if e.closed.Load() {
		return errEngineClosed
	}
	if err := fn(); err != nil {
		return err
	}
	return e.bw.Flush()
}

// Close sends GOAWAY when the writer is free and closes the connection.
func (e *framerEngine) Close() error {
	e.closeOnce.Do(func() {
		if e.wmu.TryLock() {
			_ = e.fr.WriteGoAway(e.lastStream.Load(), http2.ErrCodeNo, nil)
			_ = e.bw.Flush()
			e.closed.Store(true)
			e.wmu.Unlock()
		} else {
			e.closed.Store(true)
		}
		e.closeErr = e.conn.Close()
	})
	return e.closeErr
}
