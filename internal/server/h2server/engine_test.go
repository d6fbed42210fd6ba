package h2server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (server, client net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server = <-accepted
	if server == nil {
		t.Fatal("accept failed")
	}

	deadline := time.Now().Add(5 * time.Second)
	server.SetDeadline(deadline)
	client.SetDeadline(deadline)
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

// testClient is the peer side of an engine under test.
type testClient struct {
	t    *testing.T
	conn net.Conn
	fr   *http2.Framer
	hbuf bytes.Buffer
	henc *hpack.Encoder
}

func newTestClient(t *testing.T, conn net.Conn, settings ...http2.Setting) *testClient {
	t.Helper()
	c := &testClient{t: t, conn: conn}
	c.fr = http2.NewFramer(conn, conn)
	c.fr.ReadMetaHeaders = hpack.NewDecoder(4096, nil)
	c.henc = hpack.NewEncoder(&c.hbuf)

	if _, err := io.WriteString(conn, http2.ClientPreface); err != nil {
		t.Fatal(err)
	}
	if err := c.fr.WriteSettings(settings...); err != nil {
		t.Fatal(err)
	}
	return c
}

func (c *testClient) writeHeaders(id uint32, end bool, fields ...string) {
	c.t.Helper()
	c.hbuf.Reset()
	for i := 0; i+1 < len(fields); i += 2 {
		c.henc.WriteField(hpack.HeaderField{Name: fields[i], Value: fields[i+1]})
	}
	err := c.fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      id,
		BlockFragment: c.hbuf.Bytes(),
		EndStream:     end,
		EndHeaders:    true,
	})
	if err != nil {
		c.t.Fatal(err)
	}
}

// readFrame reads frames until one satisfies match, which may inspect
// the frame only during the call.
func (c *testClient) readFrame(match func(http2.Frame) bool) {
	c.t.Helper()
	for {
		f, err := c.fr.ReadFrame()
		if err != nil {
			c.t.Fatalf("client ReadFrame() error = %v", err)
		}
		if match(f) {
			return
		}
	}
}

func TestNewEngine_BadPreface(t *testing.T) {
	server, client := tcpPair(t)
	go io.WriteString(client, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")

	_, err := NewEngine(server, EngineConfig{})
	if !errors.Is(err, ErrBadPreface) {
		t.Errorf("NewEngine() error = %v, want ErrBadPreface", err)
	}
}

func TestEngine_Events(t *testing.T) {
	server, client := tcpPair(t)
	c := newTestClient(t, client)
	c.fr.WritePing(false, [8]byte{1, 2, 3, 4, 5, 6, 7, 8})
	c.writeHeaders(1, true, ":method", "GET", ":scheme", "https", ":path", "/restconf?depth=2", ":authority", "localhost")
	c.writeHeaders(3, false, ":method", "POST", ":scheme", "https", ":path", "/restconf/data", ":authority", "localhost")
	c.fr.WriteData(3, false, []byte("hel"))
	c.fr.WriteData(3, true, []byte("lo"))
	c.fr.WriteRSTStream(5, http2.ErrCodeCancel)

	eng, err := NewEngine(server, EngineConfig{})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	defer eng.Close()

	want := []Event{
		SettingsEvent{},
		RequestEvent{StreamID: 1, EndStream: true},
		RequestEvent{StreamID: 3},
		DataEvent{StreamID: 3, Data: []byte("hel")},
		DataEvent{StreamID: 3, Data: []byte("lo"), EndStream: true},
		ResetEvent{StreamID: 5, Code: http2.ErrCodeCancel},
	}
	for i, w := range want {
		ev, err := eng.Next()
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		switch w := w.(type) {
		case RequestEvent:
			got, ok := ev.(RequestEvent)
			if !ok || got.StreamID != w.StreamID || got.EndStream != w.EndStream {
				t.Fatalf("event #%d = %#v, want %#v", i, ev, w)
			}
			if got.Header.Method() == "" || got.Header.Path() == "" {
				t.Errorf("event #%d lacks pseudo-headers: %v", i, got.Header)
			}
		case DataEvent:
			got, ok := ev.(DataEvent)
			if !ok || got.StreamID != w.StreamID || got.EndStream != w.EndStream || !bytes.Equal(got.Data, w.Data) {
				t.Fatalf("event #%d = %#v, want %#v", i, ev, w)
			}
		default:
			if ev != w {
				t.Fatalf("event #%d = %#v, want %#v", i, ev, w)
			}
		}
	}

	// Server settings, settings ACK, ping ACK and window updates went out.
	var gotSettings, gotAck, gotPing bool
	var connWindow uint32
	c.readFrame(func(f http2.Frame) bool {
		switch f := f.(type) {
		case *http2.SettingsFrame:
			if f.IsAck() {
				gotAck = true
			} else {
				v, ok := f.Value(http2.SettingMaxConcurrentStreams)
				gotSettings = ok && v == defaultMaxConcurrentStreams
			}
		case *http2.PingFrame:
			gotPing = f.IsAck() && f.Data == [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
		case *http2.WindowUpdateFrame:
			if f.StreamID == 0 {
				connWindow += f.Increment
			}
		}
		return connWindow >= 5
	})
	if !gotSettings || !gotAck || !gotPing {
		t.Errorf("settings=%v ack=%v ping=%v", gotSettings, gotAck, gotPing)
	}
}

func TestEngine_WriteResponse(t *testing.T) {
	server, client := tcpPair(t)
	c := newTestClient(t, client)
	c.writeHeaders(1, true, ":method", "GET", ":scheme", "https", ":path", "/", ":authority", "localhost")

	eng, err := NewEngine(server, EngineConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()
	for i := 0; i < 2; i++ { // settings, request
		if _, err := eng.Next(); err != nil {
			t.Fatal(err)
		}
	}

	body := bytes.Repeat([]byte("x"), 40000)
	var h Header
	h.Add(":status", "200")
	h.Add("content-type", "text/plain")
	if err := eng.WriteHeaders(1, h, false); err != nil {
		t.Fatalf("WriteHeaders() error = %v", err)
	}
	if err := eng.WriteData(1, body, true); err != nil {
		t.Fatalf("WriteData() error = %v", err)
	}

	var status string
	var got []byte
	c.readFrame(func(f http2.Frame) bool {
		switch f := f.(type) {
		case *http2.MetaHeadersFrame:
			status = f.PseudoValue("status")
		case *http2.DataFrame:
			if len(f.Data()) > initialMaxFrameSize {
				t.Errorf("DATA frame of %d bytes exceeds max frame size", len(f.Data()))
			}
			got = append(got, f.Data()...)
			return f.StreamEnded()
		}
		return false
	})
	if status != "200" {
		t.Errorf(":status = %q", status)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("received %d body bytes, want %d", len(got), len(body))
	}
}

func TestEngine_SendFlowControl(t *testing.T) {
	server, client := tcpPair(t)
	c := newTestClient(t, client, http2.Setting{ID: http2.SettingInitialWindowSize, Val: 10})
	c.writeHeaders(1, true, ":method", "GET", ":scheme", "https", ":path", "/", ":authority", "localhost")

	eng, err := NewEngine(server, EngineConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()
	for i := 0; i < 2; i++ {
		if _, err := eng.Next(); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- eng.WriteData(1, bytes.Repeat([]byte("y"), 25), true) }()

	// The first frame is limited by the 10 byte window.
	var first int
	c.readFrame(func(f http2.Frame) bool {
		if d, ok := f.(*http2.DataFrame); ok {
			first = len(d.Data())
			return true
		}
		return false
	})
	if first != 10 {
		t.Errorf("first DATA frame = %d bytes, want 10", first)
	}

	// A request arriving while the writer waits is kept for Next.
	c.writeHeaders(3, true, ":method", "GET", ":scheme", "https", ":path", "/later", ":authority", "localhost")
	c.fr.WriteWindowUpdate(1, 100)

	var rest int
	c.readFrame(func(f http2.Frame) bool {
		if d, ok := f.(*http2.DataFrame); ok {
			rest += len(d.Data())
			return d.StreamEnded()
		}
		return false
	})
	if rest != 15 {
		t.Errorf("remaining DATA = %d bytes, want 15", rest)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteData() error = %v", err)
	}

	ev, err := eng.Next()
	if err != nil {
		t.Fatal(err)
	}
	if r, ok := ev.(RequestEvent); !ok || r.StreamID != 3 {
		t.Errorf("Next() = %#v, want the queued request on stream 3", ev)
	}
}

func TestEngine_Close(t *testing.T) {
	server, client := tcpPair(t)
	c := newTestClient(t, client)

	eng, err := NewEngine(server, EngineConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Next(); err != nil {
		t.Fatal(err)
	}

	if err := eng.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	eng.Close()

	if _, err := eng.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after Close error = %v, want io.EOF", err)
	}
	if err := eng.WriteHeaders(1, Header{{Name: ":status", Value: "200"}}, true); err == nil {
		t.Error("WriteHeaders() after Close should fail")
	}

	var goAway bool
	c.readFrame(func(f http2.Frame) bool {
		if g, ok := f.(*http2.GoAwayFrame); ok {
			goAway = g.ErrCode == http2.ErrCodeNo
			return true
		}
		return false
	})
	if !goAway {
		t.Error("expected GOAWAY(NO_ERROR) on close")
	}
}

func TestEngine_PeerGoAway(t *testing.T) {
	server, client := tcpPair(t)
	c := newTestClient(t, client)
	c.fr.WriteGoAway(0, http2.ErrCodeNo, nil)

	eng, err := NewEngine(server, EngineConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()

	if _, err := eng.Next(); err != nil { // settings
		t.Fatal(err)
	}
	if _, err := eng.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}

// nextEvents reads n events from eng.
func nextEvents(t *testing.T, eng Engine, n int) []Event {
	t.Helper()
	evs := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev, err := eng.Next()
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		evs = append(evs, ev)
	}
	return evs
}

func TestEngine_StreamWindowUpdateBeforeResponse(t *testing.T) {
	server, client := tcpPair(t)
	c := newTestClient(t, client, http2.Setting{ID: http2.SettingInitialWindowSize, Val: 0})
	c.writeHeaders(1, false, ":method", "PUT", ":scheme", "https", ":path", "/x", ":authority", "localhost")
	c.fr.WriteWindowUpdate(1, 100000)
	c.fr.WriteData(1, true, []byte("{}"))

	eng, err := NewEngine(server, EngineConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()

	evs := nextEvents(t, eng, 3) // settings, request, data
	if d, ok := evs[2].(DataEvent); !ok || !d.EndStream {
		t.Fatalf("third event = %#v, want final DATA", evs[2])
	}

	body := bytes.Repeat([]byte("z"), 1000)
	if err := eng.WriteHeaders(1, Header{{Name: ":status", Value: "200"}}, false); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- eng.WriteData(1, body, true) }()

	var got int
	c.readFrame(func(f http2.Frame) bool {
		if d, ok := f.(*http2.DataFrame); ok && d.StreamID == 1 {
			got += len(d.Data())
			return d.StreamEnded()
		}
		return false
	})
	if got != len(body) {
		t.Errorf("received %d body bytes, want %d", got, len(body))
	}
	if err := <-done; err != nil {
		t.Errorf("WriteData() error = %v", err)
	}
}

func TestEngine_MaxConcurrentStreams(t *testing.T) {
	server, client := tcpPair(t)
	c := newTestClient(t, client)
	for _, id := range []uint32{1, 3, 5} {
		c.writeHeaders(id, false, ":method", "PUT", ":scheme", "https", ":path", "/x", ":authority", "localhost")
	}

	eng, err := NewEngine(server, EngineConfig{MaxConcurrentStreams: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()

	evs := nextEvents(t, eng, 4)
	for i, id := range []uint32{1, 3} {
		if r, ok := evs[i+1].(RequestEvent); !ok || r.StreamID != id {
			t.Errorf("event #%d = %#v, want request on stream %d", i+1, evs[i+1], id)
		}
	}
	if want := (ResetEvent{StreamID: 5, Code: http2.ErrCodeRefusedStream}); evs[3] != want {
		t.Errorf("event #3 = %#v, want %#v", evs[3], want)
	}

	var refused bool
	c.readFrame(func(f http2.Frame) bool {
		if r, ok := f.(*http2.RSTStreamFrame); ok {
			refused = r.StreamID == 5 && r.ErrCode == http2.ErrCodeRefusedStream
			return true
		}
		return false
	})
	if !refused {
		t.Error("expected RST_STREAM(REFUSED_STREAM) on stream 5")
	}

	if err := eng.WriteData(5, []byte("x"), true); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("WriteData() on refused stream error = %v, want ErrStreamClosed", err)
	}

	// Ending a stream frees a slot.
	if err := eng.WriteHeaders(1, Header{{Name: ":status", Value: "204"}}, true); err != nil {
		t.Fatal(err)
	}
	c.writeHeaders(7, true, ":method", "GET", ":scheme", "https", ":path", "/x", ":authority", "localhost")
	ev, err := eng.Next()
	if err != nil {
		t.Fatal(err)
	}
	if r, ok := ev.(RequestEvent); !ok || r.StreamID != 7 {
		t.Errorf("Next() = %#v, want request on stream 7", ev)
	}
}

func TestEngine_StreamIDs(t *testing.T) {
	t.Run("non-increasing", func(t *testing.T) {
		server, client := tcpPair(t)
		c := newTestClient(t, client)
		c.writeHeaders(3, true, ":method", "GET", ":scheme", "https", ":path", "/a", ":authority", "localhost")
		c.writeHeaders(1, true, ":method", "GET", ":scheme", "https", ":path", "/b", ":authority", "localhost")

		eng, err := NewEngine(server, EngineConfig{})
		if err != nil {
			t.Fatal(err)
		}
		defer eng.Close()

		evs := nextEvents(t, eng, 3)
		if want := (ResetEvent{StreamID: 1, Code: http2.ErrCodeStreamClosed}); evs[2] != want {
			t.Errorf("event #2 = %#v, want %#v", evs[2], want)
		}
	})

	t.Run("even", func(t *testing.T) {
		server, client := tcpPair(t)
		c := newTestClient(t, client)
		c.writeHeaders(2, true, ":method", "GET", ":scheme", "https", ":path", "/a", ":authority", "localhost")

		eng, err := NewEngine(server, EngineConfig{})
		if err != nil {
			t.Fatal(err)
		}
		defer eng.Close()

		nextEvents(t, eng, 1) // settings
		_, err = eng.Next()
		var ce http2.ConnectionError
		if !errors.As(err, &ce) || http2.ErrCode(ce) != http2.ErrCodeProtocol {
			t.Fatalf("Next() error = %v, want PROTOCOL_ERROR connection error", err)
		}

		var goAway bool
		c.readFrame(func(f http2.Frame) bool {
			if g, ok := f.(*http2.GoAwayFrame); ok {
				goAway = g.ErrCode == http2.ErrCodeProtocol
				return true
			}
			return false
		})
		if !goAway {
			t.Error("expected GOAWAY(PROTOCOL_ERROR)")
		}
	})
}

func TestEngine_WriteAfterPeerReset(t *testing.T) {
	server, client := tcpPair(t)
	c := newTestClient(t, client)
	c.writeHeaders(1, true, ":method", "GET", ":scheme", "https", ":path", "/", ":authority", "localhost")
	c.fr.WriteRSTStream(1, http2.ErrCodeCancel)

	eng, err := NewEngine(server, EngineConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer eng.Close()

	nextEvents(t, eng, 3) // settings, request, reset

	if err := eng.WriteHeaders(1, Header{{Name: ":status", Value: "200"}}, false); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("WriteHeaders() error = %v, want ErrStreamClosed", err)
	}
	if err := eng.WriteData(1, []byte("late"), true); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("WriteData() error = %v, want ErrStreamClosed", err)
	}
}
