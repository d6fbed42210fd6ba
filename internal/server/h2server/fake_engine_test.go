package h2server

import (
	"io"
	"strconv"
	"sync"
)

// fakeEngine replays scripted events and records everything written.
type fakeEngine struct {
	mu     sync.Mutex
	events []Event
	writes []fakeWrite
	closed bool
	// failWrites makes every write fail, as on a dead connection.
	failWrites error
}

type fakeWrite struct {
	streamID  uint32
	header    Header // nil for data writes
	data      []byte
	endStream bool
}

func newFakeEngine(events ...Event) *fakeEngine {
	return &fakeEngine{events: events}
}

func (f *fakeEngine) Next() (Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.events) == 0 {
		return nil, io.EOF
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

func (f *fakeEngine) WriteHeaders(streamID uint32, h Header, endStream bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	f.writes = append(f.writes, fakeWrite{streamID: streamID, header: h.Clone(), endStream: endStream})
	return nil
}

func (f *fakeEngine) WriteData(streamID uint32, data []byte, endStream bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites != nil {
		return f.failWrites
	}
	f.writes = append(f.writes, fakeWrite{streamID: streamID, data: append([]byte(nil), data...), endStream: endStream})
	return nil
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeResponse is the response assembled from the writes on one stream.
type fakeResponse struct {
	header Header
	body   []byte
	ended  bool
	writes int
}

func (r fakeResponse) status() int {
	code, _ := strconv.Atoi(r.header.Get(":status"))
	return code
}

func (f *fakeEngine) response(streamID uint32) fakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	var r fakeResponse
	for _, w := range f.writes {
		if w.streamID != streamID {
			continue
		}
		r.writes++
		if w.header != nil {
			r.header = append(r.header, w.header...)
		} else {
			r.body = append(r.body, w.data...)
		}
		r.ended = r.ended || w.endStream
	}
	return r
}

func (f *fakeEngine) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// Event helpers.

func reqEvent(id uint32, method, path string, end bool) RequestEvent {
	return RequestEvent{
		StreamID: id,
		Header: Header{
			{Name: ":method", Value: method},
			{Name: ":scheme", Value: "https"},
			{Name: ":authority", Value: "localhost"},
			{Name: ":path", Value: path},
		},
		EndStream: end,
	}
}

func dataEvent(id uint32, data string, end bool) DataEvent {
	return DataEvent{StreamID: id, Data: []byte(data), EndStream: end}
}
