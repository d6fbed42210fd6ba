package h2server

// PendingRequest is a PUT or POST whose body has not fully arrived.
type PendingRequest struct {
	StreamID uint32
	Method   string
	Path     string
	RawQuery string
	Header   Header
	Body     []byte
}

// Tracker maps stream ids to pending requests for one connection.
// It is owned by a single session goroutine and takes no locks.
type Tracker struct {
	m map[uint32]*PendingRequest
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{m: make(map[uint32]*PendingRequest)}
}

// Add stores p under its stream id. A stream holds at most one pending
// request; Add reports whether an earlier one was replaced.
func (t *Tracker) Add(p *PendingRequest) (replaced bool) {
	_, replaced = t.m[p.StreamID]
	t.m[p.StreamID] = p
	return replaced
}

// Get returns the pending request for id, or nil.
func (t *Tracker) Get(id uint32) *PendingRequest {
	return t.m[id]
}

// Take removes and returns the pending request for id, or nil.
func (t *Tracker) Take(id uint32) *PendingRequest {
	p, ok := t.m[id]
	if !ok {
		return nil
	}
	delete(t.m, id)
	return p
}

// Drop discards the pending request for id and reports whether one existed.
func (t *Tracker) Drop(id uint32) bool {
	_, ok := t.m[id]
	delete(t.m, id)
	return ok
}

// Drain discards every pending request and returns how many there were.
func (t *Tracker) Drain() int {
	n := len(t.m)
	clear(t.m)
	return n
}

// Len returns the number of pending requests.
func (t *Tracker) Len() int {
	return len(t.m)
}
