package h2server

import (
	"net/http"
	"strconv"
)

// Response is a complete answer to one stream.
type Response struct {
	Status      int
	ContentType string
	// Header holds extra fields; names are lowercased on send.
	Header Header
	Body   []byte
}

// SendHeaders writes a header block on a stream. Most handlers use
// SendResponse instead.
func (s *Session) SendHeaders(streamID uint32, h Header, endStream bool) error {
	if st := s.track(streamID); st != nil {
		st.headersSent = true
		if code, err := strconv.Atoi(h.Get(":status")); err == nil {
			st.status = code
		}
		st.ended = st.ended || endStream
	}
	return s.engine.WriteHeaders(streamID, h, endStream)
}

// SendData writes body bytes on a stream, ending it when endStream is set.
func (s *Session) SendData(streamID uint32, data []byte, endStream bool) error {
	if st := s.track(streamID); st != nil {
		st.ended = st.ended || endStream
	}
	return s.engine.WriteData(streamID, data, endStream)
}

// SendResponse writes resp and ends the stream. The server header,
// content-length and, for dispatched streams, x-request-id are added.
func (s *Session) SendResponse(streamID uint32, resp *Response) error {
	h := make(Header, 0, 5+len(resp.Header))
	h.Add(":status", strconv.Itoa(resp.Status))
	if resp.ContentType != "" {
		h.Add("content-type", resp.ContentType)
	}
	h.Add("content-length", strconv.Itoa(len(resp.Body)))
	h.Add("server", s.cfg.ServerName)
	if st := s.track(streamID); st != nil && st.requestID != "" {
		h.Add("x-request-id", st.requestID)
	}
	for _, f := range resp.Header {
		h.Add(f.Name, f.Value)
	}

	if len(resp.Body) == 0 {
		return s.SendHeaders(streamID, h, true)
	}
	if err := s.SendHeaders(streamID, h, false); err != nil {
		return err
	}
	return s.SendData(streamID, resp.Body, true)
}

// SendEmpty writes a minimal text/plain response whose body, when
// includeBody is set, is "<code> <reason>\n", and ends the stream.
func (s *Session) SendEmpty(streamID uint32, code int, includeBody bool) error {
	var body []byte
	if includeBody {
		body = []byte(strconv.Itoa(code) + " " + http.StatusText(code) + "\n")
	}
	return s.SendResponse(streamID, &Response{
		Status:      code,
		ContentType: "text/plain",
		Body:        body,
	})
}

// track returns the state of streamID when it is the dispatched stream.
func (s *Session) track(streamID uint32) *streamState {
	if s.active != nil && s.active.id == streamID {
		return s.active
	}
	return nil
}
