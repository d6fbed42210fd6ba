// Package h2server serves RESTCONF requests over HTTP/2 on mutually
// authenticated TLS connections.
//
// Each accepted connection gets one Session. The session pulls events
// from an Engine (the HTTP/2 framing layer) one at a time and drives the
// per-stream request lifecycle:
//
//   - GET and DELETE are dispatched as soon as their headers arrive.
//   - PUT and POST are held as pending requests until the body is
//     complete, then dispatched with the full body.
//   - A stream reset or a closed connection discards pending requests
//     without running any handler.
//
// Handlers are selected through a shared, read-only route.Table and run
// synchronously on the session goroutine. They answer through the
// session's send methods on the stream they were given.
package h2server
