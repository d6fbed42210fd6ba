// Package logger provides structured logging for jetconf.
//
//   - logger.go: slog handler setup, output selection and file rotation
//   - context.go: context-aware logging with request IDs
//   - redact.go: sensitive attribute redaction
//
// Stream handling code logs with per-connection and per-stream attributes
// (remote, user, stream, method, path, request_id).
package logger
