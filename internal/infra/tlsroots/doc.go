// Package tlsroots provides TLS certificate management for jetconf.
//
//   - roots.go: trust anchor pools and mutual TLS configurations
//   - watcher.go: server certificate hot-reload via fsnotify
//   - identity.go: client identity extraction from peer certificates
//
// The tlstest subpackage generates throwaway CA, server and client
// certificates for tests.
package tlsroots
