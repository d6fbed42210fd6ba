// Package connection is the jetconf-cli transport: RESTCONF requests over
// HTTP/2 with mutual TLS.
package connection
