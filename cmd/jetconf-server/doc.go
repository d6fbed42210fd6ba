// Package main provides the entry point for jetconf-server.
//
// jetconf-server serves a RESTCONF datastore over HTTP/2 with mutual TLS
// authentication. Configuration comes from an optional YAML file,
// JETCONF_ environment variables and the -addr, -data-dir and -log-level
// flags, in increasing precedence.
//
// Usage:
//
//	jetconf-server -config /etc/jetconf/config.yaml
//	jetconf-server -print-config
//	jetconf-server -config config.yaml -addr 127.0.0.1:9443 -log-level debug
//	jetconf-server -version
package main
