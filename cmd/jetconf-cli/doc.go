// Package main provides the entry point for jetconf-cli.
//
// The CLI talks RESTCONF to jetconf-server over HTTP/2 with a client
// certificate:
//
//   - Datastore access (get, put, post, delete)
//   - Operation invocation (op)
//   - Profile management (config show, config init)
//
// Usage:
//
//	jetconf-cli [global flags] command [flags] [args]
//	jetconf-cli -s https://localhost:8443 get --depth 2 ietf-interfaces:interfaces
//	jetconf-cli op jetconf:ping '{"message": "hello"}'
package main
