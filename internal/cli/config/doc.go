// Package config holds the jetconf-cli profile: the server to talk to and
// the client certificate to present. Command-line flags override it.
package config
