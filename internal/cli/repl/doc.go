// Package repl provides the interactive shell of jetconf-cli.
//
//   - repl.go: read loop, built-in commands and dispatch
//   - split.go: shell-style splitting of input lines
//   - completer.go: command name resolution by unique prefix
//   - history.go: command history persistence
//
// Lines are split into words honoring single quotes, double quotes and
// backslash escapes, so JSON bodies can be typed inline:
//
//	jetconf> put ex:top '{"name": "a b"}'
package repl
