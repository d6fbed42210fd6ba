// Package output renders RESTCONF documents for jetconf-cli.
//
// Documents arrive as JSON and can be printed as indented JSON, YAML, a
// two-column table of top-level members, or the raw response body.
package output
