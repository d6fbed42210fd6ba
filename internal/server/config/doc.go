// Package config provides the jetconf server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: startup validation (TLS material, paths, limits)
//   - dump.go: YAML rendering of the effective configuration
//
// Configuration is loaded via internal/infra/confloader and supports
// a YAML file overridden by JETCONF_* environment variables.
package config
