package config

import "gopkg.in/yaml.v3"

// Dump renders the configuration as YAML, for -print-config and startup logs.
func Dump(cfg *ServerConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}
