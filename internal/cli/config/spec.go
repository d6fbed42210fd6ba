package config

// CLIConfig is the jetconf-cli profile, read from ~/.jetconf/cli.yaml.
type CLIConfig struct {
	// Server is the RESTCONF server, host:port or https://host:port.
	Server string `yaml:"server"`
	// APIRoot is the RESTCONF API root on the server.
	APIRoot string `yaml:"api_root"`
	// Output is the default output format: json, yaml, table or raw.
	Output string `yaml:"output"`

	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig names the PEM files used for mutual TLS.
type TLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// ServerName overrides the name verified in the server certificate.
	ServerName string `yaml:"server_name"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:  "https://localhost:8443",
		APIRoot: "/restconf",
		Output:  "json",
		TLS: TLSConfig{
			CAFile:   "ca.pem",
			CertFile: "client.crt",
			KeyFile:  "client.key",
		},
	}
}
