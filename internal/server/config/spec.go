package config

import (
	"net"
	"path"
	"time"
)

// ServerConfig is the root configuration for jetconf-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server" yaml:"server"`
	TLS       TLSSection       `koanf:"tls" yaml:"tls"`
	HTTP      HTTPSection      `koanf:"http" yaml:"http"`
	NACM      NACMSection      `koanf:"nacm" yaml:"nacm"`
	Datastore DatastoreSection `koanf:"datastore" yaml:"datastore"`
	Metrics   MetricsSection   `koanf:"metrics" yaml:"metrics"`
	Log       LogSection       `koanf:"log" yaml:"log"`
}

// ServerSection configures the HTTP/2 listener.
type ServerSection struct {
	// Addr is the listen address, host:port.
	Addr string `koanf:"addr" yaml:"addr"`

	// ListenLocalhostOnly binds the port of Addr on 127.0.0.1 only.
	ListenLocalhostOnly bool `koanf:"listen_localhost_only" yaml:"listen_localhost_only"`

	// ServerName is sent in the "server" header of every response.
	ServerName string `koanf:"server_name" yaml:"server_name"`

	// HandshakeTimeout bounds the TLS handshake of a new connection.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" yaml:"handshake_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ListenAddr returns the effective listen address.
func (s ServerSection) ListenAddr() string {
	if !s.ListenLocalhostOnly {
		return s.Addr
	}
	_, port, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return s.Addr
	}
	return net.JoinHostPort("127.0.0.1", port)
}

// TLSSection configures mutual TLS.
type TLSSection struct {
	CertFile string `koanf:"cert_file" yaml:"cert_file"`
	KeyFile  string `koanf:"key_file" yaml:"key_file"`
	// CAFile is the trust anchor client certificates are verified against.
	CAFile string `koanf:"ca_file" yaml:"ca_file"`
	// Reload re-reads the server certificate when its files change.
	Reload bool `koanf:"reload" yaml:"reload"`
}

// HTTPSection configures RESTCONF routing.
type HTTPSection struct {
	APIRoot        string `koanf:"api_root" yaml:"api_root"`
	DocRoot        string `koanf:"doc_root" yaml:"doc_root"`
	DocDefaultName string `koanf:"doc_default_name" yaml:"doc_default_name"`

	// UploadSizeLimit is the maximum request body size in MiB.
	UploadSizeLimit int `koanf:"upload_size_limit" yaml:"upload_size_limit"`

	// RateLimit is the per-connection request rate (requests/second). 0 disables it.
	RateLimit int `koanf:"rate_limit" yaml:"rate_limit"`
}

// DataRoot returns the data resource namespace prefix.
func (h HTTPSection) DataRoot() string {
	return path.Join(h.APIRoot, "data")
}

// OpsRoot returns the operations namespace prefix.
func (h HTTPSection) OpsRoot() string {
	return path.Join(h.APIRoot, "operations")
}

// UploadLimitBytes returns UploadSizeLimit in bytes.
func (h HTTPSection) UploadLimitBytes() int64 {
	return int64(h.UploadSizeLimit) << 20
}

// NACMSection configures access control.
type NACMSection struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`
	// AllowedUsers may write data, invoke operations and read ACM data.
	AllowedUsers []string `koanf:"allowed_users" yaml:"allowed_users"`
}

// DatastoreSection configures the document store.
type DatastoreSection struct {
	Dir      string `koanf:"dir" yaml:"dir"`
	InMemory bool   `koanf:"in_memory" yaml:"in_memory"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	// Addr is the plain HTTP listen address for /metrics. Empty disables it.
	Addr string `koanf:"addr" yaml:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level      string `koanf:"level" yaml:"level"`
	Format     string `koanf:"format" yaml:"format"`
	Output     string `koanf:"output" yaml:"output"`
	MaxSizeMB  int    `koanf:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days" yaml:"max_age_days"`
}
