package config

import "time"

// Default configuration values.
const (
	DefaultAddr             = ":8443"
	DefaultServerName       = "jetconf-h2"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultShutdownTimeout  = 30 * time.Second

	DefaultCertFile = "server.crt"
	DefaultKeyFile  = "server.key"
	DefaultCAFile   = "ca.pem"

	DefaultAPIRoot         = "/restconf"
	DefaultDocRoot         = "doc-root"
	DefaultDocDefaultName  = "index.html"
	DefaultUploadSizeLimit = 1

	DefaultDatastoreDir = "/var/lib/jetconf/data"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultLogOutput = "stdout"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Addr:             DefaultAddr,
			ServerName:       DefaultServerName,
			HandshakeTimeout: DefaultHandshakeTimeout,
			ShutdownTimeout:  DefaultShutdownTimeout,
		},
		TLS: TLSSection{
			CertFile: DefaultCertFile,
			KeyFile:  DefaultKeyFile,
			CAFile:   DefaultCAFile,
			Reload:   true,
		},
		HTTP: HTTPSection{
			APIRoot:         DefaultAPIRoot,
			DocRoot:         DefaultDocRoot,
			DocDefaultName:  DefaultDocDefaultName,
			UploadSizeLimit: DefaultUploadSizeLimit,
		},
		NACM: NACMSection{
			Enabled: true,
		},
		Datastore: DatastoreSection{
			Dir: DefaultDatastoreDir,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
			Output: DefaultLogOutput,
		},
	}
}
