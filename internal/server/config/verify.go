package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/jetconf-go/internal/telemetry/logger"
)

// Verify validates the configuration. Any error is fatal at startup.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyTLS(&cfg.TLS); err != nil {
		return err
	}
	if err := verifyHTTP(&cfg.HTTP); err != nil {
		return err
	}
	if err := verifyDatastore(&cfg.Datastore); err != nil {
		return err
	}
	if !logger.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Addr == "" {
		return errors.New("server.addr is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("server.addr %q: %w", cfg.Addr, err)
	}
	if cfg.HandshakeTimeout < 0 || cfg.ShutdownTimeout < 0 {
		return errors.New("server timeouts must not be negative")
	}
	return nil
}

func verifyTLS(cfg *TLSSection) error {
	files := []struct {
		key  string
		path string
	}{
		{"tls.cert_file", cfg.CertFile},
		{"tls.key_file", cfg.KeyFile},
		{"tls.ca_file", cfg.CAFile},
	}
	for _, f := range files {
		if f.path == "" {
			return fmt.Errorf("%s is required", f.key)
		}
		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
	}
	return nil
}

func verifyHTTP(cfg *HTTPSection) error {
	if !strings.HasPrefix(cfg.APIRoot, "/") || (len(cfg.APIRoot) > 1 && strings.HasSuffix(cfg.APIRoot, "/")) {
		return fmt.Errorf("http.api_root %q must start with '/' and not end with '/'", cfg.APIRoot)
	}
	if cfg.UploadSizeLimit <= 0 {
		return errors.New("http.upload_size_limit must be at least 1")
	}
	if cfg.RateLimit < 0 {
		return errors.New("http.rate_limit must not be negative")
	}
	return nil
}

func verifyDatastore(cfg *DatastoreSection) error {
	if cfg.InMemory {
		return nil
	}
	if cfg.Dir == "" {
		return errors.New("datastore.dir is required unless datastore.in_memory is set")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return fmt.Errorf("cannot create datastore directory: %w", err)
	}
	return nil
}
