package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/jetconf-go/internal/infra/tlsroots/tlstest"
)

func TestFlagOverrides(t *testing.T) {
	fs := flag.NewFlagSet("jetconf-server", flag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("addr", "", "")
	fs.String("data-dir", "", "")
	fs.String("log-level", "", "")

	if err := fs.Parse([]string{"-config", "c.yaml", "-addr", "127.0.0.1:9443", "-log-level", "debug"}); err != nil {
		t.Fatal(err)
	}

	got := flagOverrides(fs)
	want := map[string]string{"server.addr": "127.0.0.1:9443", "log.level": "debug"}
	if len(got) != len(want) {
		t.Fatalf("flagOverrides() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	b := tlstest.New(t, "admin@example.com")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
server:
  addr: "0.0.0.0:8443"
tls:
  cert_file: %q
  key_file: %q
  ca_file: %q
log:
  level: info
`, b.ServerCertFile, b.ServerKeyFile, b.CAFile)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JETCONF_LOG_LEVEL", "warn")

	dataDir := filepath.Join(dir, "data")
	cfg, err := loadConfig(path, map[string]string{
		"server.addr":   "127.0.0.1:9443",
		"datastore.dir": dataDir,
		"log.level":     "debug",
	})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9443" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Datastore.Dir != dataDir {
		t.Errorf("Datastore.Dir = %q", cfg.Datastore.Dir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, flag should beat env", cfg.Log.Level)
	}
	if cfg.TLS.CAFile != b.CAFile {
		t.Errorf("TLS.CAFile = %q, file values must survive", cfg.TLS.CAFile)
	}

	_, err = loadConfig(path, map[string]string{"log.level": "loud"})
	if err == nil || !strings.Contains(err.Error(), "log.level") {
		t.Errorf("loadConfig() with bad level error = %v", err)
	}
}
