package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()

	tests := []struct {
		name  string
		value string
	}{
		{"Version", info.Version},
		{"Commit", info.Commit},
		{"BuildTime", info.BuildTime},
		{"GoVersion", info.GoVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value == "" {
				t.Errorf("%s field should not be empty", tt.name)
			}
		})
	}

	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestString(t *testing.T) {
	s := String()

	if !strings.HasPrefix(s, Version+" (") {
		t.Errorf("String() = %q, want prefix %q", s, Version+" (")
	}
	if !strings.Contains(s, "built at "+BuildTime) {
		t.Errorf("String() = %q, missing build time", s)
	}
	if !strings.HasSuffix(s, runtime.Version()) {
		t.Errorf("String() = %q, missing go version", s)
	}
}

func TestServerHeader(t *testing.T) {
	if got, want := ServerHeader("jetconf-h2"), "jetconf-h2/"+Version; got != want {
		t.Errorf("ServerHeader() = %q, want %q", got, want)
	}
}
