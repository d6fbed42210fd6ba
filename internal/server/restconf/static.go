package restconf

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yndnr/jetconf-go/internal/server/h2server"
	"github.com/yndnr/jetconf-go/internal/telemetry/logger"
)

// serveFile answers a GET with a file below the document root.
func (h *Handler) serveFile(s *h2server.Session, r *h2server.Request) error {
	log := logger.L(r.Context())

	name := filepath.Join(h.cfg.DocRoot, filepath.FromSlash(safePath(r.Path)))
	if fi, err := os.Stat(name); err == nil && fi.IsDir() {
		name = filepath.Join(name, h.cfg.DocDefaultName)
	}

	body, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			log.Warn("cannot open requested file", "user", s.User(), "file", name)
			return s.SendEmpty(r.StreamID, http.StatusNotFound, true)
		}
		return h.fail(s, r, err)
	}

	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	log.Info("serving file", "user", s.User(), "file", name, "content_type", ctype)

	return s.SendResponse(r.StreamID, &h2server.Response{
		Status:      http.StatusOK,
		ContentType: ctype,
		Body:        body,
	})
}

// safePath keeps letters, digits and "/-_." of a request path and strips
// parent references, so the result always stays below the document root.
func safePath(p string) string {
	var b strings.Builder
	for _, c := range p {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '/', c == '-', c == '_', c == '.':
			b.WriteRune(c)
		}
	}
	out := strings.ReplaceAll(b.String(), "..", "")
	return strings.Trim(out, "/")
}
