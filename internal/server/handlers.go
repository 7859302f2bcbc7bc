package server

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/staticpress/internal/version"
)

//go:embed livereload.js
var liveReloadScript []byte

// staticHandler serves the root read-only. HTML pages get the live reload
// client injected when enabled.
func (s *Server) staticHandler() http.Handler {
	files := http.FileServer(http.Dir(s.opts.Root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if s.opts.LiveReload && s.opts.InjectScript {
			if name, ok := s.htmlFile(r.URL.Path); ok {
				s.serveInjected(w, r, name)
				return
			}
		}

		files.ServeHTTP(w, r)
	})
}

// htmlFile maps a request path to an HTML file under the root. Directory
// requests without a trailing slash are left to the file server so it can
// redirect.
func (s *Server) htmlFile(urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	name := filepath.Join(s.opts.Root, filepath.FromSlash(clean))

	info, err := os.Stat(name)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		if !strings.HasSuffix(urlPath, "/") {
			return "", false
		}
		name = filepath.Join(name, "index.html")
		if info, err = os.Stat(name); err != nil || info.IsDir() {
			return "", false
		}
	} else if strings.HasSuffix(clean, "/index.html") {
		// The file server redirects these to the directory.
		return "", false
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return name, true
	}
	return "", false
}

func (s *Server) serveInjected(w http.ResponseWriter, r *http.Request, name string) {
	info, err := os.Stat(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	data, err := os.ReadFile(name)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	out, err := InjectLiveReload(data)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Serving page without live reload", "file", name)
		out = data
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, filepath.Base(name), info.ModTime(), bytes.NewReader(out))
}

func (s *Server) handleLiveReloadScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	http.ServeContent(w, r, "livereload.js", time.Time{}, bytes.NewReader(liveReloadScript))
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"root":       s.opts.Root,
		"livereload": s.opts.LiveReload,
		"clients":    s.ClientCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}
