// Package prototype serves published prototype bundles from disk and
// instruments their HTML documents with the overlay bootstrap so the comment
// runtime runs inside the review iframe.
package prototype

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/html"

	"github.com/hazyhaar/pinup/auth"
	"github.com/hazyhaar/pinup/horosafe"
	"github.com/hazyhaar/pinup/projects"
	"github.com/hazyhaar/pinup/shield"
)

//go:embed assets
var assets embed.FS

// MaxDocumentSize bounds the HTML documents read for injection or parsing.
const MaxDocumentSize = 8 << 20

// Cache policies. HTML is revalidated so a republished version shows up
// immediately; everything else in a version directory is immutable.
const (
	cacheAssets = "public, max-age=31536000, immutable"
	cacheHTML   = "no-cache"
)

var mimeTypes = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".webp":  "image/webp",
	".ico":   "image/x-icon",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".eot":   "application/vnd.ms-fontobject",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
	".mp3":   "audio/mpeg",
	".wav":   "audio/wav",
	".ogg":   "audio/ogg",
	".wasm":  "application/wasm",
}

// ContentType returns the MIME type served for name.
func ContentType(name string) string {
	if ct, ok := mimeTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Config wires a Server.
type Config struct {
	Projects   *projects.Registry
	Dir        string // root of the version directories (PROTOTYPES_DIR)
	OverlayDir string // holds wasm_exec.js and pinup-overlay.wasm; empty disables them
	Logger     *slog.Logger
}

// Server serves /prototypes and /overlay.
type Server struct {
	projects   *projects.Registry
	dir        string
	overlayDir string
	logger     *slog.Logger
}

// New returns a prototype server.
func New(cfg Config) *Server {
	s := &Server{
		projects:   cfg.Projects,
		dir:        cfg.Dir,
		overlayDir: cfg.OverlayDir,
		logger:     cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Routes mounts the prototype files behind a project session and the
// public overlay assets.
func (s *Server) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(shield.SecurityHeaders(shield.PrototypeHeaders()))
		r.Use(auth.RequireProject)
		r.Get("/prototypes/{project}/{version}/*", s.handleFile)
	})
	r.Get("/overlay/{file}", s.handleOverlay)
}

// EntryURL is the address the review iframe loads for v: the served entry
// document, or the external URL.
func EntryURL(p *projects.Project, v projects.Version) string {
	if !v.Instrumentable() {
		return v.URL
	}
	return "/prototypes/" + p.ID + "/" + v.ID + "/" + v.Entry
}

// Document parses the entry document of a locally served version. It
// returns nil, nil for external versions.
func (s *Server) Document(_ context.Context, p *projects.Project, v projects.Version) (*html.Node, error) {
	if !v.Instrumentable() {
		return nil, nil
	}
	full, err := s.resolve(v, v.Entry)
	if err != nil {
		return nil, fmt.Errorf("prototype: document %s/%s: %w", p.ID, v.ID, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("prototype: document %s/%s: %w", p.ID, v.ID, err)
	}
	defer f.Close()
	data, err := horosafe.LimitedReadAll(f, MaxDocumentSize)
	if err != nil {
		return nil, fmt.Errorf("prototype: document %s/%s: %w", p.ID, v.ID, err)
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("prototype: parse %s/%s: %w", p.ID, v.ID, err)
	}
	return doc, nil
}

func (s *Server) resolve(v projects.Version, rel string) (string, error) {
	base, err := horosafe.SafePath(s.dir, v.Dir)
	if err != nil {
		return "", err
	}
	return horosafe.SafePath(base, rel)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	log := shield.GetLogger(r.Context())
	_, v, err := s.projects.Version(chi.URLParam(r, "project"), chi.URLParam(r, "version"))
	if err != nil || !v.Instrumentable() {
		jsonErr(w, "File not found", http.StatusNotFound)
		return
	}
	rel := chi.URLParam(r, "*")
	if rel == "" || strings.HasSuffix(rel, "/") {
		rel = path.Join(rel, projects.DefaultEntry)
	}
	full, err := s.resolve(v, rel)
	if err != nil {
		jsonErr(w, "Invalid path", http.StatusBadRequest)
		return
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			jsonErr(w, "File not found", http.StatusNotFound)
			return
		}
		log.Error("prototype: open failed", "path", rel, "error", err)
		jsonErr(w, "Failed to fetch file", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		jsonErr(w, "File not found", http.StatusNotFound)
		return
	}

	ct := ContentType(rel)
	if !ShouldInject(ct) {
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Cache-Control", cacheAssets)
		http.ServeContent(w, r, rel, st.ModTime(), f)
		return
	}

	data, err := horosafe.LimitedReadAll(f, MaxDocumentSize)
	if err != nil {
		log.Error("prototype: read failed", "path", rel, "error", err)
		jsonErr(w, "Failed to fetch file", http.StatusInternalServerError)
		return
	}
	if out, err := Inject(data); err != nil {
		log.Warn("prototype: serving uninstrumented document", "path", rel, "error", err)
	} else {
		data = out
	}
	w.Header().Set("Content-Type", ct+"; charset=utf-8")
	w.Header().Set("Cache-Control", cacheHTML)
	w.Write(data)
}

// handleOverlay serves the embedded bootstrap and the runtime build
// artefacts from OverlayDir.
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	switch name {
	case "bootstrap.js":
		data, err := assets.ReadFile("assets/bootstrap.js")
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", ContentType(name))
		w.Header().Set("Cache-Control", cacheHTML)
		w.Write(data)
	case "wasm_exec.js", "pinup-overlay.wasm":
		if s.overlayDir == "" {
			http.Error(w, "overlay runtime not installed", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", ContentType(name))
		w.Header().Set("Cache-Control", cacheHTML)
		http.ServeFile(w, r, filepath.Join(s.overlayDir, name))
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
