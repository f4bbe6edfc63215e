package review

import (
	"embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/pinup/auth"
	"github.com/hazyhaar/pinup/comments"
	"github.com/hazyhaar/pinup/projects"
	"github.com/hazyhaar/pinup/prototype"
	"github.com/hazyhaar/pinup/shield"
)

//go:embed assets
var assets embed.FS

// Login validation messages.
const (
	errFieldsRequired = "All fields are required"
	errNameTooShort   = "Name must be at least 2 characters"
	errUnknownProject = "Project not found"
	errBadPassword    = "Invalid password"
)

// ServerConfig wires the review pages.
type ServerConfig struct {
	Projects *projects.Registry
	Store    Store
	Secret   []byte // session signing key
	// SecureCookies marks the session cookie Secure. Requests arriving over
	// TLS or with X-Forwarded-Proto: https get it regardless.
	SecureCookies bool
	// LoginLimit wraps the login POST handlers, typically the shield rate
	// limiter. Nil means no limit.
	LoginLimit func(http.Handler) http.Handler
	// Hub, when set, receives every running controller so store changes
	// can be pushed to open pages.
	Hub          *Hub
	Logger       *slog.Logger
	ReadyTimeout time.Duration
	InboundRate  rate.Limit
	InboundBurst int
}

// Server serves the login, logout and review pages, the controller
// websocket and the host page assets.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger
}

// NewServer returns the review page server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LoginLimit == nil {
		cfg.LoginLimit = func(h http.Handler) http.Handler { return h }
	}
	if cfg.InboundRate == 0 {
		cfg.InboundRate = DefaultInboundRate
	}
	if cfg.InboundBurst == 0 {
		cfg.InboundBurst = DefaultInboundBurst
	}
	return &Server{cfg: cfg, logger: cfg.Logger}
}

// Routes mounts the pages on r. The auth middleware must run before them.
func (s *Server) Routes(r chi.Router) {
	r.Handle("/static/*", http.StripPrefix("/static/", http.HandlerFunc(s.handleStatic)))

	r.Get("/{project}/login", s.handleLoginPage)
	r.With(s.cfg.LoginLimit).Post("/{project}/login", s.handleLoginForm)
	r.Get("/{project}/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireProject)
		r.Get("/{project}", s.handleReview)
		r.Get("/{project}/ws", s.handleWS)
	})
}

// AuthRoutes mounts the JSON login and logout endpoints, typically under /api.
func (s *Server) AuthRoutes(r chi.Router) {
	r.With(s.cfg.LoginLimit).Post("/auth/login", s.handleAPILogin)
	r.Post("/auth/logout", s.handleAPILogout)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path
	if name == "" || strings.Contains(name, "/") {
		http.NotFound(w, r)
		return
	}
	data, err := assets.ReadFile("assets/" + name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", prototype.ContentType(name)+"; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// login checks credentials and issues the session cookie. It returns the
// role, or a user-facing message and status code.
func (s *Server) login(w http.ResponseWriter, r *http.Request, projectID, password, name string) (role, msg string, code int) {
	name = strings.TrimSpace(name)
	if projectID == "" || password == "" || name == "" {
		return "", errFieldsRequired, http.StatusBadRequest
	}
	if len([]rune(name)) < 2 {
		return "", errNameTooShort, http.StatusBadRequest
	}
	if _, err := s.cfg.Projects.Get(projectID); err != nil {
		return "", errUnknownProject, http.StatusNotFound
	}
	role, err := s.cfg.Projects.Authenticate(projectID, password)
	if err != nil {
		shield.GetLogger(r.Context()).Info("review: login rejected", "project", projectID)
		return "", errBadPassword, http.StatusUnauthorized
	}
	secure := s.cfg.SecureCookies || r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
	if _, err := auth.Issue(w, s.cfg.Secret, projectID, name, role, secure); err != nil {
		shield.GetLogger(r.Context()).Error("review: issue session", "error", err)
		return "", "An error occurred during login", http.StatusInternalServerError
	}
	shield.GetLogger(r.Context()).Info("review: login", "project", projectID, "user", name, "role", role)
	return role, "", http.StatusOK
}

func (s *Server) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"projectId"`
		Password  string `json:"password"`
		Name      string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": errFieldsRequired})
		return
	}
	role, msg, code := s.login(w, r, req.ProjectID, req.Password, req.Name)
	if msg != "" {
		writeJSON(w, code, map[string]any{"success": false, "error": msg})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "userType": role})
}

func (s *Server) handleAPILogout(w http.ResponseWriter, _ *http.Request) {
	auth.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	p, err := s.cfg.Projects.Get(chi.URLParam(r, "project"))
	if err != nil {
		renderNotFound(w)
		return
	}
	if c := auth.GetClaims(r.Context()); c != nil && c.ProjectID == p.ID {
		http.Redirect(w, r, "/"+url.PathEscape(p.ID), http.StatusSeeOther)
		return
	}
	data := loginData{ProjectID: p.ID, ProjectName: p.Name}
	if f := shield.GetFlash(r.Context()); f != nil {
		data.Error = f.Message
	}
	renderPage(w, http.StatusOK, loginPage, data)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project")
	back := "/" + url.PathEscape(projectID) + "/login"
	if err := r.ParseForm(); err != nil {
		shield.SetFlash(w, "error", errFieldsRequired)
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	_, msg, code := s.login(w, r, projectID, r.PostForm.Get("password"), r.PostForm.Get("name"))
	switch {
	case code == http.StatusNotFound:
		renderNotFound(w)
	case msg != "":
		shield.SetFlash(w, "error", msg)
		http.Redirect(w, r, back, http.StatusSeeOther)
	default:
		http.Redirect(w, r, "/"+url.PathEscape(projectID), http.StatusSeeOther)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	http.Redirect(w, r, "/"+url.PathEscape(chi.URLParam(r, "project"))+"/login", http.StatusSeeOther)
}

// version resolves the requested ?version=, falling back to the latest
// version when it is absent or unknown.
func (s *Server) version(r *http.Request) (*projects.Project, projects.Version, bool) {
	p, err := s.cfg.Projects.Get(chi.URLParam(r, "project"))
	if err != nil {
		return nil, projects.Version{}, false
	}
	v, err := p.Version(r.URL.Query().Get("version"))
	if err != nil {
		if v, err = p.Version(""); err != nil {
			return nil, projects.Version{}, false
		}
	}
	return p, v, true
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	p, v, ok := s.version(r)
	if !ok {
		renderNotFound(w)
		return
	}
	claims := auth.GetClaims(r.Context())
	data := reviewData{
		Project:  p,
		Current:  v,
		FrameURL: prototype.EntryURL(p, v),
		WSURL:    "/" + url.PathEscape(p.ID) + "/ws?" + url.Values{"version": {v.ID}}.Encode(),
		UserName: claims.UserName,
		Admin:    claims.IsAdmin(),
	}
	if data.Admin {
		q := url.Values{"projectId": {p.ID}, "versionId": {v.ID}}.Encode()
		data.ExportURL = "/api/export?" + q
		data.SnapshotURL = "/api/export/snapshot.png?" + q
	}
	renderPage(w, http.StatusOK, reviewPage, data)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	p, v, ok := s.version(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	claims := auth.GetClaims(r.Context())
	author := comments.Author{Name: claims.UserName, Type: comments.AuthorType(claims.UserType)}
	reqLog := shield.GetLogger(r.Context())

	serve(w, r, reqLog.With("project", p.ID, "version", v.ID, "user", author.Name), s.cfg.Hub, s.cfg.InboundRate, s.cfg.InboundBurst, func(out Output) *Controller {
		return New(Config{
			Project:      p,
			Version:      v,
			Author:       author,
			Store:        s.cfg.Store,
			Output:       out,
			Logger:       reqLog,
			ReadyTimeout: s.cfg.ReadyTimeout,
		})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
