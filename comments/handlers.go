package comments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/html"

	"github.com/hazyhaar/pinup/kit"
	"github.com/hazyhaar/pinup/projects"
	"github.com/hazyhaar/pinup/shield"
)

// DocumentFunc returns the parsed entry document of a locally served
// version. It returns nil, nil for versions pinup cannot read.
type DocumentFunc func(ctx context.Context, p *projects.Project, v projects.Version) (*html.Node, error)

// Snapshotter renders a version with its comment markers as a PNG and
// reports the comment ids whose selector matched nothing.
type Snapshotter interface {
	Snapshot(ctx context.Context, p *projects.Project, v projects.Version, width int, list []Comment) (png []byte, unresolved []string, err error)
}

// APIConfig wires the HTTP API.
type APIConfig struct {
	Store     *Store
	Projects  *projects.Registry
	Documents DocumentFunc // nil = exports skip selector checks
	Snapshots Snapshotter  // nil = snapshot endpoint answers 503
	Logger    *slog.Logger
	Now       func() time.Time
}

// API serves /comments and /export. Every handler expects the session to be
// present in the request context (kit project, user name and role).
type API struct {
	store     *Store
	projects  *projects.Registry
	documents DocumentFunc
	snapshots Snapshotter
	logger    *slog.Logger
	now       func() time.Time
}

// NewAPI returns the comment API.
func NewAPI(cfg APIConfig) *API {
	a := &API{
		store:     cfg.Store,
		projects:  cfg.Projects,
		documents: cfg.Documents,
		snapshots: cfg.Snapshots,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Routes mounts the API on r, typically under /api.
func (a *API) Routes(r chi.Router) {
	r.Get("/comments", a.handleList)
	r.Post("/comments", a.handleCreate)
	r.Delete("/comments/{id}", a.handleDelete)
	r.Get("/export", a.handleExport)
	r.Get("/export/snapshot.png", a.handleSnapshot)
}

// Handler returns the API as a standalone handler.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	a.Routes(r)
	return r
}

// SessionAuthor reads the author and project the request acts for.
func SessionAuthor(ctx context.Context) (projectID string, a Author, ok bool) {
	s, ok := kit.SessionFrom(ctx)
	a = Author{Name: s.UserName, Type: AuthorType(s.Role)}
	if !ok || (a.Type != Client && a.Type != Admin) {
		return "", Author{}, false
	}
	return s.ProjectID, a, true
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	projectID, versionID := r.URL.Query().Get("projectId"), r.URL.Query().Get("versionId")
	if projectID == "" || versionID == "" {
		jsonErr(w, "projectId and versionId are required", http.StatusBadRequest)
		return
	}
	session, _, ok := SessionAuthor(r.Context())
	if !ok {
		jsonErr(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if session != projectID {
		jsonErr(w, "Access denied to this project", http.StatusForbidden)
		return
	}

	list, err := a.store.List(r.Context(), projectID, versionID)
	if err != nil {
		a.log(r).Error("comments: list failed", "error", err)
		serverErr(w, r, "Failed to fetch comments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": list})
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	var d Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		jsonErr(w, "invalid request body", http.StatusBadRequest)
		return
	}
	session, author, ok := SessionAuthor(r.Context())
	if !ok {
		jsonErr(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if session != d.ProjectID {
		jsonErr(w, "Access denied to this project", http.StatusForbidden)
		return
	}
	if strings.TrimSpace(d.Text) == "" || strings.TrimSpace(d.ElementSelector) == "" {
		jsonErr(w, "text and elementSelector are required", http.StatusBadRequest)
		return
	}
	if _, _, err := a.projects.Version(d.ProjectID, d.VersionID); err != nil || d.VersionID == "" {
		jsonErr(w, "Version not found", http.StatusNotFound)
		return
	}

	c, err := a.store.Create(r.Context(), author, d)
	if errors.Is(err, ErrInvalid) {
		jsonErr(w, "text and elementSelector are required", http.StatusBadRequest)
		return
	}
	if err != nil {
		a.log(r).Error("comments: create failed", "error", err)
		serverErr(w, r, "Failed to create comment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "comment": c})
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, author, ok := SessionAuthor(r.Context())
	if !ok {
		jsonErr(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	c, err := a.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		jsonErr(w, "Comment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.log(r).Error("comments: get failed", "id", id, "error", err)
		serverErr(w, r, "Failed to delete comment", http.StatusInternalServerError)
		return
	}
	if session != c.ProjectID {
		jsonErr(w, "Access denied to this project", http.StatusForbidden)
		return
	}
	if !author.CanDelete(c) {
		jsonErr(w, "You can only delete your own comments", http.StatusForbidden)
		return
	}

	deleted, err := a.store.Delete(r.Context(), id)
	if err != nil || !deleted {
		a.log(r).Error("comments: delete failed", "id", id, "deleted", deleted, "error", err)
		serverErr(w, r, "Failed to delete comment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	p, v, ok := a.adminVersion(w, r)
	if !ok {
		return
	}
	md, err := a.export(r.Context(), p, v)
	if err != nil {
		a.log(r).Error("comments: export failed", "project", p.ID, "version", v.ID, "error", err)
		serverErr(w, r, "Failed to export comments", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(md))
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	p, v, ok := a.adminVersion(w, r)
	if !ok {
		return
	}
	if a.snapshots == nil {
		jsonErr(w, "Snapshots are disabled", http.StatusServiceUnavailable)
		return
	}
	width := 0
	if s := r.URL.Query().Get("width"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonErr(w, "width must be a positive integer", http.StatusBadRequest)
			return
		}
		width = n
	}

	list, err := a.store.List(r.Context(), p.ID, v.ID)
	if err != nil {
		a.log(r).Error("comments: list failed", "error", err)
		serverErr(w, r, "Failed to fetch comments", http.StatusInternalServerError)
		return
	}
	png, unresolved, err := a.snapshots.Snapshot(r.Context(), p, v, width, list)
	if err != nil {
		a.log(r).Error("comments: snapshot failed", "project", p.ID, "version", v.ID, "error", err)
		serverErr(w, r, "Failed to render snapshot", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if len(unresolved) > 0 {
		w.Header().Set("X-Pinup-Unresolved", strings.Join(unresolved, ","))
	}
	w.Write(png)
}

// adminVersion runs the export preconditions in the order the API reports
// them: parameters, session, role, project scope, catalogue lookup.
func (a *API) adminVersion(w http.ResponseWriter, r *http.Request) (*projects.Project, projects.Version, bool) {
	projectID, versionID := r.URL.Query().Get("projectId"), r.URL.Query().Get("versionId")
	if projectID == "" || versionID == "" {
		jsonErr(w, "projectId and versionId are required", http.StatusBadRequest)
		return nil, projects.Version{}, false
	}
	session, author, ok := SessionAuthor(r.Context())
	if !ok {
		jsonErr(w, "Unauthorized", http.StatusUnauthorized)
		return nil, projects.Version{}, false
	}
	if author.Type != Admin {
		jsonErr(w, "Export is only available to admins", http.StatusForbidden)
		return nil, projects.Version{}, false
	}
	if session != projectID {
		jsonErr(w, "Access denied to this project", http.StatusForbidden)
		return nil, projects.Version{}, false
	}
	p, err := a.projects.Get(projectID)
	if err != nil {
		jsonErr(w, "Project not found", http.StatusNotFound)
		return nil, projects.Version{}, false
	}
	v, err := p.Version(versionID)
	if err != nil {
		jsonErr(w, "Version not found", http.StatusNotFound)
		return nil, projects.Version{}, false
	}
	return p, v, true
}

// export renders the markdown export of one version.
func (a *API) export(ctx context.Context, p *projects.Project, v projects.Version) (string, error) {
	list, err := a.store.List(ctx, p.ID, v.ID)
	if err != nil {
		return "", err
	}
	meta := ExportMeta{ProjectName: p.Name, VersionLabel: v.Label, ExportedAt: a.now()}
	if a.documents != nil && v.Instrumentable() {
		doc, err := a.documents(ctx, p, v)
		if err != nil {
			a.logger.Warn("comments: export without selector check", "project", p.ID, "version", v.ID, "error", err)
		}
		meta.Document = doc
	}
	return Markdown(meta, list), nil
}

func (a *API) log(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(shield.LoggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return a.logger
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// serverErr reports a server-side failure with the request's trace id, which
// matches the trace_id field of the logged error.
func serverErr(w http.ResponseWriter, r *http.Request, msg string, code int) {
	body := map[string]string{"error": msg}
	if id := kit.GetTraceID(r.Context()); id != "" {
		body["traceId"] = id
	}
	writeJSON(w, code, body)
}
