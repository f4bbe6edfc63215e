package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/pinup/dbopen"
)

const defaultMaintenanceMessage = "pinup is being updated, please come back in a few minutes."

// MaintenanceStatus is the switch as last read from the maintenance table.
type MaintenanceStatus struct {
	Active  bool      `json:"active"`
	Message string    `json:"message"`
	Since   time.Time `json:"since,omitzero"`
}

// MaintenanceMode answers 503 while the switch is on, typically while
// prototype bundles are replaced on disk. The row lives in the maintenance
// table and is cached; a missing table means off.
type MaintenanceMode struct {
	db      *sql.DB
	status  atomic.Pointer[MaintenanceStatus]
	exclude []string
	logger  *slog.Logger
}

// NewMaintenanceMode reads the switch from db. Paths under excludePrefixes
// are always served.
func NewMaintenanceMode(db *sql.DB, excludePrefixes ...string) *MaintenanceMode {
	m := &MaintenanceMode{db: db, exclude: excludePrefixes, logger: slog.Default()}
	m.status.Store(&MaintenanceStatus{Message: defaultMaintenanceMessage})
	m.reload()
	return m
}

// Set flips the switch and applies it at once. An empty message keeps the
// stored one.
func (m *MaintenanceMode) Set(ctx context.Context, active bool, message string) error {
	_, err := dbopen.Exec(ctx, m.db,
		`INSERT INTO maintenance (id, active, message, updated_at)
		 VALUES (1, ?1, COALESCE(NULLIF(?2, ''), ?3), ?4)
		 ON CONFLICT(id) DO UPDATE SET active = excluded.active,
		     message = COALESCE(NULLIF(?2, ''), maintenance.message),
		     updated_at = excluded.updated_at`,
		active, message, defaultMaintenanceMessage, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("shield: maintenance: %w", err)
	}
	m.reload()
	return nil
}

// Status returns the cached switch.
func (m *MaintenanceMode) Status() MaintenanceStatus { return *m.status.Load() }

// Active reports whether requests are being turned away.
func (m *MaintenanceMode) Active() bool { return m.status.Load().Active }

// Message returns the text shown to visitors.
func (m *MaintenanceMode) Message() string { return m.status.Load().Message }

// StartReloader rereads the switch every 5 seconds until done is closed,
// so `pinup maintenance on` from another process takes effect.
func (m *MaintenanceMode) StartReloader(done <-chan struct{}) {
	go func() {
		tick := time.NewTicker(5 * time.Second)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				m.reload()
			}
		}
	}()
}

func (m *MaintenanceMode) reload() {
	prev := m.status.Load()
	next := &MaintenanceStatus{Message: prev.Message}

	var active bool
	var message string
	var since int64
	err := m.db.QueryRow(`SELECT active, message, updated_at FROM maintenance WHERE id = 1`).Scan(&active, &message, &since)
	if err == nil {
		next.Active = active
		if message != "" {
			next.Message = message
		}
		if since > 0 {
			next.Since = time.UnixMilli(since)
		}
	}
	m.status.Store(next)

	switch {
	case next.Active && !prev.Active:
		m.logger.Warn("shield: maintenance on", "message", next.Message)
	case !next.Active && prev.Active:
		m.logger.Info("shield: maintenance off")
	}
}

// Middleware turns requests away while maintenance is on. API calls get
// JSON, websocket upgrades a bare status, pages an HTML notice.
func (m *MaintenanceMode) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := m.status.Load()
		if !st.Active || m.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Retry-After", "300")
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": st.Message})
		case strings.EqualFold(r.Header.Get("Upgrade"), "websocket"):
			http.Error(w, st.Message, http.StatusServiceUnavailable)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			maintenancePage.Execute(w, st)
		}
	})
}

func (m *MaintenanceMode) excluded(path string) bool {
	for _, p := range m.exclude {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

var maintenancePage = template.Must(template.New("maintenance").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>PinUp · Maintenance</title>
<link rel="stylesheet" href="/static/review.css">
</head>
<body class="pinup-maintenance">
<main class="pinup-card">
  <h1>Back shortly</h1>
  <p>{{.Message}}</p>
  {{with .Since}}<p class="pinup-muted">Since {{.Format "15:04 MST"}}</p>{{end}}
</main>
</body>
</html>`))
