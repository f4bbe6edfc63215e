package shield

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/pinup/dbopen"
)

func setupMaintenanceDB(t *testing.T) *sql.DB {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := Init(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func TestMaintenance_Responses(t *testing.T) {
	db := setupMaintenanceDB(t)
	mm := NewMaintenanceMode(db, "/healthz", "/static/")
	if err := mm.Set(context.Background(), true, "Swapping <b>bundles</b>"); err != nil {
		t.Fatal(err)
	}
	h := mm.Middleware(okHandler())

	tests := []struct {
		name     string
		path     string
		upgrade  bool
		wantCode int
		wantType string
		wantBody string
	}{
		{"review page", "/hotel", false, 503, "text/html; charset=utf-8", "Swapping &lt;b&gt;bundles&lt;/b&gt;"},
		{"prototype", "/prototypes/hotel/v1/index.html", false, 503, "text/html; charset=utf-8", "Back shortly"},
		{"api", "/api/comments", false, 503, "application/json", `"error":"Swapping \u003cb\u003ebundles`},
		{"websocket", "/hotel/ws", true, 503, "text/plain; charset=utf-8", "Swapping"},
		{"healthz", "/healthz", false, 200, "", "OK"},
		{"static", "/static/review.css", false, 200, "", "OK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.upgrade {
				req.Header.Set("Connection", "Upgrade")
				req.Header.Set("Upgrade", "websocket")
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantType != "" && w.Header().Get("Content-Type") != tt.wantType {
				t.Errorf("content type = %q", w.Header().Get("Content-Type"))
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body %q missing %q", w.Body.String(), tt.wantBody)
			}
			if tt.wantCode == 503 && w.Header().Get("Retry-After") != "300" {
				t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestMaintenance_NoTable(t *testing.T) {
	mm := NewMaintenanceMode(dbopen.OpenMemory(t))
	if mm.Active() {
		t.Fatal("active without a table")
	}
	w := httptest.NewRecorder()
	mm.Middleware(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("code = %d", w.Code)
	}
}

func TestMaintenance_ReloadSeesOtherWriters(t *testing.T) {
	db := setupMaintenanceDB(t)
	mm := NewMaintenanceMode(db)

	db.Exec(`UPDATE maintenance SET active = 1, updated_at = 1700000000000 WHERE id = 1`)
	if mm.Active() {
		t.Fatal("cache updated before reload")
	}
	mm.reload()
	st := mm.Status()
	if !st.Active || st.Since.IsZero() || st.Message != defaultMaintenanceMessage {
		t.Errorf("status = %+v", st)
	}

	db.Exec(`UPDATE maintenance SET active = 0 WHERE id = 1`)
	mm.reload()
	if mm.Active() {
		t.Error("still active")
	}
}

func TestMaintenance_SetKeepsMessage(t *testing.T) {
	db := setupMaintenanceDB(t)
	mm := NewMaintenanceMode(db)
	ctx := context.Background()

	if err := mm.Set(ctx, true, "Uploading v3"); err != nil {
		t.Fatal(err)
	}
	if !mm.Active() || mm.Message() != "Uploading v3" {
		t.Errorf("after on: %+v", mm.Status())
	}
	if err := mm.Set(ctx, false, ""); err != nil {
		t.Fatal(err)
	}
	if st := mm.Status(); st.Active || st.Message != "Uploading v3" || st.Since.IsZero() {
		t.Errorf("after off: %+v", st)
	}
}
