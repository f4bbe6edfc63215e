package shield

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/pinup/kit"
)

func TestSecurityHeaders_PrototypeOverride(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(SecurityHeaders(PrototypeHeaders())(okHandler()))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/prototypes/hotel/v1/index.html", nil))

	if got := w.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := w.Header().Get("Content-Security-Policy"); got != "frame-ancestors 'self'" {
		t.Errorf("CSP = %q", got)
	}
	if got := w.Header().Get("Permissions-Policy"); got != "" {
		t.Errorf("Permissions-Policy should be cleared, got %q", got)
	}
}

func TestDefaultHeaders_AllowSameOriginFraming(t *testing.T) {
	h := DefaultHeaders()
	if h.XFrameOptions != "SAMEORIGIN" || !strings.Contains(h.CSP, "frame-ancestors 'self'") {
		t.Errorf("headers = %+v", h)
	}
	if !strings.Contains(h.CSP, "'wasm-unsafe-eval'") {
		t.Error("CSP must allow wasm compilation for the overlay")
	}
}

func TestTraceID(t *testing.T) {
	var traceID string
	var hasLogger bool
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = kit.GetTraceID(r.Context())
		_, hasLogger = r.Context().Value(LoggerKey).(*slog.Logger)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if len(traceID) != 8 {
		t.Errorf("trace id = %q", traceID)
	}
	if w.Header().Get("X-Trace-ID") != traceID {
		t.Errorf("header = %q, context = %q", w.Header().Get("X-Trace-ID"), traceID)
	}
	if !hasLogger {
		t.Error("no per-request logger")
	}
}

func TestTraceID_ReusesProxyRequestID(t *testing.T) {
	var got string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = kit.GetTraceID(r.Context())
	}))
	for header, want := range map[string]int{
		"edge-7f3a":             len("edge-7f3a"),
		"has space":             8,
		strings.Repeat("a", 40): 8,
	} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Request-ID", header)
		h.ServeHTTP(httptest.NewRecorder(), req)
		if len(got) != want || (want != 8 && got != header) {
			t.Errorf("X-Request-ID %q: trace id %q", header, got)
		}
	}
}

func TestHeadToGet(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HeadToGet)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("HEAD", "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("HEAD status = %d", w.Code)
	}
}

func TestFlash_RoundTrip(t *testing.T) {
	set := httptest.NewRecorder()
	SetFlash(set, "error", "Invalid password")
	cookie := set.Result().Cookies()[0]

	var got *FlashMessage
	h := Flash(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetFlash(r.Context())
	}))
	req := httptest.NewRequest("GET", "/hotel/login", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got == nil || got.Type != "error" || got.Message != "Invalid password" {
		t.Errorf("flash = %+v", got)
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Error("flash cookie must be cleared after reading")
	}
}

func TestMaxBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		wantErr     bool
	}{
		{"form", "application/x-www-form-urlencoded", true},
		{"json with charset", "application/json; charset=utf-8", true},
		{"missing", "", true},
		{"other", "image/png", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readErr error
			h := MaxBody(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, readErr = io.ReadAll(r.Body)
			}))
			req := httptest.NewRequest("POST", "/api/comments", strings.NewReader(strings.Repeat("x", 64)))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if (readErr != nil) != tt.wantErr {
				t.Errorf("read error = %v, want error %v", readErr, tt.wantErr)
			}
		})
	}
}

func TestFlash_UnprefixedIsError(t *testing.T) {
	var got *FlashMessage
	h := Flash(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetFlash(r.Context())
	}))
	req := httptest.NewRequest("GET", "/hotel/login", nil)
	req.AddCookie(&http.Cookie{Name: flashCookie, Value: "Session%20expired"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got == nil || got.Type != "error" || got.Message != "Session expired" {
		t.Errorf("flash = %+v", got)
	}
}

func TestRateLimiter_LoginRoutePattern(t *testing.T) {
	db := setupMaintenanceDB(t)
	if _, err := db.Exec(`UPDATE rate_limits SET max_requests = 2 WHERE endpoint = 'POST /{project}/login'`); err != nil {
		t.Fatal(err)
	}
	rl := NewRateLimiter(db)

	r := chi.NewRouter()
	r.With(rl.Middleware).Post("/{project}/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.With(rl.Middleware).Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	post := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	// The rule is keyed on the pattern, so attempts against different
	// projects share one budget per IP.
	if post("/hotel/login", "10.0.0.1").Code != http.StatusNoContent ||
		post("/dashboard/login", "10.0.0.1").Code != http.StatusNoContent {
		t.Fatal("first two attempts should pass")
	}
	w := post("/hotel/login", "10.0.0.1")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("third attempt status = %d, want redirect", w.Code)
	}
	if w.Header().Get("Retry-After") != "30" || !strings.Contains(w.Header().Get("Set-Cookie"), "pinup_flash=") {
		t.Errorf("blocked response headers = %v", w.Header())
	}
	if post("/hotel/login", "10.0.0.2").Code != http.StatusNoContent {
		t.Error("another IP has its own bucket")
	}

	for i := 0; i < 10; i++ {
		post("/api/auth/login", "10.0.0.3")
	}
	w = post("/api/auth/login", "10.0.0.3")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("API over limit: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if ip := ExtractIP(req); ip != "192.0.2.1" {
		t.Errorf("remote addr ip = %q", ip)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := ExtractIP(req); ip != "203.0.113.9" {
		t.Errorf("forwarded ip = %q", ip)
	}
}

func TestRateLimiter_RefillAndGC(t *testing.T) {
	db := setupMaintenanceDB(t)
	rl := NewRateLimiter(db)
	const ep = "POST /{project}/login"
	now := time.Now()

	for i := 0; i < 10; i++ {
		if ok, _ := rl.allow("10.0.0.1", ep, now); !ok {
			t.Fatalf("attempt %d blocked", i+1)
		}
	}
	if ok, _ := rl.allow("10.0.0.1", ep, now); ok {
		t.Fatal("eleventh attempt allowed")
	}
	if ok, _ := rl.allow("10.0.0.1", ep, now.Add(6*time.Second)); !ok {
		t.Error("token not refilled after one interval")
	}
	if ok, _ := rl.allow("10.0.0.1", "GET /hotel", now); !ok {
		t.Error("route without a rule limited")
	}

	rl.gc(now.Add(2 * time.Minute))
	if n := len(rl.visitors); n != 0 {
		t.Errorf("visitors after gc = %d", n)
	}
}
