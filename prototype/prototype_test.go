package prototype

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/pinup/auth"
	"github.com/hazyhaar/pinup/projects"
)

const catalogue = `
projects:
  - id: hotel
    name: Hotel
    client_password: pw
    versions:
      - id: v1
      - id: v2
        url: https://example.com/hotel
`

const page = `<!doctype html><html><head><title>Hotel</title></head>
<body><main><h1 class="title">Welcome</h1></main><script src="app.js"></script></body></html>`

type fixture struct {
	reg *projects.Registry
	srv *Server
	dir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := projects.Parse([]byte(catalogue))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	write := func(rel, content string) {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("hotel/v1/index.html", page)
	write("hotel/v1/css/site.css", "body{margin:0}")
	write("hotel/v1/font.woff2", "wOF2")
	write("secret.txt", "outside")

	overlayDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(overlayDir, "wasm_exec.js"), []byte("// go"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &fixture{reg: reg, dir: dir, srv: New(Config{Projects: reg, Dir: dir, OverlayDir: overlayDir})}
}

// handler serves the routes with a session for project, or none when
// project is empty.
func (f *fixture) handler(project string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if project != "" {
				r = r.WithContext(auth.WithClaims(r.Context(), &auth.Claims{ProjectID: project, UserName: "Alice", UserType: "client"}))
			}
			next.ServeHTTP(w, r)
		})
	})
	f.srv.Routes(r)
	return r
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServe_HTMLIsInstrumented(t *testing.T) {
	f := newFixture(t)
	rec := get(f.handler("hotel"), "/prototypes/hotel/v1/index.html")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("cache control = %q", cc)
	}
	if rec.Header().Get("X-Frame-Options") != "SAMEORIGIN" || rec.Header().Get("Content-Security-Policy") != "frame-ancestors 'self'" {
		t.Errorf("framing headers = %v", rec.Header())
	}
	body := rec.Body.String()
	app := strings.Index(body, `src="app.js"`)
	boot := strings.Index(body, `src="/overlay/bootstrap.js"`)
	if app < 0 || boot < app {
		t.Errorf("bootstrap must follow the prototype's scripts:\n%s", body)
	}
}

func TestServe_DirectoryDefaultsToIndex(t *testing.T) {
	f := newFixture(t)
	rec := get(f.handler("hotel"), "/prototypes/hotel/v1/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Welcome") {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestServe_Assets(t *testing.T) {
	f := newFixture(t)
	h := f.handler("hotel")
	for target, want := range map[string]string{
		"/prototypes/hotel/v1/css/site.css": "text/css",
		"/prototypes/hotel/v1/font.woff2":   "font/woff2",
	} {
		rec := get(h, target)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != want {
			t.Errorf("%s: content type = %q, want %q", target, ct, want)
		}
		if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=31536000, immutable" {
			t.Errorf("%s: cache control = %q", target, cc)
		}
		if strings.Contains(rec.Body.String(), "bootstrap") {
			t.Errorf("%s: assets must not be instrumented", target)
		}
	}
}

func TestServe_Rejections(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		session string
		target  string
		code    int
	}{
		{"no session", "", "/prototypes/hotel/v1/index.html", http.StatusSeeOther},
		{"other project session", "other", "/prototypes/hotel/v1/index.html", http.StatusSeeOther},
		{"missing file", "hotel", "/prototypes/hotel/v1/nope.html", http.StatusNotFound},
		{"unknown version", "hotel", "/prototypes/hotel/v9/index.html", http.StatusNotFound},
		{"external version", "hotel", "/prototypes/hotel/v2/index.html", http.StatusNotFound},
		{"traversal", "hotel", "/prototypes/hotel/v1/..%2f..%2fsecret.txt", http.StatusBadRequest},
		{"directory", "hotel", "/prototypes/hotel/v1/css", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(f.handler(tt.session), tt.target)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.code, rec.Body)
			}
		})
	}
}

func TestOverlayAssets(t *testing.T) {
	f := newFixture(t)
	h := f.handler("")

	rec := get(h, "/overlay/bootstrap.js")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "pinup-overlay.wasm") {
		t.Fatalf("bootstrap: %d %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/javascript" {
		t.Errorf("bootstrap content type = %q", ct)
	}
	if rec := get(h, "/overlay/wasm_exec.js"); rec.Code != http.StatusOK {
		t.Errorf("wasm_exec: %d", rec.Code)
	}
	if rec := get(h, "/overlay/pinup-overlay.wasm"); rec.Code != http.StatusNotFound {
		t.Errorf("missing build artefact: %d", rec.Code)
	}
	if rec := get(h, "/overlay/other.js"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown overlay file: %d", rec.Code)
	}
}

func TestDocument(t *testing.T) {
	f := newFixture(t)
	p, v, err := f.reg.Version("hotel", "v1")
	if err != nil {
		t.Fatal(err)
	}
	doc, err := f.srv.Document(context.Background(), p, v)
	if err != nil {
		t.Fatal(err)
	}
	if cascadia.Query(doc, cascadia.MustCompile("main > h1.title")) == nil {
		t.Error("parsed document should contain the heading")
	}

	_, ext, _ := f.reg.Version("hotel", "v2")
	if doc, err := f.srv.Document(context.Background(), p, ext); doc != nil || err != nil {
		t.Errorf("external version: %v %v", doc, err)
	}
}

func TestEntryURL(t *testing.T) {
	f := newFixture(t)
	p, v1, _ := f.reg.Version("hotel", "v1")
	_, v2, _ := f.reg.Version("hotel", "v2")
	if got := EntryURL(p, v1); got != "/prototypes/hotel/v1/index.html" {
		t.Errorf("v1 = %q", got)
	}
	if got := EntryURL(p, v2); got != "https://example.com/hotel" {
		t.Errorf("v2 = %q", got)
	}
}

func TestInject(t *testing.T) {
	tests := []struct {
		name, in string
	}{
		{"full document", page},
		{"fragment", `<p>just a paragraph</p>`},
		{"no body tag", `<html><head></head><div>x</div></html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Inject([]byte(tt.in))
			if err != nil {
				t.Fatal(err)
			}
			if n := strings.Count(string(out), BootstrapSrc); n != 1 {
				t.Fatalf("bootstrap count = %d:\n%s", n, out)
			}
			again, err := Inject(out)
			if err != nil || string(again) != string(out) {
				t.Errorf("second injection must be a no-op")
			}
		})
	}
}

func TestContentType(t *testing.T) {
	for name, want := range map[string]string{
		"index.HTML":  "text/html",
		"app.mjs":     "application/javascript",
		"logo.svg":    "image/svg+xml",
		"font.eot":    "application/vnd.ms-fontobject",
		"clip.mp3":    "audio/mpeg",
		"favicon.ico": "image/x-icon",
		"README":      "application/octet-stream",
		"archive.zip": "application/octet-stream",
	} {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
	if !ShouldInject("text/html; charset=utf-8") || ShouldInject("text/css") {
		t.Error("ShouldInject")
	}
}
