package projects

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/crypto/bcrypt"
)

const sample = `
projects:
  - id: hotel-booking
    name: Hotel Booking Prototype
    client_password: hotel-review-2025
    versions:
      - id: v1
        label: V1 - Initial Concept
      - id: v2
        label: V2 - Post-feedback
        dir: hotel/second
        entry: home.html
  - id: dashboard
    client_password: dash-q1-review
    versions:
      - id: live
        url: https://93.184.215.14/dash
`

func TestParse_AppliesDefaults(t *testing.T) {
	r, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	p, err := r.Get("hotel-booking")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []Version{
		{ID: "v1", Label: "V1 - Initial Concept", Dir: "hotel-booking/v1", Entry: "index.html"},
		{ID: "v2", Label: "V2 - Post-feedback", Dir: "hotel/second", Entry: "home.html"},
	}
	if diff := cmp.Diff(want, p.Versions); diff != "" {
		t.Errorf("versions (-want +got):\n%s", diff)
	}

	d, _ := r.Get("dashboard")
	if d.Name != "dashboard" {
		t.Errorf("name default = %q", d.Name)
	}
	if d.Versions[0].Label != "live" || d.Versions[0].Dir != "" || d.Versions[0].Entry != "" {
		t.Errorf("external version defaults: %+v", d.Versions[0])
	}
	if d.Versions[0].Instrumentable() {
		t.Error("external version must not be instrumentable")
	}
	if !p.Versions[0].Instrumentable() {
		t.Error("local version must be instrumentable")
	}

	if diff := cmp.Diff([]string{"dashboard", "hotel-booking"}, r.IDs()); diff != "" {
		t.Errorf("ids (-want +got):\n%s", diff)
	}
	if all := r.All(); len(all) != 2 || all[0].ID != "hotel-booking" {
		t.Errorf("All must keep file order, got %d entries", len(all))
	}
}

func TestRegistry_Version(t *testing.T) {
	r, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	_, v, err := r.Version("hotel-booking", "")
	if err != nil || v.ID != "v2" {
		t.Errorf("empty version id: got %q, %v; want latest v2", v.ID, err)
	}
	_, v, err = r.Version("hotel-booking", "v1")
	if err != nil || v.ID != "v1" {
		t.Errorf("explicit version: got %q, %v", v.ID, err)
	}
	if _, _, err := r.Version("hotel-booking", "v9"); !errors.Is(err, ErrUnknownVersion) {
		t.Errorf("unknown version: %v", err)
	}
	if _, _, err := r.Version("nope", ""); !errors.Is(err, ErrUnknownProject) {
		t.Errorf("unknown project: %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"uppercase id", "projects:\n  - id: Hotel\n    versions: [{id: v1}]\n"},
		{"dotted id", "projects:\n  - id: a.b\n    versions: [{id: v1}]\n"},
		{"no versions", "projects:\n  - id: a\n"},
		{"duplicate project", "projects:\n  - id: a\n    versions: [{id: v1}]\n  - id: a\n    versions: [{id: v1}]\n"},
		{"duplicate version", "projects:\n  - id: a\n    versions: [{id: v1}, {id: v1}]\n"},
		{"traversal dir", "projects:\n  - id: a\n    versions: [{id: v1, dir: ../etc}]\n"},
		{"dir and url", "projects:\n  - id: a\n    versions: [{id: v1, dir: x, url: 'https://93.184.215.14/'}]\n"},
		{"loopback url", "projects:\n  - id: a\n    versions: [{id: v1, url: 'http://127.0.0.1/'}]\n"},
		{"file url", "projects:\n  - id: a\n    versions: [{id: v1, url: 'file:///etc/passwd'}]\n"},
		{"reserved id", "projects:\n  - id: static\n    versions: [{id: v1}]\n"},
		{"bad yaml", "projects: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := r.Get("dashboard"); err != nil {
		t.Error(err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file must fail")
	}
}

func TestAuthenticate(t *testing.T) {
	r, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	if role, err := r.Authenticate("hotel-booking", "hotel-review-2025"); err != nil || role != RoleClient {
		t.Errorf("client password: %q, %v", role, err)
	}
	if _, err := r.Authenticate("hotel-booking", "dash-q1-review"); !errors.Is(err, ErrBadPassword) {
		t.Errorf("other project's password: %v", err)
	}
	if _, err := r.Authenticate("hotel-booking", "admin-secret"); !errors.Is(err, ErrBadPassword) {
		t.Errorf("admin without hash: %v", err)
	}

	h, err := bcrypt.GenerateFromPassword([]byte("admin-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.SetAdminHash(string(h)); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"hotel-booking", "dashboard"} {
		if role, err := r.Authenticate(id, "admin-secret"); err != nil || role != RoleAdmin {
			t.Errorf("%s admin: %q, %v", id, role, err)
		}
	}
	if _, err := r.Authenticate("missing", "admin-secret"); !errors.Is(err, ErrUnknownProject) {
		t.Errorf("unknown project: %v", err)
	}
	if err := r.SetAdminHash("plain"); err == nil {
		t.Error("non-bcrypt hash must be rejected")
	}
}

func TestCheckClientPassword_EmptyNeverMatches(t *testing.T) {
	p := &Project{ID: "a"}
	if p.CheckClientPassword("") {
		t.Error("empty project password must not match empty input")
	}
}

func TestHashPassword(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Error("short password must fail")
	}
	h, err := HashPassword("long-enough-pw")
	if err != nil {
		t.Fatal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(h), []byte("long-enough-pw")) != nil {
		t.Error("hash does not verify")
	}
}
