package horosafe

import (
	"bytes"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateSecret(t *testing.T) {
	if err := ValidateSecret([]byte("short")); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("short secret: got %v", err)
	}
	if err := ValidateSecret(bytes.Repeat([]byte("k"), MinSecretLen)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSafePath(t *testing.T) {
	base := filepath.FromSlash("/srv/prototypes/acme-v1")
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"index.html", filepath.Join(base, "index.html"), false},
		{"assets/app.css", filepath.Join(base, "assets", "app.css"), false},
		{"", base, false},
		{"../acme-v2/index.html", "", true},
		{"assets/../../secret", "", true},
		{"a\x00b", "", true},
	}
	for _, tt := range tests {
		got, err := SafePath(base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q) error=%v, wantErr=%v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("SafePath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://203.0.113.10/proto", false},
		{"ftp://example.com/data", true},
		{"javascript:alert(1)", true},
		{"http://127.0.0.1/admin", true},
		{"http://10.1.2.3/", true},
		{"http://[::1]/", true},
		{"http:///nohost", true},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error=%v, wantErr=%v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateIdentifier(t *testing.T) {
	for _, ok := range []string{"acme", "landing-v2", "v1.3", "team_a"} {
		if err := ValidateIdentifier(ok); err != nil {
			t.Errorf("ValidateIdentifier(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "..", "has space", "a/b", strings.Repeat("a", MaxIdentifierLen+1)} {
		if err := ValidateIdentifier(bad); err == nil {
			t.Errorf("ValidateIdentifier(%q): expected error", bad)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := LimitedReadAll(strings.NewReader(data), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}
	if _, err := LimitedReadAll(strings.NewReader(data), 50); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("oversized read: got %v", err)
	}
}

func TestPrivateIP(t *testing.T) {
	tests := map[string]bool{
		"127.0.0.1":   true,
		"10.0.0.1":    true,
		"172.20.0.1":  true,
		"192.168.0.1": true,
		"169.254.1.1": true,
		"0.0.0.0":     true,
		"8.8.8.8":     false,
		"::1":         true,
		"fd00::1":     true,
	}
	for s, want := range tests {
		if got := privateIP(net.ParseIP(s)); got != want {
			t.Errorf("privateIP(%s) = %v, want %v", s, got, want)
		}
	}
}
