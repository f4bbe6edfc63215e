package shield

import "net/http"

// HeaderConfig defines the security headers applied to every response.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
}

// DefaultHeaders is the configuration for pinup's own pages. Framing is
// limited to the same origin; the review page may frame https prototypes
// hosted elsewhere, and the overlay needs wasm compilation.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "default-src 'self'; script-src 'self' 'wasm-unsafe-eval'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; connect-src 'self'; frame-src 'self' https:; frame-ancestors 'self'",
		XFrameOptions:       "SAMEORIGIN",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "camera=(), microphone=(), geolocation=()",
	}
}

// PrototypeHeaders is the configuration for uploaded prototype files. Their
// scripts and styles are the author's, so only framing is restricted.
func PrototypeHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "frame-ancestors 'self'",
		XFrameOptions:       "SAMEORIGIN",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "same-origin",
	}
}

// SecurityHeaders returns middleware that sets the configured security headers
// on every response. Empty fields are skipped; a later SecurityHeaders in the
// chain overrides an earlier one.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			set := func(k, v string) {
				if v != "" {
					h.Set(k, v)
				} else {
					h.Del(k)
				}
			}
			set("X-Content-Type-Options", cfg.XContentTypeOptions)
			set("X-Frame-Options", cfg.XFrameOptions)
			set("Referrer-Policy", cfg.ReferrerPolicy)
			set("Content-Security-Policy", cfg.CSP)
			set("Permissions-Policy", cfg.PermissionsPolicy)
			next.ServeHTTP(w, r)
		})
	}
}
