package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/pinup/kit"
)

type claimsKey struct{}

// Middleware returns an http.Handler middleware that extracts a JWT from the
// session cookie (preferred) or the Authorization Bearer header. If valid,
// the parsed Claims are injected into the request context along with a
// kit.Session. Invalid or missing tokens are silently
// ignored; use RequireProject to enforce.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tokenStr string

			if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
				tokenStr = c.Value
			}
			if tokenStr == "" {
				if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
					tokenStr = h[7:]
				}
			}
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(secret, tokenStr)
			if err != nil {
				ClearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims stores claims in ctx and mirrors them as a kit.Session.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey{}, claims)
	return kit.WithSession(ctx, kit.Session{
		ProjectID: claims.ProjectID,
		UserName:  claims.UserName,
		Role:      claims.UserType,
	})
}

// GetClaims retrieves the Claims from the context, or nil if absent.
func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// RequireProject redirects requests without a session for the {project}
// route parameter to that project's login page.
func RequireProject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		project := chi.URLParam(r, "project")
		if c := GetClaims(r.Context()); c == nil || c.ProjectID != project {
			http.Redirect(w, r, "/"+url.PathEscape(project)+"/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
