package shield

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const flashCookie = "pinup_flash"

// Flash moves a pending flash cookie into the request context and expires
// it, so the message renders exactly once.
func Flash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(flashCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})

		raw, err := url.QueryUnescape(c.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		kind, msg, ok := strings.Cut(raw, ":")
		if !ok || (kind != "success" && kind != "error") {
			kind, msg = "error", raw
		}
		ctx := context.WithValue(r.Context(), FlashKey, &FlashMessage{Type: kind, Message: msg})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetFlash queues a message for the next page the browser loads. Login
// failures use it to survive the POST/redirect/GET round trip.
func SetFlash(w http.ResponseWriter, kind, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(kind + ":" + message),
		Path:     "/",
		MaxAge:   10,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
