// Package shield holds the HTTP middleware pinup puts in front of every
// route: security headers that allow same-origin framing of prototypes,
// request tracing with a per-request logger, form body limits, flash
// messages, HEAD handling, a SQLite-backed maintenance switch and the login
// rate limiter.
//
// Usage:
//
//	stack, mm, rl := shield.Stack(db)
//	mm.StartReloader(done)
//	rl.StartReloader(done)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
//	r.With(rl.Middleware).Post("/{project}/login", login)
package shield

import (
	"context"
	"database/sql"
	"net/http"
)

type contextKey string

const (
	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"

	// FlashKey is the context key for flash messages.
	FlashKey contextKey = "shield_flash"
)

// FlashMessage represents a one-time notification shown to the user.
type FlashMessage struct {
	Type    string // "success" or "error"
	Message string
}

// GetFlash retrieves the flash message from the request context.
func GetFlash(ctx context.Context) *FlashMessage {
	v, _ := ctx.Value(FlashKey).(*FlashMessage)
	return v
}

// Stack returns the global middleware chain, ordered Maintenance →
// HeadToGet → SecurityHeaders → MaxBody → TraceID → Flash, plus the
// maintenance switch and the rate limiter. The limiter is not in the chain:
// mount it on the routes it guards so it can key on the route pattern.
// Health checks and embedded assets bypass maintenance.
func Stack(db *sql.DB) ([]func(http.Handler) http.Handler, *MaintenanceMode, *RateLimiter) {
	mm := NewMaintenanceMode(db, "/healthz", "/static/", "/overlay/")
	rl := NewRateLimiter(db)
	return []func(http.Handler) http.Handler{
		mm.Middleware,
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(64 << 10),
		TraceID,
		Flash,
	}, mm, rl
}
