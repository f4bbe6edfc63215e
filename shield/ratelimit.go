package shield

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// Rule is one row of rate_limits: at most MaxRequests per Window for a
// single client IP, refilled evenly across the window.
type Rule struct {
	MaxRequests int
	Window      time.Duration
	Enabled     bool
}

func (r Rule) every() time.Duration {
	if r.MaxRequests <= 0 {
		return r.Window
	}
	return r.Window / time.Duration(r.MaxRequests)
}

type visitor struct {
	lim  *rate.Limiter
	rule Rule
	seen time.Time
}

// RateLimiter is a per-IP token bucket keyed on "METHOD pattern", where
// pattern is the chi route pattern of the route it is mounted on
// ("POST /{project}/login"). Attempts against different projects therefore
// share one budget. Rules live in the rate_limits table and are reloaded
// by StartReloader.
type RateLimiter struct {
	db     *sql.DB
	logger *slog.Logger

	mu       sync.Mutex
	rules    map[string]Rule
	visitors map[string]*visitor
}

// NewRateLimiter loads the rules from db.
func NewRateLimiter(db *sql.DB) *RateLimiter {
	rl := &RateLimiter{
		db:       db,
		logger:   slog.Default(),
		rules:    make(map[string]Rule),
		visitors: make(map[string]*visitor),
	}
	rl.reload()
	return rl
}

// StartReloader refreshes rules every minute and drops idle visitors every
// five, until done is closed.
func (rl *RateLimiter) StartReloader(done <-chan struct{}) {
	go func() {
		reload := time.NewTicker(time.Minute)
		gc := time.NewTicker(5 * time.Minute)
		defer reload.Stop()
		defer gc.Stop()
		for {
			select {
			case <-done:
				return
			case <-reload.C:
				rl.reload()
			case now := <-gc.C:
				rl.gc(now)
			}
		}
	}()
}

func (rl *RateLimiter) reload() {
	rows, err := rl.db.Query(`SELECT endpoint, max_requests, window_seconds, enabled FROM rate_limits`)
	if err != nil {
		rl.logger.Warn("shield: ratelimit: reload rules", "error", err)
		return
	}
	defer rows.Close()

	rules := make(map[string]Rule)
	for rows.Next() {
		var endpoint string
		var max, window, enabled int
		if err := rows.Scan(&endpoint, &max, &window, &enabled); err != nil {
			rl.logger.Warn("shield: ratelimit: bad rule", "error", err)
			continue
		}
		rules[endpoint] = Rule{MaxRequests: max, Window: time.Duration(window) * time.Second, Enabled: enabled == 1}
	}

	rl.mu.Lock()
	rl.rules = rules
	rl.mu.Unlock()
	rl.logger.Debug("shield: ratelimit: rules loaded", "count", len(rules))
}

func (rl *RateLimiter) gc(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if now.Sub(v.seen) > v.rule.Window {
			delete(rl.visitors, key)
		}
	}
}

// allow reports whether ip may hit endpoint now, and the rule that applied.
func (rl *RateLimiter) allow(ip, endpoint string, now time.Time) (bool, Rule) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rule, ok := rl.rules[endpoint]
	if !ok || !rule.Enabled {
		return true, rule
	}
	key := ip + " " + endpoint
	v, ok := rl.visitors[key]
	if !ok || v.rule != rule {
		v = &visitor{lim: rate.NewLimiter(rate.Every(rule.every()), rule.MaxRequests), rule: rule}
		rl.visitors[key] = v
	}
	v.seen = now
	return v.lim.AllowN(now, 1), rule
}

// Middleware enforces the rule for the matched route. Blocked API calls get
// a 429 JSON body; blocked form posts are redirected back with a flash.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + " " + routePattern(r)
		ip := ExtractIP(r)

		ok, rule := rl.allow(ip, endpoint, time.Now())
		if ok {
			next.ServeHTTP(w, r)
			return
		}
		GetLogger(r.Context()).Warn("shield: rate limited", "ip", ip, "endpoint", endpoint)

		retry := int(rule.every().Round(time.Second) / time.Second)
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retry))

		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}

		SetFlash(w, "error", "Too many attempts, please wait a minute")
		back := r.Referer()
		if back == "" {
			back = r.URL.Path
		}
		http.Redirect(w, r, back, http.StatusSeeOther)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// ExtractIP returns the first X-Forwarded-For hop, or the host part of
// RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
