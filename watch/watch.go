// Package watch polls a SQLite database for a change token and runs an action
// once the token has been stable for a debounce window. pinup uses it to push
// comment changes made by one reviewer to every other open review session.
//
//	w := watch.New(store.Revision, watch.Options{Interval: time.Second})
//	go w.Run(ctx, hub.Notify)
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"
)

// Detector reads a change token. Two calls returning different values mean
// something changed.
type Detector func(ctx context.Context) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action fires.
	// Further changes during the window restart it. 0 fires immediately.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher runs a Detector on a ticker. Version and Stats are safe for
// concurrent use.
type Watcher struct {
	detect Detector
	opts   Options

	version atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	fired   atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64 `json:"checks"`
	ChangesDetected int64 `json:"changes_detected"`
	Errors          int64 `json:"errors"`
	Fired           int64 `json:"fired"`
}

// New returns a Watcher. Call Run to start polling.
func New(detect Detector, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{detect: detect, opts: opts}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Fired:           w.fired.Load(),
	}
}

// Version returns the last token acted on.
func (w *Watcher) Version() int64 { return w.version.Load() }

// Run polls until ctx is cancelled. When the token changes and the debounce
// window passes, action is called. A failing action leaves the version
// unchanged so the next poll retries it.
func (w *Watcher) Run(ctx context.Context, action func(context.Context) error) {
	log := w.opts.Logger

	if v, err := w.detect(ctx); err != nil {
		log.Warn("watch: initial check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending, hasPending := int64(0), false

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-ticker.C:
			w.checks.Add(1)
			cur, err := w.detect(ctx)
			if err != nil {
				if ctx.Err() == nil {
					w.errors.Add(1)
					log.Warn("watch: check failed", "error", err)
				}
				continue
			}
			if cur == w.version.Load() || (hasPending && cur == pending) {
				continue
			}
			w.changes.Add(1)
			pending, hasPending = cur, true
			if w.opts.Debounce <= 0 {
				w.fire(ctx, action, pending)
				hasPending = false
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if hasPending {
				w.fire(ctx, action, pending)
				hasPending = false
			}
		}
	}
}

func (w *Watcher) fire(ctx context.Context, action func(context.Context) error, v int64) {
	if err := action(ctx); err != nil {
		w.errors.Add(1)
		w.opts.Logger.Error("watch: action failed", "version", v, "error", err)
		return
	}
	w.fired.Add(1)
	w.version.Store(v)
	w.opts.Logger.Debug("watch: change applied", "version", v)
}

// PragmaDataVersion detects commits made through other connections to the
// same database file, such as a second pinup process.
func PragmaDataVersion(db *sql.DB) Detector {
	return func(ctx context.Context) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
		return v, err
	}
}
