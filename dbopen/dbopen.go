// Package dbopen opens the pinup SQLite database. Pragmas are passed in the
// DSN so every pooled connection gets them, not only the first one.
//
//	db, err := dbopen.Open("data/pinup.db", dbopen.WithMkdirAll())
//	err = dbopen.Apply(ctx, db, "comments", schema)
//
// Tests use OpenMemory.
package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

type options struct {
	busyTimeoutMS int
	synchronous   string
	journal       string
	mkdirAll      bool
	schemas       []string
}

// Option customises Open.
type Option func(*options)

// WithBusyTimeout sets busy_timeout in milliseconds. Default 10000.
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeoutMS = ms } }

// WithSynchronous sets the synchronous pragma. Default NORMAL.
func WithSynchronous(mode string) Option { return func(o *options) { o.synchronous = mode } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// WithSchema runs s once the database is open.
func WithSchema(s string) Option { return func(o *options) { o.schemas = append(o.schemas, s) } }

// DSN builds the modernc.org/sqlite connection string for path.
func DSN(path string, opts ...Option) string {
	o := resolve(opts)
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.busyTimeoutMS))
	q.Add("_pragma", "synchronous("+o.synchronous+")")
	if o.journal != "" {
		q.Add("_pragma", "journal_mode("+o.journal+")")
	}
	return "file:" + path + "?" + q.Encode()
}

func resolve(opts []Option) options {
	o := options{busyTimeoutMS: 10_000, synchronous: "NORMAL", journal: "WAL"}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Open opens the database at path.
func Open(path string, opts ...Option) (*sql.DB, error) {
	if path == ":memory:" {
		opts = append(opts, func(o *options) { o.journal = "" })
	}
	o := resolve(opts)
	if o.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", DSN(path, opts...))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping %s: %w", path, err)
	}
	for _, s := range o.schemas {
		if err := Apply(context.Background(), db, "schema", s); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Apply runs the semicolon-separated statements of schema in one
// transaction. Statements must be idempotent (IF NOT EXISTS, OR IGNORE).
func Apply(ctx context.Context, db *sql.DB, name, schema string) error {
	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		for _, stmt := range strings.Split(schema, ";") {
			if stmt = strings.TrimSpace(stmt); stmt == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: schema: %w", name, err)
	}
	return nil
}

// OpenMemory opens a private in-memory database closed at test cleanup.
// The pool is pinned to one connection since each ":memory:" connection is
// its own database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
