package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Backoff is the wait before each retry of a BUSY statement.
var Backoff = []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 400 * time.Millisecond}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including
// extended codes and errors that only survived as text.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "is locked")
}

func retry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	v, err := op()
	for _, d := range Backoff {
		if err == nil || !IsBusy(err) {
			return v, err
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			var zero T
			return zero, fmt.Errorf("dbopen: retry: %w", ctx.Err())
		case <-t.C:
		}
		v, err = op()
	}
	return v, err
}

// RunTx runs fn in a transaction, rolling back when fn fails and retrying
// the whole transaction while SQLite reports BUSY.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	_, err := retry(ctx, func() (struct{}, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("dbopen: begin: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return struct{}{}, err
		}
		if err := tx.Commit(); err != nil {
			return struct{}{}, fmt.Errorf("dbopen: commit: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

// Exec runs one statement with the RunTx retry policy.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return retry(ctx, func() (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}
