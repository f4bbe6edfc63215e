package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/pinup/dbopen"
)

// counter is a Detector the test advances by hand.
type counter struct {
	v    atomic.Int64
	fail atomic.Bool
}

func (c *counter) detect(context.Context) (int64, error) {
	if c.fail.Load() {
		return 0, errors.New("database is locked")
	}
	return c.v.Load(), nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRun_FiresOnChange(t *testing.T) {
	var c counter
	var fired atomic.Int32
	w := New(c.detect, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(context.Context) error {
		fired.Add(1)
		return nil
	})

	waitFor(t, "first poll", func() bool { return w.Stats().Checks > 0 })
	c.v.Store(1)
	waitFor(t, "first fire", func() bool { return fired.Load() == 1 })
	c.v.Store(2)
	waitFor(t, "second fire", func() bool { return fired.Load() == 2 })

	checks := w.Stats().Checks
	waitFor(t, "idle polls", func() bool { return w.Stats().Checks > checks+3 })
	if got := fired.Load(); got != 2 {
		t.Errorf("fired %d times without changes", got)
	}
	if w.Version() != 2 {
		t.Errorf("version = %d", w.Version())
	}
}

func TestRun_Debounce(t *testing.T) {
	var c counter
	var fired atomic.Int32
	w := New(c.detect, Options{Interval: 10 * time.Millisecond, Debounce: 150 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(context.Context) error {
		fired.Add(1)
		return nil
	})

	waitFor(t, "first poll", func() bool { return w.Stats().Checks > 0 })
	for i := int64(1); i <= 5; i++ {
		c.v.Store(i)
		time.Sleep(15 * time.Millisecond)
	}
	if got := fired.Load(); got != 0 {
		t.Fatalf("fired %d times inside the debounce window", got)
	}
	waitFor(t, "debounced fire", func() bool { return fired.Load() == 1 })
	time.Sleep(200 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("fired %d times, want 1", got)
	}
	if w.Version() != 5 {
		t.Errorf("version = %d, want 5", w.Version())
	}
}

func TestRun_FailedActionRetries(t *testing.T) {
	var c counter
	var calls atomic.Int32
	w := New(c.detect, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("hub closed")
		}
		return nil
	})

	waitFor(t, "first poll", func() bool { return w.Stats().Checks > 0 })
	c.v.Store(7)
	waitFor(t, "retry", func() bool { return w.Version() == 7 })
	if calls.Load() < 2 {
		t.Errorf("calls = %d", calls.Load())
	}
	if w.Stats().Errors == 0 {
		t.Error("failed action not counted")
	}
}

func TestRun_DetectorErrors(t *testing.T) {
	var c counter
	c.fail.Store(true)
	w := New(c.detect, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, func(context.Context) error { return nil })
		close(done)
	}()

	waitFor(t, "errors", func() bool { return w.Stats().Errors >= 2 })
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestPragmaDataVersion(t *testing.T) {
	db := dbopen.OpenMemory(t)
	v, err := PragmaDataVersion(db)(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v < 0 {
		t.Errorf("data_version = %d", v)
	}
}
