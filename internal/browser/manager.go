// Package browser owns the headless Chrome used for annotated snapshots.
// Tabs are bounded by a semaphore; Chrome is replaced after a number of
// renders or a maximum age, once every open tab has closed.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("browser: manager is closed")

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string

	// MaxTabs bounds concurrent snapshot tabs. Default 2.
	MaxTabs int64

	// MaxRenders recycles Chrome after this many tabs. Default 200.
	MaxRenders int64

	// RecycleInterval is the maximum lifetime of a Chrome process. Default 1h.
	RecycleInterval time.Duration

	// BlockResources lists resource types never loaded in tabs
	// (images, fonts, media, stylesheets). Default: media.
	BlockResources []string

	// NavigateTimeout bounds navigation and load. Default 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxTabs <= 0 {
		c.MaxTabs = 2
	}
	if c.MaxRenders <= 0 {
		c.MaxRenders = 200
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = time.Hour
	}
	if c.BlockResources == nil {
		c.BlockResources = []string{"media"}
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager manages the Chrome lifecycle. Chrome starts lazily on the first
// tab when Start was never called.
type Manager struct {
	cfg  Config
	tabs *semaphore.Weighted

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	closed  bool
	monitor sync.Once

	renders atomic.Int64
}

// NewManager creates a Manager. Chrome is not started yet.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, tabs: semaphore.NewWeighted(cfg.MaxTabs)}
}

// Start launches or connects to Chrome and starts the recycle monitor,
// which stops with ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	err := m.ensureLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.monitor.Do(func() { go m.monitorLoop(ctx) })
	return nil
}

// acquire reserves a tab slot and returns the browser to open it in.
// The caller releases the slot with m.tabs.Release(1).
func (m *Manager) acquire(ctx context.Context) (*rod.Browser, error) {
	if err := m.tabs.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("browser: wait for tab: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLocked(); err != nil {
		m.tabs.Release(1)
		return nil, err
	}
	m.renders.Add(1)
	return m.browser, nil
}

// Recycle waits for open tabs to close, then replaces Chrome.
func (m *Manager) Recycle(ctx context.Context) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := m.tabs.Acquire(ctx, m.cfg.MaxTabs); err != nil {
		return fmt.Errorf("browser: recycle: %w", err)
	}
	defer m.tabs.Release(m.cfg.MaxTabs)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startAt), "renders", m.renders.Load())
	m.cleanup()
	m.renders.Store(0)
	return m.ensureLocked()
}

// Close shuts Chrome down. Tabs still open are closed with it.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) ensureLocked() error {
	if m.closed {
		return ErrClosed
	}
	if m.browser != nil {
		return nil
	}
	b, err := m.launch()
	if err != nil {
		return err
	}
	m.browser = b
	m.startAt = time.Now()
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger
	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled").
			Set("hide-scrollbars")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if m.lnch != nil {
			m.lnch.Cleanup()
			m.lnch = nil
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

// due reports why Chrome should be replaced, or "" when it should not.
func (m *Manager) due(now time.Time) string {
	m.mu.Lock()
	running, startAt := m.browser != nil, m.startAt
	m.mu.Unlock()
	switch {
	case !running:
		return ""
	case now.Sub(startAt) > m.cfg.RecycleInterval:
		return "age"
	case m.renders.Load() >= m.cfg.MaxRenders:
		return "renders"
	}
	return ""
}

func (m *Manager) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			reason := m.due(now)
			if reason == "" {
				continue
			}
			if err := m.Recycle(ctx); err != nil {
				if errors.Is(err, ErrClosed) {
					return
				}
				m.cfg.Logger.Error("browser: recycle failed", "reason", reason, "error", err)
			}
		}
	}
}
