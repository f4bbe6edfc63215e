package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Viewport is the emulated window size of a tab.
type Viewport struct {
	Width  int
	Height int
}

// Tab is a stealth page navigated to one URL. It holds one of the
// manager's tab slots until Close.
type Tab struct {
	Page *rod.Page
	URL  string

	release func()
}

// OpenTab waits for a free slot, opens a stealth tab at the given
// viewport, sets cookies, navigates to pageURL and waits for the load
// event. A load timeout is logged, not returned: a page that never settles
// can still be captured.
func (m *Manager) OpenTab(ctx context.Context, pageURL string, vp Viewport, cookies ...*proto.NetworkCookieParam) (_ *Tab, err error) {
	b, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	release := func() { once.Do(func() { m.tabs.Release(1) }) }
	defer func() {
		if err != nil {
			release()
		}
	}()

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
		Mobile:            vp.Width < 768,
	}).Call(page); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: set viewport: %w", err)
	}

	if len(cookies) > 0 {
		if err := page.SetCookies(cookies); err != nil {
			page.Close()
			return nil, fmt.Errorf("browser: set cookies: %w", err)
		}
	}

	if len(m.cfg.BlockResources) > 0 {
		blockResources(page, m.cfg.BlockResources)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return &Tab{Page: page, URL: pageURL, release: release}, nil
}

// Screenshot captures the full page as PNG.
func (t *Tab) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := t.Page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

// Close closes the page and frees the slot.
func (t *Tab) Close() error {
	if t.release != nil {
		defer t.release()
	}
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
