// Package snapshot renders a prototype in headless Chrome with the comment
// markers placed by the overlay runtime, for exports that need a picture.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/pinup/internal/browser"
	"github.com/hazyhaar/pinup/overlay"
	"github.com/hazyhaar/pinup/overlay/rodsurface"
	"github.com/hazyhaar/pinup/protocol"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 800
	MinWidth      = 320
	MaxWidth      = 3840
)

// ErrBadViewport is returned for widths or heights outside the allowed range.
var ErrBadViewport = errors.New("snapshot: viewport out of range")

// Request describes one snapshot.
type Request struct {
	URL      string
	Width    int
	Height   int
	Comments []protocol.CommentRef
	// Cookies are set for URL before navigation, e.g. a session for
	// prototypes served behind login.
	Cookies []*http.Cookie
}

// Result is a full-page PNG and the comments whose selector matched nothing.
type Result struct {
	PNG        []byte
	Unresolved []string
}

// Renderer renders snapshots through a shared browser manager.
type Renderer struct {
	browsers *browser.Manager
	logger   *slog.Logger
}

// New returns a renderer using mgr.
func New(mgr *browser.Manager, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{browsers: mgr, logger: logger}
}

// Normalize fills default dimensions and validates them.
func (req *Request) Normalize() error {
	if req.Width == 0 {
		req.Width = DefaultWidth
	}
	if req.Height == 0 {
		req.Height = DefaultHeight
	}
	if req.Width < MinWidth || req.Width > MaxWidth || req.Height < 200 || req.Height > 4*MaxWidth {
		return fmt.Errorf("%w: %dx%d", ErrBadViewport, req.Width, req.Height)
	}
	if req.URL == "" {
		return errors.New("snapshot: empty URL")
	}
	return nil
}

// Render opens req.URL, runs the overlay runtime in comment mode with the
// given comments and captures the page.
func (r *Renderer) Render(ctx context.Context, req Request) (*Result, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	tab, err := r.browsers.OpenTab(ctx, req.URL,
		browser.Viewport{Width: req.Width, Height: req.Height}, cookieParams(req.URL, req.Cookies)...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer tab.Close()

	rt := overlay.New(overlay.Config{
		Surface: rodsurface.New(ctx, tab.Page, r.logger),
		Logger:  r.logger,
	})
	rt.Start()
	rt.Apply(protocol.SetCommentMode{Enabled: true})
	rt.Apply(protocol.CommentsUpdated{Comments: req.Comments})
	rt.Reposition()

	png, err := tab.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	res := &Result{PNG: png, Unresolved: rt.Unresolved()}
	r.logger.Info("snapshot: rendered",
		"url", req.URL, "width", req.Width, "comments", len(req.Comments),
		"unresolved", len(res.Unresolved), "bytes", len(png))
	return res, nil
}

func cookieParams(pageURL string, cookies []*http.Cookie) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			URL:      pageURL,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		})
	}
	return out
}
