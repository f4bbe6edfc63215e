// Package rodsurface drives the overlay runtime against a page opened in
// headless Chrome. Every DOM operation is a Page.Eval round trip, so it suits
// batch work such as annotated snapshots rather than interactive use.
package rodsurface

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/pinup/overlay"
)

// Surface implements overlay.Surface over a rod page.
type Surface struct {
	page   *rod.Page
	ctx    context.Context
	logger *slog.Logger

	mu   sync.Mutex
	sent [][]byte
}

// New binds a surface to page. ctx bounds every evaluation.
func New(ctx context.Context, page *rod.Page, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{page: page, ctx: ctx, logger: logger}
}

func (s *Surface) eval(js string, args ...any) (*proto.RuntimeRemoteObject, bool) {
	res, err := s.page.Context(s.ctx).Eval(js, args...)
	if err != nil {
		s.logger.Debug("rodsurface: eval failed", "error", err)
		return nil, false
	}
	return res, true
}

func (s *Surface) InjectStyles(css string) {
	s.eval(`(id, css) => {
		if (document.getElementById(id)) return;
		const style = document.createElement('style');
		style.id = id;
		style.textContent = css;
		(document.head || document.documentElement).appendChild(style);
	}`, overlay.StylesID, css)
}

// Post records the message; there is no parent frame in a headless tab.
func (s *Surface) Post(msg []byte) {
	s.mu.Lock()
	s.sent = append(s.sent, append([]byte(nil), msg...))
	s.mu.Unlock()
}

// Sent returns the messages posted by the runtime.
func (s *Surface) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

func (s *Surface) Locate(sel string) (overlay.Rect, bool) {
	res, ok := s.eval(`(sel) => {
		let el;
		try { el = document.querySelector(sel); } catch (e) { return null; }
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return {left: r.left, top: r.top, width: r.width, height: r.height};
	}`, sel)
	if !ok || res.Value.Nil() {
		return overlay.Rect{}, false
	}
	return overlay.Rect{
		Left:   res.Value.Get("left").Num(),
		Top:    res.Value.Get("top").Num(),
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}, true
}

func (s *Surface) Scroll() (float64, float64) {
	res, ok := s.eval(`() => ({x: window.scrollX, y: window.scrollY})`)
	if !ok {
		return 0, 0
	}
	return res.Value.Get("x").Num(), res.Value.Get("y").Num()
}

func (s *Surface) Viewport() (int, int) {
	res, ok := s.eval(`() => ({w: window.innerWidth, h: window.innerHeight})`)
	if !ok {
		return 0, 0
	}
	return res.Value.Get("w").Int(), res.Value.Get("h").Int()
}

func (s *Surface) NewMarker(commentID string) overlay.Marker {
	s.eval(`(cls, attr, id) => {
		const b = document.createElement('button');
		b.type = 'button';
		b.className = cls;
		b.setAttribute(attr, id);
		document.body.appendChild(b);
	}`, overlay.MarkerClass, overlay.MarkerIDAttr, commentID)
	return &marker{s: s, id: commentID}
}

// marker addresses its button by comment id on every call.
type marker struct {
	s  *Surface
	id string
}

const findMarker = `const b = [...document.querySelectorAll('.' + cls)].find(e => e.getAttribute(attr) === id); if (!b) return;`

func (m *marker) do(body string, args ...any) {
	m.s.eval(`(cls, attr, id, a, b2) => { `+findMarker+` `+body+` }`,
		append([]any{overlay.MarkerClass, overlay.MarkerIDAttr, m.id}, args...)...)
}

func (m *marker) SetLabel(n int) { m.do(`b.textContent = String(a);`, n, nil) }

func (m *marker) SetHighlighted(on bool) { m.do(`b.classList.toggle('highlighted', a);`, on, nil) }

func (m *marker) Show(x, y float64) {
	m.do(`b.style.left = a + 'px'; b.style.top = b2 + 'px'; b.classList.add('pinup-visible');`, x, y)
}

func (m *marker) Hide() { m.do(`b.classList.remove('pinup-visible');`, nil, nil) }

func (m *marker) Remove() { m.do(`b.remove();`, nil, nil) }
