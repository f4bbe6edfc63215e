// Package overlaytest provides an in-memory overlay.Surface for tests. The
// document is parsed with x/net/html; element boxes come from an explicit
// layout table since nothing is rendered.
package overlaytest

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pinup/overlay"
	"github.com/hazyhaar/pinup/protocol"
	"github.com/hazyhaar/pinup/selector"
)

// Surface is a fake document. The zero value is not usable; call New.
type Surface struct {
	Doc              *html.Node
	ScrollX, ScrollY float64
	Width, Height    int

	// PanicOnLocate makes Locate panic, standing in for a broken DOM call.
	PanicOnLocate bool

	layout  map[*html.Node]overlay.Rect
	sent    [][]byte
	styles  []string
	markers []*Marker
}

// New parses src into a surface with a 1280x800 viewport.
func New(t testing.TB, src string) *Surface {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("overlaytest: parse: %v", err)
	}
	return &Surface{
		Doc:    doc,
		Width:  1280,
		Height: 800,
		layout: make(map[*html.Node]overlay.Rect),
	}
}

// InjectStyles records the stylesheet once.
func (s *Surface) InjectStyles(css string) {
	if len(s.styles) == 0 {
		s.styles = append(s.styles, css)
	}
}

// StylesInjected reports whether InjectStyles ran.
func (s *Surface) StylesInjected() bool { return len(s.styles) > 0 }

// Post records an outgoing message.
func (s *Surface) Post(msg []byte) {
	s.sent = append(s.sent, append([]byte(nil), msg...))
}

// Locate resolves sel with cascadia and returns the box from the layout
// table. Elements without an entry have an empty box at the origin.
func (s *Surface) Locate(sel string) (overlay.Rect, bool) {
	if s.PanicOnLocate {
		panic("overlaytest: locate failed")
	}
	n, ok := selector.Resolve(s.Doc, sel)
	if !ok {
		return overlay.Rect{}, false
	}
	return s.layout[n], true
}

func (s *Surface) Scroll() (float64, float64) { return s.ScrollX, s.ScrollY }

func (s *Surface) Viewport() (int, int) { return s.Width, s.Height }

// NewMarker creates a hidden marker.
func (s *Surface) NewMarker(commentID string) overlay.Marker {
	m := &Marker{ID: commentID}
	s.markers = append(s.markers, m)
	return m
}

// Node returns the first element matching sel, or nil.
func (s *Surface) Node(sel string) *html.Node {
	n, _ := selector.Resolve(s.Doc, sel)
	return n
}

// SetRect sets the viewport-relative box of the element matching sel.
func (s *Surface) SetRect(sel string, r overlay.Rect) {
	if n := s.Node(sel); n != nil {
		s.layout[n] = r
	}
}

// Remove detaches the first element matching sel.
func (s *Surface) Remove(sel string) bool {
	n := s.Node(sel)
	if n == nil || n.Parent == nil {
		return false
	}
	n.Parent.RemoveChild(n)
	return true
}

// Append parses fragment in the context of the element matching parentSel
// and appends the result to it.
func (s *Surface) Append(t testing.TB, parentSel, fragment string) {
	t.Helper()
	parent := s.Node(parentSel)
	if parent == nil {
		t.Fatalf("overlaytest: no element %q", parentSel)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		t.Fatalf("overlaytest: parse fragment: %v", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
}

// Click builds a click on the element matching sel at client coordinates.
func (s *Surface) Click(t testing.TB, sel string, clientX, clientY float64) overlay.Click {
	t.Helper()
	n := s.Node(sel)
	if n == nil {
		t.Fatalf("overlaytest: no element %q", sel)
	}
	return overlay.Click{
		Target:  target{Element: selector.FromHTML(n), n: n, s: s},
		ClientX: clientX,
		ClientY: clientY,
	}
}

// ClickMarker builds a click on the marker of a comment.
func (s *Surface) ClickMarker(commentID string) overlay.Click {
	return overlay.Click{MarkerID: commentID}
}

// Sent decodes every message posted so far.
func (s *Surface) Sent(t testing.TB) []protocol.Message {
	t.Helper()
	out := make([]protocol.Message, 0, len(s.sent))
	for _, raw := range s.sent {
		m, err := protocol.DecodeFrom(protocol.ChildToParent, raw)
		if err != nil {
			t.Fatalf("overlaytest: runtime posted an invalid message %s: %v", raw, err)
		}
		out = append(out, m)
	}
	return out
}

// ResetSent forgets posted messages.
func (s *Surface) ResetSent() { s.sent = nil }

// Marker returns the live marker for a comment, or nil.
func (s *Surface) Marker(commentID string) *Marker {
	for _, m := range s.markers {
		if m.ID == commentID && !m.Removed {
			return m
		}
	}
	return nil
}

// Markers returns every marker ever created, removed ones included.
func (s *Surface) Markers() []*Marker { return s.markers }

// Marker is a recorded comment dot.
type Marker struct {
	ID          string
	Label       int
	Highlighted bool
	Visible     bool
	X, Y        float64
	Removed     bool
}

func (m *Marker) SetLabel(n int)         { m.Label = n }
func (m *Marker) SetHighlighted(on bool) { m.Highlighted = on }
func (m *Marker) Show(x, y float64)      { m.X, m.Y, m.Visible = x, y, true }
func (m *Marker) Hide()                  { m.Visible = false }
func (m *Marker) Remove()                { m.Removed, m.Visible = true, false }

type target struct {
	selector.Element
	n *html.Node
	s *Surface
}

func (t target) Text() string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(t.n)
	return b.String()
}

func (t target) Rect() overlay.Rect { return t.s.layout[t.n] }
