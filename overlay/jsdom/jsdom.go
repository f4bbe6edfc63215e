//go:build js && wasm

// Package jsdom runs the overlay inside a browser document through
// syscall/js. Output goes to window.parent with postMessage.
package jsdom

import (
	"fmt"
	"strconv"
	"strings"
	"syscall/js"

	"github.com/hazyhaar/pinup/overlay"
	"github.com/hazyhaar/pinup/selector"
)

// Surface is the live document of the current window.
type Surface struct {
	win js.Value
	doc js.Value
}

// New binds to the global window.
func New() *Surface {
	win := js.Global()
	return &Surface{win: win, doc: win.Get("document")}
}

func (s *Surface) InjectStyles(css string) {
	if truthy(s.doc.Call("getElementById", overlay.StylesID)) {
		return
	}
	style := s.doc.Call("createElement", "style")
	style.Set("id", overlay.StylesID)
	style.Set("textContent", css)
	head := s.doc.Get("head")
	if !truthy(head) {
		head = s.doc.Get("documentElement")
	}
	head.Call("appendChild", style)
}

// Post parses msg back into a JS object so the parent receives structured
// data, as it would from a script written by hand.
func (s *Surface) Post(msg []byte) {
	parent := s.win.Get("parent")
	if !truthy(parent) || parent.Equal(s.win) {
		return
	}
	obj := js.Global().Get("JSON").Call("parse", string(msg))
	parent.Call("postMessage", obj, "*")
}

func (s *Surface) Locate(sel string) (r overlay.Rect, ok bool) {
	defer func() {
		// querySelector throws on invalid syntax.
		if recover() != nil {
			r, ok = overlay.Rect{}, false
		}
	}()
	el := s.doc.Call("querySelector", sel)
	if !truthy(el) {
		return overlay.Rect{}, false
	}
	return rectOf(el), true
}

func (s *Surface) Scroll() (float64, float64) {
	return s.win.Get("scrollX").Float(), s.win.Get("scrollY").Float()
}

func (s *Surface) Viewport() (int, int) {
	return s.win.Get("innerWidth").Int(), s.win.Get("innerHeight").Int()
}

func (s *Surface) NewMarker(commentID string) overlay.Marker {
	btn := s.doc.Call("createElement", "button")
	btn.Set("type", "button")
	btn.Set("className", overlay.MarkerClass)
	btn.Call("setAttribute", overlay.MarkerIDAttr, commentID)
	btn.Call("setAttribute", "aria-label", "Comment "+commentID)
	s.doc.Get("body").Call("appendChild", btn)
	return marker{btn}
}

type marker struct{ el js.Value }

func (m marker) SetLabel(n int) { m.el.Set("textContent", strconv.Itoa(n)) }

func (m marker) SetHighlighted(on bool) { m.el.Get("classList").Call("toggle", "highlighted", on) }

func (m marker) Show(x, y float64) {
	style := m.el.Get("style")
	style.Set("left", fmt.Sprintf("%.2fpx", x))
	style.Set("top", fmt.Sprintf("%.2fpx", y))
	m.el.Get("classList").Call("add", "pinup-visible")
}

func (m marker) Hide() { m.el.Get("classList").Call("remove", "pinup-visible") }

func (m marker) Remove() { m.el.Call("remove") }

// element adapts a DOM element to overlay.Target.
type element struct{ v js.Value }

func (e element) Tag() string { return strings.ToLower(e.v.Get("tagName").String()) }

func (e element) ID() string { return stringOr(e.v.Get("id")) }

// Classes reads the attribute rather than className, which is an object on
// SVG elements.
func (e element) Classes() []string {
	return strings.Fields(stringOr(e.v.Call("getAttribute", "class")))
}

func (e element) Parent() selector.Element {
	p := e.v.Get("parentElement")
	if !truthy(p) {
		return nil
	}
	return element{p}
}

func (e element) TypeIndex() (pos, count int) {
	p := e.v.Get("parentElement")
	if !truthy(p) {
		return 1, 1
	}
	tag := e.v.Get("tagName").String()
	children := p.Get("children")
	for i, n := 0, children.Length(); i < n; i++ {
		c := children.Index(i)
		if c.Get("tagName").String() != tag {
			continue
		}
		count++
		if c.Equal(e.v) {
			pos = count
		}
	}
	return pos, count
}

func (e element) Text() string { return stringOr(e.v.Get("textContent")) }

func (e element) Rect() overlay.Rect { return rectOf(e.v) }

func rectOf(el js.Value) overlay.Rect {
	r := el.Call("getBoundingClientRect")
	return overlay.Rect{
		Left:   r.Get("left").Float(),
		Top:    r.Get("top").Float(),
		Width:  r.Get("width").Float(),
		Height: r.Get("height").Float(),
	}
}

func truthy(v js.Value) bool { return !v.IsUndefined() && !v.IsNull() && v.Truthy() }

func stringOr(v js.Value) string {
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}
