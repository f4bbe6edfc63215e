//go:build js && wasm

package jsdom

import (
	"syscall/js"

	"github.com/hazyhaar/pinup/overlay"
)

// Attach wires the runtime to the browser: a capture-phase click listener,
// message, resize and load listeners, and a ResizeObserver on the root
// element so markers follow reflows. Repositioning is coalesced to one pass
// per animation frame. The returned function removes everything.
func Attach(s *Surface, rt *overlay.Runtime) (detach func()) {
	var funcs []js.Func
	var undo []func()
	listen := func(target js.Value, event string, capture bool, fn func(this js.Value, args []js.Value) any) {
		f := js.FuncOf(fn)
		funcs = append(funcs, f)
		target.Call("addEventListener", event, f, capture)
		undo = append(undo, func() { target.Call("removeEventListener", event, f, capture) })
	}

	scheduled := false
	frame := js.FuncOf(func(js.Value, []js.Value) any {
		scheduled = false
		if rt.CommentMode() {
			rt.Reposition()
		}
		return nil
	})
	funcs = append(funcs, frame)
	schedule := func() {
		if scheduled {
			return
		}
		scheduled = true
		s.win.Call("requestAnimationFrame", frame)
	}

	listen(s.doc, "click", true, func(_ js.Value, args []js.Value) any {
		ev := args[0]
		c, ok := clickOf(ev)
		if !ok {
			return nil
		}
		if rt.HandleClick(c) {
			ev.Call("preventDefault")
			ev.Call("stopImmediatePropagation")
		}
		return nil
	})

	listen(s.win, "message", false, func(_ js.Value, args []js.Value) any {
		ev := args[0]
		if !ev.Get("source").Equal(s.win.Get("parent")) {
			return nil
		}
		data := ev.Get("data")
		switch data.Type() {
		case js.TypeString:
			rt.HandleMessage([]byte(data.String()))
		case js.TypeObject:
			if data.IsNull() {
				return nil
			}
			rt.HandleMessage([]byte(js.Global().Get("JSON").Call("stringify", data).String()))
		}
		return nil
	})

	resize := func(js.Value, []js.Value) any { schedule(); return nil }
	listen(s.win, "resize", false, resize)
	listen(s.win, "load", false, resize)

	if ro := js.Global().Get("ResizeObserver"); truthy(ro) {
		f := js.FuncOf(resize)
		funcs = append(funcs, f)
		obs := ro.New(f)
		obs.Call("observe", s.doc.Get("documentElement"))
		undo = append(undo, func() { obs.Call("disconnect") })
	}

	return func() {
		for _, u := range undo {
			u()
		}
		for _, f := range funcs {
			f.Release()
		}
	}
}

// OnReady runs fn once the document has been parsed.
func OnReady(s *Surface, fn func()) {
	if s.doc.Get("readyState").String() != "loading" {
		fn()
		return
	}
	var f js.Func
	f = js.FuncOf(func(js.Value, []js.Value) any {
		f.Release()
		fn()
		return nil
	})
	s.doc.Call("addEventListener", "DOMContentLoaded", f, map[string]any{"once": true})
}

func clickOf(ev js.Value) (overlay.Click, bool) {
	t := ev.Get("target")
	if !truthy(t) {
		return overlay.Click{}, false
	}
	// Text node targets are reported through their parent element.
	if t.Get("nodeType").Int() != 1 {
		t = t.Get("parentElement")
		if !truthy(t) {
			return overlay.Click{}, false
		}
	}
	c := overlay.Click{
		ClientX: ev.Get("clientX").Float(),
		ClientY: ev.Get("clientY").Float(),
	}
	if m := t.Call("closest", "."+overlay.MarkerClass); truthy(m) {
		c.MarkerID = stringOr(m.Call("getAttribute", overlay.MarkerIDAttr))
		return c, c.MarkerID != ""
	}
	c.Target = element{t}
	return c, true
}
