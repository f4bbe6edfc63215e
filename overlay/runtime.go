// Package overlay is the comment runtime that runs inside the prototype
// document. It intercepts clicks while comment mode is on, turns them into
// elementClicked messages and keeps one numbered marker per known comment
// positioned over its target element.
//
// A Runtime is driven from a single event loop (the browser's, or a caller
// that serialises calls) and is not safe for concurrent use.
package overlay

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/pinup/protocol"
	"github.com/hazyhaar/pinup/selector"
)

type dot struct {
	marker      Marker
	label       int
	highlighted bool
	resolved    bool
}

// Config configures a Runtime.
type Config struct {
	Surface   Surface
	Generator selector.Generator
	Logger    *slog.Logger
}

// Runtime holds the overlay state for one document.
type Runtime struct {
	surface   Surface
	generator selector.Generator
	logger    *slog.Logger

	started     bool
	commentMode bool
	comments    []protocol.CommentRef
	dots        map[string]*dot
	highlighted string

	// Latest message of each kind received before Start.
	pendingMode      *protocol.SetCommentMode
	pendingComments  *protocol.CommentsUpdated
	pendingHighlight *protocol.SetHighlight
}

// New returns a runtime bound to cfg.Surface. Nothing is touched until Start.
func New(cfg Config) *Runtime {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runtime{
		surface:   cfg.Surface,
		generator: cfg.Generator,
		logger:    cfg.Logger,
		dots:      make(map[string]*dot),
	}
}

// Start injects the marker styles, emits ready and then applies whatever
// arrived before it. Calling Start twice is a no-op.
func (r *Runtime) Start() {
	if r.started {
		return
	}
	r.guard("start", func() { r.surface.InjectStyles(Styles) })
	r.started = true
	r.post(protocol.Ready{})

	if m := r.pendingMode; m != nil {
		r.apply(*m)
	}
	if m := r.pendingComments; m != nil {
		r.apply(*m)
	}
	if m := r.pendingHighlight; m != nil {
		r.apply(*m)
	}
	r.pendingMode, r.pendingComments, r.pendingHighlight = nil, nil, nil
}

// Started reports whether ready has been emitted.
func (r *Runtime) Started() bool { return r.started }

// CommentMode reports whether clicks are being intercepted.
func (r *Runtime) CommentMode() bool { return r.commentMode }

// HandleMessage decodes and applies a message from the parent. Anything that
// does not decode as a parent->child message is dropped.
func (r *Runtime) HandleMessage(data []byte) {
	m, err := protocol.DecodeFrom(protocol.ParentToChild, data)
	if err != nil {
		r.logger.Debug("overlay: message dropped", "error", err)
		return
	}
	r.Apply(m)
}

// Apply applies an already decoded message. Messages received before Start
// are held back, keeping only the latest of each kind.
func (r *Runtime) Apply(m protocol.Message) {
	if !r.started {
		switch m := m.(type) {
		case protocol.SetCommentMode:
			r.pendingMode = &m
		case protocol.CommentsUpdated:
			r.pendingComments = &m
		case protocol.SetHighlight:
			r.pendingHighlight = &m
		}
		return
	}
	r.apply(m)
}

func (r *Runtime) apply(m protocol.Message) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Warn("overlay: message handling failed", "type", m.Type(), "panic", fmt.Sprint(v))
		}
	}()
	switch m := m.(type) {
	case protocol.SetCommentMode:
		r.setCommentMode(m.Enabled)
	case protocol.CommentsUpdated:
		r.updateComments(m.Comments)
	case protocol.SetHighlight:
		r.setHighlight(m.CommentID)
	default:
		r.logger.Debug("overlay: ignoring message", "type", m.Type())
	}
}

// HandleClick processes a capture-phase click and reports whether the caller
// must prevent the default action and stop propagation.
func (r *Runtime) HandleClick(c Click) (intercepted bool) {
	if c.MarkerID != "" {
		if _, ok := r.dots[c.MarkerID]; ok {
			r.post(protocol.DotClicked{CommentID: c.MarkerID})
		}
		return true
	}
	if !r.started || !r.commentMode || c.Target == nil {
		return false
	}

	var msg protocol.ElementClicked
	ok := r.guard("click", func() {
		box := c.Target.Rect()
		w, h := r.surface.Viewport()
		msg = protocol.ElementClicked{
			Selector:       r.generator.Generate(c.Target),
			ElementText:    Excerpt(c.Target.Text(), MaxElementText),
			ClickX:         Relative(c.ClientX, box.Left, box.Width),
			ClickY:         Relative(c.ClientY, box.Top, box.Height),
			ViewportWidth:  w,
			ViewportHeight: h,
		}
	})
	if !ok {
		return true
	}
	if msg.Selector == "" {
		r.logger.Debug("overlay: click on document root ignored")
		return true
	}
	r.post(msg)
	return true
}

// Reposition recomputes every marker position from the current layout. It
// only reads the latest comment list and may be called any number of times.
func (r *Runtime) Reposition() {
	if !r.started {
		return
	}
	for _, c := range r.comments {
		if d, ok := r.dots[c.ID]; ok {
			r.place(d, c)
		}
	}
}

// Unresolved returns the ids of comments whose selector did not resolve on
// the last positioning pass, in list order.
func (r *Runtime) Unresolved() []string {
	var ids []string
	for _, c := range r.comments {
		if d, ok := r.dots[c.ID]; ok && !d.resolved {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// Highlighted returns the id of the highlighted marker, or "".
func (r *Runtime) Highlighted() string { return r.highlighted }

func (r *Runtime) setCommentMode(on bool) {
	r.commentMode = on
	if on {
		r.Reposition()
		return
	}
	for _, d := range r.dots {
		r.guard("hide", d.marker.Hide)
	}
}

func (r *Runtime) updateComments(list []protocol.CommentRef) {
	present := make(map[string]bool, len(list))
	for _, c := range list {
		present[c.ID] = true
	}
	for id, d := range r.dots {
		if !present[id] {
			r.guard("remove", d.marker.Remove)
			delete(r.dots, id)
		}
	}
	if !present[r.highlighted] {
		r.highlighted = ""
	}

	r.comments = append(r.comments[:0:0], list...)
	for i, c := range r.comments {
		d, ok := r.dots[c.ID]
		if !ok {
			var m Marker
			r.guard("create", func() { m = r.surface.NewMarker(c.ID) })
			if m == nil {
				m = nopMarker{}
			}
			d = &dot{marker: m}
			r.dots[c.ID] = d
		}
		if d.label != i+1 {
			d.label = i + 1
			r.guard("label", func() { d.marker.SetLabel(d.label) })
		}
		r.highlight(d, c.ID == r.highlighted)
	}
	r.Reposition()
}

func (r *Runtime) setHighlight(id string) {
	if id != "" {
		if _, ok := r.dots[id]; !ok {
			return
		}
	}
	r.highlighted = id
	for did, d := range r.dots {
		r.highlight(d, did == id)
	}
}

func (r *Runtime) highlight(d *dot, on bool) {
	if d.highlighted == on {
		return
	}
	d.highlighted = on
	r.guard("highlight", func() { d.marker.SetHighlighted(on) })
}

// place resolves the comment target and shows or hides its marker. Any
// failure of the surface leaves the marker hidden.
func (r *Runtime) place(d *dot, c protocol.CommentRef) {
	d.resolved = false
	ok := r.guard("place", func() {
		box, found := r.surface.Locate(c.Selector)
		if !found {
			d.marker.Hide()
			return
		}
		d.resolved = true
		if !r.commentMode {
			d.marker.Hide()
			return
		}
		sx, sy := r.surface.Scroll()
		x, y := Position(box, sx, sy, c.ClickX, c.ClickY)
		d.marker.Show(x, y)
	})
	if !ok {
		d.resolved = false
		r.guard("hide", d.marker.Hide)
	}
}

func (r *Runtime) post(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		r.logger.Warn("overlay: encode failed", "type", m.Type(), "error", err)
		return
	}
	r.guard("post", func() { r.surface.Post(data) })
}

// guard runs fn and converts a panic into a logged failure.
func (r *Runtime) guard(op string, fn func()) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Warn("overlay: surface call failed", "op", op, "panic", fmt.Sprint(v))
			ok = false
		}
	}()
	fn()
	return true
}

type nopMarker struct{}

func (nopMarker) SetLabel(int)          {}
func (nopMarker) SetHighlighted(bool)   {}
func (nopMarker) Show(float64, float64) {}
func (nopMarker) Hide()                 {}
func (nopMarker) Remove()               {}
