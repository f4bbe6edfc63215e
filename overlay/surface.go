package overlay

import "github.com/hazyhaar/pinup/selector"

// Rect is an element box in CSS pixels relative to the viewport, as returned
// by getBoundingClientRect.
type Rect struct {
	Left, Top, Width, Height float64
}

// Surface is the document the runtime annotates. Implementations exist for
// the browser (syscall/js), a headless Chrome page and an in-memory test DOM.
type Surface interface {
	// InjectStyles adds a stylesheet once; repeated calls are no-ops.
	InjectStyles(css string)
	// Post delivers an encoded protocol message to the parent.
	Post(msg []byte)
	// Locate resolves a selector to the first matching element's box.
	Locate(selector string) (Rect, bool)
	// Scroll returns the document scroll offset.
	Scroll() (x, y float64)
	// Viewport returns the inner window size.
	Viewport() (width, height int)
	// NewMarker creates a detached, hidden marker for a comment.
	NewMarker(commentID string) Marker
}

// Marker is the on-page handle of one comment dot. Handles never leave the
// runtime.
type Marker interface {
	SetLabel(n int)
	SetHighlighted(on bool)
	// Show places the marker centre at document coordinates and displays it.
	Show(x, y float64)
	Hide()
	// Remove detaches the marker for good.
	Remove()
}

// Target is the element a click landed on.
type Target interface {
	selector.Element
	// Text returns the element's text content.
	Text() string
	Rect() Rect
}

// Click is a click delivered in the capture phase.
type Click struct {
	// MarkerID is set when the click landed on a comment marker.
	MarkerID string
	Target   Target
	ClientX  float64
	ClientY  float64
}
