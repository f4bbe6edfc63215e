// Package protocol defines the messages exchanged between the review page and
// the overlay runtime running inside the prototype frame.
//
// Every message is a flat JSON object tagged by its "type" field:
//
//	{"type":"dotClicked","commentId":"0192..."}
//
// The set of messages is closed. Receivers drop anything they cannot decode;
// Decode reports why with ErrUnknownType or ErrMalformed so the drop can be
// logged.
package protocol

// Type is the wire tag of a message.
type Type string

const (
	TypeReady           Type = "ready"
	TypeElementClicked  Type = "elementClicked"
	TypeDotClicked      Type = "dotClicked"
	TypeSetCommentMode  Type = "setCommentMode"
	TypeCommentsUpdated Type = "commentsUpdated"
	TypeSetHighlight    Type = "setHighlight"
)

// Direction tells which side of the frame boundary sends a message.
type Direction int

const (
	// ChildToParent messages are sent by the overlay runtime.
	ChildToParent Direction = iota
	// ParentToChild messages are sent by the review controller.
	ParentToChild
)

func (d Direction) String() string {
	if d == ParentToChild {
		return "parent->child"
	}
	return "child->parent"
}

// Message is one of the six protocol variants.
type Message interface {
	Type() Type
	Direction() Direction
	sealed()
}

// Ready announces that the runtime has installed its styles and handlers.
type Ready struct{}

// ElementClicked reports a click on page content while comment mode is on.
// ClickX and ClickY are percentages of the element's box.
type ElementClicked struct {
	Selector       string `json:"selector"`
	ElementText    string `json:"elementText"`
	ClickX         int    `json:"clickX"`
	ClickY         int    `json:"clickY"`
	ViewportWidth  int    `json:"viewportWidth"`
	ViewportHeight int    `json:"viewportHeight"`
}

// DotClicked reports a click on a comment marker.
type DotClicked struct {
	CommentID string `json:"commentId"`
}

// SetCommentMode switches the frame between browsing and targeting.
type SetCommentMode struct {
	Enabled bool `json:"enabled"`
}

// CommentRef is the part of a comment the runtime needs to place a marker.
type CommentRef struct {
	ID       string `json:"id"`
	Selector string `json:"selector"`
	ClickX   int    `json:"clickX"`
	ClickY   int    `json:"clickY"`
}

// CommentsUpdated replaces the runtime's comment list. Order defines the
// marker labels.
type CommentsUpdated struct {
	Comments []CommentRef `json:"comments"`
}

// SetHighlight highlights one marker. An empty CommentID clears the
// highlight and is sent as null.
type SetHighlight struct {
	CommentID string
}

func (Ready) Type() Type           { return TypeReady }
func (ElementClicked) Type() Type  { return TypeElementClicked }
func (DotClicked) Type() Type      { return TypeDotClicked }
func (SetCommentMode) Type() Type  { return TypeSetCommentMode }
func (CommentsUpdated) Type() Type { return TypeCommentsUpdated }
func (SetHighlight) Type() Type    { return TypeSetHighlight }

func (Ready) Direction() Direction           { return ChildToParent }
func (ElementClicked) Direction() Direction  { return ChildToParent }
func (DotClicked) Direction() Direction      { return ChildToParent }
func (SetCommentMode) Direction() Direction  { return ParentToChild }
func (CommentsUpdated) Direction() Direction { return ParentToChild }
func (SetHighlight) Direction() Direction    { return ParentToChild }

func (Ready) sealed()           {}
func (ElementClicked) sealed()  {}
func (DotClicked) sealed()      {}
func (SetCommentMode) sealed()  {}
func (CommentsUpdated) sealed() {}
func (SetHighlight) sealed()    {}

// ClampPercent bounds v to the 0–100 range used for click positions.
func ClampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
