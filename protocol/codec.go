package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is returned for a well-formed object whose tag is not
	// part of the protocol, or not expected in the decoding direction.
	ErrUnknownType = errors.New("protocol: unknown message type")
	// ErrMalformed is returned for payloads that are not objects, lack a
	// required field, carry a field of the wrong JSON type or hold an
	// out-of-range value.
	ErrMalformed = errors.New("protocol: malformed message")
)

// Encode serialises m in wire form.
func Encode(m Message) ([]byte, error) {
	type tag struct {
		Type Type `json:"type"`
	}
	switch m := m.(type) {
	case Ready:
		return json.Marshal(tag{TypeReady})
	case ElementClicked:
		return json.Marshal(struct {
			tag
			ElementClicked
		}{tag{TypeElementClicked}, m})
	case DotClicked:
		return json.Marshal(struct {
			tag
			DotClicked
		}{tag{TypeDotClicked}, m})
	case SetCommentMode:
		return json.Marshal(struct {
			tag
			SetCommentMode
		}{tag{TypeSetCommentMode}, m})
	case CommentsUpdated:
		list := m.Comments
		if list == nil {
			list = []CommentRef{}
		}
		return json.Marshal(struct {
			tag
			Comments []CommentRef `json:"comments"`
		}{tag{TypeCommentsUpdated}, list})
	case SetHighlight:
		var id *string
		if m.CommentID != "" {
			id = &m.CommentID
		}
		return json.Marshal(struct {
			tag
			CommentID *string `json:"commentId"`
		}{tag{TypeSetHighlight}, id})
	case nil:
		return nil, fmt.Errorf("protocol: encode: nil message")
	default:
		return nil, fmt.Errorf("protocol: encode: unsupported message %T", m)
	}
}

// MustEncode is Encode for messages built in code, which cannot fail.
func MustEncode(m Message) []byte {
	data, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode parses any protocol message.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil || !isObject(data) {
		return nil, ErrMalformed
	}
	if head.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch Type(*head.Type) {
	case TypeReady:
		return Ready{}, nil
	case TypeElementClicked:
		return decodeElementClicked(data)
	case TypeDotClicked:
		return decodeDotClicked(data)
	case TypeSetCommentMode:
		return decodeSetCommentMode(data)
	case TypeCommentsUpdated:
		return decodeCommentsUpdated(data)
	case TypeSetHighlight:
		return decodeSetHighlight(data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, *head.Type)
}

// DecodeFrom parses a message and rejects variants that the given direction
// does not carry, so the runtime never acts on a child->parent message and
// the controller never acts on a parent->child one.
func DecodeFrom(dir Direction, data []byte) (Message, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if m.Direction() != dir {
		return nil, fmt.Errorf("%w: %q is not %s", ErrUnknownType, m.Type(), dir)
	}
	return m, nil
}

func isObject(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
}

func decodeElementClicked(data []byte) (Message, error) {
	var w struct {
		Selector       *string `json:"selector"`
		ElementText    *string `json:"elementText"`
		ClickX         *int    `json:"clickX"`
		ClickY         *int    `json:"clickY"`
		ViewportWidth  *int    `json:"viewportWidth"`
		ViewportHeight *int    `json:"viewportHeight"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed("elementClicked: %v", err)
	}
	switch {
	case w.Selector == nil:
		return nil, malformed("elementClicked: missing selector")
	case w.ClickX == nil || w.ClickY == nil:
		return nil, malformed("elementClicked: missing click position")
	case w.ViewportWidth == nil || w.ViewportHeight == nil:
		return nil, malformed("elementClicked: missing viewport")
	case !percent(*w.ClickX) || !percent(*w.ClickY):
		return nil, malformed("elementClicked: click position out of range")
	case *w.ViewportWidth < 0 || *w.ViewportHeight < 0:
		return nil, malformed("elementClicked: negative viewport")
	}
	m := ElementClicked{
		Selector:       *w.Selector,
		ClickX:         *w.ClickX,
		ClickY:         *w.ClickY,
		ViewportWidth:  *w.ViewportWidth,
		ViewportHeight: *w.ViewportHeight,
	}
	if w.ElementText != nil {
		m.ElementText = *w.ElementText
	}
	return m, nil
}

func decodeDotClicked(data []byte) (Message, error) {
	var w struct {
		CommentID *string `json:"commentId"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed("dotClicked: %v", err)
	}
	if w.CommentID == nil || *w.CommentID == "" {
		return nil, malformed("dotClicked: missing commentId")
	}
	return DotClicked{CommentID: *w.CommentID}, nil
}

func decodeSetCommentMode(data []byte) (Message, error) {
	var w struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed("setCommentMode: %v", err)
	}
	if w.Enabled == nil {
		return nil, malformed("setCommentMode: missing enabled")
	}
	return SetCommentMode{Enabled: *w.Enabled}, nil
}

func decodeCommentsUpdated(data []byte) (Message, error) {
	var w struct {
		Comments *[]struct {
			ID       *string `json:"id"`
			Selector *string `json:"selector"`
			ClickX   *int    `json:"clickX"`
			ClickY   *int    `json:"clickY"`
		} `json:"comments"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed("commentsUpdated: %v", err)
	}
	if w.Comments == nil {
		return nil, malformed("commentsUpdated: missing comments")
	}
	out := make([]CommentRef, 0, len(*w.Comments))
	seen := make(map[string]bool, len(*w.Comments))
	for i, c := range *w.Comments {
		switch {
		case c.ID == nil || *c.ID == "":
			return nil, malformed("commentsUpdated: comment %d: missing id", i)
		case c.Selector == nil:
			return nil, malformed("commentsUpdated: comment %d: missing selector", i)
		case c.ClickX == nil || c.ClickY == nil:
			return nil, malformed("commentsUpdated: comment %d: missing click position", i)
		case !percent(*c.ClickX) || !percent(*c.ClickY):
			return nil, malformed("commentsUpdated: comment %d: click position out of range", i)
		case seen[*c.ID]:
			return nil, malformed("commentsUpdated: duplicate id %q", *c.ID)
		}
		seen[*c.ID] = true
		out = append(out, CommentRef{ID: *c.ID, Selector: *c.Selector, ClickX: *c.ClickX, ClickY: *c.ClickY})
	}
	return CommentsUpdated{Comments: out}, nil
}

func decodeSetHighlight(data []byte) (Message, error) {
	var w struct {
		CommentID json.RawMessage `json:"commentId"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, malformed("setHighlight: %v", err)
	}
	if w.CommentID == nil {
		return nil, malformed("setHighlight: missing commentId")
	}
	var id *string
	if err := json.Unmarshal(w.CommentID, &id); err != nil {
		return nil, malformed("setHighlight: commentId must be a string or null")
	}
	if id == nil {
		return SetHighlight{}, nil
	}
	return SetHighlight{CommentID: *id}, nil
}

func percent(v int) bool { return v >= 0 && v <= 100 }
