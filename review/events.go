package review

import (
	"github.com/hazyhaar/pinup/comments"
	"github.com/hazyhaar/pinup/protocol"
)

// UI actions sent by the host page.
const (
	ActionTogglePanel = "togglePanel"
	ActionSubmit      = "submit"
	ActionCancel      = "cancel"
	ActionDelete      = "delete"
	ActionHighlight   = "highlight"
	ActionFrameLoaded = "frameLoaded"
)

// Action is one inbound UI action. Text is set for submit, ID for delete
// and highlight (an empty ID clears the highlight).
type Action struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Kinds of UI updates.
const (
	KindPanel       = "panel"
	KindPrompt      = "prompt"
	KindNotice      = "notice"
	KindUnavailable = "unavailable"
)

// Update is one outbound UI change: a rendered fragment the host page swaps
// into the slot named by Kind. Open reports panel or prompt visibility;
// Count is the comment count shown in the top bar.
type Update struct {
	Kind  string `json:"kind"`
	Open  bool   `json:"open,omitempty"`
	Count int    `json:"count,omitempty"`
	HTML  string `json:"html"`
}

// event is anything the controller loop processes.
type event interface{ isEvent() }

type frameEvent struct{ msg protocol.Message }

type actionEvent struct{ action Action }

type listDone struct {
	list []comments.Comment
	err  error
}

type createDone struct {
	comment comments.Comment
	err     error
}

type deleteDone struct {
	id    string
	found bool
	err   error
}

type highlightExpired struct{ id string }

type readyExpired struct{}

type storeChanged struct{}

func (frameEvent) isEvent()       {}
func (actionEvent) isEvent()      {}
func (listDone) isEvent()         {}
func (createDone) isEvent()       {}
func (deleteDone) isEvent()       {}
func (highlightExpired) isEvent() {}
func (readyExpired) isEvent()     {}
func (storeChanged) isEvent()     {}
