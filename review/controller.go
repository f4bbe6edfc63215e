// Package review runs the host side of a review session: one Controller per
// viewer owns the authoritative comment list, speaks the parent side of the
// frame protocol and drives the authoring and deletion flow against the
// comment store. All state changes happen on the controller's event loop.
package review

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/pinup/comments"
	"github.com/hazyhaar/pinup/projects"
	"github.com/hazyhaar/pinup/protocol"
)

// Defaults for Config.
const (
	DefaultReadyTimeout = 5 * time.Second
	DefaultHighlightFor = 2 * time.Second
)

// User-facing notices.
const (
	noticeCrossOrigin   = "Unable to capture clicks on this prototype (cross-origin restriction)"
	noticeNoRuntime     = "The comment overlay did not start in this prototype. Comments can be read but not added."
	noticeLoadFailed    = "Failed to load comments"
	noticeCreateFailed  = "Failed to add comment. Please try again."
	noticeDeleteFailed  = "Failed to delete comment"
	noticeDeleteDenied  = "You can only delete your own comments"
	noticeEmptyComment  = "Please enter a comment"
	noticeCommentExists = "This comment no longer exists"
)

// State is the authoring state of a controller.
type State int

const (
	Idle State = iota
	AwaitingAuthorInput
	Submitting
	Unavailable
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingAuthorInput:
		return "awaiting_author_input"
	case Submitting:
		return "submitting"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// Store is the comment persistence the controller needs.
type Store interface {
	List(ctx context.Context, projectID, versionID string) ([]comments.Comment, error)
	Create(ctx context.Context, a comments.Author, d comments.Draft) (comments.Comment, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Output delivers controller output to the viewer: protocol messages for the
// prototype frame and rendered UI updates for the host page.
type Output interface {
	SendFrame(m protocol.Message)
	SendUI(u Update)
}

// Config wires a Controller.
type Config struct {
	Project      *projects.Project
	Version      projects.Version
	Author       comments.Author
	Store        Store
	Output       Output
	Logger       *slog.Logger
	ReadyTimeout time.Duration
	HighlightFor time.Duration
}

// Controller is the host side of one review session. Create it with New,
// run it with Run, and feed it with FrameMessage and Action from any
// goroutine.
type Controller struct {
	project      *projects.Project
	version      projects.Version
	author       comments.Author
	store        Store
	out          Output
	view         *View
	logger       *slog.Logger
	readyTimeout time.Duration
	highlightFor time.Duration

	events chan event
	done   chan struct{}

	// after and spawn are replaced in tests to make timers and store
	// completions deterministic.
	after func(d time.Duration, f func()) (stop func() bool)
	spawn func(ctx context.Context, job func(context.Context) event)

	// Loop-owned state.
	ctx         context.Context
	state       State
	ready       bool
	loaded      bool
	loading     bool
	stale       bool
	panelOpen   bool
	list        []comments.Comment
	highlighted string
	click       *protocol.ElementClicked
	draft       string
	promptErr   string
	readyTimer  func() bool
	clearTimer  func() bool
}

// New returns a controller for one viewer. It does nothing until Run.
func New(cfg Config) *Controller {
	c := &Controller{
		project:      cfg.Project,
		version:      cfg.Version,
		author:       cfg.Author,
		store:        cfg.Store,
		out:          cfg.Output,
		view:         DefaultView(),
		logger:       cfg.Logger,
		readyTimeout: cfg.ReadyTimeout,
		highlightFor: cfg.HighlightFor,
		events:       make(chan event, 64),
		done:         make(chan struct{}),
		after: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
	c.spawn = func(ctx context.Context, job func(context.Context) event) {
		go func() { c.post(job(ctx)) }()
	}
	c.view.ExportURL = "/api/export?" + url.Values{
		"projectId": {cfg.Project.ID},
		"versionId": {cfg.Version.ID},
	}.Encode()
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("project", cfg.Project.ID, "version", cfg.Version.ID, "author", cfg.Author.Name)
	if c.readyTimeout <= 0 {
		c.readyTimeout = DefaultReadyTimeout
	}
	if c.highlightFor <= 0 {
		c.highlightFor = DefaultHighlightFor
	}
	return c
}

// Run processes events until ctx is done. It renders the initial page state
// and starts loading the comment list.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	c.start(ctx)
	for {
		select {
		case <-ctx.Done():
			c.stopTimers()
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// FrameMessage queues a message received from the prototype frame.
// Malformed messages and messages addressed to the frame are dropped.
func (c *Controller) FrameMessage(data []byte) {
	m, err := protocol.DecodeFrom(protocol.ChildToParent, data)
	if err != nil {
		c.logger.Debug("review: dropped frame message", "error", err)
		return
	}
	c.post(frameEvent{msg: m})
}

// Action queues a UI action from the host page.
func (c *Controller) Action(a Action) {
	c.post(actionEvent{action: a})
}

// Refresh asks the controller to reload its comment list. It never blocks;
// a refresh is dropped when the event queue is full.
func (c *Controller) Refresh() {
	select {
	case c.events <- storeChanged{}:
	default:
	}
}

// State returns the authoring state. It is only safe to call from the loop
// or after Run returned.
func (c *Controller) State() State { return c.state }

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) start(ctx context.Context) {
	c.ctx = ctx
	if !c.version.Instrumentable() {
		c.becomeUnavailable(noticeCrossOrigin)
	}
	c.reload()
	c.renderPanel()
}

func (c *Controller) stopTimers() {
	if c.readyTimer != nil {
		c.readyTimer()
		c.readyTimer = nil
	}
	if c.clearTimer != nil {
		c.clearTimer()
		c.clearTimer = nil
	}
}

func (c *Controller) handle(ev event) {
	switch ev := ev.(type) {
	case frameEvent:
		c.onFrame(ev.msg)
	case actionEvent:
		c.onAction(ev.action)
	case listDone:
		c.onListed(ev)
	case createDone:
		c.onCreated(ev)
	case deleteDone:
		c.onDeleted(ev)
	case highlightExpired:
		if c.highlighted == ev.id {
			c.setHighlight("")
		}
	case storeChanged:
		c.reload()
	case readyExpired:
		c.readyTimer = nil
		if !c.ready && c.state != Unavailable {
			c.logger.Warn("review: frame loaded without overlay runtime", "timeout", c.readyTimeout)
			c.becomeUnavailable(noticeNoRuntime)
		}
	}
}

func (c *Controller) onFrame(m protocol.Message) {
	if c.state == Unavailable {
		return
	}
	switch m := m.(type) {
	case protocol.Ready:
		c.ready = true
		if c.readyTimer != nil {
			c.readyTimer()
			c.readyTimer = nil
		}
		c.out.SendFrame(protocol.SetCommentMode{Enabled: c.panelOpen})
		c.out.SendFrame(protocol.CommentsUpdated{Comments: comments.Refs(c.list)})
		c.out.SendFrame(protocol.SetHighlight{CommentID: c.highlighted})
	case protocol.ElementClicked:
		if m.Selector == "" {
			c.logger.Debug("review: click without a selector ignored")
			return
		}
		if c.state != Idle {
			c.logger.Debug("review: click ignored while a prompt is open", "state", c.state)
			return
		}
		c.click = &m
		c.draft, c.promptErr = "", ""
		c.state = AwaitingAuthorInput
		c.renderPrompt()
	case protocol.DotClicked:
		if _, ok := c.find(m.CommentID); !ok {
			return
		}
		c.openPanel()
		c.setHighlight(m.CommentID)
		id := m.CommentID
		if c.clearTimer != nil {
			c.clearTimer()
		}
		c.clearTimer = c.after(c.highlightFor, func() { c.post(highlightExpired{id: id}) })
	}
}

func (c *Controller) onAction(a Action) {
	switch a.Action {
	case ActionTogglePanel:
		c.panelOpen = !c.panelOpen
		c.renderPanel()
		c.sendFrame(protocol.SetCommentMode{Enabled: c.panelOpen})
	case ActionHighlight:
		if a.ID != "" {
			if _, ok := c.find(a.ID); !ok {
				return
			}
		}
		c.setHighlight(a.ID)
	case ActionFrameLoaded:
		if c.ready || c.state == Unavailable || c.readyTimer != nil {
			return
		}
		c.readyTimer = c.after(c.readyTimeout, func() { c.post(readyExpired{}) })
	case ActionSubmit:
		c.submit(a.Text)
	case ActionCancel:
		if c.state != AwaitingAuthorInput {
			return
		}
		c.state = Idle
		c.click, c.draft, c.promptErr = nil, "", ""
		c.renderPrompt()
	case ActionDelete:
		c.delete(a.ID)
	default:
		c.logger.Debug("review: unknown action", "action", a.Action)
	}
}

func (c *Controller) submit(text string) {
	if c.state != AwaitingAuthorInput || c.click == nil {
		return
	}
	c.draft = text
	text = strings.TrimSpace(text)
	if text == "" {
		c.promptErr = noticeEmptyComment
		c.renderPrompt()
		return
	}
	c.state = Submitting
	c.promptErr = ""
	c.renderPrompt()

	d := comments.DraftFromClick(c.project.ID, c.version.ID, *c.click, text)
	author := c.author
	c.spawn(c.ctx, func(ctx context.Context) event {
		created, err := c.store.Create(ctx, author, d)
		return createDone{comment: created, err: err}
	})
}

func (c *Controller) delete(id string) {
	target, ok := c.find(id)
	if !ok {
		c.notice(noticeCommentExists)
		return
	}
	if !c.author.CanDelete(target) {
		c.notice(noticeDeleteDenied)
		return
	}
	c.spawn(c.ctx, func(ctx context.Context) event {
		found, err := c.store.Delete(ctx, id)
		return deleteDone{id: id, found: found, err: err}
	})
}

// reload starts a list load. Requests made while a load is in flight are
// coalesced into one more load after it completes.
func (c *Controller) reload() {
	if c.loading {
		c.stale = true
		return
	}
	c.loading = true
	projectID, versionID := c.project.ID, c.version.ID
	c.spawn(c.ctx, func(ctx context.Context) event {
		list, err := c.store.List(ctx, projectID, versionID)
		return listDone{list: list, err: err}
	})
}

func (c *Controller) onListed(ev listDone) {
	c.loading = false
	if c.stale {
		c.stale = false
		defer c.reload()
	}
	if ev.err != nil {
		if !errors.Is(ev.err, context.Canceled) {
			c.logger.Error("review: list comments failed", "error", ev.err)
		}
		c.notice(noticeLoadFailed)
		c.renderPanel()
		return
	}
	c.loaded = true
	c.list = ev.list
	if c.highlighted != "" {
		if _, ok := c.find(c.highlighted); !ok {
			c.highlighted = ""
		}
	}
	c.renderPanel()
	c.sendFrame(protocol.CommentsUpdated{Comments: comments.Refs(c.list)})
}

func (c *Controller) onCreated(ev createDone) {
	if c.state != Submitting {
		return
	}
	if ev.err != nil {
		c.logger.Error("review: create comment failed", "error", ev.err)
		c.state = AwaitingAuthorInput
		c.promptErr = noticeCreateFailed
		c.renderPrompt()
		return
	}
	c.logger.Info("review: comment created", "comment_id", ev.comment.ID, "selector", ev.comment.ElementSelector)
	c.state = Idle
	c.click, c.draft, c.promptErr = nil, "", ""
	c.renderPrompt()
	c.openPanel()
	c.reload()
}

func (c *Controller) onDeleted(ev deleteDone) {
	switch {
	case ev.err != nil:
		c.logger.Error("review: delete comment failed", "comment_id", ev.id, "error", ev.err)
		c.notice(noticeDeleteFailed)
		return
	case !ev.found:
		c.notice(noticeCommentExists)
	default:
		c.logger.Info("review: comment deleted", "comment_id", ev.id)
	}
	c.reload()
}

func (c *Controller) openPanel() {
	if c.panelOpen {
		return
	}
	c.panelOpen = true
	c.renderPanel()
	c.sendFrame(protocol.SetCommentMode{Enabled: true})
}

func (c *Controller) setHighlight(id string) {
	c.highlighted = id
	c.renderPanel()
	c.sendFrame(protocol.SetHighlight{CommentID: id})
}

func (c *Controller) becomeUnavailable(reason string) {
	c.state = Unavailable
	c.click, c.draft, c.promptErr = nil, "", ""
	c.renderPrompt()
	c.out.SendUI(Update{Kind: KindUnavailable, HTML: c.view.Notice(reason, "error")})
}

// sendFrame drops messages until the frame announced ready; the ready
// handler sends the full state.
func (c *Controller) sendFrame(m protocol.Message) {
	if !c.ready || c.state == Unavailable {
		return
	}
	c.out.SendFrame(m)
}

func (c *Controller) find(id string) (comments.Comment, bool) {
	for _, cm := range c.list {
		if cm.ID == id {
			return cm, true
		}
	}
	return comments.Comment{}, false
}

func (c *Controller) notice(text string) {
	c.out.SendUI(Update{Kind: KindNotice, HTML: c.view.Notice(text, "error")})
}

func (c *Controller) renderPanel() {
	c.out.SendUI(Update{
		Kind:  KindPanel,
		Open:  c.panelOpen,
		Count: len(c.list),
		HTML: c.view.Panel(PanelData{
			Comments:    c.list,
			Author:      c.author,
			Highlighted: c.highlighted,
			Loading:     c.loading && !c.loaded,
		}),
	})
}

func (c *Controller) renderPrompt() {
	u := Update{Kind: KindPrompt}
	if c.click != nil {
		u.Open = true
		u.HTML = c.view.Prompt(PromptData{
			Selector:    c.click.Selector,
			ElementText: c.click.ElementText,
			Draft:       c.draft,
			Error:       c.promptErr,
			Submitting:  c.state == Submitting,
		})
	}
	c.out.SendUI(u)
}
