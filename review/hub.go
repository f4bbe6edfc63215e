package review

import (
	"context"
	"sync"
)

// Hub tracks the running controllers so changes made through one session,
// the HTTP API or MCP reach every open review page.
type Hub struct {
	mu    sync.Mutex
	ctrls map[*Controller]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{ctrls: make(map[*Controller]struct{})}
}

func (h *Hub) add(c *Controller) {
	h.mu.Lock()
	h.ctrls[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *Controller) {
	h.mu.Lock()
	delete(h.ctrls, c)
	h.mu.Unlock()
}

// Len returns the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ctrls)
}

// Notify asks every controller to reload its comment list. Its signature
// matches a watch.Watcher action.
func (h *Hub) Notify(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.ctrls {
		c.Refresh()
	}
	return nil
}
