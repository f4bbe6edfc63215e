package review

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/pinup/protocol"
)

// Envelope channels.
const (
	ChannelFrame = "frame"
	ChannelUI    = "ui"
)

// Envelope is the websocket message between the host page and the
// controller. Frame payloads are protocol messages relayed verbatim to and
// from the prototype iframe; UI payloads are Actions inbound and Updates
// outbound.
type Envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	sendQueue      = 64
)

// Inbound limits per socket. Clicks and hovers are bursty; a page script
// that loops on postMessage is not.
const (
	DefaultInboundRate  = rate.Limit(20)
	DefaultInboundBurst = 40
)

// The default CheckOrigin rejects cross-origin upgrades, which is what a
// cookie-authenticated socket needs.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 16384,
}

// wsConn adapts one websocket to Output. All writes go through writePump.
type wsConn struct {
	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newWSConn(ws *websocket.Conn, logger *slog.Logger) *wsConn {
	return &wsConn{
		ws:     ws,
		send:   make(chan []byte, sendQueue),
		closed: make(chan struct{}),
		logger: logger,
	}
}

func (c *wsConn) SendFrame(m protocol.Message) {
	data, err := protocol.Encode(m)
	if err != nil {
		c.logger.Error("review: encode frame message", "type", m.Type(), "error", err)
		return
	}
	c.enqueue(ChannelFrame, data)
}

func (c *wsConn) SendUI(u Update) {
	data, err := json.Marshal(u)
	if err != nil {
		c.logger.Error("review: encode ui update", "kind", u.Kind, "error", err)
		return
	}
	c.enqueue(ChannelUI, data)
}

func (c *wsConn) enqueue(channel string, data json.RawMessage) {
	msg, err := json.Marshal(Envelope{Channel: channel, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	case <-c.closed:
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("review: websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump feeds inbound envelopes to ctrl until the socket fails.
func (c *wsConn) readPump(ctrl *Controller, limiter *rate.Limiter) {
	defer c.close()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	dropped := 0
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("review: websocket closed", "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if !limiter.Allow() {
			dropped++
			if dropped == 1 || dropped%100 == 0 {
				c.logger.Warn("review: inbound rate exceeded", "dropped", dropped)
			}
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Debug("review: bad envelope", "error", err)
			continue
		}
		switch env.Channel {
		case ChannelFrame:
			ctrl.FrameMessage(env.Data)
		case ChannelUI:
			var a Action
			if err := json.Unmarshal(env.Data, &a); err != nil {
				c.logger.Debug("review: bad ui action", "error", err)
				continue
			}
			ctrl.Action(a)
		default:
			c.logger.Debug("review: unknown channel", "channel", env.Channel)
		}
	}
}

// serve upgrades the request and runs a controller built by newCtrl for the
// lifetime of the socket.
// A non-nil hub tracks the controller while it runs.
func serve(w http.ResponseWriter, r *http.Request, logger *slog.Logger, hub *Hub, limit rate.Limit, burst int, newCtrl func(Output) *Controller) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("review: websocket upgrade failed", "error", err)
		return
	}
	conn := newWSConn(ws, logger)
	ctrl := newCtrl(conn)
	if hub != nil {
		hub.add(ctrl)
		defer hub.remove(ctrl)
	}

	// The session ends when either pump stops or the server base context
	// is cancelled.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		<-conn.closed
		cancel()
	}()
	go conn.writePump()
	go conn.readPump(ctrl, rate.NewLimiter(limit, burst))

	logger.Info("review: session started")
	ctrl.Run(ctx)
	conn.close()
	logger.Info("review: session ended")
}
