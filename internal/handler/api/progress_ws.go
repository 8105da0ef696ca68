package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"CandlePull/internal/domain/models"
	xlogger "CandlePull/pkg/logger"
)

const (
	writeWait      = 5 * time.Second
	clientBuffer   = 64
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ProgressHub broadcasts task completion events to websocket subscribers.
// Slow clients are dropped rather than allowed to stall a run.
type ProgressHub struct {
	logger  *xlogger.Logger
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan models.ProgressEvent
}

func NewProgressHub(logger *xlogger.Logger) *ProgressHub {
	return &ProgressHub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Publish implements the scheduler's progress sink.
func (h *ProgressHub) Publish(ev models.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			delete(h.clients, c)
			close(c.send)
			if h.logger != nil {
				h.logger.Debug("dropping slow progress subscriber")
			}
		}
	}
}

// Serve upgrades the connection and streams events until the client leaves.
func (h *ProgressHub) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &wsClient{
		conn: conn,
		send: make(chan models.ProgressEvent, clientBuffer),
	}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.logger != nil {
		h.logger.Debug("progress subscriber connected", xlogger.Int("subscribers", n))
	}

	go h.writePump(client)
	h.readPump(client)
	return nil
}

func (h *ProgressHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames, keeping the connection's pong handler
// alive, and detaches the client on close.
func (h *ProgressHub) readPump(c *wsClient) {
	defer h.detach(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *ProgressHub) detach(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// Subscribers returns the current subscriber count.
func (h *ProgressHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
