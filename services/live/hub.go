package live

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/rahulsahu-12/nexus2/core"
	"github.com/rahulsahu-12/nexus2/core/attendance"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

type client struct {
	teacherID int64
	conn      *websocket.Conn
	send      chan attendance.MarkedEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub fans redemption events out to the websocket feeds of the session's teacher.
type Hub struct {
	logger   core.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[int64]map[*client]struct{} // {teacherID: clients}
}

var _ attendance.Publisher = (*Hub)(nil)

func NewHub(conf *core.Config, logger core.Logger) *Hub {
	origins := make(map[string]struct{}, len(conf.Server.AllowOrigins))
	for _, o := range conf.Server.AllowOrigins {
		origins[o] = struct{}{}
	}
	return &Hub{
		logger:  logger,
		clients: make(map[int64]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || conf.Debug {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

// Publish never blocks: a feed that cannot keep up misses events.
func (h *Hub) Publish(evt attendance.MarkedEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[evt.TeacherID] {
		select {
		case c.send <- evt:
		default:
			h.logger.Warn(fmt.Sprintf("live feed of teacher %d is full, dropping event", evt.TeacherID))
		}
	}
}

// Subscribers returns the number of open feeds of a teacher.
func (h *Hub) Subscribers(teacherID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[teacherID])
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.teacherID] == nil {
		h.clients[c.teacherID] = make(map[*client]struct{})
	}
	h.clients[c.teacherID][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[c.teacherID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.clients, c.teacherID)
		}
	}
}

// Serve upgrades the request and streams the teacher's events until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, teacherID int64) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "upgrading connection")
	}

	c := &client{
		teacherID: teacherID,
		conn:      conn,
		send:      make(chan attendance.MarkedEvent, sendBuffer),
		done:      make(chan struct{}),
	}
	h.register(c)
	defer func() {
		h.unregister(c)
		_ = conn.Close()
	}()

	go h.readLoop(c)
	h.writeLoop(c)
	return nil
}

// readLoop discards client messages; it only watches for close and pong frames.
func (h *Hub) readLoop(c *client) {
	defer c.close()
	c.conn.SetReadLimit(512)
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

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(evt); err != nil {
				h.logger.Debug(fmt.Sprintf("live feed of teacher %d closed: %v", c.teacherID, err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
