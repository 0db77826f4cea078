// Package chat fans out event chat messages to websocket subscribers.
package chat

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"grandbridge/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Message is the JSON form of a chat message.
type Message struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	Username  string `json:"username"`
	UserID    int64  `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

func FromModel(m model.ChatMessage, loc *time.Location) Message {
	return Message{
		ID:        m.ID,
		Content:   m.Content,
		Username:  m.Username,
		UserID:    m.UserID,
		Timestamp: m.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps one room of websocket clients per event.
type Hub struct {
	id       string
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[int64]map[*client]struct{}

	nc  *nats.Conn
	sub *nats.Subscription
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		id:    uuid.NewString(),
		log:   log,
		rooms: make(map[int64]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Serve upgrades the request and blocks until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, eventID int64) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.join(eventID, c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop()
	}()

	c.readLoop()
	h.leave(eventID, c)
	<-done
	conn.Close()
	return nil
}

func (h *Hub) join(eventID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[eventID]
	if room == nil {
		room = make(map[*client]struct{})
		h.rooms[eventID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) leave(eventID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[eventID]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, eventID)
	}
}

// Clients reports how many subscribers an event room has.
func (h *Hub) Clients(eventID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

// Publish delivers a message locally and, when attached, to other instances.
func (h *Hub) Publish(eventID int64, m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		h.log.Error("encode chat message", zap.Error(err))
		return
	}
	h.deliver(eventID, data)

	if h.nc == nil {
		return
	}
	env, err := json.Marshal(envelope{Origin: h.id, EventID: eventID, Message: data})
	if err != nil {
		return
	}
	if err := h.nc.Publish(subject(eventID), env); err != nil {
		h.log.Warn("nats publish", zap.Int64("event_id", eventID), zap.Error(err))
	}
}

func (h *Hub) deliver(eventID int64, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[eventID] {
		select {
		case c.send <- data:
		default:
			h.log.Debug("chat client too slow, message dropped", zap.Int64("event_id", eventID))
		}
	}
}

// Close disconnects every client and detaches from NATS.
func (h *Hub) Close() {
	if h.sub != nil {
		_ = h.sub.Unsubscribe()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, room := range h.rooms {
		for c := range room {
			c.conn.Close()
		}
	}
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// clients only listen; sending goes through the HTTP endpoint
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
