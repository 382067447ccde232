package main

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event types pushed to document rooms.
const (
	EventAnnotationCreated   = "annotation_created"
	EventAnnotationDeleted   = "annotation_deleted"
	EventAnnotationDraft     = "annotation_draft"
	EventAnnotationSelection = "annotation_selection"
	EventPresenceUpdate      = "presence_update"
	EventUserJoined          = "user_joined"
	EventUserLeft            = "user_left"
)

// relayed are the client-originated events forwarded to the rest of a room.
var relayed = map[string]bool{
	EventPresenceUpdate:      true,
	EventAnnotationDraft:     true,
	EventAnnotationSelection: true,
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

// Event is one message on a document room.
type Event struct {
	Type       string      `json:"type"`
	DocumentID string      `json:"document_id"`
	User       string      `json:"user,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Users      []string    `json:"users,omitempty"`
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	docID string
	user  string
	send  chan Event
}

// Hub fans events out to everyone viewing the same document.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
	log   *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{rooms: make(map[string]map[*client]struct{}), log: log}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Broadcast sends ev to every client in the document's room except one.
// Slow clients whose buffer is full are dropped.
func (h *Hub) Broadcast(docID string, ev Event, except *client) {
	ev.DocumentID = docID
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[docID] {
		if c == except {
			continue
		}
		select {
		case c.send <- ev:
		default:
			h.removeLocked(c)
			h.log.Warn("ws.client_dropped", zap.String("document_id", docID), zap.String("user", c.user))
		}
	}
}

// Users lists who is connected to a document room.
func (h *Hub) Users(docID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.usersLocked(docID)
}

func (h *Hub) usersLocked(docID string) []string {
	seen := map[string]bool{}
	var out []string
	for c := range h.rooms[docID] {
		if !seen[c.user] {
			seen[c.user] = true
			out = append(out, c.user)
		}
	}
	sort.Strings(out)
	return out
}

func (h *Hub) join(c *client) {
	h.mu.Lock()
	room, ok := h.rooms[c.docID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.docID] = room
	}
	room[c] = struct{}{}
	users := h.usersLocked(c.docID)
	h.mu.Unlock()

	h.log.Info("ws.join", zap.String("document_id", c.docID), zap.String("user", c.user))
	h.Broadcast(c.docID, Event{Type: EventUserJoined, User: c.user, Users: users}, nil)
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	if _, ok := h.rooms[c.docID][c]; !ok {
		h.mu.Unlock()
		return
	}
	h.removeLocked(c)
	users := h.usersLocked(c.docID)
	h.mu.Unlock()

	h.log.Info("ws.leave", zap.String("document_id", c.docID), zap.String("user", c.user))
	h.Broadcast(c.docID, Event{Type: EventUserLeft, User: c.user, Users: users}, nil)
}

func (h *Hub) removeLocked(c *client) {
	room := h.rooms[c.docID]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.docID)
	}
}

// readPump relays presence, selections and unsaved drafts from the browser to
// the rest of the room. Saved annotations go through the REST API.
func (c *client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(64 << 10)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("ws.read_failed", zap.String("user", c.user), zap.Error(err))
			}
			return
		}
		if !relayed[ev.Type] {
			continue
		}
		ev.User = c.user
		c.hub.Broadcast(c.docID, ev, c)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket joins the caller to a document's room. The display name
// comes from ?user=.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if _, err := s.store.GetDocument(docID); err != nil {
		s.fail(w, r, err)
		return
	}
	user := r.URL.Query().Get("user")
	if user == "" {
		user = "anonymous"
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws.upgrade_failed", zap.Error(err))
		return
	}
	c := &client{hub: s.hub, conn: conn, docID: docID, user: user, send: make(chan Event, sendBuffer)}
	s.hub.join(c)
	go c.writePump()
	go c.readPump()
}
