package server

import (
	"context"
	"sync"

	"github.com/MattCruikshank/goft/internal/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client represents a WebSocket connection joined to one room.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	user    *models.User
	roomID  int64
	send    chan []byte
	limiter *rate.Limiter
}

// Hub manages WebSocket connections and message broadcasting.
type Hub struct {
	rooms      map[int64]map[*Client]bool // roomID -> clients
	roomsMu    sync.RWMutex
	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomMessage
	done       chan struct{}
	logger     *zap.Logger
}

// roomMessage is a rendered message on its way to a room.
// The author's clients receive own, everyone else receives others.
// When to is set, only that client receives own.
type roomMessage struct {
	roomID   int64
	authorID int64
	own      []byte
	others   []byte
	to       *Client
}

// NewHub creates a new Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomMessage, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, after
// closing every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.roomsMu.Lock()
			for roomID, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, roomID)
			}
			h.roomsMu.Unlock()
			return nil

		case client := <-h.register:
			h.roomsMu.Lock()
			if h.rooms[client.roomID] == nil {
				h.rooms[client.roomID] = make(map[*Client]bool)
			}
			h.rooms[client.roomID][client] = true
			h.roomsMu.Unlock()
			h.logger.Debug("client joined",
				zap.String("user", client.user.Name),
				zap.Int64("room", client.roomID))

		case client := <-h.unregister:
			if h.remove(client) {
				h.logger.Debug("client left",
					zap.String("user", client.user.Name),
					zap.Int64("room", client.roomID))
			}

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *roomMessage) {
	h.roomsMu.RLock()
	var targets []*Client
	if msg.to != nil {
		if h.rooms[msg.roomID][msg.to] {
			targets = []*Client{msg.to}
		}
	} else {
		targets = make([]*Client, 0, len(h.rooms[msg.roomID]))
		for client := range h.rooms[msg.roomID] {
			targets = append(targets, client)
		}
	}
	h.roomsMu.RUnlock()

	for _, client := range targets {
		data := msg.others
		if msg.to != nil || client.user.ID == msg.authorID {
			data = msg.own
		}
		select {
		case client.send <- data:
		default:
			// Client buffer full, disconnect
			h.remove(client)
			h.logger.Warn("dropped slow client",
				zap.String("user", client.user.Name),
				zap.Int64("room", client.roomID))
		}
	}
}

// remove deletes a client and closes its send channel. It must only be
// called from Run.
func (h *Hub) remove(client *Client) bool {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	clients, ok := h.rooms[client.roomID]
	if !ok || !clients[client] {
		return false
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.rooms, client.roomID)
	}
	close(client.send)
	return true
}

// NewClient creates a new client for the hub.
func (h *Hub) NewClient(conn *websocket.Conn, user *models.User, roomID int64, limiter *rate.Limiter) *Client {
	return &Client{
		hub:     h,
		conn:    conn,
		user:    user,
		roomID:  roomID,
		send:    make(chan []byte, 256),
		limiter: limiter,
	}
}

// Register registers a client with the hub. It reports false when the
// hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister unregisters a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a rendered message to every client in a room. Clients
// of the author receive own, the rest receive others.
func (h *Hub) Broadcast(roomID, authorID int64, own, others []byte) {
	h.enqueue(&roomMessage{roomID: roomID, authorID: authorID, own: own, others: others})
}

// SendTo sends data to a single client, if it is still connected.
func (h *Hub) SendTo(client *Client, data []byte) {
	h.enqueue(&roomMessage{roomID: client.roomID, own: data, to: client})
}

func (h *Hub) enqueue(msg *roomMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// ClientCount returns the number of clients connected to a room.
func (h *Hub) ClientCount(roomID int64) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}

// User returns the client's user.
func (c *Client) User() *models.User {
	return c.user
}

// RoomID returns the room the client joined.
func (c *Client) RoomID() int64 {
	return c.roomID
}

// Conn returns the client's WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the client's send channel.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}
