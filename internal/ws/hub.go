package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// The set of active clients and the rooms they joined. All map writes
// happen on the Run goroutine, so frames queued for one client keep the
// order in which they reached the hub.
type Hub struct {
	// Joined clients by room
	rooms map[string]map[*Client]bool

	// Attached clients by connection id, joined or not
	clients map[string]*Client

	// Outbound frames for a room or a single connection
	broadcast chan *Message

	// New connections awaiting a room
	attach chan *Client

	// Room join requests
	register chan *registration

	// Departing connection ids
	unregister chan string

	done   chan struct{}
	limits Limits
	logger *zap.Logger

	mu sync.RWMutex
}

// Message is a frame queued for delivery. A non-empty Target sends it to
// that connection only; otherwise it goes to every member of RoomID
// except the connection named by Except.
type Message struct {
	RoomID string
	Data   []byte
	Except string
	Target string
}

type registration struct {
	connID string
	roomID string
}

// Limits bounds how fast a single connection may send frames.
type Limits struct {
	MessagesPerSecond float64
	Burst             int
}

var DefaultLimits = Limits{MessagesPerSecond: 100, Burst: 200}

func NewHub(logger *zap.Logger, limits Limits) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.MessagesPerSecond <= 0 || limits.Burst <= 0 {
		limits = DefaultLimits
	}
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message),
		attach:     make(chan *Client),
		register:   make(chan *registration),
		unregister: make(chan string),
		done:       make(chan struct{}),
		limits:     limits,
		logger:     logger.With(zap.String("component", "hub")),
	}
}

// Run drains the hub's channels until ctx is canceled. Every client
// still attached at that point has its send channel closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.closeSend()
				delete(h.clients, id)
			}
			h.rooms = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case client := <-h.attach:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()

		case reg := <-h.register:
			h.join(reg)

		case connID := <-h.unregister:
			h.leave(connID)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

func (h *Hub) join(reg *registration) {
	h.mu.Lock()
	client, ok := h.clients[reg.connID]
	if !ok || client.closed {
		h.mu.Unlock()
		return
	}
	client.roomID = reg.roomID
	if _, ok := h.rooms[reg.roomID]; !ok {
		h.rooms[reg.roomID] = make(map[*Client]bool)
	}
	h.rooms[reg.roomID][client] = true
	clientCount := len(h.rooms[reg.roomID])
	h.mu.Unlock()

	h.logger.Info("client joined room",
		zap.String("room", reg.roomID),
		zap.String("conn", reg.connID),
		zap.Int("clients", clientCount),
	)
}

func (h *Hub) leave(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	delete(h.clients, connID)
	client.closeSend()

	clients, ok := h.rooms[client.roomID]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.rooms, client.roomID)
		h.logger.Info("room closed (empty)", zap.String("room", client.roomID))
	} else {
		h.logger.Info("client left room",
			zap.String("room", client.roomID),
			zap.String("conn", connID),
			zap.Int("remaining", len(clients)),
		)
	}
}

func (h *Hub) deliver(message *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if message.Target != "" {
		if client, ok := h.clients[message.Target]; ok {
			h.push(client, message.Data)
		}
		return
	}

	for client := range h.rooms[message.RoomID] {
		if client.id != message.Except {
			h.push(client, message.Data)
		}
	}
}

// push queues data without blocking. A client whose buffer is full is
// dropped from its room and its send channel closed; it stays attached
// until it leaves so its room can still be looked up. Callers hold mu.
func (h *Hub) push(client *Client, data []byte) {
	if client.closed {
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("dropping slow client",
			zap.String("room", client.roomID),
			zap.String("conn", client.id),
		)
		client.closeSend()
		if clients, ok := h.rooms[client.roomID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.rooms, client.roomID)
			}
		}
	}
}

// Registry operations. Each hands its request to Run and returns once
// Run has accepted it, or immediately when the hub has stopped.

func (h *Hub) Attach(client *Client) {
	select {
	case h.attach <- client:
	case <-h.done:
		client.closeSend()
	}
}

// Join places an attached connection in a room. Frames queued after Join
// returns reach the connection after it is a member.
func (h *Hub) Join(connID, roomID string) {
	select {
	case h.register <- &registration{connID: connID, roomID: roomID}:
	case <-h.done:
	}
}

// Leave detaches a connection. Leaving twice is harmless.
func (h *Hub) Leave(connID string) {
	select {
	case h.unregister <- connID:
	case <-h.done:
	}
}

// RoomOf reports the room a connection joined.
func (h *Hub) RoomOf(connID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	if !ok || client.roomID == "" {
		return "", false
	}
	return client.roomID, true
}

// BroadcastToRoom queues a frame for every member of roomID except the
// connection named by except, which may be empty.
func (h *Hub) BroadcastToRoom(roomID string, frame []byte, except string) {
	h.enqueue(&Message{RoomID: roomID, Data: frame, Except: except})
}

// EmitTo queues a frame for one connection.
func (h *Hub) EmitTo(connID string, frame []byte) {
	h.enqueue(&Message{Target: connID, Data: frame})
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// Stats

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, clients := range h.rooms {
		count += len(clients)
	}
	return count
}

// GetActiveRooms returns the number of joined clients per room.
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]int, len(h.rooms))
	for roomID, clients := range h.rooms {
		result[roomID] = len(clients)
	}
	return result
}
