package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sini-kannan/Collaborative-Drawing-App/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBuffer     = 512

	// Rate limited frames tolerated before the connection is closed
	maxRateViolations = 1000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler receives the lifecycle and inbound frames of every connection.
type Handler interface {
	// Connect places the connection in the room named by rawRoom.
	Connect(ctx context.Context, connID, rawRoom string)
	Handle(ctx context.Context, connID string, frame protocol.Frame)
	Disconnect(ctx context.Context, connID string)
}

type Client struct {
	id          string
	hub         *Hub
	handler     Handler
	conn        *websocket.Conn
	send        chan []byte
	roomID      string
	closed      bool
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

func newClient(hub *Hub, handler Handler, conn *websocket.Conn) *Client {
	id := uuid.NewString()
	return &Client{
		id:          id,
		hub:         hub,
		handler:     handler,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		rateLimiter: rate.NewLimiter(rate.Limit(hub.limits.MessagesPerSecond), hub.limits.Burst),
		logger:      hub.logger.With(zap.String("conn", id)),
	}
}

// ID returns the connection id shared with the rest of the room.
func (c *Client) ID() string {
	return c.id
}

// closeSend is only called by the hub with mu held.
func (c *Client) closeSend() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ServeWs upgrades the request and hands the connection to handler. The
// room comes from the "room" query parameter and is sanitized by the
// handler.
func ServeWs(hub *Hub, handler Handler, w http.ResponseWriter, r *http.Request) {
	rawRoom := r.URL.Query().Get("room")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("upgrade error", zap.Error(err))
		return
	}

	client := newClient(hub, handler, conn)
	hub.Attach(client)

	go client.writePump()

	ctx, cancel := context.WithCancel(context.Background())
	handler.Connect(ctx, client.id, rawRoom)
	go client.readPump(ctx, cancel)
}

func (c *Client) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		c.handler.Disconnect(ctx, c.id)
		c.hub.Leave(c.id)
		cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket error", zap.Error(err))
			}
			break
		}

		if !c.rateLimiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				c.logger.Warn("rate limit exceeded", zap.Int("warnings", rateLimitWarnings))
			}
			if rateLimitWarnings > maxRateViolations {
				c.logger.Warn("disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		frame, err := protocol.Decode(message)
		if err != nil {
			c.logger.Debug("invalid frame", zap.Error(err))
			continue
		}

		c.handler.Handle(ctx, c.id, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
