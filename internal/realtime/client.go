package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced on the HTTP surface; the WS endpoint is open
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload is the client's chat:join event body. ID is the stable student
// identity, kept across reconnects; empty for teachers and guests.
type JoinPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Client represents a single WebSocket connection.
type Client struct {
	ID string // connection id, unique per socket

	hub    *Hub
	coord  *Coordinator
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	studentID string
	name      string
	role      string
	joined    bool
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, coord *Coordinator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:      uuid.NewString(),
			hub:     hub,
			coord:   coord,
			conn:    conn,
			send:    make(chan WSMessage, 256),
			logger:  logger,
			closing: make(chan struct{}),
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// StudentID returns the stable identity bound at join time, or "" before it.
func (c *Client) StudentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.studentID
}

// Identity returns the join-time identity of this connection.
func (c *Client) Identity() (studentID, name, role string, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.studentID, c.name, c.role, c.joined
}

func (c *Client) setIdentity(studentID, name, role string) {
	c.mu.Lock()
	c.studentID = studentID
	c.name = name
	c.role = role
	c.joined = true
	c.mu.Unlock()
}

// CloseSoon asks the write pump to close the connection after flushing.
func (c *Client) CloseSoon() {
	c.closeOnce.Do(func() { close(c.closing) })
}

func (c *Client) readPump() {
	defer func() {
		c.coord.HandleDisconnect(c)
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "chat:join":
			var payload JoinPayload
			_ = json.Unmarshal(msg.Data, &payload)
			c.coord.HandleJoin(c, payload)
		case "chat:message":
			var text string
			if err := json.Unmarshal(msg.Data, &text); err != nil {
				continue
			}
			c.coord.HandleChatMessage(c, text)
		case "poll:state":
			c.coord.HandleStateRequest(c)
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.closing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "kicked"))
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
