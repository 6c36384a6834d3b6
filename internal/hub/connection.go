package hub

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kgellert/hodatay-chat/internal/users"
)

const sendBuffer = 128

type Connection struct {
	conn *websocket.Conn
	user users.User

	// chatIDs is owned by the hub goroutine.
	chatIDs map[string]struct{}
	userID  string

	mu        sync.Mutex
	send      chan []byte
	closed    bool
	closeCode int
	closeText string
}

func NewConnection(conn *websocket.Conn, user users.User) *Connection {
	return &Connection{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		user:    user,
		chatIDs: make(map[string]struct{}),
		userID:  user.ID,
	}
}

func (c *Connection) UserID() string   { return c.userID }
func (c *Connection) User() users.User { return c.user }

// Send queues b for the write pump. A slow consumer loses frames rather than
// stalling the hub.
func (c *Connection) Send(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// CloseWith makes the write pump send a close frame with code and text once
// the queued frames are written. Only the first call has an effect.
func (c *Connection) CloseWith(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeText = text
	close(c.send)
}
