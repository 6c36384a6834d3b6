// Package hub is a development implementation of the chat hub: it accepts
// websocket sessions, persists commands through a Store and fans events out
// to the members of each chat.
package hub

import (
	"context"
	"log/slog"

	"github.com/kgellert/hodatay-chat/internal/protocol"
)

type registration struct {
	c    *Connection
	done chan struct{}
}

type roomCmd struct {
	c      *Connection
	chatID string
	done   chan struct{}
}

type broadcastCmd struct {
	chatID      string
	payload     []byte
	excludeUser string
}

type notifyCmd struct {
	userIDs []string
	payload []byte
}

type onlineQuery struct {
	userIDs []string
	reply   chan []string
}

// PresenceChange is emitted when a user's first connection registers or their
// current connection goes away. Replacing a connection emits nothing.
type PresenceChange struct {
	UserID string
	Online bool
}

// Hub owns the connection registry. All state is confined to the Run
// goroutine; the exported methods only enqueue commands.
type Hub struct {
	log *slog.Logger

	register   chan registration
	unregister chan *Connection
	join       chan roomCmd
	leave      chan roomCmd
	broadcast  chan broadcastCmd
	notify     chan notifyCmd
	online     chan onlineQuery
	presence   chan PresenceChange

	users map[string]*Connection
	rooms map[string]map[*Connection]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:        log.With(slog.String("component", "hub")),
		register:   make(chan registration, 64),
		unregister: make(chan *Connection, 64),
		join:       make(chan roomCmd, 64),
		leave:      make(chan roomCmd, 64),
		broadcast:  make(chan broadcastCmd, 256),
		notify:     make(chan notifyCmd, 256),
		online:     make(chan onlineQuery),
		presence:   make(chan PresenceChange, 256),
		users:      make(map[string]*Connection),
		rooms:      make(map[string]map[*Connection]struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, c := range h.users {
				c.CloseWith(protocol.CloseGoingAway, "hub shutting down")
			}
			return

		case reg := <-h.register:
			c := reg.c
			prev, replaced := h.users[c.userID]
			if replaced {
				h.dropFromRooms(prev)
				prev.CloseWith(protocol.CloseSessionReplaced, "session replaced")
				h.log.Info("session replaced", slog.String("user_id", c.userID))
			}
			h.users[c.userID] = c
			if !replaced {
				h.emitPresence(PresenceChange{UserID: c.userID, Online: true})
			}
			close(reg.done)

		case c := <-h.unregister:
			h.dropFromRooms(c)
			c.CloseWith(protocol.CloseNormal, "")
			if h.users[c.userID] == c {
				delete(h.users, c.userID)
				h.emitPresence(PresenceChange{UserID: c.userID, Online: false})
			}

		case cmd := <-h.join:
			if h.users[cmd.c.userID] == cmd.c {
				room := h.rooms[cmd.chatID]
				if room == nil {
					room = make(map[*Connection]struct{})
					h.rooms[cmd.chatID] = room
				}
				room[cmd.c] = struct{}{}
				cmd.c.chatIDs[cmd.chatID] = struct{}{}
			}
			close(cmd.done)

		case cmd := <-h.leave:
			h.leaveRoom(cmd.c, cmd.chatID)
			close(cmd.done)

		case b := <-h.broadcast:
			for c := range h.rooms[b.chatID] {
				if b.excludeUser != "" && c.userID == b.excludeUser {
					continue
				}
				c.Send(b.payload)
			}

		case n := <-h.notify:
			for _, id := range n.userIDs {
				if c, ok := h.users[id]; ok {
					c.Send(n.payload)
				}
			}

		case q := <-h.online:
			var out []string
			for _, id := range q.userIDs {
				if _, ok := h.users[id]; ok {
					out = append(out, id)
				}
			}
			q.reply <- out
		}
	}
}

// Register makes c the user's current connection, closing an older one with
// CloseSessionReplaced. It returns once the hub has processed it so commands
// the caller enqueues afterwards see c registered.
func (h *Hub) Register(ctx context.Context, c *Connection) error {
	reg := registration{c: c, done: make(chan struct{})}
	select {
	case h.register <- reg:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reg.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Unregister(c *Connection) {
	h.unregister <- c
}

// Join subscribes c to the live events of chatID (typing). Membership is
// checked by the caller. Like Register it waits for the hub.
func (h *Hub) Join(ctx context.Context, c *Connection, chatID string) error {
	return h.roomOp(ctx, h.join, c, chatID)
}

func (h *Hub) Leave(ctx context.Context, c *Connection, chatID string) error {
	return h.roomOp(ctx, h.leave, c, chatID)
}

func (h *Hub) roomOp(ctx context.Context, ch chan roomCmd, c *Connection, chatID string) error {
	cmd := roomCmd{c: c, chatID: chatID, done: make(chan struct{})}
	select {
	case ch <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast sends payload to every connection that joined chatID.
func (h *Hub) Broadcast(chatID string, payload []byte) {
	h.broadcast <- broadcastCmd{chatID: chatID, payload: payload}
}

func (h *Hub) BroadcastExceptUser(chatID string, payload []byte, excludeUserID string) {
	h.broadcast <- broadcastCmd{chatID: chatID, payload: payload, excludeUser: excludeUserID}
}

// NotifyUsers sends payload to the current connection of each user, joined
// or not.
func (h *Hub) NotifyUsers(userIDs []string, payload []byte) {
	h.notify <- notifyCmd{userIDs: userIDs, payload: payload}
}

// Online filters userIDs down to the users with a live connection.
func (h *Hub) Online(ctx context.Context, userIDs []string) ([]string, error) {
	q := onlineQuery{userIDs: userIDs, reply: make(chan []string, 1)}
	select {
	case h.online <- q:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case out := <-q.reply:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Presence streams presence changes. It is buffered; changes are dropped when
// nobody drains it.
func (h *Hub) Presence() <-chan PresenceChange {
	return h.presence
}

func (h *Hub) emitPresence(p PresenceChange) {
	select {
	case h.presence <- p:
	default:
		h.log.Warn("presence change dropped", slog.String("user_id", p.UserID))
	}
}

func (h *Hub) leaveRoom(c *Connection, chatID string) {
	room := h.rooms[chatID]
	if room == nil {
		return
	}
	delete(room, c)
	delete(c.chatIDs, chatID)
	if len(room) == 0 {
		delete(h.rooms, chatID)
	}
}

func (h *Hub) dropFromRooms(c *Connection) {
	for chatID := range c.chatIDs {
		h.leaveRoom(c, chatID)
	}
}
