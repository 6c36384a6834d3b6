package hub

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/hub/auth"
	"github.com/kgellert/hodatay-chat/internal/lib/logger/sl"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/protocol"
	"github.com/kgellert/hodatay-chat/internal/transport/httpapi"
	"github.com/kgellert/hodatay-chat/internal/users"
)

const (
	maxMessageSize      = 1 << 20
	DefaultHistoryLimit = 50
)

// AttachmentResolver fills in attachment metadata from the stored object.
type AttachmentResolver interface {
	FileInfo(ctx context.Context, fileID string) (messages.Attachment, error)
}

type Options struct {
	Store Store
	Auth  *auth.Authenticator
	// Attachments is optional; without it attachments are stored as sent.
	Attachments  AttachmentResolver
	HistoryLimit int
	Now          func() time.Time
	Log          *slog.Logger
}

// Handler serves the websocket endpoint and turns client commands into store
// writes and hub fan-out.
type Handler struct {
	hub          *Hub
	store        Store
	auth         *auth.Authenticator
	attachments  AttachmentResolver
	historyLimit int
	now          func() time.Time
	log          *slog.Logger
	upgrader     websocket.Upgrader
}

func NewHandler(h *Hub, opts Options) *Handler {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		hub:          h,
		store:        opts.Store,
		auth:         opts.Auth,
		attachments:  opts.Attachments,
		historyLimit: opts.HistoryLimit,
		now:          opts.Now,
		log:          opts.Log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "hub.Handler.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := h.auth.Verify(auth.BearerToken(r))
	if err != nil {
		log.Info("websocket rejected", sl.Err(err))
		httpapi.WriteError(w, r, err)
		return
	}
	user := users.User{ID: id.UserID, Name: id.Name}
	log = log.With(slog.String("user_id", user.ID))

	ctx := r.Context()
	if err := h.store.UpsertUser(ctx, user); err != nil {
		log.Error("failed to save user", sl.Err(err))
		httpapi.WriteError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("ws upgrade error", sl.Err(err))
		return
	}

	c := NewConnection(conn, user)
	go c.WritePump()

	if err := h.hub.Register(ctx, c); err != nil {
		c.CloseWith(protocol.CloseGoingAway, "")
		return
	}
	defer h.hub.Unregister(c)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := h.bootstrap(ctx, c); err != nil {
		log.Error("failed to send initial state", sl.Err(err))
		return
	}
	log.Info("session opened")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("ws read error", sl.Err(err))
			} else {
				log.Info("session closed")
			}
			return
		}

		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			log.Info("ws bad command", sl.Err(err))
			h.sendError(c, err.Error())
			continue
		}

		if err := h.handle(ctx, c, cmd); err != nil {
			status, _, msg := httpapi.MapError(err)
			if status >= http.StatusInternalServerError {
				log.Error("command failed", slog.String("type", cmd.EventType()), sl.Err(err))
			}
			h.sendError(c, msg)
		}
	}
}

// bootstrap sends the chat list and the presence of contacts already online.
func (h *Handler) bootstrap(ctx context.Context, c *Connection) error {
	const op = "hub.Handler.bootstrap"

	list, err := h.store.ChatsForUser(ctx, c.userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := h.sendTo(c, protocol.UserChats{Chats: list}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	contacts, err := h.store.Contacts(ctx, c.userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	online, err := h.hub.Online(ctx, contacts)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, id := range online {
		if err := h.sendTo(c, protocol.UserStatusChange{UserID: id, IsOnline: true}); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (h *Handler) handle(ctx context.Context, c *Connection, cmd protocol.Command) error {
	switch cmd := cmd.(type) {
	case protocol.JoinChat:
		return h.joinChat(ctx, c, cmd.ChatID)
	case protocol.LeaveChat:
		return h.hub.Leave(ctx, c, cmd.ChatID)
	case protocol.SendMessage:
		return h.sendMessage(ctx, c, cmd)
	case protocol.TypingStart:
		return h.typing(ctx, c, cmd.ChatID, protocol.UserTyping{ChatID: cmd.ChatID, UserID: c.userID, User: c.user})
	case protocol.TypingStop:
		return h.typing(ctx, c, cmd.ChatID, protocol.UserStoppedTyping{ChatID: cmd.ChatID, UserID: c.userID})
	case protocol.ReadMessage:
		return h.readMessage(ctx, c, cmd)
	case protocol.ReactToMessage:
		return h.react(ctx, c, cmd)
	case protocol.CreateGroupChat:
		return h.createGroupChat(ctx, c, cmd)
	}
	return fmt.Errorf("%w: %s", httpapi.ErrBadRequest, cmd.EventType())
}

func (h *Handler) joinChat(ctx context.Context, c *Connection, chatID string) error {
	const op = "hub.Handler.joinChat"

	if err := h.requireMember(ctx, chatID, c.userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := h.hub.Join(ctx, c, chatID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	history, err := h.store.Messages(ctx, chatID, h.historyLimit)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if history == nil {
		history = []messages.Message{}
	}
	return h.sendTo(c, protocol.ChatMessages{ChatID: chatID, Messages: history})
}

func (h *Handler) sendMessage(ctx context.Context, c *Connection, cmd protocol.SendMessage) error {
	const op = "hub.Handler.sendMessage"

	attachments, err := h.resolveAttachments(ctx, cmd.Attachments)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	saved, err := h.store.SaveMessage(ctx, messages.Message{
		ChatID:      cmd.ChatID,
		SenderID:    c.userID,
		Text:        cmd.Message,
		Attachments: attachments,
		ReplyToID:   cmd.ReplyTo,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return h.notifyMembers(ctx, cmd.ChatID, protocol.NewMessage{ChatID: cmd.ChatID, Message: saved})
}

func (h *Handler) resolveAttachments(ctx context.Context, in []messages.Attachment) ([]messages.Attachment, error) {
	if h.attachments == nil || len(in) == 0 {
		return in, nil
	}
	out := make([]messages.Attachment, 0, len(in))
	for _, a := range in {
		info, err := h.attachments.FileInfo(ctx, a.FileID)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (h *Handler) typing(ctx context.Context, c *Connection, chatID string, ev protocol.Inbound) error {
	if err := h.requireMember(ctx, chatID, c.userID); err != nil {
		return err
	}
	payload, err := protocol.EncodeInbound(ev)
	if err != nil {
		return err
	}
	h.hub.BroadcastExceptUser(chatID, payload, c.userID)
	return nil
}

func (h *Handler) readMessage(ctx context.Context, c *Connection, cmd protocol.ReadMessage) error {
	const op = "hub.Handler.readMessage"

	if err := h.requireMember(ctx, cmd.ChatID, c.userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	at := h.now().UTC()
	added, err := h.store.MarkRead(ctx, cmd.ChatID, cmd.MessageID, c.userID, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !added {
		return nil
	}

	return h.notifyMembers(ctx, cmd.ChatID, protocol.MessageRead{
		ChatID:    cmd.ChatID,
		MessageID: cmd.MessageID,
		ReadBy:    c.userID,
		ReadAt:    &at,
	})
}

func (h *Handler) react(ctx context.Context, c *Connection, cmd protocol.ReactToMessage) error {
	const op = "hub.Handler.react"

	chatID, reactions, err := h.store.SetReaction(ctx, cmd.MessageID, c.userID, cmd.Reaction)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if reactions == nil {
		reactions = map[string]string{}
	}

	return h.notifyMembers(ctx, chatID, protocol.MessageReaction{
		MessageID: cmd.MessageID,
		UserID:    c.userID,
		Reaction:  cmd.Reaction,
		Reactions: reactions,
	})
}

func (h *Handler) createGroupChat(ctx context.Context, c *Connection, cmd protocol.CreateGroupChat) error {
	const op = "hub.Handler.createGroupChat"

	chat, err := h.store.CreateGroupChat(ctx, c.userID, cmd.Name, cmd.Description, cmd.Members)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return h.notifyChat(chat, protocol.NewChat{Chat: chat})
}

// CreateDirectChat returns the direct chat between userID and recipientID,
// creating it if needed, and announces it to both users.
func (h *Handler) CreateDirectChat(ctx context.Context, userID, recipientID string) (chats.Chat, error) {
	const op = "hub.Handler.CreateDirectChat"

	chat, err := h.store.CreateDirectChat(ctx, userID, recipientID)
	if err != nil {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := h.notifyChat(chat, protocol.NewChat{Chat: chat}); err != nil {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, err)
	}
	return chat, nil
}

// RunPresence tells the contacts of every user whose presence changed. It
// returns when ctx is done.
func (h *Handler) RunPresence(ctx context.Context) {
	const op = "hub.Handler.RunPresence"

	log := h.log.With(slog.String("op", op))

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-h.hub.Presence():
			contacts, err := h.store.Contacts(ctx, p.UserID)
			if err != nil {
				log.Error("failed to load contacts", slog.String("user_id", p.UserID), sl.Err(err))
				continue
			}
			if len(contacts) == 0 {
				continue
			}
			payload, err := protocol.EncodeInbound(protocol.UserStatusChange{UserID: p.UserID, IsOnline: p.Online})
			if err != nil {
				log.Error("failed to encode presence", sl.Err(err))
				continue
			}
			h.hub.NotifyUsers(contacts, payload)
		}
	}
}

func (h *Handler) requireMember(ctx context.Context, chatID, userID string) error {
	ok, err := h.store.IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return chats.ErrNotAMember
	}
	return nil
}

func (h *Handler) notifyMembers(ctx context.Context, chatID string, ev protocol.Inbound) error {
	chat, err := h.store.Chat(ctx, chatID)
	if err != nil {
		return err
	}
	return h.notifyChat(chat, ev)
}

func (h *Handler) notifyChat(chat chats.Chat, ev protocol.Inbound) error {
	payload, err := protocol.EncodeInbound(ev)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(chat.Members))
	for _, m := range chat.Members {
		ids = append(ids, m.UserID)
	}
	h.hub.NotifyUsers(ids, payload)
	return nil
}

func (h *Handler) sendTo(c *Connection, ev protocol.Inbound) error {
	payload, err := protocol.EncodeInbound(ev)
	if err != nil {
		return err
	}
	c.Send(payload)
	return nil
}

func (h *Handler) sendError(c *Connection, msg string) {
	if err := h.sendTo(c, protocol.ServerError{Message: msg}); err != nil {
		h.log.Error("failed to send error event", sl.Err(err))
	}
}
