package protocol

import (
	"fmt"
	"time"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/users"
)

// Inbound is a decoded hub -> client event. The set of implementations is
// closed; consumers switch over the concrete types.
type Inbound interface {
	EventType() string
	inbound()
}

type UserChats struct {
	Chats []chats.Chat
}

type ChatMessages struct {
	ChatID   string             `json:"chatId"`
	Messages []messages.Message `json:"messages"`
}

type NewMessage struct {
	ChatID  string           `json:"chatId"`
	Message messages.Message `json:"message"`
}

type UserTyping struct {
	ChatID string     `json:"chatId"`
	UserID string     `json:"userId"`
	User   users.User `json:"user"`
}

type UserStoppedTyping struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

type MessageRead struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
	// ReadAt is optional; receivers fall back to the arrival time.
	ReadAt *time.Time `json:"readAt,omitempty"`
}

type MessageReaction struct {
	MessageID string            `json:"messageId"`
	UserID    string            `json:"userId"`
	Reaction  string            `json:"reaction"`
	Reactions map[string]string `json:"reactions"`
}

type UserStatusChange struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

type NewChat struct {
	Chat chats.Chat
}

type ServerError struct {
	Message string `json:"message"`
}

func (UserChats) EventType() string         { return EventUserChats }
func (ChatMessages) EventType() string      { return EventChatMessages }
func (NewMessage) EventType() string        { return EventNewMessage }
func (UserTyping) EventType() string        { return EventUserTyping }
func (UserStoppedTyping) EventType() string { return EventUserStoppedTyping }
func (MessageRead) EventType() string       { return EventMessageRead }
func (MessageReaction) EventType() string   { return EventMessageReaction }
func (UserStatusChange) EventType() string  { return EventUserStatusChange }
func (NewChat) EventType() string           { return EventNewChat }
func (ServerError) EventType() string       { return EventError }

func (UserChats) inbound()         {}
func (ChatMessages) inbound()      {}
func (NewMessage) inbound()        {}
func (UserTyping) inbound()        {}
func (UserStoppedTyping) inbound() {}
func (MessageRead) inbound()       {}
func (MessageReaction) inbound()   {}
func (UserStatusChange) inbound()  {}
func (NewChat) inbound()           {}
func (ServerError) inbound()       {}

// DecodeInbound parses one hub frame. Unknown event types return
// ErrUnknownEvent; bad payloads return ErrMalformed.
func DecodeInbound(b []byte) (Inbound, error) {
	env, err := decodeEnvelope(b)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case EventUserChats:
		var list []chats.Chat
		if err := decodeData(env, &list); err != nil {
			return nil, err
		}
		return UserChats{Chats: list}, nil

	case EventChatMessages:
		var ev ChatMessages
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		if ev.ChatID == "" {
			return nil, missing(env.Type, "chatId")
		}
		return ev, nil

	case EventNewMessage:
		var ev NewMessage
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		if ev.ChatID == "" {
			ev.ChatID = ev.Message.ChatID
		}
		if ev.ChatID == "" {
			return nil, missing(env.Type, "chatId")
		}
		return ev, nil

	case EventUserTyping:
		var ev UserTyping
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		if ev.ChatID == "" || ev.UserID == "" {
			return nil, missing(env.Type, "chatId/userId")
		}
		return ev, nil

	case EventUserStoppedTyping:
		var ev UserStoppedTyping
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		if ev.ChatID == "" || ev.UserID == "" {
			return nil, missing(env.Type, "chatId/userId")
		}
		return ev, nil

	case EventMessageRead:
		var ev MessageRead
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		if ev.MessageID == "" || ev.ReadBy == "" {
			return nil, missing(env.Type, "messageId/readBy")
		}
		return ev, nil

	case EventMessageReaction:
		var ev MessageReaction
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		if ev.MessageID == "" {
			return nil, missing(env.Type, "messageId")
		}
		return ev, nil

	case EventUserStatusChange:
		var ev UserStatusChange
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		if ev.UserID == "" {
			return nil, missing(env.Type, "userId")
		}
		return ev, nil

	case EventNewChat:
		var c chats.Chat
		if err := decodeData(env, &c); err != nil {
			return nil, err
		}
		if c.ID == "" {
			return nil, missing(env.Type, "id")
		}
		return NewChat{Chat: c}, nil

	case EventError:
		var ev ServerError
		if err := decodeData(env, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
}

// EncodeInbound marshals ev into a frame. The hub side uses it to emit events.
func EncodeInbound(ev Inbound) ([]byte, error) {
	switch e := ev.(type) {
	case UserChats:
		list := e.Chats
		if list == nil {
			list = []chats.Chat{}
		}
		return Encode(e.EventType(), list)
	case NewChat:
		return Encode(e.EventType(), e.Chat)
	default:
		return Encode(ev.EventType(), ev)
	}
}

func missing(eventType, field string) error {
	return fmt.Errorf("%w: %s: missing %s", ErrMalformed, eventType, field)
}
