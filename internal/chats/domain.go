package chats

import (
	"time"

	"github.com/kgellert/hodatay-chat/internal/messages"
)

type Type string

const (
	TypeDirect Type = "direct"
	TypeGroup  Type = "group"
	TypeItem   Type = "item"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type Member struct {
	UserID string `json:"userId" db:"user_id"`
	Role   Role   `json:"role" db:"role"`
	Name   string `json:"name,omitempty" db:"name"`
}

type Chat struct {
	ID            string            `json:"id"`
	Type          Type              `json:"type"`
	Name          string            `json:"name,omitempty"`
	Description   string            `json:"description,omitempty"`
	Members       []Member          `json:"members"`
	LastMessage   *messages.Message `json:"lastMessage,omitempty"`
	LastMessageAt time.Time         `json:"lastMessageAt,omitzero"`
	CreatedAt     time.Time         `json:"createdAt,omitzero"`
	UnreadCount   int               `json:"unreadCount,omitempty"`

	// Placeholder marks an entry created from a message that arrived before
	// the chat's metadata. It is never sent on the wire.
	Placeholder bool `json:"-"`
}

// Recency is the ordering key of the directory: the newest message, or the
// creation time for chats without messages.
func (c Chat) Recency() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

func (c Chat) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func (c Chat) Clone() Chat {
	out := c
	if c.Members != nil {
		out.Members = append([]Member(nil), c.Members...)
	}
	if c.LastMessage != nil {
		lm := c.LastMessage.Clone()
		out.LastMessage = &lm
	}
	return out
}

type CreateDirectChatRequest struct {
	RecipientID string `json:"recipientId"`
}

type CreateDirectChatResponse struct {
	Chat Chat `json:"chat"`
}
