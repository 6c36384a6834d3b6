package hub

import (
	"context"
	"time"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/users"
)

// Store is the hub's persistence. Implementations live in hub/storage.
type Store interface {
	UpsertUser(ctx context.Context, u users.User) error

	// ChatsForUser lists userID's chats with their last message and the
	// number of messages userID has not read yet.
	ChatsForUser(ctx context.Context, userID string) ([]chats.Chat, error)
	Chat(ctx context.Context, chatID string) (chats.Chat, error)
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
	// Contacts is every user sharing at least one chat with userID.
	Contacts(ctx context.Context, userID string) ([]string, error)

	CreateGroupChat(ctx context.Context, ownerID, name, description string, members []string) (chats.Chat, error)
	// CreateDirectChat returns the existing direct chat of the pair if there
	// is one.
	CreateDirectChat(ctx context.Context, userID, recipientID string) (chats.Chat, error)

	// Messages returns the newest limit messages of chatID, oldest first.
	Messages(ctx context.Context, chatID string, limit int) ([]messages.Message, error)
	// SaveMessage assigns id and creation time when they are empty.
	SaveMessage(ctx context.Context, m messages.Message) (messages.Message, error)
	// MarkRead records a receipt. Reports false when it already existed.
	MarkRead(ctx context.Context, chatID, messageID, userID string, at time.Time) (bool, error)
	// SetReaction sets or, with an empty reaction, clears userID's reaction
	// and returns the message's chat and full reaction map. userID must be a
	// member of that chat (chats.ErrNotAMember).
	SetReaction(ctx context.Context, messageID, userID, reaction string) (chatID string, reactions map[string]string, err error)
}
