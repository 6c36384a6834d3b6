// Package memory is an in-process hub.Store for development and tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/users"
)

type chatRow struct {
	chat     chats.Chat
	lastRead map[string]time.Time
	messages []messages.Message
}

type Storage struct {
	mu      sync.RWMutex
	now     func() time.Time
	users   map[string]users.User
	chats   map[string]*chatRow
	direct  map[string]string
	message map[string]string // message id -> chat id
}

func New() *Storage {
	return &Storage{
		now:     time.Now,
		users:   make(map[string]users.User),
		chats:   make(map[string]*chatRow),
		direct:  make(map[string]string),
		message: make(map[string]string),
	}
}

func (s *Storage) UpsertUser(_ context.Context, u users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[u.ID]
	if ok && u.Name == "" {
		u.Name = prev.Name
	}
	s.users[u.ID] = u
	return nil
}

func (s *Storage) ChatsForUser(_ context.Context, userID string) ([]chats.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []chats.Chat
	for _, row := range s.chats {
		if !row.chat.HasMember(userID) {
			continue
		}
		c := s.viewLocked(row)
		c.UnreadCount = unreadFor(row, userID)
		out = append(out, c)
	}

	slices.SortFunc(out, func(a, b chats.Chat) int {
		return b.Recency().Compare(a.Recency())
	})
	return out, nil
}

func (s *Storage) Chat(_ context.Context, chatID string) (chats.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.chats[chatID]
	if !ok {
		return chats.Chat{}, chats.ErrChatNotFound
	}
	return s.viewLocked(row), nil
}

func (s *Storage) IsMember(_ context.Context, chatID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.chats[chatID]
	if !ok {
		return false, chats.ErrChatNotFound
	}
	return row.chat.HasMember(userID), nil
}

func (s *Storage) Contacts(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, row := range s.chats {
		if !row.chat.HasMember(userID) {
			continue
		}
		for _, m := range row.chat.Members {
			if m.UserID != userID {
				seen[m.UserID] = struct{}{}
			}
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (s *Storage) CreateGroupChat(_ context.Context, ownerID, name, description string, members []string) (chats.Chat, error) {
	if name == "" {
		return chats.Chat{}, chats.ErrGroupNameRequired
	}
	ids := uniqueMembers(ownerID, members)
	if len(ids) < 2 {
		return chats.Chat{}, chats.ErrEmptyParticipants
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := chats.Chat{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Type:        chats.TypeGroup,
		Name:        name,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}
	for i, id := range ids {
		role := chats.RoleMember
		if i == 0 {
			role = chats.RoleOwner
		}
		c.Members = append(c.Members, chats.Member{UserID: id, Role: role})
	}

	row := &chatRow{chat: c, lastRead: make(map[string]time.Time)}
	s.chats[c.ID] = row
	return s.viewLocked(row), nil
}

func (s *Storage) CreateDirectChat(_ context.Context, userID, recipientID string) (chats.Chat, error) {
	if recipientID == "" || recipientID == userID {
		return chats.Chat{}, chats.ErrInvalidRecipient
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := DirectKey(userID, recipientID)
	if id, ok := s.direct[key]; ok {
		return s.viewLocked(s.chats[id]), nil
	}

	c := chats.Chat{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      chats.TypeDirect,
		CreatedAt: s.now().UTC(),
		Members: []chats.Member{
			{UserID: userID, Role: chats.RoleMember},
			{UserID: recipientID, Role: chats.RoleMember},
		},
	}
	row := &chatRow{chat: c, lastRead: make(map[string]time.Time)}
	s.chats[c.ID] = row
	s.direct[key] = c.ID
	return s.viewLocked(row), nil
}

func (s *Storage) Messages(_ context.Context, chatID string, limit int) ([]messages.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.chats[chatID]
	if !ok {
		return nil, chats.ErrChatNotFound
	}

	list := row.messages
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]messages.Message, 0, len(list))
	for _, m := range list {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (s *Storage) SaveMessage(_ context.Context, m messages.Message) (messages.Message, error) {
	if messages.Empty(m.Text, m.Attachments) {
		return messages.Message{}, messages.ErrTextOrAttachmentsIsRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.chats[m.ChatID]
	if !ok {
		return messages.Message{}, chats.ErrChatNotFound
	}
	if !row.chat.HasMember(m.SenderID) {
		return messages.Message{}, chats.ErrNotAMember
	}

	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	m.ReadBy = nil
	m.Reactions = nil

	row.messages = append(row.messages, m.Clone())
	s.message[m.ID] = m.ChatID
	if row.lastRead[m.SenderID].Before(m.CreatedAt) {
		row.lastRead[m.SenderID] = m.CreatedAt
	}
	return m, nil
}

func (s *Storage) MarkRead(_ context.Context, chatID, messageID, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.message[messageID]; !ok || id != chatID {
		return false, messages.ErrMessageIsNotExist
	}
	row := s.chats[chatID]

	i := slices.IndexFunc(row.messages, func(m messages.Message) bool { return m.ID == messageID })
	m := &row.messages[i]
	if row.lastRead[userID].Before(m.CreatedAt) {
		row.lastRead[userID] = m.CreatedAt
	}
	if m.ReadByUser(userID) {
		return false, nil
	}
	m.ReadBy = append(m.ReadBy, messages.ReadReceipt{UserID: userID, ReadAt: at})
	return true, nil
}

func (s *Storage) SetReaction(_ context.Context, messageID, userID, reaction string) (string, map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatID, ok := s.message[messageID]
	if !ok {
		return "", nil, messages.ErrMessageIsNotExist
	}
	row := s.chats[chatID]
	if !row.chat.HasMember(userID) {
		return "", nil, chats.ErrNotAMember
	}

	i := slices.IndexFunc(row.messages, func(m messages.Message) bool { return m.ID == messageID })
	m := &row.messages[i]
	if reaction == "" {
		delete(m.Reactions, userID)
	} else {
		if m.Reactions == nil {
			m.Reactions = make(map[string]string)
		}
		m.Reactions[userID] = reaction
	}
	return chatID, maps.Clone(m.Reactions), nil
}

func (s *Storage) viewLocked(row *chatRow) chats.Chat {
	c := row.chat.Clone()
	for i := range c.Members {
		c.Members[i].Name = s.users[c.Members[i].UserID].Name
	}
	if n := len(row.messages); n > 0 {
		lm := row.messages[n-1].Clone()
		c.LastMessage = &lm
		c.LastMessageAt = lm.CreatedAt
	}
	return c
}

func unreadFor(row *chatRow, userID string) int {
	n := 0
	for _, m := range row.messages {
		if m.SenderID != userID && m.CreatedAt.After(row.lastRead[userID]) {
			n++
		}
	}
	return n
}

// DirectKey identifies the direct chat of a pair regardless of order.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// uniqueMembers puts ownerID first and drops empties and duplicates.
func uniqueMembers(ownerID string, members []string) []string {
	out := []string{ownerID}
	for _, id := range members {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
