package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/users"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStorage() *Storage {
	s := New()
	now := t0
	s.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return s
}

func TestCreateDirectChat_ReturnsExistingPair(t *testing.T) {
	s := newStorage()
	ctx := context.Background()

	first, err := s.CreateDirectChat(ctx, "alice", "bob")
	require.NoError(t, err)
	again, err := s.CreateDirectChat(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = s.CreateDirectChat(ctx, "alice", "alice")
	assert.ErrorIs(t, err, chats.ErrInvalidRecipient)
}

func TestCreateGroupChat(t *testing.T) {
	s := newStorage()
	ctx := context.Background()
	require.NoError(t, s.UpsertUser(ctx, users.User{ID: "bob", Name: "Bob"}))

	_, err := s.CreateGroupChat(ctx, "alice", "", "", []string{"bob"})
	assert.ErrorIs(t, err, chats.ErrGroupNameRequired)
	_, err = s.CreateGroupChat(ctx, "alice", "devs", "", []string{"alice"})
	assert.ErrorIs(t, err, chats.ErrEmptyParticipants)

	c, err := s.CreateGroupChat(ctx, "alice", "devs", "team", []string{"bob", "bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, []chats.Member{
		{UserID: "alice", Role: chats.RoleOwner},
		{UserID: "bob", Role: chats.RoleMember, Name: "Bob"},
		{UserID: "carol", Role: chats.RoleMember},
	}, c.Members)

	contacts, err := s.Contacts(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, contacts)
}

func TestMessagesUnreadAndReceipts(t *testing.T) {
	s := newStorage()
	ctx := context.Background()

	c, err := s.CreateDirectChat(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = s.SaveMessage(ctx, messages.Message{ChatID: c.ID, SenderID: "alice", Text: "  "})
	assert.ErrorIs(t, err, messages.ErrTextOrAttachmentsIsRequired)
	_, err = s.SaveMessage(ctx, messages.Message{ChatID: c.ID, SenderID: "carol", Text: "hi"})
	assert.ErrorIs(t, err, chats.ErrNotAMember)

	m1, err := s.SaveMessage(ctx, messages.Message{ChatID: c.ID, SenderID: "alice", Text: "one"})
	require.NoError(t, err)
	m2, err := s.SaveMessage(ctx, messages.Message{ChatID: c.ID, SenderID: "alice", Text: "two"})
	require.NoError(t, err)

	list, err := s.ChatsForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].UnreadCount)
	assert.Equal(t, "two", list[0].LastMessage.Text)

	mine, err := s.ChatsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, mine[0].UnreadCount, "own messages are never unread")

	added, err := s.MarkRead(ctx, c.ID, m2.ID, "bob", t0)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.MarkRead(ctx, c.ID, m2.ID, "bob", t0)
	require.NoError(t, err)
	assert.False(t, added)

	list, err = s.ChatsForUser(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, list[0].UnreadCount)

	_, err = s.MarkRead(ctx, "other", m1.ID, "bob", t0)
	assert.ErrorIs(t, err, messages.ErrMessageIsNotExist)

	history, err := s.Messages(ctx, c.ID, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, m2.ID, history[0].ID)
	assert.Equal(t, []messages.ReadReceipt{{UserID: "bob", ReadAt: t0}}, history[0].ReadBy)
}

func TestSetReaction(t *testing.T) {
	s := newStorage()
	ctx := context.Background()

	c, err := s.CreateDirectChat(ctx, "alice", "bob")
	require.NoError(t, err)
	m, err := s.SaveMessage(ctx, messages.Message{ChatID: c.ID, SenderID: "alice", Text: "hi"})
	require.NoError(t, err)

	chatID, reactions, err := s.SetReaction(ctx, m.ID, "bob", "👍")
	require.NoError(t, err)
	assert.Equal(t, c.ID, chatID)
	assert.Equal(t, map[string]string{"bob": "👍"}, reactions)

	_, reactions, err = s.SetReaction(ctx, m.ID, "bob", "")
	require.NoError(t, err)
	assert.Empty(t, reactions)

	_, _, err = s.SetReaction(ctx, m.ID, "carol", "👍")
	assert.ErrorIs(t, err, chats.ErrNotAMember)
	_, _, err = s.SetReaction(ctx, "missing", "bob", "👍")
	assert.ErrorIs(t, err, messages.ErrMessageIsNotExist)
}

func TestChatsForUser_NewestFirst(t *testing.T) {
	s := newStorage()
	ctx := context.Background()

	older, err := s.CreateDirectChat(ctx, "alice", "bob")
	require.NoError(t, err)
	newer, err := s.CreateDirectChat(ctx, "alice", "carol")
	require.NoError(t, err)

	list, err := s.ChatsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	_, err = s.SaveMessage(ctx, messages.Message{ChatID: older.ID, SenderID: "bob", Text: "ping"})
	require.NoError(t, err)

	list, err = s.ChatsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, older.ID, list[0].ID)
}
