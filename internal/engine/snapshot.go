package engine

import (
	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/transport"
	"github.com/kgellert/hodatay-chat/internal/typing"
)

type MessagesUpdate struct {
	ChatID   string
	Messages []messages.Message
}

type TypingUpdate struct {
	ChatID  string
	Entries []typing.Entry
}

type UnreadUpdate struct {
	Counts map[string]int
	Total  int
}

func (e *Engine) chatList() []chats.Chat {
	list := e.directory.List()
	for i := range list {
		list[i].UnreadCount = e.unread.Get(list[i].ID)
	}
	return list
}

func (e *Engine) publishChats() {
	e.chatsFeed.publish(e.chatList())
}

func (e *Engine) publishMessages(chatID string) {
	e.messagesFeed.publish(MessagesUpdate{ChatID: chatID, Messages: e.messages.List(chatID)})
}

func (e *Engine) publishTyping(chatID string) {
	e.typingFeed.publish(TypingUpdate{ChatID: chatID, Entries: e.typing.ForChat(chatID)})
}

func (e *Engine) publishUnread() {
	e.unreadFeed.publish(UnreadUpdate{Counts: e.unread.Snapshot(), Total: e.unread.Total()})
}

func (e *Engine) publishPresence() {
	e.presenceFeed.publish(e.presence.List())
}

// Chats returns the directory in display order.
func (e *Engine) Chats() []chats.Chat {
	var out []chats.Chat
	e.loop.Do(func() { out = e.chatList() })
	return out
}

// Messages returns chatID's messages in hub order.
func (e *Engine) Messages(chatID string) []messages.Message {
	var out []messages.Message
	e.loop.Do(func() { out = e.messages.List(chatID) })
	return out
}

func (e *Engine) Unread(chatID string) int {
	var n int
	e.loop.Do(func() { n = e.unread.Get(chatID) })
	return n
}

func (e *Engine) TotalUnread() int {
	var n int
	e.loop.Do(func() { n = e.unread.Total() })
	return n
}

func (e *Engine) Typing(chatID string) []typing.Entry {
	var out []typing.Entry
	e.loop.Do(func() { out = e.typing.ForChat(chatID) })
	return out
}

func (e *Engine) Online() []string {
	var out []string
	e.loop.Do(func() { out = e.presence.List() })
	return out
}

func (e *Engine) IsOnline(userID string) bool {
	var ok bool
	e.loop.Do(func() { ok = e.presence.IsOnline(userID) })
	return ok
}

func (e *Engine) ActiveChat() string {
	var id string
	e.loop.Do(func() { id = e.active })
	return id
}

func (e *Engine) Status() transport.Status {
	var st transport.Status
	e.loop.Do(func() { st = e.transport.Status() })
	return st
}

// Pending is the number of actions waiting for a reconnect.
func (e *Engine) Pending() int {
	var n int
	e.loop.Do(func() { n = e.outbox.len() })
	return n
}
