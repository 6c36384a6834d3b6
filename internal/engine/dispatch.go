package engine

import (
	"fmt"
	"log/slog"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/lib/logger/sl"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/notify"
	"github.com/kgellert/hodatay-chat/internal/protocol"
)

// HandleFrame implements transport.Handler. Frames that fail to decode are
// logged and dropped; the connection stays up.
func (e *Engine) HandleFrame(b []byte) {
	const op = "engine.HandleFrame"

	ev, err := protocol.DecodeInbound(b)
	if err != nil {
		e.log.Warn("inbound frame dropped", slog.String("op", op), sl.Err(err))
		return
	}
	e.dispatch(ev)
}

func (e *Engine) dispatch(ev protocol.Inbound) {
	switch ev := ev.(type) {
	case protocol.UserChats:
		e.onUserChats(ev)
	case protocol.ChatMessages:
		e.onChatMessages(ev)
	case protocol.NewMessage:
		e.onNewMessage(ev)
	case protocol.UserTyping:
		e.onUserTyping(ev)
	case protocol.UserStoppedTyping:
		e.onUserStoppedTyping(ev)
	case protocol.MessageRead:
		e.onMessageRead(ev)
	case protocol.MessageReaction:
		e.onMessageReaction(ev)
	case protocol.UserStatusChange:
		e.onUserStatusChange(ev)
	case protocol.NewChat:
		e.onNewChat(ev)
	case protocol.ServerError:
		e.onServerError(ev)
	default:
		e.log.Error("unhandled inbound event", slog.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (e *Engine) onUserChats(ev protocol.UserChats) {
	list := make([]chats.Chat, 0, len(ev.Chats))
	counts := make(map[string]int, len(ev.Chats))

	for _, c := range ev.Chats {
		if prev, ok := e.directory.Get(c.ID); ok && prev.LastMessageAt.After(c.LastMessageAt) {
			c.LastMessage = prev.LastMessage
			c.LastMessageAt = prev.LastMessageAt
		}
		counts[c.ID] = c.UnreadCount
		list = append(list, c)
	}

	var orphans []string
	for _, c := range e.directory.List() {
		if _, ok := counts[c.ID]; !ok && c.Placeholder {
			orphans = append(orphans, c.ID)
		}
	}

	e.directory.Replace(list)
	e.unread.Seed(counts, e.active)
	for _, id := range orphans {
		e.messages.Drop(id)
		e.log.Debug("placeholder chat dropped", slog.String("chat_id", id))
	}

	e.publishChats()
	e.publishUnread()
	for _, id := range orphans {
		if id == e.active {
			e.publishMessages(id)
		}
	}
}

func (e *Engine) onChatMessages(ev protocol.ChatMessages) {
	msgs := make([]messages.Message, len(ev.Messages))
	for i, m := range ev.Messages {
		if m.ChatID == "" {
			m.ChatID = ev.ChatID
		}
		msgs[i] = m
	}
	e.messages.Replace(ev.ChatID, msgs)

	if n := len(msgs); n > 0 && e.directory.Has(ev.ChatID) {
		e.directory.Touch(ev.ChatID, msgs[n-1])
		e.publishChats()
	}
	e.publishMessages(ev.ChatID)
}

func (e *Engine) onNewMessage(ev protocol.NewMessage) {
	m := ev.Message
	m.ChatID = ev.ChatID

	if !e.messages.Append(ev.ChatID, m) {
		e.log.Debug("duplicate message ignored", slog.String("message_id", m.ID))
		return
	}
	if e.directory.Touch(ev.ChatID, m) {
		e.log.Debug("message for unknown chat, placeholder created", slog.String("chat_id", ev.ChatID))
	}

	own := m.SenderID != "" && m.SenderID == e.selfID
	if ev.ChatID != e.active && !own {
		e.unread.Increment(ev.ChatID)
		e.publishUnread()
		e.notifyMessage(m)
	}

	e.publishMessages(ev.ChatID)
	e.publishChats()
}

func (e *Engine) notifyMessage(m messages.Message) {
	n := notify.Notification{
		ChatID:    m.ChatID,
		MessageID: m.ID,
		Sender:    m.SenderID,
		Text:      m.Text,
	}
	if c, ok := e.directory.Get(m.ChatID); ok {
		n.ChatName = c.Name
		for _, mem := range c.Members {
			if mem.UserID == m.SenderID && mem.Name != "" {
				n.Sender = mem.Name
			}
		}
	}

	if err := e.notifier.Notify(n); err != nil {
		e.log.Debug("notification failed", sl.Err(err))
	}
}

func (e *Engine) onUserTyping(ev protocol.UserTyping) {
	if ev.UserID == e.selfID {
		return
	}
	if e.typing.Start(ev.ChatID, ev.UserID, ev.User) {
		e.publishTyping(ev.ChatID)
	}
}

func (e *Engine) onUserStoppedTyping(ev protocol.UserStoppedTyping) {
	if e.typing.Stop(ev.ChatID, ev.UserID) {
		e.publishTyping(ev.ChatID)
	}
}

func (e *Engine) onMessageRead(ev protocol.MessageRead) {
	at := e.clock.Now()
	if ev.ReadAt != nil {
		at = *ev.ReadAt
	}

	if !e.messages.MarkRead(ev.ChatID, ev.MessageID, ev.ReadBy, at) {
		return
	}
	e.refreshLastMessage(ev.MessageID)
}

func (e *Engine) onMessageReaction(ev protocol.MessageReaction) {
	if e.messages.SetReactions(ev.MessageID, ev.Reactions) == "" {
		e.log.Debug("reaction for unknown message", slog.String("message_id", ev.MessageID))
		return
	}
	e.refreshLastMessage(ev.MessageID)
}

// refreshLastMessage publishes messageID's chat and copies the patched
// message into the directory when it is that chat's last message.
func (e *Engine) refreshLastMessage(messageID string) {
	m, ok := e.messages.Get(messageID)
	if !ok {
		return
	}
	e.publishMessages(m.ChatID)

	c, ok := e.directory.Get(m.ChatID)
	if !ok || c.LastMessage == nil || c.LastMessage.ID != messageID {
		return
	}
	e.directory.Touch(m.ChatID, m)
	e.publishChats()
}

func (e *Engine) onUserStatusChange(ev protocol.UserStatusChange) {
	if e.presence.Set(ev.UserID, ev.IsOnline) {
		e.publishPresence()
	}
}

func (e *Engine) onNewChat(ev protocol.NewChat) {
	e.directory.Upsert(ev.Chat)
	e.publishChats()
}

func (e *Engine) onServerError(ev protocol.ServerError) {
	e.log.Warn("hub reported an error", slog.String("message", ev.Message))
	e.errorFeed.publish(fmt.Errorf("%w: %s", ErrHub, ev.Message))
}
