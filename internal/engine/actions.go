package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/lib/logger/sl"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/protocol"
	"github.com/kgellert/hodatay-chat/internal/transport"
)

func joinChat(chatID string) protocol.Command { return protocol.JoinChat{ChatID: chatID} }

// transmit encodes cmd and writes it to the open connection.
func (e *Engine) transmit(cmd protocol.Command) error {
	b, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("engine.transmit: %s: %w", cmd.EventType(), err)
	}
	return e.transport.Send(b)
}

// send transmits cmd, or queues it for the next Connected when the transport
// is on its way back and cmd is worth replaying. On a live connection a
// failed send is returned to the caller and queued actions go out first.
func (e *Engine) send(cmd protocol.Command) error {
	log := e.log.With(slog.String("event", cmd.EventType()))

	connected := e.transport.Status().State == transport.StateConnected
	if connected && e.outbox.len() > 0 {
		e.flushOutbox()
		if e.outbox.len() > 0 && queueable(cmd) {
			log.Debug("action not sent, outbox still pending")
			return fmt.Errorf("engine.send: %s: %w", cmd.EventType(), ErrOutboxPending)
		}
	}

	err := e.transmit(cmd)
	if err == nil {
		return nil
	}

	if queueable(cmd) && reconnecting(e.transport.Status().State) {
		if qerr := e.outbox.push(cmd); qerr != nil {
			log.Warn("outbox full, action dropped")
			return qerr
		}
		log.Debug("action queued until reconnect")
		return nil
	}

	log.Debug("action not sent", sl.Err(err))
	return err
}

func reconnecting(s transport.State) bool {
	switch s {
	case transport.StateConnecting, transport.StateDisconnected, transport.StateReconnecting:
		return true
	}
	return false
}

// signaler feeds the composer's output into the connection. Typing signals
// are best effort and never queued.
type signaler struct{ e *Engine }

func (s signaler) TypingStart(chatID string) {
	_ = s.e.send(protocol.TypingStart{ChatID: chatID})
}

func (s signaler) TypingStop(chatID string) {
	_ = s.e.send(protocol.TypingStop{ChatID: chatID})
}

// ActivateChat makes chatID the chat on screen: the previous chat is left,
// chatID is joined and its unread counter resets. Activating the current
// chat does nothing.
func (e *Engine) ActivateChat(chatID string) {
	e.loop.Post(func() { e.activate(chatID) })
}

func (e *Engine) activate(chatID string) {
	if chatID == "" || chatID == e.active {
		return
	}

	e.composer.Stop()

	if prev := e.active; prev != "" {
		_ = e.send(protocol.LeaveChat{ChatID: prev})
	}
	e.active = chatID
	_ = e.send(joinChat(chatID))

	if e.unread.Reset(chatID) {
		e.publishUnread()
		e.publishChats()
	}
}

// DeactivateChat leaves chatID and clears the active chat if it matches.
func (e *Engine) DeactivateChat(chatID string) {
	e.loop.Post(func() { e.deactivate(chatID) })
}

func (e *Engine) deactivate(chatID string) {
	if chatID == "" {
		return
	}
	if e.composer.Active() == chatID {
		e.composer.Stop()
	}
	_ = e.send(protocol.LeaveChat{ChatID: chatID})
	if e.active == chatID {
		e.active = ""
	}
}

// SendMessage posts a message to chatID. Empty messages are rejected before
// anything is transmitted.
func (e *Engine) SendMessage(chatID, text string, attachments []messages.Attachment, replyTo string) error {
	const op = "engine.SendMessage"

	if chatID == "" {
		return fmt.Errorf("%s: %w", op, messages.ErrChatIDIsRequired)
	}
	if messages.Empty(text, attachments) {
		return fmt.Errorf("%s: %w", op, messages.ErrTextOrAttachmentsIsRequired)
	}

	cmd := protocol.SendMessage{
		ChatID:      chatID,
		Message:     text,
		Attachments: attachments,
		ReplyTo:     replyTo,
	}

	var err error
	e.loop.Do(func() {
		if e.composer.Active() == chatID {
			e.composer.Stop()
		}
		err = e.send(cmd)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Keystroke reports composer activity in chatID.
func (e *Engine) Keystroke(chatID string) {
	e.loop.Post(func() { e.composer.Keystroke(chatID) })
}

// StopTyping ends the local typing signal right away.
func (e *Engine) StopTyping() {
	e.loop.Post(func() { e.composer.Stop() })
}

// MarkRead tells the hub the user has read messageID. The store changes when
// the hub echoes the receipt.
func (e *Engine) MarkRead(chatID, messageID string) error {
	const op = "engine.MarkRead"

	if chatID == "" || messageID == "" {
		return fmt.Errorf("%s: %w", op, messages.ErrMessageIsNotExist)
	}

	var err error
	e.loop.Do(func() {
		err = e.send(protocol.ReadMessage{ChatID: chatID, MessageID: messageID})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// React sets the user's reaction on messageID. An empty reaction removes it.
func (e *Engine) React(messageID, reaction string) error {
	const op = "engine.React"

	if messageID == "" {
		return fmt.Errorf("%s: %w", op, messages.ErrMessageIsNotExist)
	}

	var err error
	e.loop.Do(func() {
		err = e.send(protocol.ReactToMessage{MessageID: messageID, Reaction: reaction})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CreateGroupChat asks the hub for a new group. The chat shows up through
// the hub's new-chat event.
func (e *Engine) CreateGroupChat(name, description string, members []string) error {
	const op = "engine.CreateGroupChat"

	if name == "" {
		return fmt.Errorf("%s: %w", op, chats.ErrGroupNameRequired)
	}
	if len(members) == 0 {
		return fmt.Errorf("%s: %w", op, chats.ErrEmptyParticipants)
	}

	var err error
	e.loop.Do(func() {
		err = e.send(protocol.CreateGroupChat{Name: name, Description: description, Members: members})
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CreateDirectChat opens a one-to-one chat with recipientID through the
// hub's request/response API and adds it to the directory.
func (e *Engine) CreateDirectChat(ctx context.Context, recipientID string) (chats.Chat, error) {
	const op = "engine.CreateDirectChat"

	if e.direct == nil {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, ErrDirectChatUnavailable)
	}
	if recipientID == "" || recipientID == e.selfID {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, chats.ErrInvalidRecipient)
	}

	c, err := e.direct.Create(ctx, recipientID)
	if err != nil {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, err)
	}

	e.loop.Do(func() {
		e.directory.Upsert(c)
		e.publishChats()
	})
	return c, nil
}

// RemoveChat forgets chatID locally after the user left it for good.
func (e *Engine) RemoveChat(chatID string) {
	e.loop.Post(func() {
		if e.active == chatID {
			e.deactivate(chatID)
		}
		if !e.directory.Remove(chatID) {
			return
		}
		e.messages.Drop(chatID)
		e.unread.Drop(chatID)
		e.publishChats()
		e.publishUnread()
	})
}
