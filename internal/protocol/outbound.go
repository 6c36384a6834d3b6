package protocol

import (
	"fmt"

	"github.com/kgellert/hodatay-chat/internal/messages"
)

// Command is a client -> hub action.
type Command interface {
	EventType() string
	command()
}

type JoinChat struct {
	ChatID string `json:"chatId"`
}

type LeaveChat struct {
	ChatID string `json:"chatId"`
}

type SendMessage struct {
	ChatID      string                `json:"chatId"`
	Message     string                `json:"message,omitempty"`
	Attachments []messages.Attachment `json:"attachments,omitempty"`
	ReplyTo     string                `json:"replyTo,omitempty"`
}

type TypingStart struct {
	ChatID string `json:"chatId"`
}

type TypingStop struct {
	ChatID string `json:"chatId"`
}

type ReadMessage struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

type ReactToMessage struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
}

type CreateGroupChat struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
}

func (JoinChat) EventType() string        { return EventJoinChat }
func (LeaveChat) EventType() string       { return EventLeaveChat }
func (SendMessage) EventType() string     { return EventSendMessage }
func (TypingStart) EventType() string     { return EventTypingStart }
func (TypingStop) EventType() string      { return EventTypingStop }
func (ReadMessage) EventType() string     { return EventReadMessage }
func (ReactToMessage) EventType() string  { return EventReactToMessage }
func (CreateGroupChat) EventType() string { return EventCreateGroupChat }

func (JoinChat) command()        {}
func (LeaveChat) command()       {}
func (SendMessage) command()     {}
func (TypingStart) command()     {}
func (TypingStop) command()      {}
func (ReadMessage) command()     {}
func (ReactToMessage) command()  {}
func (CreateGroupChat) command() {}

// EncodeCommand marshals cmd into a frame.
func EncodeCommand(cmd Command) ([]byte, error) {
	return Encode(cmd.EventType(), cmd)
}

// DecodeCommand parses one client frame. The hub uses it.
func DecodeCommand(b []byte) (Command, error) {
	env, err := decodeEnvelope(b)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case EventJoinChat:
		return asCommand(decodeChatCommand(env, func(c JoinChat) string { return c.ChatID }))
	case EventLeaveChat:
		return asCommand(decodeChatCommand(env, func(c LeaveChat) string { return c.ChatID }))
	case EventTypingStart:
		return asCommand(decodeChatCommand(env, func(c TypingStart) string { return c.ChatID }))
	case EventTypingStop:
		return asCommand(decodeChatCommand(env, func(c TypingStop) string { return c.ChatID }))

	case EventSendMessage:
		cmd, err := decodeChatCommand(env, func(c SendMessage) string { return c.ChatID })
		if err != nil {
			return nil, err
		}
		if messages.Empty(cmd.Message, cmd.Attachments) {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, messages.ErrTextOrAttachmentsIsRequired)
		}
		return cmd, nil

	case EventReadMessage:
		var cmd ReadMessage
		if err := decodeData(env, &cmd); err != nil {
			return nil, err
		}
		if cmd.ChatID == "" || cmd.MessageID == "" {
			return nil, missing(env.Type, "chatId/messageId")
		}
		return cmd, nil

	case EventReactToMessage:
		var cmd ReactToMessage
		if err := decodeData(env, &cmd); err != nil {
			return nil, err
		}
		if cmd.MessageID == "" {
			return nil, missing(env.Type, "messageId")
		}
		return cmd, nil

	case EventCreateGroupChat:
		var cmd CreateGroupChat
		if err := decodeData(env, &cmd); err != nil {
			return nil, err
		}
		if cmd.Name == "" {
			return nil, missing(env.Type, "name")
		}
		return cmd, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
}

func decodeChatCommand[T Command](env Envelope, chatID func(T) string) (T, error) {
	var cmd T
	if err := decodeData(env, &cmd); err != nil {
		return cmd, err
	}
	if chatID(cmd) == "" {
		return cmd, missing(env.Type, "chatId")
	}
	return cmd, nil
}

func asCommand[T Command](cmd T, err error) (Command, error) {
	if err != nil {
		return nil, err
	}
	return cmd, nil
}
