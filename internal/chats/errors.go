package chats

import (
	"errors"
)

var (
	ErrEmptyParticipants = errors.New("no participants provided")
	ErrChatNotFound      = errors.New("chat not found")
	ErrNotAMember        = errors.New("user is not a chat member")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrGroupNameRequired = errors.New("group name is required")
)
