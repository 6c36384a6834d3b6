package messages

import (
	"errors"
)

var (
	ErrTextOrAttachmentsIsRequired = errors.New("text or attachments is required")
	ErrChatIDIsRequired            = errors.New("chat id is required")
	ErrMessageIsNotExist           = errors.New("message is not exist")
)
