package engine

import (
	"errors"
)

var (
	ErrNoDialer              = errors.New("dialer is required")
	ErrOutboxFull            = errors.New("outbox is full")
	ErrOutboxPending         = errors.New("queued actions not yet delivered")
	ErrDirectChatUnavailable = errors.New("direct chat client is not configured")
	ErrHub                   = errors.New("hub error")
)
