package transport

import (
	"errors"
)

var (
	ErrNoSession        = errors.New("no session credential")
	ErrAuthFailed       = errors.New("authentication failed")
	ErrServerDisconnect = errors.New("disconnected by server")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrNotConnected     = errors.New("not connected")
	ErrSendBufferFull   = errors.New("send buffer full")
)
