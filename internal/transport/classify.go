package transport

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/kgellert/hodatay-chat/internal/protocol"
)

// Classify maps a dial or read error to a Reason.
func Classify(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrAuthFailed):
		return ReasonAuth
	case errors.Is(err, ErrServerDisconnect):
		return ReasonServer
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return closeCodeReason(ce.Code)
	}

	return ReasonTransient
}

func closeCodeReason(code int) Reason {
	switch code {
	case protocol.CloseUnauthorized:
		return ReasonAuth
	case protocol.CloseSessionReplaced, protocol.CloseSessionRevoked:
		return ReasonServer
	}
	return ReasonTransient
}

func handshakeReason(resp *http.Response) Reason {
	if resp == nil {
		return ReasonTransient
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ReasonAuth
	}
	return ReasonTransient
}
