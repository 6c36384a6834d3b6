// Package directchat creates one-to-one chats over the hub's HTTP API. It is
// a plain request/response call because the caller needs the chat back
// before it can open it.
package directchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/kgellert/hodatay-chat/internal/chats"
	response "github.com/kgellert/hodatay-chat/internal/lib"
)

var (
	ErrUnauthorized = errors.New("hub rejected the session")
	ErrUnexpected   = errors.New("unexpected hub response")
)

const Path = "/chats/direct"

type Client struct {
	baseURL string
	session string
	http    *http.Client
}

func New(baseURL, session string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		http:    &http.Client{Timeout: timeout},
	}
}

// Create returns the direct chat between the session user and recipientID,
// creating it if needed.
func (c *Client) Create(ctx context.Context, recipientID string) (chats.Chat, error) {
	const op = "directchat.Client.Create"

	if recipientID == "" {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, chats.ErrInvalidRecipient)
	}

	body, err := json.Marshal(chats.CreateDirectChatRequest{RecipientID: recipientID})
	if err != nil {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+Path, bytes.NewReader(body))
	if err != nil {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.session)

	resp, err := c.http.Do(req)
	if err != nil {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return chats.Chat{}, fmt.Errorf("%s: %w", op, decodeError(resp))
	}

	var out chats.CreateDirectChatResponse
	if err := render.DecodeJSON(resp.Body, &out); err != nil {
		return chats.Chat{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	if out.Chat.ID == "" {
		return chats.Chat{}, fmt.Errorf("%s: %w: chat without id", op, ErrUnexpected)
	}
	return out.Chat, nil
}

// decodeError turns a hub error body back into the matching sentinel.
func decodeError(resp *http.Response) error {
	var body response.ErrorResponse
	if err := render.DecodeJSON(resp.Body, &body); err != nil {
		return fmt.Errorf("%w: status %d", ErrUnexpected, resp.StatusCode)
	}

	switch body.Error.Code {
	case response.CodeUnauthorized:
		return ErrUnauthorized
	case response.CodeInvalidRecipient:
		return chats.ErrInvalidRecipient
	case response.CodeChatNotFound:
		return chats.ErrChatNotFound
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return fmt.Errorf("%w: status %d: %s", ErrUnexpected, resp.StatusCode, body.Error.Message)
}
