package hub_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/engine"
	"github.com/kgellert/hodatay-chat/internal/hub"
	"github.com/kgellert/hodatay-chat/internal/hub/auth"
	"github.com/kgellert/hodatay-chat/internal/hub/storage/memory"
	"github.com/kgellert/hodatay-chat/internal/lib/logger/handlers/slogdiscard"
	"github.com/kgellert/hodatay-chat/internal/protocol"
	"github.com/kgellert/hodatay-chat/internal/transport"
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Storage
	auth    *auth.Authenticator
	handler *hub.Handler
	wsURL   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	log := slogdiscard.NewDiscardLogger()

	store := memory.New()
	a := auth.New("test-secret")

	h := hub.NewHub(log)
	go h.Run(ctx)

	handler := hub.NewHandler(h, hub.Options{Store: store, Auth: a, Log: log})
	go handler.RunPresence(ctx)

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &fixture{
		t:       t,
		ctx:     ctx,
		store:   store,
		auth:    a,
		handler: handler,
		wsURL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (f *fixture) token(userID string) string {
	f.t.Helper()
	tok, err := f.auth.Issue(auth.Identity{UserID: userID, Name: strings.ToUpper(userID)}, time.Hour)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) dial(userID string) *client {
	f.t.Helper()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.token(userID))
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, header)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { _ = conn.Close() })

	return &client{t: f.t, conn: conn}
}

func (f *fixture) directChat(a, b string) chats.Chat {
	f.t.Helper()
	c, err := f.store.CreateDirectChat(f.ctx, a, b)
	require.NoError(f.t, err)
	return c
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (c *client) send(cmd protocol.Command) {
	c.t.Helper()
	b, err := protocol.EncodeCommand(cmd)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, b))
}

func (c *client) next() (protocol.Inbound, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.DecodeInbound(data)
}

// await reads frames until one of type T satisfies match.
func await[T protocol.Inbound](c *client, match func(T) bool) T {
	c.t.Helper()
	for {
		ev, err := c.next()
		require.NoError(c.t, err)
		if v, ok := ev.(T); ok && (match == nil || match(v)) {
			return v
		}
	}
}

func TestHandler_RejectsMissingCredential(t *testing.T) {
	f := newFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer forged")
	_, resp, err = websocket.DefaultDialer.Dial(f.wsURL, header)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_SendsChatsOnConnect(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat("a", "b")

	a := f.dial("a")
	ev := await[protocol.UserChats](a, nil)

	require.Len(t, ev.Chats, 1)
	assert.Equal(t, chat.ID, ev.Chats[0].ID)
}

func TestHandler_MessagesReachEveryMember(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat("a", "b")

	a, b := f.dial("a"), f.dial("b")
	await[protocol.UserChats](a, nil)
	await[protocol.UserChats](b, nil)

	a.send(protocol.SendMessage{ChatID: chat.ID, Message: "hello"})

	isHello := func(ev protocol.NewMessage) bool { return ev.Message.Text == "hello" }
	got := await(b, isHello)
	assert.Equal(t, "a", got.Message.SenderID)
	assert.NotEmpty(t, got.Message.ID)
	echo := await(a, isHello)
	assert.Equal(t, got.Message.ID, echo.Message.ID)

	b.send(protocol.ReadMessage{ChatID: chat.ID, MessageID: got.Message.ID})
	read := await[protocol.MessageRead](a, nil)
	assert.Equal(t, "b", read.ReadBy)
	require.NotNil(t, read.ReadAt)

	b.send(protocol.ReactToMessage{MessageID: got.Message.ID, Reaction: "👍"})
	reaction := await[protocol.MessageReaction](a, nil)
	assert.Equal(t, map[string]string{"b": "👍"}, reaction.Reactions)
}

func TestHandler_JoinSendsHistoryAndTypingStaysInRoom(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat("a", "b")

	a, b := f.dial("a"), f.dial("b")
	await[protocol.UserChats](a, nil)
	await[protocol.UserChats](b, nil)

	a.send(protocol.SendMessage{ChatID: chat.ID, Message: "first"})
	await[protocol.NewMessage](b, nil)

	b.send(protocol.JoinChat{ChatID: chat.ID})
	history := await[protocol.ChatMessages](b, nil)
	assert.Equal(t, chat.ID, history.ChatID)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "first", history.Messages[0].Text)

	a.send(protocol.TypingStart{ChatID: chat.ID})
	typing := await[protocol.UserTyping](b, nil)
	assert.Equal(t, "a", typing.UserID)
	assert.Equal(t, "A", typing.User.Name)

	a.send(protocol.TypingStop{ChatID: chat.ID})
	await[protocol.UserStoppedTyping](b, nil)
}

func TestHandler_NonMemberGetsError(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat("a", "b")

	c := f.dial("c")
	await[protocol.UserChats](c, nil)

	c.send(protocol.JoinChat{ChatID: chat.ID})
	ev := await[protocol.ServerError](c, nil)
	assert.Contains(t, ev.Message, chats.ErrNotAMember.Error())
}

func TestHandler_NewerSessionReplacesOlder(t *testing.T) {
	f := newFixture(t)

	first := f.dial("a")
	await[protocol.UserChats](first, nil)
	second := f.dial("a")
	await[protocol.UserChats](second, nil)

	var err error
	for err == nil {
		_, err = first.next()
	}
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, protocol.CloseSessionReplaced, ce.Code)
	assert.Equal(t, transport.ReasonServer, transport.Classify(err))
}

func TestHandler_PresenceGoesToContacts(t *testing.T) {
	f := newFixture(t)
	f.directChat("a", "b")

	a := f.dial("a")
	await[protocol.UserChats](a, nil)

	b := f.dial("b")
	await(b, func(ev protocol.UserStatusChange) bool { return ev.UserID == "a" && ev.IsOnline })
	await(a, func(ev protocol.UserStatusChange) bool { return ev.UserID == "b" && ev.IsOnline })

	require.NoError(t, b.conn.Close())
	await(a, func(ev protocol.UserStatusChange) bool { return ev.UserID == "b" && !ev.IsOnline })
}

func TestHandler_GroupAndDirectChatsAreAnnounced(t *testing.T) {
	f := newFixture(t)

	a, b := f.dial("a"), f.dial("b")
	await[protocol.UserChats](a, nil)
	await[protocol.UserChats](b, nil)

	a.send(protocol.CreateGroupChat{Name: "team", Members: []string{"b"}})
	group := await[protocol.NewChat](b, nil)
	assert.Equal(t, "team", group.Chat.Name)
	assert.Equal(t, chats.TypeGroup, group.Chat.Type)

	direct, err := f.handler.CreateDirectChat(f.ctx, "b", "a")
	require.NoError(t, err)
	got := await(a, func(ev protocol.NewChat) bool { return ev.Chat.ID == direct.ID })
	assert.Equal(t, chats.TypeDirect, got.Chat.Type)

	again, err := f.handler.CreateDirectChat(f.ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, direct.ID, again.ID)
}

func TestHandler_DrivesClientEngine(t *testing.T) {
	f := newFixture(t)
	chat := f.directChat("a", "b")
	log := slogdiscard.NewDiscardLogger()

	e, err := engine.New(engine.Options{
		Dialer: transport.NewWSDialer(f.wsURL, 5*time.Second, log),
		Policy: transport.DefaultPolicy(),
		SelfID: "a",
		Log:    log,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go e.Run(ctx)
	t.Cleanup(e.Close)

	e.Connect(f.token("a"))
	require.Eventually(t, func() bool { return len(e.Chats()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.True(t, e.Status().Connected())

	b := f.dial("b")
	await[protocol.UserChats](b, nil)
	require.Eventually(t, func() bool { return e.IsOnline("b") }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, e.SendMessage(chat.ID, "from engine", nil, ""))
	await(b, func(ev protocol.NewMessage) bool { return ev.Message.Text == "from engine" })

	b.send(protocol.SendMessage{ChatID: chat.ID, Message: "reply"})
	require.Eventually(t, func() bool { return e.Unread(chat.ID) == 1 }, 5*time.Second, 20*time.Millisecond)

	e.ActivateChat(chat.ID)
	require.Eventually(t, func() bool { return len(e.Messages(chat.ID)) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, e.Unread(chat.ID))
}
