package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/engine"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/transport"
	"github.com/kgellert/hodatay-chat/internal/typing"
	"github.com/kgellert/hodatay-chat/internal/users"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type sent struct {
	chatID      string
	text        string
	attachments []messages.Attachment
}

type fakeEngine struct {
	active    []string
	left      []string
	keys      []string
	sent      []sent
	reads     [][2]string
	reactions [][2]string
	groups    [][]string
	direct    chats.Chat
	sendErr   error
}

func (f *fakeEngine) ActivateChat(chatID string)   { f.active = append(f.active, chatID) }
func (f *fakeEngine) DeactivateChat(chatID string) { f.left = append(f.left, chatID) }
func (f *fakeEngine) Keystroke(chatID string)      { f.keys = append(f.keys, chatID) }

func (f *fakeEngine) SendMessage(chatID, text string, attachments []messages.Attachment, _ string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{chatID, text, attachments})
	return nil
}

func (f *fakeEngine) MarkRead(chatID, messageID string) error {
	f.reads = append(f.reads, [2]string{chatID, messageID})
	return nil
}

func (f *fakeEngine) React(messageID, reaction string) error {
	f.reactions = append(f.reactions, [2]string{messageID, reaction})
	return nil
}

func (f *fakeEngine) CreateGroupChat(name, _ string, members []string) error {
	f.groups = append(f.groups, append([]string{name}, members...))
	return nil
}

func (f *fakeEngine) CreateDirectChat(_ context.Context, recipientID string) (chats.Chat, error) {
	return f.direct, nil
}

type fakeUploader struct{ paths []string }

func (u *fakeUploader) Upload(_ context.Context, path string) (messages.Attachment, error) {
	u.paths = append(u.paths, path)
	return messages.Attachment{FileID: "uploads/1", Filename: "a.png"}, nil
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixture() []chats.Chat {
	return []chats.Chat{
		{
			ID:   "chat-direct-0001",
			Type: chats.TypeDirect,
			Members: []chats.Member{
				{UserID: "me", Name: "Me"},
				{UserID: "bob", Name: "Bob"},
			},
			UnreadCount: 2,
		},
		{
			ID:          "chat-group-0002",
			Type:        chats.TypeGroup,
			Name:        "Devs",
			Members:     []chats.Member{{UserID: "me"}, {UserID: "bob", Name: "Bob"}},
			UnreadCount: 1,
		},
	}
}

func newREPL(t *testing.T) (*REPL, *fakeEngine, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	e := &fakeEngine{}
	r := New(e, &fakeUploader{}, "me", &out)
	r.ShowChats(fixture())
	return r, e, &out
}

func msg(id, chatID, sender, text string) messages.Message {
	return messages.Message{ID: id, ChatID: chatID, SenderID: sender, Text: text, CreatedAt: t0}
}

func TestREPL_OpenByTitleAndSend(t *testing.T) {
	r, e, out := newREPL(t)
	ctx := context.Background()

	require.NoError(t, r.Execute(ctx, "/open bob"))
	assert.Equal(t, []string{"chat-direct-0001"}, e.active)
	assert.Contains(t, out.String(), "-- Bob --")

	require.NoError(t, r.Execute(ctx, "hi"))
	require.Len(t, e.sent, 1)
	assert.Equal(t, sent{chatID: "chat-direct-0001", text: "hi"}, e.sent[0])

	require.NoError(t, r.Execute(ctx, "/open bob"))
	assert.Len(t, e.active, 1, "re-opening the open chat does nothing")
}

func TestREPL_OpenErrors(t *testing.T) {
	r, _, _ := newREPL(t)
	r.ShowChats(append(fixture(), chats.Chat{ID: "chat-group-0003", Name: "Design"}))
	ctx := context.Background()

	assert.ErrorIs(t, r.Execute(ctx, "/open zed"), ErrChatNotFound)
	assert.ErrorIs(t, r.Execute(ctx, "/open de"), ErrAmbiguousChat)
	assert.NoError(t, r.Execute(ctx, "/open 0003"))
}

func TestREPL_TextNeedsOpenChat(t *testing.T) {
	r, e, _ := newREPL(t)

	assert.ErrorIs(t, r.Execute(context.Background(), "hello"), ErrNoActiveChat)
	assert.ErrorIs(t, r.Execute(context.Background(), "/close"), ErrNoActiveChat)
	assert.Empty(t, e.sent)
}

func TestREPL_DraftLinesSignalTypingAndJoin(t *testing.T) {
	r, e, _ := newREPL(t)
	ctx := context.Background()
	require.NoError(t, r.Execute(ctx, "/open devs"))

	require.NoError(t, r.Execute(ctx, `line one\`))
	require.NoError(t, r.Execute(ctx, `line two\`))
	assert.Equal(t, []string{"chat-group-0002", "chat-group-0002"}, e.keys)
	assert.Empty(t, e.sent)

	require.NoError(t, r.Execute(ctx, "done"))
	require.Len(t, e.sent, 1)
	assert.Equal(t, "line one\nline two\ndone", e.sent[0].text)
}

func TestREPL_ShowMessagesPrintsOnlyNew(t *testing.T) {
	r, _, out := newREPL(t)
	ctx := context.Background()

	r.ShowMessages(engine.MessagesUpdate{ChatID: "chat-group-0002", Messages: []messages.Message{msg("m1", "chat-group-0002", "bob", "unseen")}})
	assert.NotContains(t, out.String(), "unseen", "inactive chats are not printed")

	require.NoError(t, r.Execute(ctx, "/open devs"))
	assert.Contains(t, out.String(), "Bob: unseen", "cached history is printed on open")

	out.Reset()
	r.ShowMessages(engine.MessagesUpdate{ChatID: "chat-group-0002", Messages: []messages.Message{
		msg("m1", "chat-group-0002", "bob", "unseen"),
		msg("m2", "chat-group-0002", "me", "reply"),
	}})
	printed := out.String()
	assert.NotContains(t, printed, "unseen")
	assert.Contains(t, printed, "you: reply")
}

func TestREPL_ReadAndReactResolveMessages(t *testing.T) {
	r, e, _ := newREPL(t)
	ctx := context.Background()
	require.NoError(t, r.Execute(ctx, "/open devs"))
	r.ShowMessages(engine.MessagesUpdate{ChatID: "chat-group-0002", Messages: []messages.Message{
		msg("msg-000000aa", "chat-group-0002", "bob", "first"),
		msg("msg-000000bb", "chat-group-0002", "bob", "second"),
	}})

	require.NoError(t, r.Execute(ctx, "/read"))
	require.NoError(t, r.Execute(ctx, "/react 00aa 👍"))
	require.NoError(t, r.Execute(ctx, "/react 00aa"))

	assert.Equal(t, [][2]string{{"chat-group-0002", "msg-000000bb"}}, e.reads)
	assert.Equal(t, [][2]string{{"msg-000000aa", "👍"}, {"msg-000000aa", ""}}, e.reactions)
	assert.ErrorIs(t, r.Execute(ctx, "/read zz"), ErrMessageNotFound)
}

func TestREPL_DirectGroupAndAttach(t *testing.T) {
	r, e, _ := newREPL(t)
	e.direct = chats.Chat{ID: "chat-direct-0001"}
	ctx := context.Background()

	require.NoError(t, r.Execute(ctx, "/dm bob"))
	assert.Equal(t, []string{"chat-direct-0001"}, e.active)

	require.NoError(t, r.Execute(ctx, "/group ops bob carol"))
	assert.Equal(t, [][]string{{"ops", "bob", "carol"}}, e.groups)

	require.NoError(t, r.Execute(ctx, "/attach ./a.png a photo"))
	require.Len(t, e.sent, 1)
	assert.Equal(t, "a photo", e.sent[0].text)
	assert.Equal(t, "uploads/1", e.sent[0].attachments[0].FileID)
}

func TestREPL_AttachWithoutUploader(t *testing.T) {
	var out bytes.Buffer
	r := New(&fakeEngine{}, nil, "me", &out)
	assert.ErrorIs(t, r.Execute(context.Background(), "/attach x"), ErrAttachmentsDisabled)
}

func TestREPL_PromptAndChats(t *testing.T) {
	r, _, out := newREPL(t)
	r.ShowConnection(transport.Status{State: transport.StateConnected})
	r.ShowPresence([]string{"bob"})

	assert.Equal(t, "●  3 > ", r.Prompt())
	require.NoError(t, r.Execute(context.Background(), "/open devs"))
	assert.Equal(t, "●  3  Devs> ", r.Prompt())

	out.Reset()
	require.NoError(t, r.Execute(context.Background(), "/chats"))
	lines := strings.Split(out.String(), "\n")
	assert.Equal(t, "  Bob ●  2  ect-0001", lines[0])
	assert.Equal(t, "> Devs  1  oup-0002", lines[1])
}

func TestREPL_TypingOnlyForOpenChat(t *testing.T) {
	r, _, out := newREPL(t)
	entries := []typing.Entry{{ChatID: "chat-group-0002", UserID: "bob", User: users.User{Name: "Bob"}}}

	r.ShowTyping(engine.TypingUpdate{ChatID: "chat-group-0002", Entries: entries})
	assert.Empty(t, out.String())

	require.NoError(t, r.Execute(context.Background(), "/open devs"))
	r.ShowTyping(engine.TypingUpdate{ChatID: "chat-group-0002", Entries: entries})
	assert.Contains(t, out.String(), "Bob is typing...")
}

func TestREPL_Run(t *testing.T) {
	r, e, out := newREPL(t)
	e.sendErr = errors.New("boom")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := strings.NewReader("/open devs\nhello\n/quit\nnever\n")
	require.NoError(t, r.Run(ctx, in))

	assert.Contains(t, out.String(), "error: boom")
	assert.Equal(t, []string{"chat-group-0002"}, e.active)
}
