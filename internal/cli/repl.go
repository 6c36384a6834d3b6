package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/engine"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/transport"
)

const historyLines = 20

var (
	ErrQuit                = errors.New("quit")
	ErrNoActiveChat        = errors.New("no chat is open, use /open")
	ErrChatNotFound        = errors.New("chat not found")
	ErrAmbiguousChat       = errors.New("more than one chat matches")
	ErrMessageNotFound     = errors.New("message not found")
	ErrAttachmentsDisabled = errors.New("attachments are not configured")
)

// Engine is the part of the chat engine the REPL drives.
type Engine interface {
	ActivateChat(chatID string)
	DeactivateChat(chatID string)
	SendMessage(chatID, text string, attachments []messages.Attachment, replyTo string) error
	Keystroke(chatID string)
	MarkRead(chatID, messageID string) error
	React(messageID, reaction string) error
	CreateGroupChat(name, description string, members []string) error
	CreateDirectChat(ctx context.Context, recipientID string) (chats.Chat, error)
}

// Source publishes engine state. Callbacks run on the engine loop and must
// not call back into the engine synchronously.
type Source interface {
	OnChats(fn func([]chats.Chat)) func()
	OnMessages(fn func(engine.MessagesUpdate)) func()
	OnTyping(fn func(engine.TypingUpdate)) func()
	OnPresence(fn func([]string)) func()
	OnConnection(fn func(transport.Status)) func()
	OnError(fn func(error)) func()
}

type Uploader interface {
	Upload(ctx context.Context, path string) (messages.Attachment, error)
}

type REPL struct {
	engine   Engine
	uploader Uploader
	selfID   string

	outMu sync.Mutex
	out   io.Writer

	mu       sync.Mutex
	chats    []chats.Chat
	messages map[string][]messages.Message
	printed  map[string]string
	online   map[string]bool
	status   transport.Status
	active   string
	draft    []string
}

// New returns a REPL writing to out. uploader may be nil.
func New(e Engine, uploader Uploader, selfID string, out io.Writer) *REPL {
	return &REPL{
		engine:   e,
		uploader: uploader,
		selfID:   selfID,
		out:      out,
		messages: make(map[string][]messages.Message),
		printed:  make(map[string]string),
		online:   make(map[string]bool),
	}
}

// Subscribe attaches the REPL to every feed of src.
func (r *REPL) Subscribe(src Source) (unsubscribe func()) {
	cancels := []func(){
		src.OnChats(r.ShowChats),
		src.OnMessages(r.ShowMessages),
		src.OnTyping(r.ShowTyping),
		src.OnPresence(r.ShowPresence),
		src.OnConnection(r.ShowConnection),
		src.OnError(r.ShowError),
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

func (r *REPL) ShowChats(list []chats.Chat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats = list
}

// ShowMessages prints the messages of the open chat that were not printed
// yet. Other chats are only cached; their unread badge comes with the chat
// list.
func (r *REPL) ShowMessages(u engine.MessagesUpdate) {
	r.mu.Lock()
	r.messages[u.ChatID] = u.Messages
	if u.ChatID != r.active || len(u.Messages) == 0 {
		r.mu.Unlock()
		return
	}

	start := max(len(u.Messages)-historyLines, 0)
	if last, ok := r.printed[u.ChatID]; ok {
		if i := slices.IndexFunc(u.Messages, func(m messages.Message) bool { return m.ID == last }); i >= 0 {
			start = i + 1
		}
	}
	r.printed[u.ChatID] = u.Messages[len(u.Messages)-1].ID
	names := r.namesLocked(u.ChatID)
	r.mu.Unlock()

	for _, m := range u.Messages[start:] {
		r.println(MessageLine(m, r.selfID, names))
	}
}

func (r *REPL) ShowTyping(u engine.TypingUpdate) {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	if u.ChatID != active {
		return
	}
	if line := TypingLine(u.Entries); line != "" {
		r.println(line)
	}
}

func (r *REPL) ShowPresence(online []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.online)
	for _, id := range online {
		r.online[id] = true
	}
}

func (r *REPL) ShowConnection(st transport.Status) {
	r.mu.Lock()
	r.status = st
	r.mu.Unlock()
	r.println(StatusLine(st))
}

func (r *REPL) ShowError(err error) {
	r.println(red("error: ") + err.Error())
}

// Prompt shows the connection dot, the total unread badge and the open chat.
func (r *REPL) Prompt() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	title := ""
	for _, c := range r.chats {
		total += c.UnreadCount
		if c.ID == r.active {
			title = ChatTitle(c, r.selfID)
		}
	}

	var b strings.Builder
	b.WriteString(StatusDot(r.status))
	if badge := UnreadBadge(total); badge != "" {
		b.WriteString(" " + badge)
	}
	if title != "" {
		b.WriteString(" " + title)
	}
	b.WriteString("> ")
	return b.String()
}

// Run reads commands from in until EOF, /quit or ctx is done.
func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		r.print(r.Prompt())

		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			err := r.Execute(ctx, line)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			if err != nil {
				r.ShowError(err)
			}
		}
	}
}

// Execute runs a single input line.
func (r *REPL) Execute(ctx context.Context, line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	cmd, err := Parse(line)
	if err != nil {
		return err
	}

	switch cmd.Kind {
	case KindQuit:
		return ErrQuit
	case KindHelp:
		r.println(Help())
		return nil
	case KindChats:
		r.printChats()
		return nil
	case KindOpen:
		return r.open(cmd.Args[0])
	case KindClose:
		return r.close()
	case KindDraft:
		return r.compose(cmd.Text)
	case KindText:
		return r.send(cmd.Text)
	case KindDirect:
		c, err := r.engine.CreateDirectChat(ctx, cmd.Args[0])
		if err != nil {
			return err
		}
		return r.open(c.ID)
	case KindGroup:
		return r.engine.CreateGroupChat(cmd.Args[0], "", cmd.Args[1:])
	case KindReact:
		m, err := r.findMessage(cmd.Args[0])
		if err != nil {
			return err
		}
		reaction := ""
		if len(cmd.Args) > 1 {
			reaction = cmd.Args[1]
		}
		return r.engine.React(m.ID, reaction)
	case KindRead:
		ref := ""
		if len(cmd.Args) > 0 {
			ref = cmd.Args[0]
		}
		m, err := r.findMessage(ref)
		if err != nil {
			return err
		}
		return r.engine.MarkRead(m.ChatID, m.ID)
	case KindAttach:
		return r.attach(ctx, cmd.Args[0], cmd.Text)
	}
	return fmt.Errorf("%w: %s", ErrUnknownCommand, line)
}

func (r *REPL) open(ref string) error {
	r.mu.Lock()
	c, err := r.findChatLocked(ref)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if c.ID == r.active {
		r.mu.Unlock()
		return nil
	}
	r.active = c.ID
	r.draft = nil
	delete(r.printed, c.ID)
	cached := r.messages[c.ID]
	r.mu.Unlock()

	r.println(bold("-- " + ChatTitle(c, r.selfID) + " --"))
	r.engine.ActivateChat(c.ID)
	if len(cached) > 0 {
		r.ShowMessages(engine.MessagesUpdate{ChatID: c.ID, Messages: cached})
	}
	return nil
}

func (r *REPL) close() error {
	r.mu.Lock()
	active := r.active
	r.active = ""
	r.draft = nil
	r.mu.Unlock()

	if active == "" {
		return ErrNoActiveChat
	}
	r.engine.DeactivateChat(active)
	return nil
}

func (r *REPL) compose(text string) error {
	r.mu.Lock()
	active := r.active
	if active != "" {
		r.draft = append(r.draft, text)
	}
	r.mu.Unlock()

	if active == "" {
		return ErrNoActiveChat
	}
	r.engine.Keystroke(active)
	return nil
}

func (r *REPL) send(text string) error {
	r.mu.Lock()
	active := r.active
	parts := append(r.draft, text)
	r.draft = nil
	r.mu.Unlock()

	if active == "" {
		return ErrNoActiveChat
	}
	return r.engine.SendMessage(active, strings.Join(parts, "\n"), nil, "")
}

func (r *REPL) attach(ctx context.Context, path, caption string) error {
	if r.uploader == nil {
		return ErrAttachmentsDisabled
	}

	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active == "" {
		return ErrNoActiveChat
	}

	a, err := r.uploader.Upload(ctx, path)
	if err != nil {
		return err
	}
	return r.engine.SendMessage(active, caption, []messages.Attachment{a}, "")
}

func (r *REPL) printChats() {
	r.mu.Lock()
	list := slices.Clone(r.chats)
	active := r.active
	online := func(id string) bool { return r.online[id] }
	lines := make([]string, 0, len(list))
	for _, c := range list {
		lines = append(lines, ChatLine(c, r.selfID, c.ID == active, online))
	}
	r.mu.Unlock()

	if len(lines) == 0 {
		r.println(faint("no chats yet"))
		return
	}
	r.println(strings.Join(lines, "\n"))
}

// findChatLocked matches an exact id, an id suffix or a title prefix.
func (r *REPL) findChatLocked(ref string) (chats.Chat, error) {
	for _, c := range r.chats {
		if c.ID == ref {
			return c, nil
		}
	}

	var found []chats.Chat
	lower := strings.ToLower(ref)
	for _, c := range r.chats {
		if strings.HasSuffix(c.ID, ref) ||
			strings.HasPrefix(strings.ToLower(ChatTitle(c, r.selfID)), lower) {
			found = append(found, c)
		}
	}

	switch len(found) {
	case 0:
		return chats.Chat{}, fmt.Errorf("%w: %s", ErrChatNotFound, ref)
	case 1:
		return found[0], nil
	}
	return chats.Chat{}, fmt.Errorf("%w: %s", ErrAmbiguousChat, ref)
}

// findMessage looks in the open chat. An empty ref means the newest message.
func (r *REPL) findMessage(ref string) (messages.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == "" {
		return messages.Message{}, ErrNoActiveChat
	}
	list := r.messages[r.active]
	if ref == "" {
		if len(list) == 0 {
			return messages.Message{}, ErrMessageNotFound
		}
		return list[len(list)-1], nil
	}
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].ID == ref || strings.HasSuffix(list[i].ID, ref) {
			return list[i], nil
		}
	}
	return messages.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, ref)
}

func (r *REPL) namesLocked(chatID string) map[string]string {
	names := make(map[string]string)
	for _, c := range r.chats {
		if c.ID != chatID {
			continue
		}
		for _, m := range c.Members {
			if m.Name != "" {
				names[m.UserID] = m.Name
			}
		}
	}
	return names
}

func (r *REPL) println(s string) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintln(r.out, s)
}

func (r *REPL) print(s string) {
	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprint(r.out, s)
}
