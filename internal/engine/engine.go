// Package engine is the client-side chat engine. It owns the chat directory,
// the message store, presence, typing and unread state, and keeps them in
// sync with the hub over one transport connection.
//
// Every mutation happens on a single event loop. Public methods post work to
// that loop; readers get copies through the On* feeds or the snapshot
// accessors.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/eventloop"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/notify"
	"github.com/kgellert/hodatay-chat/internal/presence"
	"github.com/kgellert/hodatay-chat/internal/transport"
	"github.com/kgellert/hodatay-chat/internal/typing"
	"github.com/kgellert/hodatay-chat/internal/unread"
)

// DirectChats creates direct chats over the hub's request/response API.
type DirectChats interface {
	Create(ctx context.Context, recipientID string) (chats.Chat, error)
}

type Options struct {
	// Loop defaults to a fresh eventloop.Loop that Run drives.
	Loop  eventloop.Executor
	Clock clockwork.Clock

	Dialer transport.Dialer
	Policy transport.Policy

	// SelfID is the signed-in user. Their own messages never count as unread.
	SelfID string

	TypingIdle   time.Duration
	TypingExpiry time.Duration

	// OutboxSize bounds the reconnect queue. Zero means DefaultOutboxSize, a
	// negative value disables queueing.
	OutboxSize int

	Notifier    notify.Notifier
	DirectChats DirectChats
	Log         *slog.Logger
}

type Engine struct {
	loop   eventloop.Executor
	clock  clockwork.Clock
	log    *slog.Logger
	selfID string

	transport *transport.Manager
	directory *chats.Directory
	messages  *messages.Store
	presence  *presence.Tracker
	unread    *unread.Counter
	composer  *typing.Composer
	typing    *typing.Indicators
	outbox    *outbox

	notifier notify.Notifier
	direct   DirectChats

	session string
	active  string

	chatsFeed      Feed[[]chats.Chat]
	messagesFeed   Feed[MessagesUpdate]
	typingFeed     Feed[TypingUpdate]
	unreadFeed     Feed[UnreadUpdate]
	presenceFeed   Feed[[]string]
	connectionFeed Feed[transport.Status]
	errorFeed      Feed[error]
}

func New(opts Options) (*Engine, error) {
	const op = "engine.New"

	if opts.Dialer == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNoDialer)
	}
	if opts.Loop == nil {
		opts.Loop = eventloop.New(0)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	switch {
	case opts.OutboxSize == 0:
		opts.OutboxSize = DefaultOutboxSize
	case opts.OutboxSize < 0:
		opts.OutboxSize = 0
	}

	e := &Engine{
		loop:      opts.Loop,
		clock:     opts.Clock,
		log:       opts.Log.With(slog.String("component", "engine")),
		selfID:    opts.SelfID,
		directory: chats.NewDirectory(),
		messages:  messages.NewStore(),
		presence:  presence.NewTracker(),
		unread:    unread.NewCounter(),
		outbox:    newOutbox(opts.OutboxSize),
		notifier:  opts.Notifier,
		direct:    opts.DirectChats,
	}

	e.composer = typing.NewComposer(e.clock, e.loop, opts.TypingIdle, signaler{e})
	e.typing = typing.NewIndicators(e.clock, e.loop, opts.TypingExpiry, e.publishTyping)
	e.transport = transport.NewManager(e.loop, e.clock, opts.Dialer, opts.Policy, e, opts.Log)

	return e, nil
}

// Run drives the engine's own loop until ctx is done. With an injected
// executor it only waits for ctx.
func (e *Engine) Run(ctx context.Context) {
	if l, ok := e.loop.(*eventloop.Loop); ok {
		l.Run(ctx)
		return
	}
	<-ctx.Done()
}

// Connect opens the hub connection for session. A different session than the
// previous one starts from empty stores.
func (e *Engine) Connect(session string) {
	e.loop.Post(func() {
		if session != "" && e.session != "" && session != e.session {
			e.log.Info("session changed, clearing state")
			e.resetState()
		}
		if session != "" {
			e.session = session
		}
	})
	e.transport.Connect(session)
}

// Disconnect closes the connection and keeps the stores for display.
func (e *Engine) Disconnect() {
	e.transport.Disconnect()
}

// Close tears the connection down and stops every timer. The engine must not
// be used afterwards.
func (e *Engine) Close() {
	e.transport.Disconnect()
	e.loop.Do(func() {
		e.composer.Cancel()
		e.typing.Reset()
		e.outbox.clear()
	})
}

func (e *Engine) OnChats(fn func([]chats.Chat)) func()          { return e.chatsFeed.Subscribe(fn) }
func (e *Engine) OnMessages(fn func(MessagesUpdate)) func()     { return e.messagesFeed.Subscribe(fn) }
func (e *Engine) OnTyping(fn func(TypingUpdate)) func()         { return e.typingFeed.Subscribe(fn) }
func (e *Engine) OnUnread(fn func(UnreadUpdate)) func()         { return e.unreadFeed.Subscribe(fn) }
func (e *Engine) OnPresence(fn func([]string)) func()           { return e.presenceFeed.Subscribe(fn) }
func (e *Engine) OnConnection(fn func(transport.Status)) func() { return e.connectionFeed.Subscribe(fn) }
func (e *Engine) OnError(fn func(error)) func()                 { return e.errorFeed.Subscribe(fn) }

// HandleStatus implements transport.Handler.
func (e *Engine) HandleStatus(st transport.Status) {
	switch st.State {
	case transport.StateConnected:
		if e.active != "" {
			e.send(joinChat(e.active))
		}
		e.flushOutbox()

	case transport.StateIdle, transport.StateFailed:
		if n := e.outbox.clear(); n > 0 {
			e.log.Warn("dropped queued actions", slog.Int("count", n), slog.String("state", st.State.String()))
		}
		e.dropLiveState()

	default:
		e.dropLiveState()
	}

	e.connectionFeed.publish(st)
}

// dropLiveState forgets what only holds while connected: who is typing, who
// is online and our own typing signal.
func (e *Engine) dropLiveState() {
	e.composer.Cancel()

	if e.typing.Len() > 0 {
		chatIDs := e.typing.Chats()
		e.typing.Reset()
		for _, id := range chatIDs {
			e.publishTyping(id)
		}
	}
	if len(e.presence.List()) > 0 {
		e.presence.Reset()
		e.publishPresence()
	}
}

func (e *Engine) resetState() {
	e.active = ""
	e.composer.Cancel()
	e.typing.Reset()
	e.outbox.clear()
	e.directory.Replace(nil)
	e.messages.Reset()
	e.presence.Reset()
	e.unread.Seed(nil, "")

	e.publishChats()
	e.publishUnread()
	e.publishPresence()
}

func (e *Engine) flushOutbox() {
	pending := e.outbox.drain()
	for i, cmd := range pending {
		if err := e.transmit(cmd); err != nil {
			e.log.Warn("outbox flush interrupted", slog.Int("remaining", len(pending)-i))
			e.outbox.requeue(pending[i:])
			return
		}
	}
	if len(pending) > 0 {
		e.log.Info("outbox flushed", slog.Int("count", len(pending)))
	}
}
