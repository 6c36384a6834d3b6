package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kgellert/hodatay-chat/internal/eventloop"
	"github.com/kgellert/hodatay-chat/internal/lib/logger/sl"
)

// Conn is one open duplex connection.
type Conn interface {
	Send(b []byte) error
	Close() error
}

// Events receives the outcome of a dial and the traffic of the resulting
// connection. Implementations may be called from any goroutine.
type Events interface {
	Opened(c Conn)
	Failed(err error)
	Received(b []byte)
	Closed(err error)
}

// Dialer opens connections asynchronously and reports through Events.
type Dialer interface {
	Dial(ctx context.Context, session string, ev Events)
}

// Handler is the manager's consumer. Both methods run on the loop.
type Handler interface {
	HandleFrame(b []byte)
	HandleStatus(st Status)
}

// Manager keeps at most one live connection for the current session and
// reconnects after transient failures. Every method posts onto the loop; all
// state lives on the loop goroutine.
type Manager struct {
	loop    eventloop.Executor
	clock   clockwork.Clock
	dialer  Dialer
	policy  Policy
	handler Handler
	log     *slog.Logger

	status  Status
	session string
	conn    Conn
	cancel  context.CancelFunc
	retry   clockwork.Timer
	// gen identifies the current attempt; callbacks from older attempts are
	// dropped.
	gen uint64
}

func NewManager(
	loop eventloop.Executor,
	c clockwork.Clock,
	dialer Dialer,
	policy Policy,
	handler Handler,
	log *slog.Logger,
) *Manager {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if policy.BackoffBase <= 0 {
		policy.BackoffBase = DefaultPolicy().BackoffBase
	}
	return &Manager{
		loop:    loop,
		clock:   c,
		dialer:  dialer,
		policy:  policy,
		handler: handler,
		log:     log.With(slog.String("component", "transport")),
	}
}

// Connect starts a connection for session. An empty session leaves the
// manager untouched. A session different from the current one tears the old
// connection down first.
func (m *Manager) Connect(session string) {
	m.loop.Post(func() {
		const op = "transport.Manager.Connect"

		if session == "" {
			m.log.Warn("connect without session ignored", slog.String("op", op))
			return
		}

		if session == m.session && m.status.State == StateFailed && m.status.Reason == ReasonAuth {
			m.log.Warn("credential was rejected, waiting for a new one", slog.String("op", op))
			return
		}

		if session != m.session {
			if m.session != "" {
				m.log.Info("session changed, tearing down", slog.String("op", op))
			}
			m.teardown()
			m.session = session
			m.apply(Next(m.status, InputStop, ReasonClient, true, m.policy))
		}

		m.apply(Next(m.status, InputConnect, ReasonNone, true, m.policy))
	})
}

// Disconnect tears the connection down and forgets the session.
func (m *Manager) Disconnect() {
	m.loop.Post(func() {
		m.teardown()
		m.session = ""
		m.apply(Next(m.status, InputStop, ReasonClient, false, m.policy))
	})
}

// Send writes one frame. It must be called on the loop.
func (m *Manager) Send(b []byte) error {
	if m.conn == nil || !m.status.Connected() {
		return ErrNotConnected
	}
	if err := m.conn.Send(b); err != nil {
		return fmt.Errorf("transport.Manager.Send: %w", err)
	}
	return nil
}

// Status must be read on the loop.
func (m *Manager) Status() Status {
	return m.status
}

func (m *Manager) apply(next Status, eff Effect) {
	changed := next != m.status
	prev := m.status
	m.status = next

	if changed {
		m.log.Debug("state changed",
			slog.String("from", prev.State.String()),
			slog.String("to", next.State.String()),
			slog.Int("attempt", next.Attempt),
			slog.String("reason", next.Reason.String()),
		)
		m.handler.HandleStatus(next)
	}

	if eff.Retry > 0 {
		m.scheduleRetry(eff.Retry)
	}
	if eff.Dial {
		m.dial()
	}
}

func (m *Manager) dial() {
	m.gen++
	gen := m.gen

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.log.Info("dialing", slog.Int("attempt", m.status.Attempt))
	m.dialer.Dial(ctx, m.session, &attempt{m: m, gen: gen})
}

func (m *Manager) scheduleRetry(d time.Duration) {
	if m.retry != nil {
		m.retry.Stop()
	}

	gen := m.gen
	m.log.Info("reconnect scheduled",
		slog.Int("attempt", m.status.Attempt),
		slog.Duration("delay", d),
	)

	m.retry = m.clock.AfterFunc(d, func() {
		m.loop.Post(func() {
			if gen != m.gen {
				return
			}
			m.retry = nil
			m.apply(Next(m.status, InputRetry, ReasonNone, m.session != "", m.policy))
		})
	})
}

// teardown invalidates the in-flight attempt, the retry timer and the open
// connection.
func (m *Manager) teardown() {
	m.gen++

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.log.Debug("close connection", sl.Err(err))
		}
		m.conn = nil
	}
}

// attempt routes the callbacks of one dial back onto the loop.
type attempt struct {
	m   *Manager
	gen uint64
}

func (a *attempt) Opened(c Conn) {
	a.m.loop.Post(func() {
		m := a.m
		if a.gen != m.gen {
			_ = c.Close()
			return
		}
		m.conn = c
		m.log.Info("connected")
		m.apply(Next(m.status, InputOpened, ReasonNone, true, m.policy))
	})
}

func (a *attempt) Failed(err error) {
	a.m.loop.Post(func() {
		m := a.m
		if a.gen != m.gen {
			return
		}
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}

		reason := Classify(err)
		m.log.Warn("connection attempt failed",
			sl.Err(err),
			slog.String("reason", reason.String()),
			slog.Int("attempt", m.status.Attempt),
		)
		m.apply(Next(m.status, InputFailed, reason, true, m.policy))
	})
}

func (a *attempt) Received(b []byte) {
	a.m.loop.Post(func() {
		if a.gen != a.m.gen {
			return
		}
		a.m.handler.HandleFrame(b)
	})
}

func (a *attempt) Closed(err error) {
	a.m.loop.Post(func() {
		m := a.m
		if a.gen != m.gen {
			return
		}
		m.conn = nil
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}

		reason := Classify(err)
		if reason == ReasonNone {
			reason = ReasonTransient
		}
		m.log.Warn("connection closed",
			slog.String("reason", reason.String()),
			slog.Any("cause", err),
		)
		m.apply(Next(m.status, InputClosed, reason, true, m.policy))
	})
}
