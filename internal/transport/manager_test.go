package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgellert/hodatay-chat/internal/eventloop"
	"github.com/kgellert/hodatay-chat/internal/lib/clocktest"
	"github.com/kgellert/hodatay-chat/internal/lib/logger/handlers/slogdiscard"
	"github.com/kgellert/hodatay-chat/internal/protocol"
)

type dialCall struct {
	ctx     context.Context
	session string
	ev      Events
}

type fakeDialer struct {
	calls []dialCall
}

func (d *fakeDialer) Dial(ctx context.Context, session string, ev Events) {
	d.calls = append(d.calls, dialCall{ctx: ctx, session: session, ev: ev})
}

func (d *fakeDialer) last() dialCall {
	return d.calls[len(d.calls)-1]
}

type fakeConn struct {
	sent   [][]byte
	closed bool
}

func (c *fakeConn) Send(b []byte) error {
	if c.closed {
		return ErrNotConnected
	}
	c.sent = append(c.sent, b)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type recordingHandler struct {
	frames   [][]byte
	statuses []Status
}

func (h *recordingHandler) HandleFrame(b []byte)   { h.frames = append(h.frames, b) }
func (h *recordingHandler) HandleStatus(st Status) { h.statuses = append(h.statuses, st) }

func (h *recordingHandler) states() []State {
	out := make([]State, 0, len(h.statuses))
	for _, s := range h.statuses {
		out = append(out, s.State)
	}
	return out
}

type fixture struct {
	m      *Manager
	clock  *clocktest.Fake
	dialer *fakeDialer
	h      *recordingHandler
}

func newFixture() *fixture {
	f := &fixture{
		clock:  clocktest.New(time.Unix(0, 0)),
		dialer: &fakeDialer{},
		h:      &recordingHandler{},
	}
	f.m = NewManager(eventloop.Inline{}, f.clock, f.dialer, Policy{BackoffBase: time.Second, MaxAttempts: 5}, f.h, slogdiscard.NewDiscardLogger())
	return f
}

var errNetwork = errors.New("connection refused")

func TestManager_NoSessionStaysIdle(t *testing.T) {
	f := newFixture()

	f.m.Connect("")

	assert.Empty(t, f.dialer.calls)
	assert.Equal(t, StateIdle, f.m.Status().State)
	assert.Equal(t, 0, f.clock.Pending())
}

func TestManager_ConnectAndReceive(t *testing.T) {
	f := newFixture()

	f.m.Connect("token")
	require.Len(t, f.dialer.calls, 1)
	assert.Equal(t, "token", f.dialer.last().session)
	assert.Equal(t, StateConnecting, f.m.Status().State)

	conn := &fakeConn{}
	f.dialer.last().ev.Opened(conn)
	assert.True(t, f.m.Status().Connected())

	f.dialer.last().ev.Received([]byte("frame"))
	assert.Equal(t, [][]byte{[]byte("frame")}, f.h.frames)

	require.NoError(t, f.m.Send([]byte("out")))
	assert.Equal(t, [][]byte{[]byte("out")}, conn.sent)
}

func TestManager_SendWhileDisconnected(t *testing.T) {
	f := newFixture()
	assert.ErrorIs(t, f.m.Send([]byte("x")), ErrNotConnected)
}

func TestManager_ConnectTwiceKeepsOneAttempt(t *testing.T) {
	f := newFixture()

	f.m.Connect("token")
	f.m.Connect("token")
	assert.Len(t, f.dialer.calls, 1)

	f.dialer.last().ev.Opened(&fakeConn{})
	f.m.Connect("token")
	assert.Len(t, f.dialer.calls, 1)
}

func TestManager_TransientDropReconnectsAndResets(t *testing.T) {
	f := newFixture()
	f.m.Connect("token")
	f.dialer.last().ev.Opened(&fakeConn{})

	f.dialer.last().ev.Closed(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})
	assert.Equal(t, StateDisconnected, f.m.Status().State)
	assert.Equal(t, 1, f.m.Status().Attempt)
	assert.Len(t, f.dialer.calls, 1, "retry waits for backoff")

	f.clock.Advance(999 * time.Millisecond)
	assert.Len(t, f.dialer.calls, 1)

	f.clock.Advance(time.Millisecond)
	require.Len(t, f.dialer.calls, 2)
	assert.Equal(t, StateReconnecting, f.m.Status().State)

	f.dialer.last().ev.Opened(&fakeConn{})
	assert.Equal(t, Status{State: StateConnected}, f.m.Status())

	assert.Equal(t, []State{
		StateIdle, StateConnecting, StateConnected, StateDisconnected, StateReconnecting, StateConnected,
	}, f.h.states())
}

func TestManager_SixFailuresGiveFiveRetries(t *testing.T) {
	f := newFixture()
	f.m.Connect("token")

	for range 6 {
		f.dialer.last().ev.Failed(errNetwork)
		f.clock.Advance(time.Minute)
	}

	assert.Len(t, f.dialer.calls, 6, "initial dial plus five reconnects")
	assert.Equal(t, StateFailed, f.m.Status().State)
	assert.Equal(t, ReasonExhausted, f.m.Status().Reason)
	assert.Equal(t, 0, f.clock.Pending())

	f.clock.Advance(time.Hour)
	assert.Len(t, f.dialer.calls, 6)
}

func TestManager_BackoffIsLinear(t *testing.T) {
	f := newFixture()
	f.m.Connect("token")

	var delays []time.Duration
	for range 5 {
		f.dialer.last().ev.Failed(errNetwork)
		delays = append(delays, f.m.Status().RetryIn)
		f.clock.Advance(f.m.Status().RetryIn)
	}

	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second, 5 * time.Second,
	}, delays)
}

func TestManager_AuthFailureIsFatal(t *testing.T) {
	f := newFixture()
	f.m.Connect("expired")
	f.dialer.last().ev.Failed(ErrAuthFailed)

	assert.Equal(t, StateFailed, f.m.Status().State)
	assert.Equal(t, ReasonAuth, f.m.Status().Reason)
	assert.Equal(t, 0, f.clock.Pending())

	f.m.Connect("expired")
	assert.Len(t, f.dialer.calls, 1, "same rejected credential is not retried")

	f.m.Connect("fresh")
	assert.Len(t, f.dialer.calls, 2)
	assert.Equal(t, "fresh", f.dialer.last().session)
}

func TestManager_ServerDisconnectIsFatal(t *testing.T) {
	f := newFixture()
	f.m.Connect("token")
	f.dialer.last().ev.Opened(&fakeConn{})

	f.dialer.last().ev.Closed(&websocket.CloseError{Code: protocol.CloseSessionReplaced, Text: "session replaced"})

	assert.Equal(t, StateFailed, f.m.Status().State)
	assert.Equal(t, ReasonServer, f.m.Status().Reason)
	assert.Equal(t, 0, f.clock.Pending())
}

func TestManager_NewSessionTearsDownOldConnection(t *testing.T) {
	f := newFixture()
	f.m.Connect("first")
	first := f.dialer.last()
	conn := &fakeConn{}
	first.ev.Opened(conn)

	f.m.Connect("second")

	assert.True(t, conn.closed)
	require.Len(t, f.dialer.calls, 2)
	assert.Equal(t, "second", f.dialer.last().session)
	assert.Error(t, first.ctx.Err(), "old attempt context is cancelled")

	first.ev.Received([]byte("stale"))
	first.ev.Closed(errNetwork)
	assert.Empty(t, f.h.frames)
	assert.Equal(t, StateConnecting, f.m.Status().State)
}

func TestManager_StaleOpenIsClosed(t *testing.T) {
	f := newFixture()
	f.m.Connect("first")
	first := f.dialer.last()
	f.m.Connect("second")

	late := &fakeConn{}
	first.ev.Opened(late)

	assert.True(t, late.closed)
	assert.Equal(t, StateConnecting, f.m.Status().State)
}

func TestManager_DisconnectCancelsRetry(t *testing.T) {
	f := newFixture()
	f.m.Connect("token")
	f.dialer.last().ev.Failed(errNetwork)
	require.Equal(t, 1, f.clock.Pending())

	f.m.Disconnect()

	assert.Equal(t, StateIdle, f.m.Status().State)
	assert.Equal(t, 0, f.clock.Pending())
	f.clock.Advance(time.Minute)
	assert.Len(t, f.dialer.calls, 1)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ReasonNone, Classify(nil))
	assert.Equal(t, ReasonAuth, Classify(ErrNoSession))
	assert.Equal(t, ReasonAuth, Classify(&websocket.CloseError{Code: protocol.CloseUnauthorized}))
	assert.Equal(t, ReasonServer, Classify(&websocket.CloseError{Code: protocol.CloseSessionRevoked}))
	assert.Equal(t, ReasonTransient, Classify(&websocket.CloseError{Code: websocket.CloseGoingAway}))
	assert.Equal(t, ReasonTransient, Classify(errNetwork))
}
