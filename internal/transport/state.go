package transport

import "time"

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Reason classifies why a connection ended or could not be opened.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonTransient covers network blips and idle timeouts; retried.
	ReasonTransient
	// ReasonAuth: missing, bad or expired credential. Not retried.
	ReasonAuth
	// ReasonServer: the hub closed the session on purpose. Not retried.
	ReasonServer
	// ReasonExhausted: the reconnect cap was reached.
	ReasonExhausted
	// ReasonClient: the local side tore the connection down.
	ReasonClient
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTransient:
		return "transient"
	case ReasonAuth:
		return "auth"
	case ReasonServer:
		return "server"
	case ReasonExhausted:
		return "exhausted"
	case ReasonClient:
		return "client"
	}
	return "unknown"
}

// Fatal reports whether the reason forbids an automatic reconnect.
func (r Reason) Fatal() bool {
	return r == ReasonAuth || r == ReasonServer || r == ReasonExhausted
}

// Status is what the UI observes: the state plus retry bookkeeping.
type Status struct {
	State   State
	Attempt int
	Reason  Reason
	// RetryIn is the delay of the scheduled retry while Disconnected.
	RetryIn time.Duration
}

func (s Status) Connected() bool {
	return s.State == StateConnected
}

type Policy struct {
	BackoffBase time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{BackoffBase: time.Second, MaxAttempts: 5}
}

// Delay is the linear backoff for the given 1-based attempt number.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > p.MaxAttempts {
		attempt = p.MaxAttempts
	}
	return p.BackoffBase * time.Duration(attempt)
}

type Input int

const (
	// InputConnect: a credential is available and a connection is wanted.
	InputConnect Input = iota
	// InputOpened: the handshake succeeded.
	InputOpened
	// InputFailed: the dial or handshake failed.
	InputFailed
	// InputClosed: an open connection was closed.
	InputClosed
	// InputRetry: the backoff timer fired.
	InputRetry
	// InputStop: local teardown.
	InputStop
)

// Effect is the side effect the manager must perform after a transition.
type Effect struct {
	Dial bool
	// Retry, when non-zero, schedules InputRetry after that delay.
	Retry time.Duration
}

// Next is the pure transition function of the connection state machine.
// hasSession only matters for InputConnect; reason only for InputFailed and
// InputClosed. Inputs that make no sense in the current state leave it
// unchanged.
func Next(st Status, in Input, reason Reason, hasSession bool, p Policy) (Status, Effect) {
	switch in {
	case InputConnect:
		if !hasSession {
			return st, Effect{}
		}
		switch st.State {
		case StateIdle, StateFailed:
			return Status{State: StateConnecting}, Effect{Dial: true}
		}
		return st, Effect{}

	case InputOpened:
		switch st.State {
		case StateConnecting, StateReconnecting:
			return Status{State: StateConnected}, Effect{}
		}
		return st, Effect{}

	case InputFailed, InputClosed:
		switch st.State {
		case StateConnecting, StateReconnecting, StateConnected:
		default:
			return st, Effect{}
		}
		if in == InputClosed && st.State != StateConnected {
			return st, Effect{}
		}
		if in == InputFailed && st.State == StateConnected {
			return st, Effect{}
		}

		if reason.Fatal() {
			return Status{State: StateFailed, Attempt: st.Attempt, Reason: reason}, Effect{}
		}
		if reason == ReasonClient {
			return Status{State: StateIdle, Reason: ReasonClient}, Effect{}
		}

		attempt := st.Attempt
		if st.State == StateConnected {
			attempt = 0
		}
		if attempt >= p.MaxAttempts {
			return Status{State: StateFailed, Attempt: attempt, Reason: ReasonExhausted}, Effect{}
		}

		attempt++
		delay := p.Delay(attempt)
		return Status{
			State:   StateDisconnected,
			Attempt: attempt,
			Reason:  ReasonTransient,
			RetryIn: delay,
		}, Effect{Retry: delay}

	case InputRetry:
		if st.State != StateDisconnected {
			return st, Effect{}
		}
		return Status{State: StateReconnecting, Attempt: st.Attempt, Reason: st.Reason}, Effect{Dial: true}

	case InputStop:
		return Status{State: StateIdle, Reason: ReasonClient}, Effect{}
	}

	return st, Effect{}
}
