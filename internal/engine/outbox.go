package engine

import (
	"github.com/kgellert/hodatay-chat/internal/protocol"
)

const DefaultOutboxSize = 64

// outbox holds user actions issued while the transport is reconnecting. It is
// flushed in order on the next Connected and cleared when the session ends.
type outbox struct {
	size  int
	items []protocol.Command
}

func newOutbox(size int) *outbox {
	return &outbox{size: size}
}

// queueable reports whether cmd survives a reconnect. Typing and room
// membership are state the engine re-establishes itself.
func queueable(cmd protocol.Command) bool {
	switch cmd.(type) {
	case protocol.SendMessage, protocol.ReadMessage, protocol.ReactToMessage:
		return true
	}
	return false
}

func (o *outbox) push(cmd protocol.Command) error {
	if len(o.items) >= o.size {
		return ErrOutboxFull
	}
	o.items = append(o.items, cmd)
	return nil
}

func (o *outbox) drain() []protocol.Command {
	out := o.items
	o.items = nil
	return out
}

// requeue puts unsent commands back at the front.
func (o *outbox) requeue(cmds []protocol.Command) {
	o.items = append(cmds, o.items...)
}

func (o *outbox) clear() int {
	n := len(o.items)
	o.items = nil
	return n
}

func (o *outbox) len() int {
	return len(o.items)
}
