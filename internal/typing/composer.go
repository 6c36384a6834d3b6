package typing

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kgellert/hodatay-chat/internal/eventloop"
)

const DefaultIdle = 2 * time.Second

// Signaler receives the outbound typing notifications.
type Signaler interface {
	TypingStart(chatID string)
	TypingStop(chatID string)
}

// Composer turns keystrokes in the local composer into typing-start and
// typing-stop signals. At most one chat is "typing" at a time.
type Composer struct {
	clock  clockwork.Clock
	loop   eventloop.Executor
	idle   time.Duration
	signal Signaler

	chatID string
	timer  clockwork.Timer
	// gen invalidates timer callbacks that were already queued on the loop
	// when the timer was stopped.
	gen uint64
}

func NewComposer(c clockwork.Clock, loop eventloop.Executor, idle time.Duration, s Signaler) *Composer {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Composer{clock: c, loop: loop, idle: idle, signal: s}
}

// Keystroke emits typing-start for chatID and re-arms the idle timer. A
// keystroke in another chat first stops the previous one.
func (c *Composer) Keystroke(chatID string) {
	if chatID == "" {
		return
	}
	if c.chatID != "" && c.chatID != chatID {
		c.Stop()
	}

	c.chatID = chatID
	c.signal.TypingStart(chatID)
	c.arm()
}

// Stop emits typing-stop for the current chat, if any, and cancels the timer.
// Called when the user sends, switches chats or closes the composer.
func (c *Composer) Stop() {
	if c.chatID == "" {
		return
	}

	chatID := c.chatID
	c.disarm()
	c.chatID = ""
	c.signal.TypingStop(chatID)
}

// Cancel drops local typing state without emitting anything. Used when the
// connection is gone and there is nobody to tell.
func (c *Composer) Cancel() {
	c.disarm()
	c.chatID = ""
}

// Active returns the chat currently marked as typing, or "".
func (c *Composer) Active() string {
	return c.chatID
}

func (c *Composer) arm() {
	c.disarm()

	gen := c.gen
	c.timer = c.clock.AfterFunc(c.idle, func() {
		c.loop.Post(func() {
			if gen != c.gen {
				return
			}
			c.Stop()
		})
	})
}

func (c *Composer) disarm() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
