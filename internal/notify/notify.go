// Package notify delivers best-effort alerts for messages that arrive in a
// chat the user is not looking at.
package notify

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/gen2brain/beeep"

	"github.com/kgellert/hodatay-chat/internal/lib/logger/sl"
)

const previewLen = 100

type Notification struct {
	ChatID    string
	ChatName  string
	MessageID string
	Sender    string
	Text      string
}

// Title is the line shown in bold by every sink.
func (n Notification) Title() string {
	if n.ChatName == "" {
		return "hodatay"
	}
	return "hodatay - " + n.ChatName
}

// Body is "<sender>: <text>" with the text cut to a preview.
func (n Notification) Body() string {
	text := n.Text
	if text == "" {
		text = "[attachment]"
	}
	if utf8.RuneCountInString(text) > previewLen {
		r := []rune(text)
		text = string(r[:previewLen-3]) + "..."
	}
	if n.Sender == "" {
		return text
	}
	return n.Sender + ": " + text
}

type Notifier interface {
	Notify(n Notification) error
}

// Desktop shows an OS notification.
type Desktop struct {
	Icon string
}

func (d Desktop) Notify(n Notification) error {
	if err := beeep.Notify(n.Title(), n.Body(), d.Icon); err != nil {
		return fmt.Errorf("notify.Desktop.Notify: %w", err)
	}
	return nil
}

// Bell rings the terminal bell and prints a highlighted line.
type Bell struct {
	Out io.Writer
}

func (b Bell) Notify(n Notification) error {
	title := color.New(color.FgYellow, color.Bold).Sprint(n.Title())
	if _, err := fmt.Fprintf(b.Out, "\a%s %s\n", title, n.Body()); err != nil {
		return fmt.Errorf("notify.Bell.Notify: %w", err)
	}
	return nil
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops everything.
type Nop struct{}

func (Nop) Notify(Notification) error { return nil }

// Async delivers notifications on its own goroutine so a slow sink never
// blocks the caller. When the queue is full the notification is dropped.
type Async struct {
	next  Notifier
	queue chan Notification
	log   *slog.Logger
	done  chan struct{}
}

func NewAsync(next Notifier, size int, log *slog.Logger) *Async {
	if size <= 0 {
		size = 16
	}
	a := &Async{
		next:  next,
		queue: make(chan Notification, size),
		log:   log.With(slog.String("component", "notify")),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Notify(n Notification) error {
	select {
	case a.queue <- n:
	default:
		a.log.Debug("notification dropped", slog.String("chat_id", n.ChatID))
	}
	return nil
}

// Close stops the worker after the queued notifications are delivered.
func (a *Async) Close() {
	close(a.queue)
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for n := range a.queue {
		if err := a.next.Notify(n); err != nil {
			a.log.Warn("notification failed", sl.Err(err), slog.String("chat_id", n.ChatID))
		}
	}
}
