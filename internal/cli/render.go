package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/kgellert/hodatay-chat/internal/chats"
	"github.com/kgellert/hodatay-chat/internal/messages"
	"github.com/kgellert/hodatay-chat/internal/transport"
	"github.com/kgellert/hodatay-chat/internal/typing"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	badge  = color.New(color.FgWhite, color.BgRed, color.Bold).SprintFunc()
)

// StatusDot is the connection indicator shown in the prompt.
func StatusDot(st transport.Status) string {
	switch st.State {
	case transport.StateConnected:
		return green("●")
	case transport.StateConnecting, transport.StateReconnecting, transport.StateDisconnected:
		return yellow("●")
	case transport.StateFailed:
		return red("●")
	}
	return faint("○")
}

// StatusLine describes a status change for the log area.
func StatusLine(st transport.Status) string {
	switch st.State {
	case transport.StateDisconnected:
		return fmt.Sprintf("%s disconnected, retry %d in %s", StatusDot(st), st.Attempt, st.RetryIn)
	case transport.StateFailed:
		return fmt.Sprintf("%s connection failed (%s)", StatusDot(st), st.Reason)
	}
	return fmt.Sprintf("%s %s", StatusDot(st), st.State)
}

func UnreadBadge(n int) string {
	if n <= 0 {
		return ""
	}
	return badge(fmt.Sprintf(" %d ", n))
}

// ChatTitle is the group name, or the other member for direct chats.
func ChatTitle(c chats.Chat, selfID string) string {
	if c.Name != "" {
		return c.Name
	}
	for _, m := range c.Members {
		if m.UserID != selfID {
			if m.Name != "" {
				return m.Name
			}
			return m.UserID
		}
	}
	return c.ID
}

func ChatLine(c chats.Chat, selfID string, active bool, online func(string) bool) string {
	var b strings.Builder
	if active {
		b.WriteString("> ")
	} else {
		b.WriteString("  ")
	}

	b.WriteString(bold(ChatTitle(c, selfID)))
	if c.Type == chats.TypeDirect {
		for _, m := range c.Members {
			if m.UserID != selfID && online(m.UserID) {
				b.WriteString(" " + green("●"))
			}
		}
	}
	if n := c.UnreadCount; n > 0 {
		b.WriteString(" " + UnreadBadge(n))
	}
	b.WriteString(" " + faint(shortID(c.ID)))

	if lm := c.LastMessage; lm != nil {
		b.WriteString("\n    " + faint(preview(*lm)))
	}
	return b.String()
}

func MessageLine(m messages.Message, selfID string, names map[string]string) string {
	sender := names[m.SenderID]
	if sender == "" {
		sender = m.SenderID
	}
	if m.SenderID == selfID {
		sender = "you"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", faint(m.CreatedAt.Local().Format(time.Kitchen)), bold(sender), m.Text)
	for _, a := range m.Attachments {
		fmt.Fprintf(&b, " [%s]", a.Filename)
	}
	if len(m.Reactions) > 0 {
		b.WriteString(" ")
		for _, r := range sortedReactions(m.Reactions) {
			b.WriteString(r)
		}
	}
	if m.SenderID == selfID && len(m.ReadBy) > 0 {
		b.WriteString(" " + green("✓✓"))
	}
	b.WriteString(" " + faint(shortID(m.ID)))
	return b.String()
}

func TypingLine(entries []typing.Entry) string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.User.Name
		if name == "" {
			name = e.UserID
		}
		names = append(names, name)
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return faint(names[0] + " is typing...")
	}
	return faint(strings.Join(names, ", ") + " are typing...")
}

func preview(m messages.Message) string {
	if m.Text == "" && len(m.Attachments) > 0 {
		return "[attachment]"
	}
	r := []rune(m.Text)
	if len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return m.Text
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
