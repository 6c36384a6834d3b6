// Package cli is the line-oriented terminal front end of the chat engine.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

type Kind int

const (
	KindText Kind = iota
	// KindDraft is a line ending in a backslash: it continues the message
	// and counts as typing.
	KindDraft
	KindChats
	KindOpen
	KindClose
	KindDirect
	KindGroup
	KindReact
	KindRead
	KindAttach
	KindHelp
	KindQuit
)

type Command struct {
	Kind Kind
	Args []string
	Text string
}

var usage = map[Kind]string{
	KindOpen:   "/open <chat id or name>",
	KindDirect: "/dm <user id>",
	KindGroup:  "/group <name> <user id>...",
	KindReact:  "/react <message id> [symbol]",
	KindAttach: "/attach <path> [caption]",
}

var kinds = map[string]Kind{
	"/chats":  KindChats,
	"/open":   KindOpen,
	"/close":  KindClose,
	"/dm":     KindDirect,
	"/group":  KindGroup,
	"/react":  KindReact,
	"/read":   KindRead,
	"/attach": KindAttach,
	"/help":   KindHelp,
	"/quit":   KindQuit,
}

// Parse turns one input line into a command. Lines not starting with "/" are
// message text; "//" escapes a leading slash.
func Parse(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")

	if !strings.HasPrefix(line, "/") || strings.HasPrefix(line, "//") {
		text := strings.TrimPrefix(line, "/")
		if draft, ok := strings.CutSuffix(text, `\`); ok {
			return Command{Kind: KindDraft, Text: draft}, nil
		}
		return Command{Kind: KindText, Text: text}, nil
	}

	fields := strings.Fields(line)
	kind, ok := kinds[fields[0]]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, fields[0])
	}
	cmd := Command{Kind: kind, Args: fields[1:]}

	var need int
	switch kind {
	case KindOpen, KindDirect, KindReact:
		need = 1
	case KindGroup:
		need = 2
	case KindAttach:
		need = 1
		if len(cmd.Args) > 1 {
			cmd.Text = strings.Join(cmd.Args[1:], " ")
			cmd.Args = cmd.Args[:1]
		}
	}
	if len(cmd.Args) < need {
		return Command{}, fmt.Errorf("%w: %s", ErrUsage, usage[kind])
	}

	if kind == KindOpen {
		cmd.Args = []string{strings.Join(cmd.Args, " ")}
	}
	return cmd, nil
}

func Help() string {
	return strings.Join([]string{
		"/chats                      list chats",
		"/open <chat id or name>     open a chat",
		"/close                      close the open chat",
		"/dm <user id>               start a direct chat",
		"/group <name> <user id>...  create a group",
		"/react <message id> [sym]   react, or clear without a symbol",
		"/read [message id]          mark a message read, the newest by default",
		"/attach <path> [caption]    send a file",
		"/quit                       exit",
		`text ending in \            keeps composing (shows typing)`,
	}, "\n")
}
