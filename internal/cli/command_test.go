package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{"text", "hello there", Command{Kind: KindText, Text: "hello there"}},
		{"escaped slash", "//not a command", Command{Kind: KindText, Text: "/not a command"}},
		{"draft", `first line\`, Command{Kind: KindDraft, Text: "first line"}},
		{"chats", "/chats", Command{Kind: KindChats, Args: []string{}}},
		{"open joins words", "/open team chat", Command{Kind: KindOpen, Args: []string{"team chat"}}},
		{"group", "/group devs u1 u2", Command{Kind: KindGroup, Args: []string{"devs", "u1", "u2"}}},
		{"react clear", "/react abc", Command{Kind: KindReact, Args: []string{"abc"}}},
		{"read newest", "/read", Command{Kind: KindRead, Args: []string{}}},
		{"attach caption", "/attach ./a.png look at this", Command{Kind: KindAttach, Args: []string{"./a.png"}, Text: "look at this"}},
		{"quit", "/quit\r\n", Command{Kind: KindQuit, Args: []string{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("/nope")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	for _, line := range []string{"/open", "/dm", "/group devs", "/react", "/attach"} {
		_, err := Parse(line)
		assert.ErrorIs(t, err, ErrUsage, line)
	}
}
