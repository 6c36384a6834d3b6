package chats

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgellert/hodatay-chat/internal/messages"
)

func at(sec int64) time.Time { return time.Unix(sec, 0) }

func ids(list []Chat) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.ID)
	}
	return out
}

func assertSorted(t *testing.T, d *Directory) {
	t.Helper()
	list := d.List()
	for i := 1; i < len(list); i++ {
		require.False(t, list[i].Recency().After(list[i-1].Recency()),
			"chat %s (%v) sorted after older chat %s (%v)",
			list[i].ID, list[i].Recency(), list[i-1].ID, list[i-1].Recency())
	}
}

func TestDirectory_ReplaceSortsAndDedupes(t *testing.T) {
	d := NewDirectory()
	d.Replace([]Chat{
		{ID: "a", LastMessageAt: at(10)},
		{ID: "b", LastMessageAt: at(30)},
		{ID: "c", LastMessageAt: at(20)},
		{ID: "a", LastMessageAt: at(40), Name: "dup"},
		{ID: ""},
	})

	assert.Equal(t, []string{"a", "b", "c"}, ids(d.List()))
	c, ok := d.Get("a")
	require.True(t, ok)
	assert.Equal(t, "dup", c.Name)
}

func TestDirectory_TouchReordersByLastMessageAt(t *testing.T) {
	d := NewDirectory()
	d.Replace([]Chat{
		{ID: "c1", LastMessageAt: at(20)},
		{ID: "c2", LastMessageAt: at(10)},
	})

	d.Touch("c2", messages.Message{ID: "m", Text: "hey", CreatedAt: at(30)})

	assert.Equal(t, []string{"c2", "c1"}, ids(d.List()))
	c, _ := d.Get("c2")
	require.NotNil(t, c.LastMessage)
	assert.Equal(t, "hey", c.LastMessage.Text)
}

func TestDirectory_TouchOlderMessageKeepsLastMessage(t *testing.T) {
	d := NewDirectory()
	d.Replace([]Chat{{ID: "c1", LastMessageAt: at(50), LastMessage: &messages.Message{ID: "new"}}})

	d.Touch("c1", messages.Message{ID: "old", CreatedAt: at(10)})

	c, _ := d.Get("c1")
	assert.Equal(t, "new", c.LastMessage.ID)
	assert.Equal(t, at(50), c.LastMessageAt)
}

func TestDirectory_TouchUnknownChatCreatesPlaceholder(t *testing.T) {
	d := NewDirectory()
	d.Replace([]Chat{{ID: "c1", LastMessageAt: at(10)}})

	created := d.Touch("c9", messages.Message{ID: "m", CreatedAt: at(20)})
	assert.True(t, created)

	c, ok := d.Get("c9")
	require.True(t, ok)
	assert.True(t, c.Placeholder)
	assert.Equal(t, []string{"c9", "c1"}, ids(d.List()))

	d.Upsert(Chat{ID: "c9", Name: "team", Type: TypeGroup, CreatedAt: at(1)})
	c, _ = d.Get("c9")
	assert.False(t, c.Placeholder)
	assert.Equal(t, "team", c.Name)
	assert.Equal(t, at(20), c.LastMessageAt)
	assert.Equal(t, 2, d.Len())
}

func TestDirectory_UpsertNewChatGoesFirst(t *testing.T) {
	d := NewDirectory()
	d.Replace([]Chat{
		{ID: "c1", LastMessageAt: at(20)},
		{ID: "c2", LastMessageAt: at(10)},
	})

	d.Upsert(Chat{ID: "c3", CreatedAt: at(25)})

	assert.Equal(t, []string{"c3", "c1", "c2"}, ids(d.List()))
}

func TestDirectory_Remove(t *testing.T) {
	d := NewDirectory()
	d.Replace([]Chat{{ID: "c1"}, {ID: "c2"}})

	assert.True(t, d.Remove("c1"))
	assert.False(t, d.Remove("c1"))
	assert.Equal(t, []string{"c2"}, ids(d.List()))
}

func TestDirectory_AlwaysSortedUnderRandomMessages(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	d := NewDirectory()
	d.Replace([]Chat{
		{ID: "c0", LastMessageAt: at(5)},
		{ID: "c1", LastMessageAt: at(1)},
		{ID: "c2", LastMessageAt: at(9)},
	})

	for i := range 500 {
		chatID := []string{"c0", "c1", "c2", "c3", "c4"}[r.Intn(5)]
		d.Touch(chatID, messages.Message{ID: string(rune('a' + i%26)), CreatedAt: at(int64(r.Intn(1000)))})
		assertSorted(t, d)
	}

	seen := map[string]bool{}
	for _, c := range d.List() {
		assert.False(t, seen[c.ID], "duplicate chat %s", c.ID)
		seen[c.ID] = true
	}
}
