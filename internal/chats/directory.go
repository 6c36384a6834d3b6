package chats

import (
	"slices"

	"github.com/kgellert/hodatay-chat/internal/messages"
)

// Directory is the ordered list of the user's chats. After every mutation it
// is sorted by Recency descending; ties keep their previous relative order.
// It is owned by the engine's event loop and is not safe for concurrent use.
type Directory struct {
	chats []Chat
}

func NewDirectory() *Directory {
	return &Directory{}
}

// Replace swaps the whole directory. Later duplicates of a chat id win.
func (d *Directory) Replace(list []Chat) {
	d.chats = d.chats[:0]
	for _, c := range list {
		if c.ID == "" {
			continue
		}
		if i := d.indexOf(c.ID); i >= 0 {
			d.chats[i] = c.Clone()
			continue
		}
		d.chats = append(d.chats, c.Clone())
	}
	d.sort()
}

// Upsert puts c at the front of the directory and re-sorts. An existing entry
// with the same id is merged: incoming metadata wins, the newer last message
// is kept.
func (d *Directory) Upsert(c Chat) {
	if c.ID == "" {
		return
	}

	incoming := c.Clone()
	if i := d.indexOf(c.ID); i >= 0 {
		prev := d.chats[i]
		if prev.LastMessageAt.After(incoming.LastMessageAt) {
			incoming.LastMessage = prev.LastMessage
			incoming.LastMessageAt = prev.LastMessageAt
		}
		d.chats = slices.Delete(d.chats, i, i+1)
	}

	d.chats = slices.Insert(d.chats, 0, incoming)
	d.sort()
}

// Touch records m as the newest message of chatID. A chat the directory has
// not seen yet gets a placeholder entry. Reports whether a placeholder was made.
func (d *Directory) Touch(chatID string, m messages.Message) bool {
	lm := m.Clone()

	i := d.indexOf(chatID)
	if i < 0 {
		d.chats = append(d.chats, Chat{
			ID:            chatID,
			LastMessage:   &lm,
			LastMessageAt: m.CreatedAt,
			CreatedAt:     m.CreatedAt,
			Placeholder:   true,
		})
		d.sort()
		return true
	}

	if !m.CreatedAt.Before(d.chats[i].LastMessageAt) {
		d.chats[i].LastMessage = &lm
		d.chats[i].LastMessageAt = m.CreatedAt
	}
	d.sort()
	return false
}

// Remove drops chatID, used when the user leaves a chat for good.
func (d *Directory) Remove(chatID string) bool {
	i := d.indexOf(chatID)
	if i < 0 {
		return false
	}
	d.chats = slices.Delete(d.chats, i, i+1)
	return true
}

func (d *Directory) Get(chatID string) (Chat, bool) {
	i := d.indexOf(chatID)
	if i < 0 {
		return Chat{}, false
	}
	return d.chats[i].Clone(), true
}

func (d *Directory) Has(chatID string) bool {
	return d.indexOf(chatID) >= 0
}

func (d *Directory) Len() int {
	return len(d.chats)
}

// List returns a copy of the directory in display order.
func (d *Directory) List() []Chat {
	out := make([]Chat, 0, len(d.chats))
	for _, c := range d.chats {
		out = append(out, c.Clone())
	}
	return out
}

func (d *Directory) indexOf(chatID string) int {
	return slices.IndexFunc(d.chats, func(c Chat) bool { return c.ID == chatID })
}

func (d *Directory) sort() {
	slices.SortStableFunc(d.chats, func(a, b Chat) int {
		return b.Recency().Compare(a.Recency())
	})
}
