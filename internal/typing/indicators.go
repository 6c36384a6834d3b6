package typing

import (
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kgellert/hodatay-chat/internal/eventloop"
	"github.com/kgellert/hodatay-chat/internal/users"
)

const DefaultExpiry = 10 * time.Second

// Entry is one remote user composing in one chat.
type Entry struct {
	ChatID string     `json:"chatId"`
	UserID string     `json:"userId"`
	User   users.User `json:"user"`
	Since  time.Time  `json:"since"`
}

type key struct {
	chatID string
	userID string
}

type slot struct {
	entry Entry
	timer clockwork.Timer
	gen   uint64
}

// Indicators tracks inbound typing state. Entries are removed by
// user-stopped-typing or, if that event is lost, by a local expiry.
type Indicators struct {
	clock    clockwork.Clock
	loop     eventloop.Executor
	expiry   time.Duration
	onExpire func(chatID string)

	slots map[key]*slot
	gen   uint64
}

// NewIndicators builds the tracker. onExpire runs on the loop after an entry
// timed out so the owner can notify subscribers.
func NewIndicators(c clockwork.Clock, loop eventloop.Executor, expiry time.Duration, onExpire func(chatID string)) *Indicators {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if onExpire == nil {
		onExpire = func(string) {}
	}
	return &Indicators{
		clock:    c,
		loop:     loop,
		expiry:   expiry,
		onExpire: onExpire,
		slots:    make(map[key]*slot),
	}
}

// Start adds or refreshes an entry. Reports whether the visible set changed,
// which includes a new profile for someone already typing.
func (ind *Indicators) Start(chatID, userID string, u users.User) bool {
	if chatID == "" || userID == "" {
		return false
	}

	k := key{chatID, userID}
	s, existed := ind.slots[k]
	if !existed {
		s = &slot{entry: Entry{ChatID: chatID, UserID: userID, Since: ind.clock.Now()}}
		ind.slots[k] = s
	}
	changed := !existed || s.entry.User != u
	s.entry.User = u
	ind.arm(k, s)

	return changed
}

// Stop removes an entry. Reports whether it existed.
func (ind *Indicators) Stop(chatID, userID string) bool {
	k := key{chatID, userID}
	s, ok := ind.slots[k]
	if !ok {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	delete(ind.slots, k)
	return true
}

// ForChat lists who is typing in chatID, oldest first.
func (ind *Indicators) ForChat(chatID string) []Entry {
	var out []Entry
	for k, s := range ind.slots {
		if k.chatID == chatID {
			out = append(out, s.entry)
		}
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.Since.Compare(b.Since); c != 0 {
			return c
		}
		if a.UserID < b.UserID {
			return -1
		}
		if a.UserID > b.UserID {
			return 1
		}
		return 0
	})
	return out
}

// Chats lists the chats that have at least one entry, sorted.
func (ind *Indicators) Chats() []string {
	var out []string
	for k := range ind.slots {
		if !slices.Contains(out, k.chatID) {
			out = append(out, k.chatID)
		}
	}
	slices.Sort(out)
	return out
}

func (ind *Indicators) Len() int {
	return len(ind.slots)
}

// Reset drops every entry and cancels all expiry timers.
func (ind *Indicators) Reset() {
	for _, s := range ind.slots {
		if s.timer != nil {
			s.timer.Stop()
		}
	}
	ind.slots = make(map[key]*slot)
}

func (ind *Indicators) arm(k key, s *slot) {
	if s.timer != nil {
		s.timer.Stop()
	}

	ind.gen++
	s.gen = ind.gen
	gen := s.gen

	s.timer = ind.clock.AfterFunc(ind.expiry, func() {
		ind.loop.Post(func() {
			cur, ok := ind.slots[k]
			if !ok || cur.gen != gen {
				return
			}
			delete(ind.slots, k)
			ind.onExpire(k.chatID)
		})
	})
}
