package unread

// Counter holds the unread message count per chat.
type Counter struct {
	counts map[string]int
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Seed replaces all counts with the values the hub supplied. Negative values
// are clamped to zero; activeChatID is forced to zero.
func (c *Counter) Seed(counts map[string]int, activeChatID string) {
	c.counts = make(map[string]int, len(counts))
	for id, n := range counts {
		if n > 0 && id != activeChatID {
			c.counts[id] = n
		}
	}
}

func (c *Counter) Increment(chatID string) int {
	c.counts[chatID]++
	return c.counts[chatID]
}

// Reset zeroes chatID and reports whether it had unread messages.
func (c *Counter) Reset(chatID string) bool {
	if c.counts[chatID] == 0 {
		return false
	}
	delete(c.counts, chatID)
	return true
}

func (c *Counter) Get(chatID string) int {
	return c.counts[chatID]
}

// Total is the sum over all chats, shown on the unread badge.
func (c *Counter) Total() int {
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

func (c *Counter) Snapshot() map[string]int {
	out := make(map[string]int, len(c.counts))
	for id, n := range c.counts {
		out[id] = n
	}
	return out
}

func (c *Counter) Drop(chatID string) {
	delete(c.counts, chatID)
}
