package presence

import "slices"

// Tracker is the set of users currently online, as reported by the hub.
// There is no TTL: membership changes only on status-change events.
type Tracker struct {
	online map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{online: make(map[string]struct{})}
}

// Set applies a status change and reports whether the set changed.
func (t *Tracker) Set(userID string, online bool) bool {
	if userID == "" {
		return false
	}

	_, was := t.online[userID]
	if online == was {
		return false
	}

	if online {
		t.online[userID] = struct{}{}
	} else {
		delete(t.online, userID)
	}
	return true
}

func (t *Tracker) IsOnline(userID string) bool {
	_, ok := t.online[userID]
	return ok
}

// List returns the online user ids, sorted.
func (t *Tracker) List() []string {
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (t *Tracker) Reset() {
	t.online = make(map[string]struct{})
}
