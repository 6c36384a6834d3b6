package messages

import "time"

// Store keeps the per-chat message lists in the order the hub delivered them.
// It is owned by the engine's event loop and is not safe for concurrent use.
type Store struct {
	byChat map[string][]Message
	// messageID -> chatID, for patches that arrive without a chat id.
	index map[string]string
}

func NewStore() *Store {
	return &Store{
		byChat: make(map[string][]Message),
		index:  make(map[string]string),
	}
}

// Replace swaps the whole slice for chatID, as delivered in chat history.
func (s *Store) Replace(chatID string, msgs []Message) {
	for _, m := range s.byChat[chatID] {
		delete(s.index, m.ID)
	}

	list := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		m.ChatID = chatID
		list = append(list, m.Clone())
		if m.ID != "" {
			s.index[m.ID] = chatID
		}
	}
	s.byChat[chatID] = list
}

// Append adds m to the tail of chatID. A message id that is already stored is
// ignored so a replayed delivery cannot duplicate it. Reports whether m was added.
func (s *Store) Append(chatID string, m Message) bool {
	if m.ID != "" {
		if _, ok := s.index[m.ID]; ok {
			return false
		}
		s.index[m.ID] = chatID
	}

	m.ChatID = chatID
	s.byChat[chatID] = append(s.byChat[chatID], m.Clone())
	return true
}

// MarkRead adds a receipt for userID on messageID. Re-applying the same receipt
// is a no-op. Reports whether the store changed.
func (s *Store) MarkRead(chatID, messageID, userID string, at time.Time) bool {
	if chatID == "" {
		chatID = s.index[messageID]
	}

	list := s.byChat[chatID]
	for i := range list {
		if list[i].ID != messageID {
			continue
		}
		if list[i].ReadByUser(userID) {
			return false
		}
		list[i].ReadBy = append(list[i].ReadBy, ReadReceipt{UserID: userID, ReadAt: at})
		return true
	}
	return false
}

// SetReactions replaces the reaction map on messageID in whichever chat holds
// it. Returns the chat id that was patched, or "" when the message is unknown.
func (s *Store) SetReactions(messageID string, reactions map[string]string) string {
	chatID, ok := s.index[messageID]
	if !ok {
		return ""
	}

	list := s.byChat[chatID]
	for i := range list {
		if list[i].ID != messageID {
			continue
		}
		patched := make(map[string]string, len(reactions))
		for k, v := range reactions {
			patched[k] = v
		}
		list[i].Reactions = patched
		return chatID
	}
	return ""
}

// List returns a copy of the messages of chatID.
func (s *Store) List(chatID string) []Message {
	list := s.byChat[chatID]
	out := make([]Message, 0, len(list))
	for _, m := range list {
		out = append(out, m.Clone())
	}
	return out
}

func (s *Store) Get(messageID string) (Message, bool) {
	chatID, ok := s.index[messageID]
	if !ok {
		return Message{}, false
	}
	for _, m := range s.byChat[chatID] {
		if m.ID == messageID {
			return m.Clone(), true
		}
	}
	return Message{}, false
}

func (s *Store) Len(chatID string) int {
	return len(s.byChat[chatID])
}

// Drop forgets every message of chatID.
func (s *Store) Drop(chatID string) {
	for _, m := range s.byChat[chatID] {
		delete(s.index, m.ID)
	}
	delete(s.byChat, chatID)
}

// Reset empties the store.
func (s *Store) Reset() {
	s.byChat = make(map[string][]Message)
	s.index = make(map[string]string)
}
