package messages

import (
	"strings"
	"time"
)

type Attachment struct {
	FileID      string `json:"fileId" db:"file_id"`
	ContentType string `json:"contentType,omitempty" db:"content_type"`
	Filename    string `json:"filename,omitempty" db:"filename"`
	Size        int64  `json:"size,omitempty" db:"size"`
}

type ReadReceipt struct {
	UserID string    `json:"userId" db:"user_id"`
	ReadAt time.Time `json:"readAt" db:"read_at"`
}

type Message struct {
	ID          string            `json:"id"`
	ChatID      string            `json:"chatId"`
	SenderID    string            `json:"senderId"`
	Text        string            `json:"text,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	ReplyToID   string            `json:"replyTo,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	ReadBy      []ReadReceipt     `json:"readBy,omitempty"`
	Reactions   map[string]string `json:"reactions,omitempty"`
}

// Empty reports whether the message carries neither text nor attachments.
func Empty(text string, attachments []Attachment) bool {
	return strings.TrimSpace(text) == "" && len(attachments) == 0
}

// ReadByUser reports whether userID already has a receipt on m.
func (m Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so snapshots handed to subscribers never alias
// store-owned slices and maps.
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.ReadBy != nil {
		out.ReadBy = append([]ReadReceipt(nil), m.ReadBy...)
	}
	if m.Reactions != nil {
		out.Reactions = make(map[string]string, len(m.Reactions))
		for k, v := range m.Reactions {
			out.Reactions[k] = v
		}
	}
	return out
}
