package models

import "time"

// Message is a chat message stored under a room.
type Message struct {
	ID        string              `json:"id"`
	RoomID    string              `json:"roomId"`
	SenderID  string              `json:"senderId"`
	Text      string              `json:"text"`
	Timestamp time.Time           `json:"timestamp"`
	Deleted   bool                `json:"deleted"`
	DeletedAt *time.Time          `json:"deletedAt,omitempty"`
	DeletedBy string              `json:"deletedBy,omitempty"`
	EditedAt  *time.Time          `json:"editedAt,omitempty"`
	Flagged   bool                `json:"flagged"`
	Visible   bool                `json:"visible"`
	Reactions map[string][]string `json:"reactions,omitempty"`
}

// Summary returns the part of the message carried through the
// notification pipeline.
func (m *Message) Summary() MessageSummary {
	return MessageSummary{
		Text:      m.Text,
		SenderID:  m.SenderID,
		Timestamp: m.Timestamp,
	}
}

// MessageSummary is the snapshot of a message used for notifications and
// kept on retry records.
type MessageSummary struct {
	Text      string    `json:"text"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageCreatedEvent is delivered once (or more) per message write.
// EventID is unique per delivery and keys the idempotency marker.
type MessageCreatedEvent struct {
	EventID   string         `json:"eventId"`
	RoomID    string         `json:"roomId"`
	MessageID string         `json:"messageId"`
	Message   MessageSummary `json:"message"`
}

type ReadReceipt struct {
	RoomID    string    `json:"roomId"`
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}
