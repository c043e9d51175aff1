package models

import (
	"time"

	"github.com/google/uuid"
)

const GlobalRoom = "global"

type Message struct {
	ID            uuid.UUID  `json:"id"`
	RoomID        string     `json:"room"`
	SenderID      string     `json:"senderId"`
	Content       string     `json:"content"`
	AttachmentURL string     `json:"attachmentUrl,omitempty"`
	ReplyToID     *uuid.UUID `json:"replyToId,omitempty"`
	Edited        bool       `json:"edited"`
	EditedAt      *time.Time `json:"editedAt,omitempty"`
	Deleted       bool       `json:"deleted"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Tombstone clears the body of a message. Deletion is irreversible.
func (m *Message) Tombstone() {
	m.Deleted = true
	m.Content = ""
	m.AttachmentURL = ""
}
