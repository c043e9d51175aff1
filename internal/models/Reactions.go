package models

import (
	"time"

	"github.com/google/uuid"
)

// Reaction is unique per (MessageID, Identity, Emoji).
type Reaction struct {
	MessageID uuid.UUID `json:"messageId"`
	Identity  string    `json:"identity"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

type ReactionGroup struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// GroupedReactions maps emoji to its aggregated view.
type GroupedReactions map[string]ReactionGroup
