package models

import "time"

// Profile holds the display fields denormalized into broadcast messages.
type Profile struct {
	Identity       string    `json:"identity"`
	DisplayName    string    `json:"displayName"`
	DisplayNameSet bool      `json:"displayNameSet"`
	AvatarURL      string    `json:"avatarUrl,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
