package types

import (
	"time"

	"world-chat/internal/models"
)

type JoinRequest struct {
	Identity string `json:"identity" validate:"required,max=128"`
}

type SetDisplayNameRequest struct {
	Identity    string `json:"identity" validate:"required,max=128"`
	DisplayName string `json:"displayName" validate:"required,max=32"`
}

type SendMessageRequest struct {
	Content          string `json:"content,omitempty"`
	AttachmentURL    string `json:"attachmentUrl,omitempty" validate:"omitempty,url,max=2048"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty" validate:"omitempty,uuid"`
}

type TypingRequest struct {
	Room string `json:"room,omitempty" validate:"omitempty,max=64"`
}

type ToggleReactionRequest struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
	Emoji     string `json:"emoji" validate:"required,max=32"`
}

type EditMessageRequest struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
	Content   string `json:"content"`
}

type DeleteMessageRequest struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type OnlineCountPayload struct {
	Count int `json:"count"`
}

type TypingPayload struct {
	Identity string `json:"identity"`
}

type ReactionsUpdatedPayload struct {
	MessageID string                  `json:"messageId"`
	Reactions models.GroupedReactions `json:"reactions"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	Deleted   bool   `json:"deleted"`
}

type DisplayNameRequiredPayload struct {
	Identity string `json:"identity"`
}

type DisplayNameUpdatedPayload struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
}

type ReplyPreview struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Deleted    bool   `json:"deleted"`
}

// MessageView is a fully materialized message: receivers never need a follow-up fetch.
type MessageView struct {
	ID              string                  `json:"id"`
	Room            string                  `json:"room"`
	SenderID        string                  `json:"senderId"`
	SenderName      string                  `json:"senderName"`
	SenderAvatarURL string                  `json:"senderAvatarUrl,omitempty"`
	Content         string                  `json:"content"`
	AttachmentURL   string                  `json:"attachmentUrl,omitempty"`
	ReplyTo         *ReplyPreview           `json:"replyTo,omitempty"`
	Edited          bool                    `json:"edited"`
	EditedAt        *time.Time              `json:"editedAt,omitempty"`
	Deleted         bool                    `json:"deleted"`
	CreatedAt       time.Time               `json:"createdAt"`
	Reactions       models.GroupedReactions `json:"reactions"`
}

// HistoryResponse pages forward: pass nextSince and nextAfterId back as
// since and afterId to continue.
type HistoryResponse struct {
	Messages    []MessageView `json:"messages"`
	NextSince   *time.Time    `json:"nextSince,omitempty"`
	NextAfterID string        `json:"nextAfterId,omitempty"`
}

type PresenceResponse struct {
	Count   int      `json:"count"`
	Members []string `json:"members"`
}

type IdentityPresenceResponse struct {
	Identity string `json:"identity"`
	Online   bool   `json:"online"`
}
