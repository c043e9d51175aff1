// Package messaging validates, persists and fans out chat messages.
package messaging

import (
	"context"
	"errors"
	"time"

	"world-chat/internal/errs"
	"world-chat/internal/metrics"
	"world-chat/internal/models"
	"world-chat/internal/reaction"
	"world-chat/internal/repository"
	"world-chat/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	DefaultEditWindow = 30 * time.Minute
	replyPreviewRunes = 120
	anonymousName     = "Anonymous"
)

// Broadcaster delivers an event to every connection joined to room except
// excludeConnectionID. Delivery is fire-and-forget.
type Broadcaster interface {
	BroadcastToRoom(room, event string, payload any, excludeConnectionID string) int
}

type Options struct {
	MaxLength  int
	EditWindow time.Duration
}

type Pipeline struct {
	messages   repository.MessageRepo
	reactions  repository.ReactionRepo
	profiles   repository.ProfileRepo
	out        Broadcaster
	sanitizer  *Sanitizer
	editWindow time.Duration
	metrics    *metrics.Collectors
	now        func() time.Time
	log        zerolog.Logger
}

func NewPipeline(
	messages repository.MessageRepo,
	reactions repository.ReactionRepo,
	profiles repository.ProfileRepo,
	out Broadcaster,
	opts Options,
	m *metrics.Collectors,
	log zerolog.Logger,
) *Pipeline {
	if opts.EditWindow <= 0 {
		opts.EditWindow = DefaultEditWindow
	}
	return &Pipeline{
		messages:   messages,
		reactions:  reactions,
		profiles:   profiles,
		out:        out,
		sanitizer:  NewSanitizer(opts.MaxLength),
		editWindow: opts.EditWindow,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

type CreateRequest struct {
	Room          string
	Author        string
	Content       string
	AttachmentURL string
	ReplyToID     *uuid.UUID
}

// CreateAndBroadcast validates and persists a message, then sends newMessage
// to the whole room, author included. Nothing is persisted on a validation error.
func (p *Pipeline) CreateAndBroadcast(ctx context.Context, req CreateRequest) (types.MessageView, error) {
	content := p.sanitizer.Clean(req.Content)
	if content == "" && req.AttachmentURL == "" {
		return types.MessageView{}, errs.ErrInvalidMessage
	}

	var replyTo *models.Message
	if req.ReplyToID != nil {
		target, err := p.messages.FindByID(ctx, *req.ReplyToID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return types.MessageView{}, errs.ErrReplyTargetNotFound
		case err != nil:
			return types.MessageView{}, p.fail(err, "reply lookup failed")
		case target.Deleted || target.RoomID != req.Room:
			return types.MessageView{}, errs.ErrReplyTargetNotFound
		}
		replyTo = target
	}

	author, err := p.profiles.GetProfile(ctx, req.Author)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return types.MessageView{}, errs.ErrUsernameRequired
	case err != nil:
		return types.MessageView{}, p.fail(err, "profile lookup failed")
	case !author.DisplayNameSet:
		return types.MessageView{}, errs.ErrUsernameRequired
	}

	msg := &models.Message{
		ID:            uuid.New(),
		RoomID:        req.Room,
		SenderID:      req.Author,
		Content:       content,
		AttachmentURL: req.AttachmentURL,
		ReplyToID:     req.ReplyToID,
		CreatedAt:     p.now(),
	}
	if err := p.messages.Save(ctx, msg); err != nil {
		return types.MessageView{}, p.fail(err, "persist failed")
	}
	p.metrics.MessageOp("create")

	profiles := map[string]*models.Profile{author.Identity: author}
	if replyTo != nil && replyTo.SenderID != author.Identity {
		if rp, err := p.profiles.GetProfile(ctx, replyTo.SenderID); err == nil {
			profiles[rp.Identity] = rp
		}
	}
	view := toView(msg, profiles, replyTo, models.GroupedReactions{})

	n := p.out.BroadcastToRoom(req.Room, types.EventNewMessage, view, "")
	p.log.Debug().Str("message_id", view.ID).Str("sender", req.Author).Int("receivers", n).Msg("message broadcast")
	return view, nil
}

// Edit replaces the content of the editor's own message inside the edit window
// and broadcasts messageEdited.
func (p *Pipeline) Edit(ctx context.Context, messageID uuid.UUID, editor, newContent string) (types.MessageView, error) {
	msg, err := p.load(ctx, messageID)
	if err != nil {
		return types.MessageView{}, err
	}
	if msg.Deleted {
		return types.MessageView{}, errs.ErrMessageNotFound
	}
	if msg.SenderID != editor {
		return types.MessageView{}, errs.Withf(errs.ErrForbidden, "only the author can edit this message")
	}
	now := p.now()
	if now.Sub(msg.CreatedAt) > p.editWindow {
		return types.MessageView{}, errs.ErrEditWindowExpired
	}

	content := p.sanitizer.Clean(newContent)
	if content == "" && msg.AttachmentURL == "" {
		return types.MessageView{}, errs.ErrInvalidMessage
	}

	// the write is conditional on the message still being live; a delete that
	// landed since the read above wins
	msg, err = p.messages.UpdateContent(ctx, messageID, content, now)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return types.MessageView{}, errs.ErrMessageNotFound
	case err != nil:
		return types.MessageView{}, p.fail(err, "edit persist failed")
	}
	p.metrics.MessageOp("edit")

	views, err := p.Materialize(ctx, []*models.Message{msg})
	if err != nil {
		return types.MessageView{}, p.fail(err, "edit materialize failed")
	}
	view := views[0]
	p.out.BroadcastToRoom(msg.RoomID, types.EventMessageEdited, view, "")
	return view, nil
}

// Delete tombstones the requester's own message and broadcasts messageDeleted.
// Deleting twice succeeds and re-broadcasts the tombstone.
func (p *Pipeline) Delete(ctx context.Context, messageID uuid.UUID, requester string) (types.MessageDeletedPayload, error) {
	msg, err := p.load(ctx, messageID)
	if err != nil {
		return types.MessageDeletedPayload{}, err
	}
	if msg.SenderID != requester {
		return types.MessageDeletedPayload{}, errs.Withf(errs.ErrForbidden, "only the author can delete this message")
	}

	if !msg.Deleted {
		msg, err = p.messages.SoftDelete(ctx, messageID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return types.MessageDeletedPayload{}, errs.ErrMessageNotFound
		case err != nil:
			return types.MessageDeletedPayload{}, p.fail(err, "delete persist failed")
		}
		p.metrics.MessageOp("delete")
	}

	payload := types.MessageDeletedPayload{MessageID: msg.ID.String(), Deleted: true}
	p.out.BroadcastToRoom(msg.RoomID, types.EventMessageDeleted, payload, "")
	return payload, nil
}

// Materialize denormalizes author fields, reply previews and grouped
// reactions into views, preserving order.
func (p *Pipeline) Materialize(ctx context.Context, msgs []*models.Message) ([]types.MessageView, error) {
	if len(msgs) == 0 {
		return []types.MessageView{}, nil
	}

	replies := make(map[uuid.UUID]*models.Message)
	for _, m := range msgs {
		if m.ReplyToID != nil {
			replies[*m.ReplyToID] = nil
		}
	}
	for id := range replies {
		target, err := p.messages.FindByID(ctx, id)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		replies[id] = target
	}

	identities := lo.Uniq(append(
		lo.Map(msgs, func(m *models.Message, _ int) string { return m.SenderID }),
		lo.FilterMap(lo.Values(replies), func(m *models.Message, _ int) (string, bool) {
			if m == nil {
				return "", false
			}
			return m.SenderID, true
		})...,
	))
	profiles, err := p.profiles.GetProfiles(ctx, identities)
	if err != nil {
		return nil, err
	}

	reactions, err := p.reactions.ListByMessages(ctx, lo.Map(msgs, func(m *models.Message, _ int) uuid.UUID { return m.ID }))
	if err != nil {
		return nil, err
	}

	views := make([]types.MessageView, 0, len(msgs))
	for _, m := range msgs {
		var replyTo *models.Message
		if m.ReplyToID != nil {
			replyTo = replies[*m.ReplyToID]
		}
		views = append(views, toView(m, profiles, replyTo, reaction.Group(reactions[m.ID])))
	}
	return views, nil
}

func (p *Pipeline) load(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	msg, err := p.messages.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.ErrMessageNotFound
	}
	if err != nil {
		return nil, p.fail(err, "message lookup failed")
	}
	return msg, nil
}

func (p *Pipeline) fail(err error, msg string) error {
	p.log.Error().Err(err).Msg(msg)
	return errs.Wrap(errs.ErrMessageFailed, err)
}

func toView(m *models.Message, profiles map[string]*models.Profile, replyTo *models.Message, reactions models.GroupedReactions) types.MessageView {
	name, avatar := displayFields(profiles, m.SenderID)
	view := types.MessageView{
		ID:              m.ID.String(),
		Room:            m.RoomID,
		SenderID:        m.SenderID,
		SenderName:      name,
		SenderAvatarURL: avatar,
		Content:         m.Content,
		AttachmentURL:   m.AttachmentURL,
		Edited:          m.Edited,
		EditedAt:        m.EditedAt,
		Deleted:         m.Deleted,
		CreatedAt:       m.CreatedAt,
		Reactions:       reactions,
	}
	if replyTo != nil {
		replyName, _ := displayFields(profiles, replyTo.SenderID)
		view.ReplyTo = &types.ReplyPreview{
			ID:         replyTo.ID.String(),
			SenderID:   replyTo.SenderID,
			SenderName: replyName,
			Content:    snippet(replyTo.Content),
			Deleted:    replyTo.Deleted,
		}
	}
	return view
}

func displayFields(profiles map[string]*models.Profile, identity string) (string, string) {
	p, ok := profiles[identity]
	if !ok || p.DisplayName == "" {
		return anonymousName, ""
	}
	return p.DisplayName, p.AvatarURL
}

func snippet(content string) string {
	r := []rune(content)
	if len(r) <= replyPreviewRunes {
		return content
	}
	return string(r[:replyPreviewRunes]) + "…"
}
