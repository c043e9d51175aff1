// Package reaction toggles (message, identity, emoji) triples and rebuilds
// the grouped view that gets broadcast after every change.
package reaction

import (
	"context"
	"errors"
	"sort"
	"time"

	"world-chat/internal/errs"
	"world-chat/internal/models"
	"world-chat/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

type Outcome string

const (
	Added   Outcome = "added"
	Removed Outcome = "removed"
)

type Result struct {
	MessageID uuid.UUID
	Room      string
	Outcome   Outcome
	Reactions models.GroupedReactions
}

type Engine struct {
	messages  repository.MessageRepo
	reactions repository.ReactionRepo
	locks     *keyedMutex
	now       func() time.Time
	log       zerolog.Logger
}

func NewEngine(messages repository.MessageRepo, reactions repository.ReactionRepo, log zerolog.Logger) *Engine {
	return &Engine{
		messages:  messages,
		reactions: reactions,
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "reaction").Logger(),
	}
}

// Toggle flips the triple and returns the full grouped view of the message.
// The check-then-act runs under a lock scoped to the triple; the store's
// unique constraint covers other server instances, and a conflicting insert
// is treated as the triple being present.
func (e *Engine) Toggle(ctx context.Context, messageID uuid.UUID, identity, emoji string) (Result, error) {
	msg, err := e.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, errs.ErrMessageNotFound
		}
		e.log.Error().Err(err).Str("message_id", messageID.String()).Msg("message lookup failed")
		return Result{}, errs.Wrap(errs.ErrReactionFailed, err)
	}
	if msg.Deleted {
		return Result{}, errs.ErrMessageNotFound
	}

	outcome, err := e.flip(ctx, messageID, identity, emoji)
	if err != nil {
		e.log.Error().Err(err).Str("message_id", messageID.String()).Str("identity", identity).Msg("toggle failed")
		return Result{}, errs.Wrap(errs.ErrReactionFailed, err)
	}

	list, err := e.reactions.ListByMessage(ctx, messageID)
	if err != nil {
		return Result{}, errs.Wrap(errs.ErrReactionFailed, err)
	}

	e.log.Debug().Str("message_id", messageID.String()).Str("identity", identity).
		Str("emoji", emoji).Str("outcome", string(outcome)).Msg("reaction toggled")

	return Result{
		MessageID: messageID,
		Room:      msg.RoomID,
		Outcome:   outcome,
		Reactions: Group(list),
	}, nil
}

func (e *Engine) flip(ctx context.Context, messageID uuid.UUID, identity, emoji string) (Outcome, error) {
	unlock := e.locks.Lock(messageID.String() + "\x00" + identity + "\x00" + emoji)
	defer unlock()

	exists, err := e.reactions.Exists(ctx, messageID, identity, emoji)
	if err != nil {
		return "", err
	}
	if !exists {
		added, err := e.reactions.Add(ctx, &models.Reaction{
			MessageID: messageID,
			Identity:  identity,
			Emoji:     emoji,
			CreatedAt: e.now(),
		})
		if err != nil {
			return "", err
		}
		if added {
			return Added, nil
		}
	}
	if _, err := e.reactions.Remove(ctx, messageID, identity, emoji); err != nil {
		return "", err
	}
	return Removed, nil
}

// Group builds emoji -> {count, users}. Users keep reaction order; emojis
// with no reactions are absent.
func Group(reactions []models.Reaction) models.GroupedReactions {
	sorted := make([]models.Reaction, len(reactions))
	copy(sorted, reactions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	byEmoji := lo.GroupBy(sorted, func(r models.Reaction) string { return r.Emoji })
	out := make(models.GroupedReactions, len(byEmoji))
	for emoji, list := range byEmoji {
		users := lo.Uniq(lo.Map(list, func(r models.Reaction, _ int) string { return r.Identity }))
		out[emoji] = models.ReactionGroup{Count: len(users), Users: users}
	}
	return out
}
