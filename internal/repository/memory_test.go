package repository

import (
	"context"
	"testing"
	"time"

	"world-chat/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FetchSince_OrdersAndLimits(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Given three messages in global and one elsewhere
	for i := 0; i < 3; i++ {
		req.NoError(store.Save(ctx, &models.Message{
			ID: uuid.New(), RoomID: models.GlobalRoom, SenderID: "guestA",
			Content: "m", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	req.NoError(store.Save(ctx, &models.Message{ID: uuid.New(), RoomID: "other", CreatedAt: base.Add(time.Hour)}))

	// When fetching after the first message with a limit of one
	got, err := store.FetchSince(ctx, models.GlobalRoom, After(base), 1)

	// Then only the second message comes back
	req.NoError(err)
	req.Len(got, 1)
	req.Equal(base.Add(time.Minute), got[0].CreatedAt)
}

func TestMemoryStore_ReactionUniqueness(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	id := uuid.New()

	added, err := store.Add(ctx, &models.Reaction{MessageID: id, Identity: "guestA", Emoji: "👍"})
	req.NoError(err)
	req.True(added)

	added, err = store.Add(ctx, &models.Reaction{MessageID: id, Identity: "guestA", Emoji: "👍"})
	req.NoError(err)
	req.False(added)

	removed, err := store.Remove(ctx, id, "guestA", "👍")
	req.NoError(err)
	req.True(removed)

	removed, err = store.Remove(ctx, id, "guestA", "👍")
	req.NoError(err)
	req.False(removed)
}

func TestMemoryStore_DeleteOlderThan_DropsReactions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	old := &models.Message{ID: uuid.New(), RoomID: models.GlobalRoom, CreatedAt: now.Add(-25 * time.Hour)}
	fresh := &models.Message{ID: uuid.New(), RoomID: models.GlobalRoom, CreatedAt: now}
	req.NoError(store.Save(ctx, old))
	req.NoError(store.Save(ctx, fresh))
	_, err := store.Add(ctx, &models.Reaction{MessageID: old.ID, Identity: "guestA", Emoji: "🔥"})
	req.NoError(err)

	n, err := store.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	req.NoError(err)
	req.EqualValues(1, n)

	_, err = store.FindByID(ctx, old.ID)
	req.ErrorIs(err, ErrNotFound)
	exists, err := store.Exists(ctx, old.ID, "guestA", "🔥")
	req.NoError(err)
	req.False(exists)
}

func TestMemoryStore_SetDisplayName(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetProfile(ctx, "guestA")
	req.ErrorIs(err, ErrNotFound)

	p, err := store.SetDisplayName(ctx, "guestA", "Ada")
	req.NoError(err)
	req.True(p.DisplayNameSet)

	got, err := store.GetProfiles(ctx, []string{"guestA", "guestB"})
	req.NoError(err)
	req.Len(got, 1)
	req.Equal("Ada", got["guestA"].DisplayName)
}

func TestMemoryStore_FetchSince_Cursor_Keeps_Timestamp_Ties(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Given five messages sharing one timestamp
	for i := 0; i < 5; i++ {
		req.NoError(store.Save(ctx, &models.Message{ID: uuid.New(), RoomID: models.GlobalRoom, SenderID: "guestA", Content: "m", CreatedAt: at}))
	}

	// When paging two at a time with the (createdAt, id) cursor
	seen := map[uuid.UUID]bool{}
	cursor := After(at.Add(-time.Second))
	for {
		page, err := store.FetchSince(ctx, models.GlobalRoom, cursor, 2)
		req.NoError(err)
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			req.False(seen[m.ID], "message returned twice")
			seen[m.ID] = true
		}
		last := page[len(page)-1]
		cursor = Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	// Then every message is seen exactly once
	req.Len(seen, 5)

	// And a bare timestamp still means strictly after it
	none, err := store.FetchSince(ctx, models.GlobalRoom, After(at), 10)
	req.NoError(err)
	req.Empty(none)
}

func TestMemoryStore_UpdateContent_Never_Touches_Tombstones(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()
	msg := &models.Message{ID: uuid.New(), RoomID: models.GlobalRoom, SenderID: "guestA", Content: "draft", CreatedAt: time.Now()}
	req.NoError(store.Save(ctx, msg))

	edited, err := store.UpdateContent(ctx, msg.ID, "final", time.Now())
	req.NoError(err)
	req.True(edited.Edited)
	req.Equal("final", edited.Content)

	// Given the message is deleted
	deleted, err := store.SoftDelete(ctx, msg.ID)
	req.NoError(err)
	req.True(deleted.Deleted)

	// When an edit arrives afterwards
	_, err = store.UpdateContent(ctx, msg.ID, "back again", time.Now())

	// Then it is refused and the tombstone stays
	req.ErrorIs(err, ErrNotFound)
	got, err := store.FindByID(ctx, msg.ID)
	req.NoError(err)
	req.True(got.Deleted)
	req.Empty(got.Content)

	_, err = store.SoftDelete(ctx, msg.ID)
	req.NoError(err, "deleting twice is a no-op")
	_, err = store.SoftDelete(ctx, uuid.New())
	req.ErrorIs(err, ErrNotFound)
}
