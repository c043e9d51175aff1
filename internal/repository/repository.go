package repository

import (
	"bytes"
	"context"
	"errors"
	"time"

	"world-chat/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("record not found")

// Cursor is a position in a room's history. Pages hold messages strictly after
// (CreatedAt, ID) in that order, so rows sharing a timestamp are never skipped.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

var maxID = uuid.UUID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// After positions a cursor past every message created at or before t.
func After(t time.Time) Cursor {
	return Cursor{CreatedAt: t, ID: maxID}
}

func (c Cursor) Precedes(m *models.Message) bool {
	if !m.CreatedAt.Equal(c.CreatedAt) {
		return m.CreatedAt.After(c.CreatedAt)
	}
	return bytes.Compare(m.ID[:], c.ID[:]) > 0
}

type MessageRepo interface {
	Save(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// FetchSince returns messages of room positioned after the cursor, oldest first.
	FetchSince(ctx context.Context, room string, after Cursor, limit int) ([]*models.Message, error)
	// UpdateContent edits a live message. A missing or deleted message is ErrNotFound.
	UpdateContent(ctx context.Context, id uuid.UUID, content string, editedAt time.Time) (*models.Message, error)
	// SoftDelete tombstones a message and returns it. Repeating it is a no-op.
	SoftDelete(ctx context.Context, id uuid.UUID) (*models.Message, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type ReactionRepo interface {
	Exists(ctx context.Context, messageID uuid.UUID, identity, emoji string) (bool, error)
	// Add reports false when the triple already exists.
	Add(ctx context.Context, reaction *models.Reaction) (bool, error)
	// Remove reports false when there was nothing to remove.
	Remove(ctx context.Context, messageID uuid.UUID, identity, emoji string) (bool, error)
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]models.Reaction, error)
	ListByMessages(ctx context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]models.Reaction, error)
}

type ProfileRepo interface {
	GetProfile(ctx context.Context, identity string) (*models.Profile, error)
	GetProfiles(ctx context.Context, identities []string) (map[string]*models.Profile, error)
	SetDisplayName(ctx context.Context, identity, displayName string) (*models.Profile, error)
}

// DBTX is the subset of *pgxpool.Pool the Postgres repositories need.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
