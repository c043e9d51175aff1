package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"world-chat/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

type PostgresMessagesRepo struct {
	db  DBTX
	log zerolog.Logger
}

func NewMessagesRepo(db DBTX, log zerolog.Logger) *PostgresMessagesRepo {
	return &PostgresMessagesRepo{
		db:  db,
		log: log.With().Str("component", "repo").Str("table", "messages").Logger(),
	}
}

const messageColumns = `id, room_id, sender_id, content, attachment_url, reply_to_id, edited, edited_at, deleted, created_at`

func (r *PostgresMessagesRepo) Save(ctx context.Context, m *models.Message) error {
	query := `
        INSERT INTO messages (` + messageColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
    `

	_, err := r.db.Exec(ctx, query,
		m.ID,
		m.RoomID,
		m.SenderID,
		m.Content,
		m.AttachmentURL,
		m.ReplyToID,
		m.Edited,
		m.EditedAt,
		m.Deleted,
		m.CreatedAt,
	)
	if err != nil {
		r.log.Error().Err(err).Str("message_id", m.ID.String()).Str("sender", m.SenderID).Msg("save failed")
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (r *PostgresMessagesRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	m, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find message %s: %w", id, err)
	}
	return m, nil
}

func (r *PostgresMessagesRepo) FetchSince(ctx context.Context, room string, after Cursor, limit int) ([]*models.Message, error) {
	query := `
        SELECT ` + messageColumns + `
        FROM messages
        WHERE room_id = $1
          AND (created_at, id) > ($2, $3)
        ORDER BY created_at ASC, id ASC
        LIMIT $4
    `

	rows, err := r.db.Query(ctx, query, room, after.CreatedAt, after.ID, limit)
	if err != nil {
		r.log.Error().Err(err).Str("room", room).Msg("fetch failed")
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// UpdateContent only touches rows that are still live, so an edit can never
// resurrect a tombstone that landed after the caller read the message.
func (r *PostgresMessagesRepo) UpdateContent(ctx context.Context, id uuid.UUID, content string, editedAt time.Time) (*models.Message, error) {
	query := `
		UPDATE messages
		SET content = $2, edited = true, edited_at = $3
		WHERE id = $1 AND deleted = false
		RETURNING ` + messageColumns

	m, err := scanMessage(r.db.QueryRow(ctx, query, id, content, editedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Error().Err(err).Str("message_id", id.String()).Msg("edit failed")
		return nil, fmt.Errorf("edit message: %w", err)
	}
	return m, nil
}

func (r *PostgresMessagesRepo) SoftDelete(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	query := `
		UPDATE messages
		SET deleted = true, content = '', attachment_url = ''
		WHERE id = $1
		RETURNING ` + messageColumns

	m, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Error().Err(err).Str("message_id", id.String()).Msg("delete failed")
		return nil, fmt.Errorf("delete message: %w", err)
	}
	return m, nil
}

func (r *PostgresMessagesRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
		&m.ID,
		&m.RoomID,
		&m.SenderID,
		&m.Content,
		&m.AttachmentURL,
		&m.ReplyToID,
		&m.Edited,
		&m.EditedAt,
		&m.Deleted,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}
