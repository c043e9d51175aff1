package repository

import (
	"context"
	"fmt"

	"world-chat/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type PostgresReactionsRepo struct {
	db  DBTX
	log zerolog.Logger
}

func NewReactionsRepo(db DBTX, log zerolog.Logger) *PostgresReactionsRepo {
	return &PostgresReactionsRepo{
		db:  db,
		log: log.With().Str("component", "repo").Str("table", "reactions").Logger(),
	}
}

func (r *PostgresReactionsRepo) Exists(ctx context.Context, messageID uuid.UUID, identity, emoji string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reactions WHERE message_id = $1 AND identity = $2 AND emoji = $3)`,
		messageID, identity, emoji,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reaction: %w", err)
	}
	return exists, nil
}

func (r *PostgresReactionsRepo) Add(ctx context.Context, reaction *models.Reaction) (bool, error) {
	query := `
		INSERT INTO reactions (message_id, identity, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, identity, emoji) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, reaction.MessageID, reaction.Identity, reaction.Emoji, reaction.CreatedAt)
	if err != nil {
		r.log.Error().Err(err).Str("message_id", reaction.MessageID.String()).Msg("insert failed")
		return false, fmt.Errorf("add reaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresReactionsRepo) Remove(ctx context.Context, messageID uuid.UUID, identity, emoji string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM reactions WHERE message_id = $1 AND identity = $2 AND emoji = $3`,
		messageID, identity, emoji,
	)
	if err != nil {
		r.log.Error().Err(err).Str("message_id", messageID.String()).Msg("delete failed")
		return false, fmt.Errorf("remove reaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresReactionsRepo) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]models.Reaction, error) {
	grouped, err := r.ListByMessages(ctx, []uuid.UUID{messageID})
	if err != nil {
		return nil, err
	}
	return grouped[messageID], nil
}

func (r *PostgresReactionsRepo) ListByMessages(ctx context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]models.Reaction, error) {
	out := make(map[uuid.UUID][]models.Reaction, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT message_id, identity, emoji, created_at
		FROM reactions
		WHERE message_id = ANY($1)
		ORDER BY created_at ASC`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var re models.Reaction
		if err := rows.Scan(&re.MessageID, &re.Identity, &re.Emoji, &re.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		out[re.MessageID] = append(out[re.MessageID], re)
	}
	return out, rows.Err()
}
