package repository

import (
	"context"
	"errors"
	"fmt"

	"world-chat/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

type PostgresProfileRepo struct {
	db  DBTX
	log zerolog.Logger
}

func NewProfileRepo(db DBTX, log zerolog.Logger) *PostgresProfileRepo {
	return &PostgresProfileRepo{
		db:  db,
		log: log.With().Str("component", "repo").Str("table", "profiles").Logger(),
	}
}

func (r *PostgresProfileRepo) GetProfile(ctx context.Context, identity string) (*models.Profile, error) {
	query := `
		SELECT identity, display_name, display_name_set, avatar_url, updated_at
		FROM profiles
		WHERE identity = $1`

	p := &models.Profile{}
	err := r.db.QueryRow(ctx, query, identity).Scan(
		&p.Identity,
		&p.DisplayName,
		&p.DisplayNameSet,
		&p.AvatarURL,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return p, nil
}

func (r *PostgresProfileRepo) GetProfiles(ctx context.Context, identities []string) (map[string]*models.Profile, error) {
	out := make(map[string]*models.Profile, len(identities))
	if len(identities) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT identity, display_name, display_name_set, avatar_url, updated_at
		FROM profiles
		WHERE identity = ANY($1)`, identities)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := &models.Profile{}
		if err := rows.Scan(&p.Identity, &p.DisplayName, &p.DisplayNameSet, &p.AvatarURL, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		out[p.Identity] = p
	}
	return out, rows.Err()
}

func (r *PostgresProfileRepo) SetDisplayName(ctx context.Context, identity, displayName string) (*models.Profile, error) {
	const query = `
		INSERT INTO profiles (identity, display_name, display_name_set, avatar_url, updated_at)
		VALUES ($1, $2, TRUE, '', NOW())
		ON CONFLICT (identity) DO UPDATE
		SET display_name = EXCLUDED.display_name, display_name_set = TRUE, updated_at = NOW()
		RETURNING identity, display_name, display_name_set, avatar_url, updated_at`

	p := &models.Profile{}
	err := r.db.QueryRow(ctx, query, identity, displayName).Scan(
		&p.Identity,
		&p.DisplayName,
		&p.DisplayNameSet,
		&p.AvatarURL,
		&p.UpdatedAt,
	)
	if err != nil {
		r.log.Error().Err(err).Str("identity", identity).Msg("upsert failed")
		return nil, fmt.Errorf("failed to set display name: %w", err)
	}
	return p, nil
}
