package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CharacterRepository stores character backup blobs keyed by
// (guildcard, slot).
type CharacterRepository struct {
	pool *pgxpool.Pool
}

// NewCharacterRepository creates a character repository over the pool.
func NewCharacterRepository(pool *pgxpool.Pool) *CharacterRepository {
	return &CharacterRepository{pool: pool}
}

// Store replaces the backup for (guildcard, slot) with data. The delete and
// insert run in one transaction so a failed insert cannot lose the old blob.
func (r *CharacterRepository) Store(ctx context.Context, guildcard, slot uint32, data []byte) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning character store: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM character_data WHERE guildcard = $1 AND slot = $2`,
		int64(guildcard), int32(slot)); err != nil {
		return fmt.Errorf("clearing character slot (%d, %d): %w", guildcard, slot, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO character_data (guildcard, slot, data) VALUES ($1, $2, $3)`,
		int64(guildcard), int32(slot), data); err != nil {
		return fmt.Errorf("storing character (%d, %d): %w", guildcard, slot, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing character store: %w", err)
	}
	return nil
}

// Fetch returns the backup stored for (guildcard, slot), or ErrNotFound.
func (r *CharacterRepository) Fetch(ctx context.Context, guildcard, slot uint32) ([]byte, error) {
	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM character_data WHERE guildcard = $1 AND slot = $2`,
		int64(guildcard), int32(slot),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching character (%d, %d): %w", guildcard, slot, err)
	}
	return data, nil
}
