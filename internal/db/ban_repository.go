package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BanRepository writes and checks bans. A ban is a row in bans plus a
// joining row naming the banned guildcard or IPv4 address; enddate 0 means
// permanent.
type BanRepository struct {
	pool *pgxpool.Pool
}

// NewBanRepository creates a ban repository over the pool.
func NewBanRepository(pool *pgxpool.Pool) *BanRepository {
	return &BanRepository{pool: pool}
}

func (r *BanRepository) insert(ctx context.Context, joinSQL string, setBy int64, target uint32, until int64, reason string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning ban insert: %w", err)
	}
	defer tx.Rollback(ctx)

	var banID int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO bans (enddate, setby, reason) VALUES ($1, $2, $3) RETURNING id`,
		until, setBy, reason,
	).Scan(&banID); err != nil {
		return fmt.Errorf("inserting ban: %w", err)
	}
	if _, err := tx.Exec(ctx, joinSQL, banID, int64(target)); err != nil {
		return fmt.Errorf("inserting ban target: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing ban: %w", err)
	}
	return nil
}

// InsertGuildcardBan bans a guildcard until the given unix timestamp.
func (r *BanRepository) InsertGuildcardBan(ctx context.Context, setBy int64, guildcard uint32, until int64, reason string) error {
	return r.insert(ctx,
		`INSERT INTO guildcard_bans (ban_id, guildcard) VALUES ($1, $2)`,
		setBy, guildcard, until, reason)
}

// InsertIPBan bans an IPv4 address until the given unix timestamp.
func (r *BanRepository) InsertIPBan(ctx context.Context, setBy int64, addr uint32, until int64, reason string) error {
	return r.insert(ctx,
		`INSERT INTO ip_bans (ban_id, addr) VALUES ($1, $2)`,
		setBy, addr, until, reason)
}

// IsGuildcardBanned reports whether a guildcard has an active ban at the
// given unix time.
func (r *BanRepository) IsGuildcardBanned(ctx context.Context, guildcard uint32, now int64) (bool, error) {
	var banned bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM bans b
		   JOIN guildcard_bans g ON g.ban_id = b.id
		   WHERE g.guildcard = $1 AND (b.enddate = 0 OR b.enddate > $2))`,
		int64(guildcard), now,
	).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("checking guildcard ban %d: %w", guildcard, err)
	}
	return banned, nil
}

// IsIPBanned reports whether an IPv4 address has an active ban at the given
// unix time.
func (r *BanRepository) IsIPBanned(ctx context.Context, addr uint32, now int64) (bool, error) {
	var banned bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM bans b
		   JOIN ip_bans i ON i.ban_id = b.id
		   WHERE i.addr = $1 AND (b.enddate = 0 OR b.enddate > $2))`,
		int64(addr), now,
	).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("checking ip ban %d: %w", addr, err)
	}
	return banned, nil
}
