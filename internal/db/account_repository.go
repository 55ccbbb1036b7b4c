package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("db: not found")

// Account is one row of account_data.
type Account struct {
	AccountID int64
	Username  string
	Password  string // stored hash, lowercase hex
	Regtime   int64
	Privlevel int32
}

// AccountRepository reads accounts and guildcard ownership.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates an account repository over the pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// AccountByUsername returns the account with the given username.
func (r *AccountRepository) AccountByUsername(ctx context.Context, username string) (*Account, error) {
	var acc Account
	err := r.pool.QueryRow(ctx,
		`SELECT account_id, username, password, regtime, privlevel
		 FROM account_data WHERE username = $1`, username,
	).Scan(&acc.AccountID, &acc.Username, &acc.Password, &acc.Regtime, &acc.Privlevel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying account %q: %w", username, err)
	}
	return &acc, nil
}

// AccountIDByGuildcard returns the account owning a guildcard.
func (r *AccountRepository) AccountIDByGuildcard(ctx context.Context, guildcard uint32) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`SELECT account_id FROM guildcards WHERE guildcard = $1`, int64(guildcard),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("querying guildcard %d: %w", guildcard, err)
	}
	return id, nil
}

// GuildcardByAccount returns the guildcard registered to an account.
func (r *AccountRepository) GuildcardByAccount(ctx context.Context, accountID int64) (uint32, error) {
	var gc int64
	err := r.pool.QueryRow(ctx,
		`SELECT guildcard FROM guildcards WHERE account_id = $1`, accountID,
	).Scan(&gc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("querying guildcard for account %d: %w", accountID, err)
	}
	return uint32(gc), nil
}

// GMAccount returns the account matching (account_id, username) with GM
// privileges, or ErrNotFound when the user is not a GM.
func (r *AccountRepository) GMAccount(ctx context.Context, accountID int64, username string) (*Account, error) {
	var acc Account
	err := r.pool.QueryRow(ctx,
		`SELECT account_id, username, password, regtime, privlevel
		 FROM account_data WHERE account_id = $1 AND username = $2 AND privlevel > 0`,
		accountID, username,
	).Scan(&acc.AccountID, &acc.Username, &acc.Password, &acc.Regtime, &acc.Privlevel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying GM account %d: %w", accountID, err)
	}
	return &acc, nil
}

// PrivilegedAccountID returns the account owning a guildcard if that account
// has ban privileges (privlevel above 2), ErrNotFound otherwise.
func (r *AccountRepository) PrivilegedAccountID(ctx context.Context, guildcard uint32) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`SELECT a.account_id FROM guildcards g
		 JOIN account_data a ON a.account_id = g.account_id
		 WHERE g.guildcard = $1 AND a.privlevel > 2`, int64(guildcard),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("querying privileged account for %d: %w", guildcard, err)
	}
	return id, nil
}
