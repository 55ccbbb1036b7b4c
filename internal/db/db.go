package db

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgx connection pool shared by the repositories.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and returns a DB handle.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the database connection pool.
func (d *DB) Close() {
	d.pool.Close()
}

// Pool returns the underlying pgx pool.
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

// HashPassword hashes a password the way account_data stores it: the
// lowercase-hex MD5 of "password_regtime_salt". regtime is the account's
// registration timestamp, so the salt is stable per account.
func HashPassword(password string, regtime int64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_salt", password, regtime)))
	return hex.EncodeToString(sum[:])
}
