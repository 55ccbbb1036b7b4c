package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OnlineShip is one row of online_ships.
type OnlineShip struct {
	ShipID   uint32
	Name     string
	Players  uint16
	Games    uint16
	IP       uint32 // external IPv4, host order
	IntIP    uint32 // internal IPv4, host order
	Port     uint16
	GMOnly   bool
	MenuCode uint16
}

// ShipRepository maintains the fleet tables: online_ships for what is up
// right now and ship_data for the per-ship shared keys.
type ShipRepository struct {
	pool *pgxpool.Pool
}

// NewShipRepository creates a ship repository over the pool.
func NewShipRepository(pool *pgxpool.Pool) *ShipRepository {
	return &ShipRepository{pool: pool}
}

// ShipKey returns the 128-byte shared key and the main-menu permission for a
// key index.
func (r *ShipRepository) ShipKey(ctx context.Context, idx uint16) (key []byte, mainMenu bool, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT rc4key, main_menu FROM ship_data WHERE idx = $1`, int32(idx),
	).Scan(&key, &mainMenu)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("querying ship key %d: %w", idx, err)
	}
	return key, mainMenu, nil
}

// InsertOnline adds a ship to online_ships, replacing a stale row left by an
// unclean shutdown.
func (r *ShipRepository) InsertOnline(ctx context.Context, s OnlineShip) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO online_ships (ship_id, name, players, ip, port, int_ip, gm_only, games, menu_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (ship_id) DO UPDATE SET
		   name = EXCLUDED.name, players = EXCLUDED.players, ip = EXCLUDED.ip,
		   port = EXCLUDED.port, int_ip = EXCLUDED.int_ip, gm_only = EXCLUDED.gm_only,
		   games = EXCLUDED.games, menu_code = EXCLUDED.menu_code`,
		int64(s.ShipID), s.Name, int32(s.Players), int64(s.IP), int32(s.Port),
		int64(s.IntIP), s.GMOnly, int32(s.Games), int32(s.MenuCode),
	)
	if err != nil {
		return fmt.Errorf("inserting online ship %q: %w", s.Name, err)
	}
	return nil
}

// DeleteOnline removes a ship from online_ships.
func (r *ShipRepository) DeleteOnline(ctx context.Context, shipID uint32) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM online_ships WHERE ship_id = $1`, int64(shipID))
	if err != nil {
		return fmt.Errorf("deleting online ship %d: %w", shipID, err)
	}
	return nil
}

// UpdateCounts persists a ship's player and game counters.
func (r *ShipRepository) UpdateCounts(ctx context.Context, shipID uint32, players, games uint16) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE online_ships SET players = $1, games = $2 WHERE ship_id = $3`,
		int32(players), int32(games), int64(shipID))
	if err != nil {
		return fmt.Errorf("updating counts for ship %d: %w", shipID, err)
	}
	return nil
}

// ListOnline returns every ship currently registered as online.
func (r *ShipRepository) ListOnline(ctx context.Context) ([]OnlineShip, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ship_id, name, players, ip, port, int_ip, gm_only, games, menu_code
		 FROM online_ships ORDER BY ship_id`)
	if err != nil {
		return nil, fmt.Errorf("listing online ships: %w", err)
	}
	defer rows.Close()

	var ships []OnlineShip
	for rows.Next() {
		var (
			s                        OnlineShip
			shipID, ip, intIP        int64
			players, games, port, mc int32
		)
		if err := rows.Scan(&shipID, &s.Name, &players, &ip, &port, &intIP, &s.GMOnly, &games, &mc); err != nil {
			return nil, fmt.Errorf("scanning online ship: %w", err)
		}
		s.ShipID = uint32(shipID)
		s.Players = uint16(players)
		s.Games = uint16(games)
		s.IP = uint32(ip)
		s.IntIP = uint32(intIP)
		s.Port = uint16(port)
		s.MenuCode = uint16(mc)
		ships = append(ships, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing online ships: %w", err)
	}
	return ships, nil
}
