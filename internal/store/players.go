package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Grahev/Airsoft-Raspberry/internal/model"
)

// CreatePlayer registers a new player. Names are unique; re-adding an existing
// name is a no-op and returns the existing row.
func (s *Store) CreatePlayer(ctx context.Context, name string) (model.Player, error) {
	if s.db == nil {
		return model.Player{}, fmt.Errorf("store not initialized")
	}
	if name == "" {
		return model.Player{}, fmt.Errorf("player name must not be empty: %w", ErrInvalidArgument)
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO players (name, created_at) VALUES (?, ?)
		 ON CONFLICT(name) DO NOTHING;`,
		name, formatTime(now),
	)
	if err != nil {
		return model.Player{}, fmt.Errorf("insert player: %w", err)
	}

	var (
		p          model.Player
		createdStr string
	)
	err = s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM players WHERE name = ?;`, name).
		Scan(&p.ID, &p.Name, &createdStr)
	if err != nil {
		return model.Player{}, fmt.Errorf("load player: %w", err)
	}
	p.CreatedAt = parseTime(createdStr)
	return p, nil
}

// DeletePlayer removes a player. Historical hits keep their player_id; the
// dangling reference is intentional.
func (s *Store) DeletePlayer(ctx context.Context, id int64) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("player %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListPlayers returns all players ordered by name.
func (s *Store) ListPlayers(ctx context.Context) ([]model.Player, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM players ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	players := make([]model.Player, 0)
	for rows.Next() {
		var (
			p          model.Player
			createdStr string
		)
		if err := rows.Scan(&p.ID, &p.Name, &createdStr); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.CreatedAt = parseTime(createdStr)
		players = append(players, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate players: %w", err)
	}

	return players, nil
}
