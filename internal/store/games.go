package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Grahev/Airsoft-Raspberry/internal/model"
)

// StartGame ends any active game and creates the new one in a single
// transaction, so the single-active-game invariant holds at every commit point.
func (s *Store) StartGame(ctx context.Context, mode string, params map[string]any, playerIDs []int64) (model.Game, error) {
	if s.db == nil {
		return model.Game{}, fmt.Errorf("store not initialized")
	}

	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return model.Game{}, fmt.Errorf("encode game params: %w", err)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Game{}, fmt.Errorf("begin start game: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE games SET active = 0, ended_ts = ? WHERE active = 1;`,
		formatTime(now)); err != nil {
		return model.Game{}, fmt.Errorf("end previous game: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO games (mode, params_json, started_ts, active) VALUES (?, ?, ?, 1);`,
		mode, string(paramsJSON), formatTime(now))
	if err != nil {
		return model.Game{}, fmt.Errorf("insert game: %w", err)
	}

	gameID, err := res.LastInsertId()
	if err != nil {
		return model.Game{}, fmt.Errorf("game id: %w", err)
	}

	gamePlayers := make([]model.GamePlayer, 0, len(playerIDs))
	for _, pid := range playerIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO game_players (game_id, player_id, target_key) VALUES (?, ?, NULL);`,
			gameID, pid); err != nil {
			return model.Game{}, fmt.Errorf("insert game player: %w", err)
		}
		gamePlayers = append(gamePlayers, model.GamePlayer{PlayerID: pid})
	}

	if err := tx.Commit(); err != nil {
		return model.Game{}, fmt.Errorf("commit start game: %w", err)
	}

	return model.Game{
		ID:        gameID,
		Mode:      mode,
		Params:    params,
		StartedAt: now,
		Active:    true,
		Players:   gamePlayers,
	}, nil
}

// EndActiveGame deactivates the current game, if any. The returned flag
// reports whether a game was actually ended.
func (s *Store) EndActiveGame(ctx context.Context) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("store not initialized")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET active = 0, ended_ts = ? WHERE active = 1;`,
		formatTime(time.Now().UTC()))
	if err != nil {
		return false, fmt.Errorf("end game: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("end game: %w", err)
	}
	return affected > 0, nil
}

// CurrentGame returns the active game, or nil when idle.
func (s *Store) CurrentGame(ctx context.Context) (*model.Game, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	return currentGame(ctx, s.db)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func currentGame(ctx context.Context, q querier) (*model.Game, error) {
	var (
		g          model.Game
		paramsJSON string
		startedStr string
		endedStr   sql.NullString
		active     int
	)

	err := q.QueryRowContext(ctx,
		`SELECT id, mode, params_json, started_ts, ended_ts, active
		 FROM games WHERE active = 1 ORDER BY id DESC LIMIT 1;`).
		Scan(&g.ID, &g.Mode, &paramsJSON, &startedStr, &endedStr, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query current game: %w", err)
	}

	if err := json.Unmarshal([]byte(paramsJSON), &g.Params); err != nil {
		g.Params = map[string]any{}
	}
	g.StartedAt = parseTime(startedStr)
	if endedStr.Valid {
		ended := parseTime(endedStr.String)
		g.EndedAt = &ended
	}
	g.Active = active != 0

	rows, err := q.QueryContext(ctx,
		`SELECT player_id, target_key FROM game_players WHERE game_id = ? ORDER BY rowid;`, g.ID)
	if err != nil {
		return nil, fmt.Errorf("query game players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			gp        model.GamePlayer
			targetKey sql.NullString
		)
		if err := rows.Scan(&gp.PlayerID, &targetKey); err != nil {
			return nil, fmt.Errorf("scan game player: %w", err)
		}
		if targetKey.Valid {
			key := targetKey.String
			gp.TargetKey = &key
		}
		g.Players = append(g.Players, gp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game players: %w", err)
	}

	return &g, nil
}

// ActiveGameCount reports how many games are flagged active. The schema
// invariant keeps this at zero or one.
func (s *Store) ActiveGameCount(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("store not initialized")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games WHERE active = 1;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active games: %w", err)
	}
	return n, nil
}
