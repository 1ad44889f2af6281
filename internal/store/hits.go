package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Grahev/Airsoft-Raspberry/internal/model"
)

// RecordHit reads the active game and inserts the hit stamped with it in one
// transaction. A concurrent start or stop cannot interleave between the read
// and the insert; with no active game the hit is stored unattributed.
func (s *Store) RecordHit(ctx context.Context, systemID, targetID string, amp *int, playerID *int64, ts time.Time) (model.Hit, error) {
	if s.db == nil {
		return model.Hit{}, fmt.Errorf("store not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Hit{}, fmt.Errorf("begin record hit: %w", err)
	}
	defer tx.Rollback()

	var gameID *int64
	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM games WHERE active = 1 ORDER BY id DESC LIMIT 1;`).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// unattributed
	case err != nil:
		return model.Hit{}, fmt.Errorf("read current game: %w", err)
	default:
		gameID = &id
	}

	var ampVal, playerVal any
	if amp != nil {
		ampVal = *amp
	}
	if playerID != nil {
		playerVal = *playerID
	}
	var gameVal any
	if gameID != nil {
		gameVal = *gameID
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO hits (ts, game_id, system_id, target_id, amp, player_id)
		 VALUES (?, ?, ?, ?, ?, ?);`,
		formatTime(ts), gameVal, systemID, targetID, ampVal, playerVal)
	if err != nil {
		return model.Hit{}, fmt.Errorf("insert hit: %w", err)
	}

	hitID, err := res.LastInsertId()
	if err != nil {
		return model.Hit{}, fmt.Errorf("hit id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Hit{}, fmt.Errorf("commit record hit: %w", err)
	}

	return model.Hit{
		ID:       hitID,
		Ts:       ts.UTC(),
		GameID:   gameID,
		SystemID: systemID,
		TargetID: targetID,
		Amp:      amp,
		PlayerID: playerID,
	}, nil
}

// ScoresByTarget counts hits grouped by target, ordered by (system_id, target_id).
func (s *Store) ScoresByTarget(ctx context.Context) ([]model.TargetScore, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT system_id, target_id, COUNT(*) AS hits
		 FROM hits
		 GROUP BY system_id, target_id
		 ORDER BY system_id, target_id;`)
	if err != nil {
		return nil, fmt.Errorf("query target scores: %w", err)
	}
	defer rows.Close()

	scores := make([]model.TargetScore, 0)
	for rows.Next() {
		var sc model.TargetScore
		if err := rows.Scan(&sc.SystemID, &sc.TargetID, &sc.Hits); err != nil {
			return nil, fmt.Errorf("scan target score: %w", err)
		}
		scores = append(scores, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate target scores: %w", err)
	}

	return scores, nil
}

// ScoresByPlayer counts hits per player, including players with none, ordered
// by hit count descending then name.
func (s *Store) ScoresByPlayer(ctx context.Context) ([]model.PlayerScore, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, COUNT(h.id) AS hits
		 FROM players p LEFT JOIN hits h ON p.id = h.player_id
		 GROUP BY p.id, p.name
		 ORDER BY hits DESC, p.name;`)
	if err != nil {
		return nil, fmt.Errorf("query player scores: %w", err)
	}
	defer rows.Close()

	scores := make([]model.PlayerScore, 0)
	for rows.Next() {
		var sc model.PlayerScore
		if err := rows.Scan(&sc.PlayerID, &sc.Name, &sc.Hits); err != nil {
			return nil, fmt.Errorf("scan player score: %w", err)
		}
		scores = append(scores, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate player scores: %w", err)
	}

	return scores, nil
}

// HitCount returns the total number of recorded hits.
func (s *Store) HitCount(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("store not initialized")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hits;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count hits: %w", err)
	}
	return n, nil
}
