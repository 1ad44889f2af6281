package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Grahev/Airsoft-Raspberry/internal/model"
)

// UpsertTarget inserts the target if absent, otherwise updates only the fields
// supplied; a nil name or seen timestamp leaves the stored value untouched.
func (s *Store) UpsertTarget(ctx context.Context, systemID, targetID string, name *string, seen *time.Time) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}

	var seenVal any
	if seen != nil {
		seenVal = formatTime(*seen)
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO targets (system_id, target_id, name, last_seen)
		 VALUES (?, ?, COALESCE(?, ''), COALESCE(?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now')))
		 ON CONFLICT(system_id, target_id) DO UPDATE SET
			 name = COALESCE(?, targets.name),
			 last_seen = COALESCE(?, targets.last_seen);`,
		systemID, targetID, name, seenVal, name, seenVal,
	)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

// SetTargetActive toggles selection of a known target.
func (s *Store) SetTargetActive(ctx context.Context, systemID, targetID string, active bool) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE targets SET active = ? WHERE system_id = ? AND target_id = ?;`,
		boolToInt(active), systemID, targetID,
	)
	if err != nil {
		return fmt.Errorf("set target active: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set target active: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("target %s/%s: %w", systemID, targetID, ErrNotFound)
	}
	return nil
}

// SetTargetLED records the most recent LED command for a target.
func (s *Store) SetTargetLED(ctx context.Context, systemID, targetID, color string, timeMS int) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE targets SET led_color = ?, led_time_ms = ? WHERE system_id = ? AND target_id = ?;`,
		color, timeMS, systemID, targetID,
	)
	if err != nil {
		return fmt.Errorf("set target led: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set target led: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("target %s/%s: %w", systemID, targetID, ErrNotFound)
	}
	return nil
}

// ListTargets returns all targets ordered by (system_id, target_id).
func (s *Store) ListTargets(ctx context.Context) ([]model.Target, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT system_id, target_id, name, last_seen, active, led_color, led_time_ms
		 FROM targets
		 ORDER BY system_id, target_id;`)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	targets := make([]model.Target, 0)
	for rows.Next() {
		var (
			t           model.Target
			lastSeenStr string
			active      int
		)
		if err := rows.Scan(&t.SystemID, &t.TargetID, &t.Name, &lastSeenStr, &active, &t.LEDColor, &t.LEDTimeMS); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		t.LastSeen = parseTime(lastSeenStr)
		t.Active = active != 0
		targets = append(targets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}

	return targets, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
