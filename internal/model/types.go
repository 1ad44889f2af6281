package model

import "time"

// Target describes a physical hit sensor identified by a (system_id, target_id) pair.
type Target struct {
	SystemID  string    `json:"system_id"`
	TargetID  string    `json:"target_id"`
	Name      string    `json:"name"`
	LastSeen  time.Time `json:"last_seen"`
	Active    bool      `json:"active"`
	LEDColor  string    `json:"led_color"`
	LEDTimeMS int       `json:"led_time_ms"`
}

// Key returns the canonical "{system}/{target}" form used as the default display name.
func (t Target) Key() string {
	return t.SystemID + "/" + t.TargetID
}

// Player is an operator-managed participant.
type Player struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// GamePlayer binds a player to a game, optionally pinned to a target key.
type GamePlayer struct {
	PlayerID  int64   `json:"player_id"`
	TargetKey *string `json:"target_key,omitempty"`
}

// Game is a bounded scoring session. At most one game is active at any time.
type Game struct {
	ID        int64          `json:"id"`
	Mode      string         `json:"mode"`
	Params    map[string]any `json:"params"`
	StartedAt time.Time      `json:"started_ts"`
	EndedAt   *time.Time     `json:"ended_ts,omitempty"`
	Active    bool           `json:"active"`
	Players   []GamePlayer   `json:"players"`
}

// Hit is an immutable record of a detected impact. GameID is nil when no game
// was active at processing time; PlayerID may dangle after a player is deleted.
type Hit struct {
	ID       int64     `json:"id"`
	Ts       time.Time `json:"ts"`
	GameID   *int64    `json:"game_id,omitempty"`
	SystemID string    `json:"system_id"`
	TargetID string    `json:"target_id"`
	Amp      *int      `json:"amp,omitempty"`
	PlayerID *int64    `json:"player_id,omitempty"`
}

// TargetScore is the hit count for one target.
type TargetScore struct {
	SystemID string `json:"system_id"`
	TargetID string `json:"target_id"`
	Hits     int    `json:"hits"`
}

// PlayerScore is the hit count for one player. Players with no hits are included.
type PlayerScore struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
	Hits     int    `json:"hits"`
}

// EventKind discriminates inbound sensor events.
type EventKind string

const (
	EventHit      EventKind = "hit"
	EventAnnounce EventKind = "announce"
)

// TargetEvent is a decoded inbound transport message.
type TargetEvent struct {
	Kind       EventKind
	SystemID   string
	TargetID   string
	Amp        *int
	ReceivedAt time.Time
}
