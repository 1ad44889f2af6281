package model

// Message type discriminators sent to live viewers.
const (
	MessageSnapshot = "snapshot"
	MessageAnnounce = "announce"
	MessageHit      = "hit"
	MessageGame     = "game"
)

// Snapshot carries the full current state, sent once to each viewer on join.
type Snapshot struct {
	Type          string        `json:"type"`
	Targets       []Target      `json:"targets"`
	Players       []Player      `json:"players"`
	ScoresTargets []TargetScore `json:"scores_targets"`
	ScoresPlayers []PlayerScore `json:"scores_players"`
	Game          *Game         `json:"game"`
}

// AnnounceMessage is pushed when a target becomes known or reachable.
type AnnounceMessage struct {
	Type    string   `json:"type"`
	Targets []Target `json:"targets"`
}

// HitMessage is pushed after a hit is recorded. It carries refreshed
// aggregates rather than the full snapshot.
type HitMessage struct {
	Type          string        `json:"type"`
	SystemID      string        `json:"system_id"`
	TargetID      string        `json:"target_id"`
	ScoresTargets []TargetScore `json:"scores_targets"`
	ScoresPlayers []PlayerScore `json:"scores_players"`
}

// GameMessage is pushed when a game starts or stops.
type GameMessage struct {
	Type          string        `json:"type"`
	Game          *Game         `json:"game"`
	ScoresTargets []TargetScore `json:"scores_targets"`
	ScoresPlayers []PlayerScore `json:"scores_players"`
}
