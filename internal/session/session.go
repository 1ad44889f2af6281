// Package session owns the current-game state machine and hit attribution.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Grahev/Airsoft-Raspberry/internal/model"
	"github.com/Grahev/Airsoft-Raspberry/internal/store"
)

// Session moves between two states: idle (no active game) and active (exactly
// one). The mutex serializes start, stop, and hit attribution with each other;
// the store runs each of those as a single transaction so the invariant also
// holds at the persistence layer.
type Session struct {
	mu     sync.Mutex
	store  *store.Store
	logger *slog.Logger
}

// New constructs a session manager backed by the given store.
func New(st *store.Store, logger *slog.Logger) *Session {
	return &Session{store: st, logger: logger}
}

// Start creates a new active game, implicitly ending the previous one first.
// The end and the start commit together.
func (s *Session) Start(ctx context.Context, mode string, params map[string]any, playerIDs []int64) (model.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, err := s.store.StartGame(ctx, mode, params, playerIDs)
	if err != nil {
		return model.Game{}, err
	}
	s.logger.Info("game started", "game", game.ID, "mode", mode, "players", len(playerIDs))
	return game, nil
}

// Stop ends the active game. Stopping while idle is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ended, err := s.store.EndActiveGame(ctx)
	if err != nil {
		return err
	}
	if ended {
		s.logger.Info("game stopped")
	}
	return nil
}

// Current returns the active game, or nil when idle. Pure read.
func (s *Session) Current(ctx context.Context) (*model.Game, error) {
	return s.store.CurrentGame(ctx)
}

// RecordHit stores a hit attributed to whichever game is current at processing
// time. A start or stop issued concurrently waits for the attribution to
// finish rather than interleaving with it.
func (s *Session) RecordHit(ctx context.Context, systemID, targetID string, amp *int) (model.Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.RecordHit(ctx, systemID, targetID, amp, nil, time.Now().UTC())
}
