// Package registry maintains the set of known target devices and their
// last-seen, selection, and LED state.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Grahev/Airsoft-Raspberry/internal/model"
	"github.com/Grahev/Airsoft-Raspberry/internal/store"
)

// Registry owns all Target records. Targets are never deleted, only
// deactivated, so historical hits always have a target to point at.
type Registry struct {
	store  *store.Store
	logger *slog.Logger
}

// New constructs a registry backed by the given store.
func New(st *store.Store, logger *slog.Logger) *Registry {
	return &Registry{store: st, logger: logger}
}

// Upsert creates the target on first sight or refreshes the supplied fields.
// Nil fields keep their stored value.
func (r *Registry) Upsert(ctx context.Context, systemID, targetID string, name *string, seen *time.Time) error {
	if systemID == "" || targetID == "" {
		return fmt.Errorf("target key must not be empty: %w", store.ErrInvalidArgument)
	}
	return r.store.UpsertTarget(ctx, systemID, targetID, name, seen)
}

// Observe records an announce: the target becomes known with a refreshed
// last-seen timestamp, named "{system}/{target}" until an operator renames it.
func (r *Registry) Observe(ctx context.Context, systemID, targetID string, seen time.Time) error {
	name := systemID + "/" + targetID
	if err := r.Upsert(ctx, systemID, targetID, &name, &seen); err != nil {
		return err
	}
	r.logger.Info("target announced", "system", systemID, "target", targetID)
	return nil
}

// SetActive toggles operator selection of a known target.
func (r *Registry) SetActive(ctx context.Context, systemID, targetID string, active bool) error {
	return r.store.SetTargetActive(ctx, systemID, targetID, active)
}

// SetLED validates and stores the LED state for a target. Publishing the
// matching command to the device is the caller's concern.
func (r *Registry) SetLED(ctx context.Context, systemID, targetID, color string, timeMS int) error {
	if timeMS < 0 {
		return fmt.Errorf("led duration %dms: %w", timeMS, store.ErrInvalidArgument)
	}
	return r.store.SetTargetLED(ctx, systemID, targetID, color, timeMS)
}

// List returns all known targets in (system_id, target_id) order.
func (r *Registry) List(ctx context.Context) ([]model.Target, error) {
	return r.store.ListTargets(ctx)
}
