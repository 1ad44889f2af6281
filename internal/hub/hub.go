// Package hub fans out state-change messages to live viewer connections.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Viewer is an ephemeral handle for one live connection. It owns nothing but
// a bounded delivery channel; the transport write pump drains Frames.
type Viewer struct {
	id     string
	send   chan []byte
	closed atomic.Bool
}

// NewViewer creates a viewer with the given delivery buffer size.
func NewViewer(buffer int) *Viewer {
	if buffer <= 0 {
		buffer = 32
	}
	return &Viewer{id: uuid.NewString(), send: make(chan []byte, buffer)}
}

// ID returns the viewer's ephemeral identifier.
func (v *Viewer) ID() string { return v.id }

// Frames is the stream of encoded messages to write to the connection. It is
// closed when the viewer is removed from the hub.
func (v *Viewer) Frames() <-chan []byte { return v.send }

// Close marks the viewer broken so the hub drops it on the next delivery.
// Safe to call from the write pump on any transport error.
func (v *Viewer) Close() { v.closed.Store(true) }

// SnapshotFunc builds the full-state message sent to a viewer on join.
type SnapshotFunc func(context.Context) (any, error)

// Hub maintains the live viewer set. All set mutations and deliveries happen
// under one mutex, so a snapshot sent on register is ordered against every
// subsequent broadcast and a late joiner never misses an update.
type Hub struct {
	logger   *slog.Logger
	snapshot SnapshotFunc

	mu      sync.Mutex
	viewers map[*Viewer]struct{}
}

// New constructs a hub. snapshot may be nil, in which case joiners receive
// nothing until the first broadcast.
func New(logger *slog.Logger, snapshot SnapshotFunc) *Hub {
	return &Hub{
		logger:   logger,
		snapshot: snapshot,
		viewers:  make(map[*Viewer]struct{}),
	}
}

// Register adds the viewer and immediately queues a full snapshot so the
// late joiner is consistent with current state.
func (h *Hub) Register(ctx context.Context, v *Viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.viewers[v] = struct{}{}

	if h.snapshot == nil {
		return
	}
	msg, err := h.snapshot(ctx)
	if err != nil {
		h.logger.Error("snapshot build failed", "viewer", v.id, "error", err)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("snapshot encode failed", "viewer", v.id, "error", err)
		return
	}
	if !h.deliver(v, data) {
		h.remove(v)
	}
}

// Unregister removes the viewer. Idempotent.
func (h *Hub) Unregister(v *Viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(v)
}

// Broadcast delivers the message to every registered viewer. A failing viewer
// is removed from the set; it never blocks delivery to the others and never
// surfaces an error to the caller.
func (h *Hub) Broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("broadcast encode failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for v := range h.viewers {
		if !h.deliver(v, data) {
			h.remove(v)
		}
	}
}

// ViewerCount reports the current number of live viewers.
func (h *Hub) ViewerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// deliver queues data for one viewer without ever blocking. When the buffer is
// full the oldest queued frame is dropped to make room. Returns false only for
// a viewer that is closed or still unwritable after the drop.
func (h *Hub) deliver(v *Viewer, data []byte) bool {
	if v.closed.Load() {
		return false
	}

	select {
	case v.send <- data:
		return true
	default:
	}

	select {
	case <-v.send:
		h.logger.Debug("slow viewer, dropped oldest frame", "viewer", v.id)
	default:
	}

	select {
	case v.send <- data:
		return true
	default:
		return false
	}
}

// remove must be called with the mutex held.
func (h *Hub) remove(v *Viewer) {
	if _, ok := h.viewers[v]; !ok {
		return
	}
	delete(h.viewers, v)
	v.closed.Store(true)
	close(v.send)
	h.logger.Info("viewer removed", "viewer", v.id, "remaining", len(h.viewers))
}
