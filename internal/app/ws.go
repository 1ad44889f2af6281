package app

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Grahev/Airsoft-Raspberry/internal/hub"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Viewers are field tablets on the local network; no origin policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades a viewer connection, registers it with the hub (which
// queues the snapshot), and pumps frames until either side goes away.
func (a *App) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	viewer := hub.NewViewer(a.cfg.ViewerBuffer)
	a.hub.Register(r.Context(), viewer)
	a.logger.Info("viewer connected", "viewer", viewer.ID(), "remote", conn.RemoteAddr().String())

	go a.writePump(conn, viewer)
	a.readPump(conn, viewer)
}

// writePump drains the viewer's frame channel onto the wire. Any write error
// marks the viewer broken; the hub removes it on the next delivery attempt.
func (a *App) writePump(conn *websocket.Conn, viewer *hub.Viewer) {
	defer conn.Close()

	for frame := range viewer.Frames() {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			viewer.Close()
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			a.logger.Debug("viewer write failed", "viewer", viewer.ID(), "error", err)
			viewer.Close()
			return
		}
	}
}

// readPump discards inbound frames (viewer messages are currently unused) and
// unregisters the viewer once the connection closes.
func (a *App) readPump(conn *websocket.Conn, viewer *hub.Viewer) {
	defer func() {
		a.hub.Unregister(viewer)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
