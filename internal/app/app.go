package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/Grahev/Airsoft-Raspberry/internal/bridge"
	"github.com/Grahev/Airsoft-Raspberry/internal/config"
	"github.com/Grahev/Airsoft-Raspberry/internal/hub"
	"github.com/Grahev/Airsoft-Raspberry/internal/model"
	"github.com/Grahev/Airsoft-Raspberry/internal/registry"
	"github.com/Grahev/Airsoft-Raspberry/internal/session"
	"github.com/Grahev/Airsoft-Raspberry/internal/store"
)

// ledPublisher relays an LED command toward the physical target. Satisfied by
// the MQTT bridge; tests substitute a stub.
type ledPublisher interface {
	PublishLED(systemID, targetID, color string, timeMS int) error
}

// App wires together the services and manages their lifecycle.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	registry *registry.Registry
	session  *session.Session
	hub      *hub.Hub
	bridge   *bridge.Bridge
	led      ledPublisher
	events   chan model.TargetEvent
	mdns     *zeroconf.Server
}

// New constructs a new application instance.
func New(cfg config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run starts all configured services and blocks until the context is
// cancelled or an error occurs.
func (a *App) Run(ctx context.Context) error {
	db, err := store.Open(a.cfg.DatabasePath)
	if err != nil {
		return err
	}
	a.store = db

	if err := a.store.InitSchema(ctx); err != nil {
		return err
	}

	defer func() {
		if cerr := a.store.Close(); cerr != nil {
			a.logger.Error("close store", "error", cerr)
		}
	}()

	a.registry = registry.New(a.store, a.logger)
	a.session = session.New(a.store, a.logger)
	a.hub = hub.New(a.logger, a.buildSnapshot)
	a.events = make(chan model.TargetEvent, a.cfg.EventQueueSize)

	a.bridge = bridge.New(bridge.Options{
		BrokerURL: a.cfg.MQTTBrokerURL,
		Keepalive: a.cfg.MQTTKeepalive,
	}, a.logger, a.enqueueEvent)
	a.led = a.bridge

	if err := a.bridge.Start(); err != nil {
		return err
	}
	defer a.bridge.Stop()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.processEvents(ctx)
	}()

	httpErrCh := make(chan error, 1)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler: a.routes(),
	}

	go func() {
		a.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.cfg.EnableMDNS {
		if err := a.startMDNS(a.cfg.HTTPPort); err != nil {
			a.logger.Warn("mDNS advertisement failed", "error", err)
		}
		defer a.stopMDNS()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		a.logger.Info("http server stopped")

		<-loopDone
		return nil
	case err := <-httpErrCh:
		return err
	}
}

// enqueueEvent hands a decoded transport event to the processing loop. It is
// invoked from the MQTT client's receive goroutine and never blocks there: if
// the queue is full the event is dropped, consistent with the at-most-once
// transport semantics.
func (a *App) enqueueEvent(event model.TargetEvent) {
	select {
	case a.events <- event:
	default:
		a.logger.Warn("event queue full, dropping event",
			"kind", event.Kind, "system", event.SystemID, "target", event.TargetID)
	}
}

// processEvents is the single mutation path for transport-driven state. Each
// event updates the store and then pushes the corresponding message to all
// live viewers.
func (a *App) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-a.events:
			a.handleEvent(ctx, event)
		}
	}
}

func (a *App) handleEvent(ctx context.Context, event model.TargetEvent) {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	switch event.Kind {
	case model.EventAnnounce:
		a.handleAnnounce(opCtx, event)
	case model.EventHit:
		a.handleHit(opCtx, event)
	default:
		a.logger.Warn("unknown event kind", "kind", event.Kind)
	}
}

func (a *App) handleAnnounce(ctx context.Context, event model.TargetEvent) {
	if err := a.registry.Observe(ctx, event.SystemID, event.TargetID, event.ReceivedAt); err != nil {
		a.logger.Error("failed to record announce",
			"system", event.SystemID, "target", event.TargetID, "error", err)
		return
	}

	targets, err := a.registry.List(ctx)
	if err != nil {
		a.logger.Error("failed to list targets after announce", "error", err)
		return
	}

	a.hub.Broadcast(model.AnnounceMessage{Type: model.MessageAnnounce, Targets: targets})
}

func (a *App) handleHit(ctx context.Context, event model.TargetEvent) {
	hit, err := a.session.RecordHit(ctx, event.SystemID, event.TargetID, event.Amp)
	if err != nil {
		a.logger.Error("failed to persist hit",
			"system", event.SystemID, "target", event.TargetID, "error", err)
		return
	}

	// A hit also proves the target is alive.
	seen := event.ReceivedAt
	if err := a.registry.Upsert(ctx, event.SystemID, event.TargetID, nil, &seen); err != nil {
		a.logger.Error("failed to refresh target last-seen", "error", err)
	}

	a.logger.Info("hit recorded",
		"system", event.SystemID, "target", event.TargetID,
		"game", gameIDForLog(hit.GameID), "amp", ampForLog(hit.Amp))

	scoresTargets, scoresPlayers, err := a.loadScores(ctx)
	if err != nil {
		a.logger.Error("failed to load scores after hit", "error", err)
		return
	}

	a.hub.Broadcast(model.HitMessage{
		Type:          model.MessageHit,
		SystemID:      event.SystemID,
		TargetID:      event.TargetID,
		ScoresTargets: scoresTargets,
		ScoresPlayers: scoresPlayers,
	})
}

// buildSnapshot assembles the full-state message a viewer receives on join.
func (a *App) buildSnapshot(ctx context.Context) (any, error) {
	targets, err := a.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	players, err := a.store.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}
	scoresTargets, scoresPlayers, err := a.loadScores(ctx)
	if err != nil {
		return nil, err
	}
	game, err := a.session.Current(ctx)
	if err != nil {
		return nil, err
	}

	return model.Snapshot{
		Type:          model.MessageSnapshot,
		Targets:       targets,
		Players:       players,
		ScoresTargets: scoresTargets,
		ScoresPlayers: scoresPlayers,
		Game:          game,
	}, nil
}

func (a *App) loadScores(ctx context.Context) ([]model.TargetScore, []model.PlayerScore, error) {
	scoresTargets, err := a.store.ScoresByTarget(ctx)
	if err != nil {
		return nil, nil, err
	}
	scoresPlayers, err := a.store.ScoresByPlayer(ctx)
	if err != nil {
		return nil, nil, err
	}
	return scoresTargets, scoresPlayers, nil
}

// broadcastGame pushes the current game and refreshed aggregates after an
// operator starts or stops a game.
func (a *App) broadcastGame(ctx context.Context) {
	game, err := a.session.Current(ctx)
	if err != nil {
		a.logger.Error("failed to load current game for broadcast", "error", err)
		return
	}
	scoresTargets, scoresPlayers, err := a.loadScores(ctx)
	if err != nil {
		a.logger.Error("failed to load scores for game broadcast", "error", err)
		return
	}

	a.hub.Broadcast(model.GameMessage{
		Type:          model.MessageGame,
		Game:          game,
		ScoresTargets: scoresTargets,
		ScoresPlayers: scoresPlayers,
	})
}

func gameIDForLog(id *int64) any {
	if id == nil {
		return "none"
	}
	return *id
}

func ampForLog(amp *int) any {
	if amp == nil {
		return "none"
	}
	return *amp
}
