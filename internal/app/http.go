package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Grahev/Airsoft-Raspberry/internal/model"
	"github.com/Grahev/Airsoft-Raspberry/internal/store"
)

func (a *App) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.handleReadyz).Methods(http.MethodGet)

	r.HandleFunc("/api/targets", a.handleListTargets).Methods(http.MethodGet)
	r.HandleFunc("/api/targets/select", a.handleTargetSelect).Methods(http.MethodPost)
	r.HandleFunc("/api/targets/{system_id}/{target_id}/led", a.handleTargetLED).Methods(http.MethodPost)

	r.HandleFunc("/api/players", a.handleListPlayers).Methods(http.MethodGet)
	r.HandleFunc("/api/players", a.handleAddPlayer).Methods(http.MethodPost)
	r.HandleFunc("/api/players/{id}", a.handleDeletePlayer).Methods(http.MethodDelete)

	r.HandleFunc("/api/scores/targets", a.handleScoresTargets).Methods(http.MethodGet)
	r.HandleFunc("/api/scores/players", a.handleScoresPlayers).Methods(http.MethodGet)

	r.HandleFunc("/api/games/start", a.handleGameStart).Methods(http.MethodPost)
	r.HandleFunc("/api/games/stop", a.handleGameStop).Methods(http.MethodPost)
	r.HandleFunc("/api/games/current", a.handleGameCurrent).Methods(http.MethodGet)

	r.HandleFunc("/ws", a.handleWS)

	r.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir(a.cfg.StaticDir))))
	r.PathPrefix("/").HandlerFunc(a.handleIndex)

	return r
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if a.store == nil || a.bridge == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"starting"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func (a *App) handleListTargets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	targets, err := a.registry.List(ctx)
	if err != nil {
		a.httpError(w, "failed to load targets", err)
		return
	}

	writeJSON(w, a.logger, struct {
		Targets []model.Target `json:"targets"`
	}{Targets: targets})
}

func (a *App) handleTargetSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SystemID string `json:"system_id"`
		TargetID string `json:"target_id"`
		Active   bool   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := a.registry.SetActive(ctx, req.SystemID, req.TargetID, req.Active); err != nil {
		a.httpError(w, "failed to update target", err)
		return
	}

	writeJSON(w, a.logger, okResponse{OK: true})
}

func (a *App) handleTargetLED(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	systemID := vars["system_id"]
	targetID := vars["target_id"]

	var req struct {
		Color  string `json:"color"`
		TimeMS int    `json:"time_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := a.registry.SetLED(ctx, systemID, targetID, req.Color, req.TimeMS); err != nil {
		a.httpError(w, "failed to set led", err)
		return
	}

	// Best effort: the stored state is authoritative, delivery to the device
	// is not guaranteed.
	if err := a.led.PublishLED(systemID, targetID, req.Color, req.TimeMS); err != nil {
		a.logger.Warn("led command not delivered",
			"system", systemID, "target", targetID, "error", err)
	}

	writeJSON(w, a.logger, okResponse{OK: true})
}

func (a *App) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	players, err := a.store.ListPlayers(ctx)
	if err != nil {
		a.httpError(w, "failed to load players", err)
		return
	}

	writeJSON(w, a.logger, playersResponse{Players: players})
}

func (a *App) handleAddPlayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if _, err := a.store.CreatePlayer(ctx, req.Name); err != nil {
		a.httpError(w, "failed to add player", err)
		return
	}

	players, err := a.store.ListPlayers(ctx)
	if err != nil {
		a.httpError(w, "failed to load players", err)
		return
	}

	writeJSON(w, a.logger, playersResponse{Players: players})
}

func (a *App) handleDeletePlayer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid player id", http.StatusBadRequest)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := a.store.DeletePlayer(ctx, id); err != nil {
		a.httpError(w, "failed to delete player", err)
		return
	}

	players, err := a.store.ListPlayers(ctx)
	if err != nil {
		a.httpError(w, "failed to load players", err)
		return
	}

	writeJSON(w, a.logger, playersResponse{Players: players})
}

func (a *App) handleScoresTargets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	scores, err := a.store.ScoresByTarget(ctx)
	if err != nil {
		a.httpError(w, "failed to load scores", err)
		return
	}

	writeJSON(w, a.logger, struct {
		Scores []model.TargetScore `json:"scores"`
	}{Scores: scores})
}

func (a *App) handleScoresPlayers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	scores, err := a.store.ScoresByPlayer(ctx)
	if err != nil {
		a.httpError(w, "failed to load scores", err)
		return
	}

	writeJSON(w, a.logger, struct {
		Scores []model.PlayerScore `json:"scores"`
	}{Scores: scores})
}

func (a *App) handleGameStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode      string         `json:"mode"`
		Params    map[string]any `json:"params"`
		PlayerIDs []int64        `json:"player_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.Mode == "" {
		http.Error(w, "mode required", http.StatusBadRequest)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	game, err := a.session.Start(ctx, req.Mode, req.Params, req.PlayerIDs)
	if err != nil {
		a.httpError(w, "failed to start game", err)
		return
	}

	a.broadcastGame(ctx)

	writeJSON(w, a.logger, struct {
		GameID int64      `json:"game_id"`
		Game   model.Game `json:"game"`
	}{GameID: game.ID, Game: game})
}

func (a *App) handleGameStop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	if err := a.session.Stop(ctx); err != nil {
		a.httpError(w, "failed to stop game", err)
		return
	}

	a.broadcastGame(ctx)

	game, err := a.session.Current(ctx)
	if err != nil {
		a.httpError(w, "failed to load current game", err)
		return
	}

	writeJSON(w, a.logger, gameResponse{Game: game})
}

func (a *App) handleGameCurrent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	game, err := a.session.Current(ctx)
	if err != nil {
		a.httpError(w, "failed to load current game", err)
		return
	}

	writeJSON(w, a.logger, gameResponse{Game: game})
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	fileServer := http.FileServer(http.Dir(a.cfg.StaticDir))
	fileServer.ServeHTTP(w, r)
}

type okResponse struct {
	OK bool `json:"ok"`
}

type playersResponse struct {
	Players []model.Player `json:"players"`
}

type gameResponse struct {
	Game *model.Game `json:"game"`
}

// httpError maps domain errors to status codes; anything else is a 500.
func (a *App) httpError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		a.logger.Error(msg, "error", err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 2*time.Second)
}
