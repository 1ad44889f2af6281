package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Grahev/Airsoft-Raspberry/internal/config"
	"github.com/Grahev/Airsoft-Raspberry/internal/hub"
	"github.com/Grahev/Airsoft-Raspberry/internal/model"
	"github.com/Grahev/Airsoft-Raspberry/internal/registry"
	"github.com/Grahev/Airsoft-Raspberry/internal/session"
	"github.com/Grahev/Airsoft-Raspberry/internal/store"
)

type ledRecorder struct {
	calls []string
	err   error
}

func (l *ledRecorder) PublishLED(systemID, targetID, color string, timeMS int) error {
	l.calls = append(l.calls, systemID+"/"+targetID+"/"+color)
	return l.err
}

func newTestApp(t *testing.T) (*App, *ledRecorder) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	led := &ledRecorder{}

	a := &App{
		cfg:      config.Config{ViewerBuffer: 8, EventQueueSize: 16},
		logger:   logger,
		store:    st,
		registry: registry.New(st, logger),
		session:  session.New(st, logger),
		led:      led,
		events:   make(chan model.TargetEvent, 16),
	}
	a.hub = hub.New(logger, a.buildSnapshot)
	return a, led
}

func announceEvent(systemID, targetID string) model.TargetEvent {
	return model.TargetEvent{
		Kind:       model.EventAnnounce,
		SystemID:   systemID,
		TargetID:   targetID,
		ReceivedAt: time.Now().UTC(),
	}
}

func hitEvent(systemID, targetID string, amp *int) model.TargetEvent {
	return model.TargetEvent{
		Kind:       model.EventHit,
		SystemID:   systemID,
		TargetID:   targetID,
		Amp:        amp,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()

	Convey("Given a freshly wired service", t, func() {
		a, _ := newTestApp(t)

		Convey("When target A/1 announces itself", func() {
			a.handleEvent(ctx, announceEvent("A", "1"))

			targets, err := a.registry.List(ctx)
			So(err, ShouldBeNil)
			So(targets, ShouldHaveLength, 1)
			So(targets[0].Active, ShouldBeFalse)
			So(targets[0].LastSeen.IsZero(), ShouldBeFalse)

			Convey("And the operator selects it and starts a free-for-all", func() {
				So(a.registry.SetActive(ctx, "A", "1", true), ShouldBeNil)

				p1, err := a.store.CreatePlayer(ctx, "alice")
				So(err, ShouldBeNil)
				p2, err := a.store.CreatePlayer(ctx, "bob")
				So(err, ShouldBeNil)

				game, err := a.session.Start(ctx, "ffa", nil, []int64{p1.ID, p2.ID})
				So(err, ShouldBeNil)

				Convey("Then a hit with amp 42 is attributed to the new game", func() {
					amp := 42
					a.handleEvent(ctx, hitEvent("A", "1", &amp))

					scores, err := a.store.ScoresByTarget(ctx)
					So(err, ShouldBeNil)
					So(scores, ShouldHaveLength, 1)
					So(scores[0].SystemID, ShouldEqual, "A")
					So(scores[0].TargetID, ShouldEqual, "1")
					So(scores[0].Hits, ShouldEqual, 1)

					// Inbound hits never carry a player id, so player scores stay at zero.
					playerScores, err := a.store.ScoresByPlayer(ctx)
					So(err, ShouldBeNil)
					So(playerScores, ShouldHaveLength, 2)
					So(playerScores[0].Hits, ShouldEqual, 0)
					So(playerScores[1].Hits, ShouldEqual, 0)

					current, err := a.session.Current(ctx)
					So(err, ShouldBeNil)
					So(current.ID, ShouldEqual, game.ID)
				})
			})
		})
	})
}

func TestSnapshotCompleteness(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with targets, players, and an active game", t, func() {
		a, _ := newTestApp(t)

		a.handleEvent(ctx, announceEvent("A", "1"))
		a.handleEvent(ctx, announceEvent("A", "2"))
		a.handleEvent(ctx, announceEvent("B", "1"))

		p1, err := a.store.CreatePlayer(ctx, "alice")
		So(err, ShouldBeNil)
		p2, err := a.store.CreatePlayer(ctx, "bob")
		So(err, ShouldBeNil)

		game, err := a.session.Start(ctx, "ffa", nil, []int64{p1.ID, p2.ID})
		So(err, ShouldBeNil)

		Convey("When a viewer joins late", func() {
			v := hub.NewViewer(8)
			a.hub.Register(ctx, v)

			Convey("Then its snapshot contains exactly the current state", func() {
				var snap model.Snapshot
				select {
				case frame := <-v.Frames():
					So(json.Unmarshal(frame, &snap), ShouldBeNil)
				default:
					t.Fatal("no snapshot delivered on register")
				}

				So(snap.Type, ShouldEqual, model.MessageSnapshot)
				So(snap.Targets, ShouldHaveLength, 3)
				So(snap.Players, ShouldHaveLength, 2)
				So(snap.ScoresTargets, ShouldBeEmpty)
				So(snap.ScoresPlayers, ShouldHaveLength, 2)
				So(snap.ScoresPlayers[0].Hits, ShouldEqual, 0)
				So(snap.Game, ShouldNotBeNil)
				So(snap.Game.ID, ShouldEqual, game.ID)
			})
		})
	})
}

func TestBroadcastMessages(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with one connected viewer", t, func() {
		a, _ := newTestApp(t)

		v := hub.NewViewer(8)
		a.hub.Register(ctx, v)
		<-v.Frames() // initial snapshot

		Convey("When a target announces", func() {
			a.handleEvent(ctx, announceEvent("A", "1"))

			Convey("Then an announce message with the refreshed target list is pushed", func() {
				var msg model.AnnounceMessage
				So(json.Unmarshal(<-v.Frames(), &msg), ShouldBeNil)
				So(msg.Type, ShouldEqual, model.MessageAnnounce)
				So(msg.Targets, ShouldHaveLength, 1)
			})

			Convey("And a subsequent hit pushes refreshed aggregates", func() {
				<-v.Frames() // announce
				a.handleEvent(ctx, hitEvent("A", "1", nil))

				var msg model.HitMessage
				So(json.Unmarshal(<-v.Frames(), &msg), ShouldBeNil)
				So(msg.Type, ShouldEqual, model.MessageHit)
				So(msg.SystemID, ShouldEqual, "A")
				So(msg.TargetID, ShouldEqual, "1")
				So(msg.ScoresTargets, ShouldHaveLength, 1)
				So(msg.ScoresTargets[0].Hits, ShouldEqual, 1)
			})
		})

		Convey("When a game starts", func() {
			_, err := a.session.Start(ctx, "ffa", nil, nil)
			So(err, ShouldBeNil)
			a.broadcastGame(ctx)

			Convey("Then a game message carries the current game", func() {
				var msg model.GameMessage
				So(json.Unmarshal(<-v.Frames(), &msg), ShouldBeNil)
				So(msg.Type, ShouldEqual, model.MessageGame)
				So(msg.Game, ShouldNotBeNil)
				So(msg.Game.Mode, ShouldEqual, "ffa")
			})
		})
	})
}

func TestHTTPSurface(t *testing.T) {
	Convey("Given the HTTP API", t, func() {
		a, led := newTestApp(t)
		srv := httptest.NewServer(a.routes())
		defer srv.Close()

		ctx := context.Background()
		a.handleEvent(ctx, announceEvent("A", "1"))

		Convey("Selecting a known target succeeds", func() {
			resp := postJSON(t, srv.URL+"/api/targets/select",
				map[string]any{"system_id": "A", "target_id": "1", "active": true})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("Selecting an unknown target is a 404", func() {
			resp := postJSON(t, srv.URL+"/api/targets/select",
				map[string]any{"system_id": "Z", "target_id": "9", "active": true})
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("A valid LED command is stored and relayed", func() {
			resp := postJSON(t, srv.URL+"/api/targets/A/1/led",
				map[string]any{"color": "red", "time_ms": 500})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(led.calls, ShouldResemble, []string{"A/1/red"})
		})

		Convey("A negative LED duration is a 400 and nothing is relayed", func() {
			resp := postJSON(t, srv.URL+"/api/targets/A/1/led",
				map[string]any{"color": "red", "time_ms": -5})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(led.calls, ShouldBeEmpty)
		})

		Convey("Player CRUD round-trips", func() {
			resp := postJSON(t, srv.URL+"/api/players", map[string]any{"name": "alice"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var body struct {
				Players []model.Player `json:"players"`
			}
			So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
			So(body.Players, ShouldHaveLength, 1)

			req, err := http.NewRequest(http.MethodDelete,
				srv.URL+"/api/players/"+itoa(body.Players[0].ID), nil)
			So(err, ShouldBeNil)
			del, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			defer del.Body.Close()
			So(del.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("Game start and stop round-trip", func() {
			resp := postJSON(t, srv.URL+"/api/games/start",
				map[string]any{"mode": "ffa", "params": map[string]any{"limit": 5}})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			current, err := http.Get(srv.URL + "/api/games/current")
			So(err, ShouldBeNil)
			defer current.Body.Close()

			var body struct {
				Game *model.Game `json:"game"`
			}
			So(json.NewDecoder(current.Body).Decode(&body), ShouldBeNil)
			So(body.Game, ShouldNotBeNil)
			So(body.Game.Mode, ShouldEqual, "ffa")

			stop := postJSON(t, srv.URL+"/api/games/stop", map[string]any{})
			So(stop.StatusCode, ShouldEqual, http.StatusOK)

			var stopped struct {
				Game *model.Game `json:"game"`
			}
			So(json.NewDecoder(stop.Body).Decode(&stopped), ShouldBeNil)
			So(stopped.Game, ShouldBeNil)
		})

		Convey("Starting a game without a mode is a 400", func() {
			resp := postJSON(t, srv.URL+"/api/games/start", map[string]any{})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
