package registry_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Grahev/Airsoft-Raspberry/internal/registry"
	"github.com/Grahev/Airsoft-Raspberry/internal/store"
)

func newTestRegistry(t *testing.T) *registry.Registry {
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
	return registry.New(st, logger)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	Convey("Given a target registry", t, func() {
		reg := newTestRegistry(t)

		Convey("When a target announces itself", func() {
			seen := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
			So(reg.Observe(ctx, "A", "1", seen), ShouldBeNil)

			Convey("Then it appears inactive with the default name and refreshed last-seen", func() {
				targets, err := reg.List(ctx)
				So(err, ShouldBeNil)
				So(targets, ShouldHaveLength, 1)
				So(targets[0].Name, ShouldEqual, "A/1")
				So(targets[0].Active, ShouldBeFalse)
				So(targets[0].LastSeen.Equal(seen), ShouldBeTrue)
			})
		})

		Convey("When upserting with an empty key", func() {
			err := reg.Upsert(ctx, "", "1", nil, nil)

			Convey("Then it is rejected as invalid", func() {
				So(errors.Is(err, store.ErrInvalidArgument), ShouldBeTrue)
			})
		})

		Convey("When setting LED state", func() {
			seen := time.Now()
			So(reg.Observe(ctx, "A", "1", seen), ShouldBeNil)

			Convey("Then a negative duration is rejected", func() {
				err := reg.SetLED(ctx, "A", "1", "red", -1)
				So(errors.Is(err, store.ErrInvalidArgument), ShouldBeTrue)
			})

			Convey("And a valid command is stored", func() {
				So(reg.SetLED(ctx, "A", "1", "green", 250), ShouldBeNil)

				targets, err := reg.List(ctx)
				So(err, ShouldBeNil)
				So(targets[0].LEDColor, ShouldEqual, "green")
				So(targets[0].LEDTimeMS, ShouldEqual, 250)
			})

			Convey("And a command for an unknown target yields ErrNotFound", func() {
				err := reg.SetLED(ctx, "Z", "9", "red", 100)
				So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When activating an unknown target", func() {
			err := reg.SetActive(ctx, "Z", "9", true)

			Convey("Then it yields ErrNotFound", func() {
				So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
