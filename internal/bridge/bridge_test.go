package bridge_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Grahev/Airsoft-Raspberry/internal/bridge"
	"github.com/Grahev/Airsoft-Raspberry/internal/model"
)

func TestParseTopic(t *testing.T) {
	Convey("Given inbound topic strings", t, func() {
		Convey("A hit topic parses into its parts", func() {
			systemID, targetID, kind, ok := bridge.ParseTopic("targets/A/1/hit")
			So(ok, ShouldBeTrue)
			So(systemID, ShouldEqual, "A")
			So(targetID, ShouldEqual, "1")
			So(kind, ShouldEqual, model.EventHit)
		})

		Convey("An announce topic parses into its parts", func() {
			systemID, targetID, kind, ok := bridge.ParseTopic("targets/base/t7/announce")
			So(ok, ShouldBeTrue)
			So(systemID, ShouldEqual, "base")
			So(targetID, ShouldEqual, "t7")
			So(kind, ShouldEqual, model.EventAnnounce)
		})

		Convey("Unrelated or malformed topics are rejected", func() {
			cases := []string{
				"targets/A/1/cmd",
				"targets/A/1",
				"targets//1/hit",
				"targets/A//hit",
				"sensors/A/1/hit",
				"",
			}
			for _, topic := range cases {
				_, _, _, ok := bridge.ParseTopic(topic)
				So(ok, ShouldBeFalse)
			}
		})
	})
}

func TestDecodeHitAmp(t *testing.T) {
	Convey("Given hit payload bodies", t, func() {
		Convey("A numeric amp is extracted", func() {
			amp, err := bridge.DecodeHitAmp([]byte(`{"amp": 42}`))
			So(err, ShouldBeNil)
			So(amp, ShouldNotBeNil)
			So(*amp, ShouldEqual, 42)
		})

		Convey("A missing amp means no amplitude", func() {
			amp, err := bridge.DecodeHitAmp([]byte(`{}`))
			So(err, ShouldBeNil)
			So(amp, ShouldBeNil)
		})

		Convey("A non-numeric amp means no amplitude, not an error", func() {
			amp, err := bridge.DecodeHitAmp([]byte(`{"amp": "loud"}`))
			So(err, ShouldBeNil)
			So(amp, ShouldBeNil)
		})

		Convey("An empty payload means no amplitude", func() {
			amp, err := bridge.DecodeHitAmp(nil)
			So(err, ShouldBeNil)
			So(amp, ShouldBeNil)
		})

		Convey("Malformed JSON is tolerated as an empty payload", func() {
			amp, err := bridge.DecodeHitAmp([]byte(`{"amp":`))
			So(err, ShouldNotBeNil)
			So(amp, ShouldBeNil)
		})
	})
}

func TestCommandTopic(t *testing.T) {
	Convey("The outbound command topic follows the wire contract", t, func() {
		So(bridge.CommandTopic("A", "1"), ShouldEqual, "targets/A/1/cmd")
	})
}
