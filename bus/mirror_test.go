package bus_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/bus"
	"github.com/simpleiot/assettracker/event"
	"github.com/simpleiot/assettracker/testutil"
)

func TestMirror(t *testing.T) {
	nc, _, stop, err := testutil.NatsConnect()
	if err != nil {
		t.Fatal("error starting nats: ", err)
	}
	defer stop()

	msgs := make(chan *nats.Msg, 10)
	sub, err := nc.ChanSubscribe(bus.MirrorWildcard("dev1"), msgs)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	b := bus.New()
	bus.NewMirror(b, nc, "dev1", logrus.NewEntry(logrus.StandardLogger()))

	b.Publish(event.CloudConnected{})

	select {
	case m := <-msgs:
		if m.Subject != "tracker.dev1.events.cloud" {
			t.Error("wrong subject: ", m.Subject)
		}
		var mm bus.MirrorMsg
		if err := json.Unmarshal(m.Data, &mm); err != nil {
			t.Fatal("error decoding mirror msg: ", err)
		}
		if mm.Kind != "connected" || mm.Source != "cloud" {
			t.Error("wrong mirror msg: ", mm)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for mirrored event")
	}
}
