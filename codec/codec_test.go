package codec

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/simpleiot/assettracker/data"
)

var codecs = map[string]Codec{"json": JSON{}, "proto": Proto{}}

func TestEncodeNoData(t *testing.T) {
	for name, c := range codecs {
		if _, err := c.EncodeSingle(Single{}); !errors.Is(err, ErrNoData) {
			t.Errorf("%v: expected ErrNoData for empty single, got: %v", name, err)
		}

		if _, err := c.EncodeBatch(Batch{}); !errors.Is(err, ErrNoData) {
			t.Errorf("%v: expected ErrNoData for empty batch, got: %v", name, err)
		}

		if _, err := c.EncodeUI(data.UI{Button: 1}); !errors.Is(err, ErrNoData) {
			t.Errorf("%v: expected ErrNoData for unqueued button, got: %v", name, err)
		}

		if _, err := c.EncodeAGPSRequest(data.AGPSRequest{}); !errors.Is(err, ErrNoData) {
			t.Errorf("%v: expected ErrNoData for empty agps request, got: %v", name, err)
		}
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := data.Config{
		Active:            false,
		ActiveWait:        30,
		PassiveWait:       60,
		MovementTimeout:   900,
		MovementThreshold: 10,
		GPSTimeout:        120,
	}

	for name, c := range codecs {
		b, err := c.EncodeConfig(cfg)
		if err != nil {
			t.Fatalf("%v: encode error: %v", name, err)
		}

		// JSON reports under state.reported, the cloud sends under
		// state.desired, so wrap the reported document for decode
		if name == "json" {
			var doc struct {
				State struct {
					Reported json.RawMessage `json:"reported"`
				} `json:"state"`
			}
			if err := json.Unmarshal(b, &doc); err != nil {
				t.Fatal(err)
			}
			b = doc.State.Reported
		}

		got, err := c.DecodeConfig(b, data.DefaultConfig())
		if err != nil {
			t.Fatalf("%v: decode error: %v", name, err)
		}

		if diff := cmp.Diff(cfg, got); diff != "" {
			t.Errorf("%v: config mismatch (-exp +got):\n%v", name, diff)
		}
	}
}

func TestJSONEncodeConfig(t *testing.T) {
	cfg := data.Config{
		Active:            false,
		ActiveWait:        30,
		PassiveWait:       60,
		MovementTimeout:   900,
		MovementThreshold: 10,
		GPSTimeout:        120,
	}

	b, err := JSON{}.EncodeConfig(cfg)
	if err != nil {
		t.Fatal("encode error: ", err)
	}

	exp := `{"state":{"reported":{"cfg":{"act":false,"actw":30,"pasw":60,"movt":900,"acct":10,"gpst":120}}}}`
	if string(b) != exp {
		t.Errorf("expected %v, got %v", exp, string(b))
	}

	// the device's own reported state is not configuration
	if _, err := (JSON{}).DecodeConfig(b, data.DefaultConfig()); !errors.Is(err, ErrNoData) {
		t.Error("expected ErrNoData decoding reported state, got: ", err)
	}
}

func TestJSONDecodeConfigPartial(t *testing.T) {
	base := data.DefaultConfig()

	got, err := JSON{}.DecodeConfig([]byte(`{"state":{"desired":{"cfg":{"movt":500,"actw":0}}}}`), base)
	if err != nil {
		t.Fatal("decode error: ", err)
	}

	exp := base
	exp.MovementTimeout = 500
	exp.ActiveWait = 0
	if got != exp {
		t.Errorf("expected %v, got %v", exp, got)
	}
}

func TestJSONDecodeConfigNoData(t *testing.T) {
	tests := []string{
		"\x01\x02binary agps",
		`[1,2,3]`,
		`{"state":{"desired":{"other":1}}}`,
		`{"appId":"AGPS"}`,
	}

	for _, test := range tests {
		_, err := JSON{}.DecodeConfig([]byte(test), data.DefaultConfig())
		if !errors.Is(err, ErrNoData) {
			t.Errorf("%q: expected ErrNoData, got: %v", test, err)
		}
	}

	_, err := JSON{}.DecodeConfig([]byte(`{"cfg":{"movt":"x"}}`), data.DefaultConfig())
	if err == nil || errors.Is(err, ErrNoData) {
		t.Error("expected decode error for bad cfg, got: ", err)
	}
}

func TestProtoDecodeConfigNoData(t *testing.T) {
	b, err := Proto{}.EncodeAGPSRequest(data.AGPSRequest{UTC: true})
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range [][]byte{b, {0xff, 0xff, 0xff}, nil} {
		if _, err := (Proto{}).DecodeConfig(p, data.DefaultConfig()); !errors.Is(err, ErrNoData) {
			t.Errorf("%x: expected ErrNoData, got: %v", p, err)
		}
	}
}

func TestJSONEncodeSingle(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	gps := data.GPS{Lat: 1, Lon: 2, Time: ts, Queued: true}
	bat := data.Battery{Voltage: 3600, Time: ts, Queued: true}

	b, err := JSON{}.EncodeSingle(Single{GPS: &gps, Battery: &bat})
	if err != nil {
		t.Fatal("encode error: ", err)
	}

	var doc struct {
		State struct {
			Reported map[string]struct {
				V  json.RawMessage `json:"v"`
				TS int64           `json:"ts"`
			} `json:"reported"`
		} `json:"state"`
	}

	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal("error decoding: ", err)
	}

	if len(doc.State.Reported) != 2 {
		t.Error("expected gps and bat, got: ", string(b))
	}

	if string(doc.State.Reported["bat"].V) != "3600" {
		t.Error("wrong bat value: ", string(doc.State.Reported["bat"].V))
	}

	if doc.State.Reported["gps"].TS != ts.UnixMilli() {
		t.Error("wrong gps ts: ", doc.State.Reported["gps"].TS)
	}
}

func TestJSONEncodeBatch(t *testing.T) {
	b, err := JSON{}.EncodeBatch(Batch{
		Env: []data.Env{{Temp: 20, Queued: true}, {Temp: 21, Queued: true}},
		UI:  []data.UI{{Button: 1, Queued: true}},
	})
	if err != nil {
		t.Fatal("encode error: ", err)
	}

	var doc map[string][]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}

	if len(doc["env"]) != 2 || len(doc["btn"]) != 1 || len(doc) != 2 {
		t.Error("unexpected batch: ", string(b))
	}
}

func TestNew(t *testing.T) {
	if _, err := New("json"); err != nil {
		t.Error(err)
	}
	if _, err := New("proto"); err != nil {
		t.Error(err)
	}
	if _, err := New("xml"); err == nil {
		t.Error("expected error for unknown codec")
	}
}
