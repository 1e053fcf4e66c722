package codec

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/simpleiot/assettracker/data"
)

// JSON encodes payloads as device shadow documents:
//
//	{"state":{"reported":{"gps":{"v":{...},"ts":1700000000000}, ...}}}
//
// Batches are arrays per kind at the top level.
type JSON struct{}

type jsonValue struct {
	V  any   `json:"v"`
	TS int64 `json:"ts"`
}

type jsonGPS struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
	Acc float64 `json:"acc"`
	Alt float64 `json:"alt"`
	Spd float64 `json:"spd"`
	Hdg float64 `json:"hdg"`
}

type jsonEnv struct {
	Temp float64 `json:"temp"`
	Hum  float64 `json:"hum"`
}

type jsonRoam struct {
	Band   int    `json:"band"`
	Nw     string `json:"nw"`
	RSRP   int    `json:"rsrp"`
	Area   uint32 `json:"area"`
	MccMnc string `json:"mccmnc"`
	Cell   uint32 `json:"cell"`
	IP     string `json:"ip"`
}

type jsonDev struct {
	ICCID string `json:"iccid"`
	ModV  string `json:"modV"`
	BrdV  string `json:"brdV"`
	AppV  string `json:"appV"`
}

type jsonAccel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type jsonCfg struct {
	Act  *bool `json:"act,omitempty"`
	Actw *int  `json:"actw,omitempty"`
	Pasw *int  `json:"pasw,omitempty"`
	Movt *int  `json:"movt,omitempty"`
	Acct *int  `json:"acct,omitempty"`
	Gpst *int  `json:"gpst,omitempty"`
}

func ts(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func gpsValue(g data.GPS) jsonValue {
	return jsonValue{jsonGPS{g.Lon, g.Lat, g.Acc, g.Alt, g.Spd, g.Hdg}, ts(g.Time)}
}

func envValue(e data.Env) jsonValue {
	return jsonValue{jsonEnv{e.Temp, e.Hum}, ts(e.Time)}
}

func roamValue(m data.Modem) jsonValue {
	return jsonValue{jsonRoam{m.Band, m.Mode, m.RSRP, m.Area, m.MccMnc, m.ID, m.IP}, ts(m.Time)}
}

func devValue(m data.Modem) jsonValue {
	return jsonValue{jsonDev{m.ICCID, m.Firmware, m.Board, m.AppVersion}, ts(m.Time)}
}

func batValue(b data.Battery) jsonValue {
	return jsonValue{b.Voltage, ts(b.Time)}
}

func accValue(a data.Accel) jsonValue {
	return jsonValue{jsonAccel{a.X, a.Y, a.Z}, ts(a.Time)}
}

func btnValue(u data.UI) jsonValue {
	return jsonValue{u.Button, ts(u.Time)}
}

func reported(v any) ([]byte, error) {
	return json.Marshal(map[string]any{
		"state": map[string]any{"reported": v},
	})
}

// EncodeSingle implements Codec
func (JSON) EncodeSingle(s Single) ([]byte, error) {
	if s.Empty() {
		return nil, ErrNoData
	}

	r := map[string]any{}
	if s.GPS != nil {
		r["gps"] = gpsValue(*s.GPS)
	}
	if s.Env != nil {
		r["env"] = envValue(*s.Env)
	}
	if s.Modem != nil {
		r["roam"] = roamValue(*s.Modem)
		r["dev"] = devValue(*s.Modem)
	}
	if s.Battery != nil {
		r["bat"] = batValue(*s.Battery)
	}
	if s.Accel != nil {
		r["acc"] = accValue(*s.Accel)
	}
	if s.UI != nil {
		r["btn"] = btnValue(*s.UI)
	}

	return reported(r)
}

// EncodeBatch implements Codec
func (JSON) EncodeBatch(b Batch) ([]byte, error) {
	if b.Empty() {
		return nil, ErrNoData
	}

	r := map[string][]jsonValue{}
	for _, v := range b.GPS {
		r["gps"] = append(r["gps"], gpsValue(v))
	}
	for _, v := range b.Env {
		r["env"] = append(r["env"], envValue(v))
	}
	for _, v := range b.Modem {
		r["roam"] = append(r["roam"], roamValue(v))
	}
	for _, v := range b.Battery {
		r["bat"] = append(r["bat"], batValue(v))
	}
	for _, v := range b.Accel {
		r["acc"] = append(r["acc"], accValue(v))
	}
	for _, v := range b.UI {
		r["btn"] = append(r["btn"], btnValue(v))
	}

	return json.Marshal(r)
}

// EncodeUI implements Codec
func (JSON) EncodeUI(u data.UI) ([]byte, error) {
	if !u.Queued {
		return nil, ErrNoData
	}
	return json.Marshal(map[string]any{"btn": btnValue(u)})
}

// EncodeConfig implements Codec
func (JSON) EncodeConfig(c data.Config) ([]byte, error) {
	return reported(map[string]any{"cfg": jsonCfg{
		Act:  &c.Active,
		Actw: &c.ActiveWait,
		Pasw: &c.PassiveWait,
		Movt: &c.MovementTimeout,
		Acct: &c.MovementThreshold,
		Gpst: &c.GPSTimeout,
	}})
}

// DecodeConfig implements Codec. The cfg object is looked up at the top
// level, under "state", and under "state.desired".
func (JSON) DecodeConfig(payload []byte, base data.Config) (data.Config, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		// not a JSON object, so not a config document
		return base, ErrNoData
	}

	raw, ok := findCfg(doc)
	if !ok {
		return base, ErrNoData
	}

	var cfg jsonCfg
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return base, errors.Wrap(err, "decoding cfg")
	}

	if cfg.Act != nil {
		base.Active = *cfg.Act
	}
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	set(&base.ActiveWait, cfg.Actw)
	set(&base.PassiveWait, cfg.Pasw)
	set(&base.MovementTimeout, cfg.Movt)
	set(&base.MovementThreshold, cfg.Acct)
	set(&base.GPSTimeout, cfg.Gpst)

	return base, nil
}

func findCfg(doc map[string]json.RawMessage) (json.RawMessage, bool) {
	if raw, ok := doc["cfg"]; ok {
		return raw, true
	}

	state, ok := doc["state"]
	if !ok {
		return nil, false
	}

	var sdoc map[string]json.RawMessage
	if err := json.Unmarshal(state, &sdoc); err != nil {
		return nil, false
	}

	if raw, ok := sdoc["cfg"]; ok {
		return raw, true
	}

	desired, ok := sdoc["desired"]
	if !ok {
		return nil, false
	}

	var ddoc map[string]json.RawMessage
	if err := json.Unmarshal(desired, &ddoc); err != nil {
		return nil, false
	}

	raw, ok := ddoc["cfg"]
	return raw, ok
}

// EncodeAGPSRequest implements Codec
func (JSON) EncodeAGPSRequest(r data.AGPSRequest) ([]byte, error) {
	var types []string
	if r.SvMaskEphe != 0 {
		types = append(types, "ephemerides")
	}
	if r.SvMaskAlm != 0 {
		types = append(types, "almanac")
	}
	if r.UTC {
		types = append(types, "utc")
	}
	if r.KlobucharIo {
		types = append(types, "klobuchar")
	}
	if r.Position {
		types = append(types, "position")
	}
	if r.SysTime {
		types = append(types, "time")
	}
	if r.Integrity {
		types = append(types, "integrity")
	}

	if len(types) == 0 {
		return nil, ErrNoData
	}

	return json.Marshal(map[string]any{
		"appId":       "AGPS",
		"messageType": "DATA",
		"data":        map[string]any{"types": types},
	})
}
