package codec

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/simpleiot/assettracker/data"
)

// Proto encodes payloads in the protobuf wire format. The schema is:
//
//	message Envelope {
//	  repeated GPS gps = 1;
//	  repeated Env env = 2;
//	  repeated Modem modem = 3;
//	  repeated Battery bat = 4;
//	  repeated Accel acc = 5;
//	  repeated UI btn = 6;
//	  optional Config cfg = 10;
//	  optional AGPSRequest agps = 11;
//	}
//	message GPS { int64 ts = 1; double lat = 2; double lng = 3; double alt = 4;
//	  double acc = 5; double spd = 6; double hdg = 7; }
//	message Env { int64 ts = 1; double temp = 2; double hum = 3; }
//	message Modem { int64 ts = 1; sint32 rsrp = 2; string ip = 3; uint32 cell = 4;
//	  uint32 area = 5; string mccmnc = 6; int32 band = 7; string nw = 8;
//	  string iccid = 9; string modV = 10; string brdV = 11; string appV = 12; }
//	message Battery { int64 ts = 1; int32 bat = 2; }
//	message Accel { int64 ts = 1; double x = 2; double y = 3; double z = 4; }
//	message UI { int64 ts = 1; int32 btn = 2; }
//	message Config { optional bool act = 1; optional int32 actw = 2;
//	  optional int32 pasw = 3; optional int32 movt = 4; optional int32 acct = 5;
//	  optional int32 gpst = 6; }
//	message AGPSRequest { uint32 sv_mask_ephe = 1; uint32 sv_mask_alm = 2;
//	  bool utc = 3; bool klobuchar = 4; bool position = 5; bool sys_time = 6;
//	  bool integrity = 7; }
//
// A single payload is an Envelope with at most one entry per kind.
type Proto struct{}

const (
	fieldGPS     protowire.Number = 1
	fieldEnv     protowire.Number = 2
	fieldModem   protowire.Number = 3
	fieldBattery protowire.Number = 4
	fieldAccel   protowire.Number = 5
	fieldUI      protowire.Number = 6
	fieldConfig  protowire.Number = 10
	fieldAGPS    protowire.Number = 11
)

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

func pbGPS(g data.GPS) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(ts(g.Time)))
	b = appendDouble(b, 2, g.Lat)
	b = appendDouble(b, 3, g.Lon)
	b = appendDouble(b, 4, g.Alt)
	b = appendDouble(b, 5, g.Acc)
	b = appendDouble(b, 6, g.Spd)
	b = appendDouble(b, 7, g.Hdg)
	return b
}

func pbEnv(e data.Env) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(ts(e.Time)))
	b = appendDouble(b, 2, e.Temp)
	b = appendDouble(b, 3, e.Hum)
	return b
}

func pbModem(m data.Modem) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(ts(m.Time)))
	b = appendVarint(b, 2, protowire.EncodeZigZag(int64(m.RSRP)))
	b = appendString(b, 3, m.IP)
	b = appendVarint(b, 4, uint64(m.ID))
	b = appendVarint(b, 5, uint64(m.Area))
	b = appendString(b, 6, m.MccMnc)
	b = appendVarint(b, 7, uint64(m.Band))
	b = appendString(b, 8, m.Mode)
	b = appendString(b, 9, m.ICCID)
	b = appendString(b, 10, m.Firmware)
	b = appendString(b, 11, m.Board)
	b = appendString(b, 12, m.AppVersion)
	return b
}

func pbBattery(v data.Battery) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(ts(v.Time)))
	b = appendVarint(b, 2, uint64(v.Voltage))
	return b
}

func pbAccel(a data.Accel) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(ts(a.Time)))
	b = appendDouble(b, 2, a.X)
	b = appendDouble(b, 3, a.Y)
	b = appendDouble(b, 4, a.Z)
	return b
}

func pbUI(u data.UI) []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(ts(u.Time)))
	b = appendVarint(b, 2, uint64(u.Button))
	return b
}

// EncodeSingle implements Codec
func (p Proto) EncodeSingle(s Single) ([]byte, error) {
	if s.Empty() {
		return nil, ErrNoData
	}

	var b Batch
	if s.GPS != nil {
		b.GPS = []data.GPS{*s.GPS}
	}
	if s.Env != nil {
		b.Env = []data.Env{*s.Env}
	}
	if s.Modem != nil {
		b.Modem = []data.Modem{*s.Modem}
	}
	if s.Battery != nil {
		b.Battery = []data.Battery{*s.Battery}
	}
	if s.Accel != nil {
		b.Accel = []data.Accel{*s.Accel}
	}
	if s.UI != nil {
		b.UI = []data.UI{*s.UI}
	}

	return p.EncodeBatch(b)
}

// EncodeBatch implements Codec
func (Proto) EncodeBatch(bt Batch) ([]byte, error) {
	if bt.Empty() {
		return nil, ErrNoData
	}

	var b []byte
	for _, v := range bt.GPS {
		b = appendMessage(b, fieldGPS, pbGPS(v))
	}
	for _, v := range bt.Env {
		b = appendMessage(b, fieldEnv, pbEnv(v))
	}
	for _, v := range bt.Modem {
		b = appendMessage(b, fieldModem, pbModem(v))
	}
	for _, v := range bt.Battery {
		b = appendMessage(b, fieldBattery, pbBattery(v))
	}
	for _, v := range bt.Accel {
		b = appendMessage(b, fieldAccel, pbAccel(v))
	}
	for _, v := range bt.UI {
		b = appendMessage(b, fieldUI, pbUI(v))
	}

	return b, nil
}

// EncodeUI implements Codec
func (Proto) EncodeUI(u data.UI) ([]byte, error) {
	if !u.Queued {
		return nil, ErrNoData
	}
	return appendMessage(nil, fieldUI, pbUI(u)), nil
}

// EncodeConfig implements Codec. Every field is written, including zeros,
// so the receiver sees the full configuration.
func (Proto) EncodeConfig(c data.Config) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(c.Active))
	for i, v := range []int{c.ActiveWait, c.PassiveWait, c.MovementTimeout,
		c.MovementThreshold, c.GPSTimeout} {
		b = protowire.AppendTag(b, protowire.Number(i+2), protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	return appendMessage(nil, fieldConfig, b), nil
}

// DecodeConfig implements Codec. A payload that does not parse as an
// envelope, or carries no cfg field, yields ErrNoData.
func (Proto) DecodeConfig(payload []byte, base data.Config) (data.Config, error) {
	var cfg []byte
	found := false

	b := payload
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return base, ErrNoData
		}
		b = b[n:]

		if num == fieldConfig && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return base, ErrNoData
			}
			cfg = v
			found = true
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return base, ErrNoData
		}
		b = b[n:]
	}

	if !found {
		return base, ErrNoData
	}

	for len(cfg) > 0 {
		num, typ, n := protowire.ConsumeTag(cfg)
		if n < 0 {
			return base, errors.Wrap(protowire.ParseError(n), "cfg tag")
		}
		cfg = cfg[n:]

		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, cfg)
			if n < 0 {
				return base, errors.Wrap(protowire.ParseError(n), "cfg field")
			}
			cfg = cfg[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(cfg)
		if n < 0 {
			return base, errors.Wrap(protowire.ParseError(n), "cfg value")
		}
		cfg = cfg[n:]

		switch num {
		case 1:
			base.Active = protowire.DecodeBool(v)
		case 2:
			base.ActiveWait = int(v)
		case 3:
			base.PassiveWait = int(v)
		case 4:
			base.MovementTimeout = int(v)
		case 5:
			base.MovementThreshold = int(v)
		case 6:
			base.GPSTimeout = int(v)
		}
	}

	return base, nil
}

// EncodeAGPSRequest implements Codec
func (Proto) EncodeAGPSRequest(r data.AGPSRequest) ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(r.SvMaskEphe))
	b = appendVarint(b, 2, uint64(r.SvMaskAlm))
	b = appendBool(b, 3, r.UTC)
	b = appendBool(b, 4, r.KlobucharIo)
	b = appendBool(b, 5, r.Position)
	b = appendBool(b, 6, r.SysTime)
	b = appendBool(b, 7, r.Integrity)
	if len(b) == 0 {
		return nil, ErrNoData
	}
	return appendMessage(nil, fieldAGPS, b), nil
}
