// Package msgpack decodes the MSGPACK (self-describing map) scan-segment
// telegram encoding described in spec section 4.2.
package msgpack

import (
	"bytes"
	"encoding/binary"
	"fmt"

	vmsgpack "github.com/vmihailenco/msgpack/v5"

	"github.com/banshee-data/scansegment"
)

const crcSize = 4

var order = binary.LittleEndian

// fieldKey names one map key that may arrive either as a string or, for
// the handful of keys sensors are known to emit as small integers, as
// that integer (design note: "sensors in the field emit both
// integer-keyed and string-keyed maps ... decoder accepts either by
// mapping keys through a fixed lookup table").
type fieldKey struct {
	name   string
	code   int64
	hasInt bool
}

func strKey(name string) fieldKey             { return fieldKey{name: name} }
func intKey(name string, code int64) fieldKey { return fieldKey{name: name, code: code, hasInt: true} }

var (
	keyOuter             = intKey("1", 1)
	keyTelegramCounter   = intKey("TelegramCounter", 2)
	keyTimestampTransmit = strKey("TimestampTransmit")
	keySegmentCounter    = strKey("SegmentCounter")
	keyFrameNumber       = strKey("FrameNumber")
	keySenderID          = strKey("SenderId")
	keySegmentData       = strKey("SegmentData")
	keyLayerID           = strKey("LayerId")
	keyAvailability      = strKey("Availability")

	keyTimestampStart = strKey("TimestampStart")
	keyTimestampStop  = strKey("TimestampStop")
	keyThetaStart     = strKey("ThetaStart")
	keyThetaStop      = strKey("ThetaStop")
	keyPhi            = strKey("Phi")
	keyDistance       = strKey("Distance")
	keyRSSI           = strKey("Rssi")
	// Propertiesv in the field's README is a typo; the real key is
	// Properties, integer 27 (spec design notes, open questions).
	keyProperties   = intKey("Properties", 27)
	keyChannelTheta = strKey("ChannelTheta")
	keyBeamCount    = strKey("BeamCount")
	keyEchoCount    = strKey("EchoCount")
	keyScanNumber   = strKey("ScanNumber")
	keyModuleID     = strKey("ModuleID")
)

func keyMatches(k interface{}, fk fieldKey) bool {
	if s, ok := k.(string); ok {
		return s == fk.name
	}
	if fk.hasInt {
		if n, ok := asInt64(k); ok {
			return n == fk.code
		}
	}
	return false
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint:
		return int64(n), true
	}
	return 0, false
}

func asUint64(v interface{}) (uint64, bool) {
	n, ok := asInt64(v)
	if !ok {
		return 0, false
	}
	return uint64(n), true
}

func asFloat32(v interface{}) (float32, bool) {
	switch n := v.(type) {
	case float32:
		return n, true
	case float64:
		return float32(n), true
	}
	if n, ok := asInt64(v); ok {
		return float32(n), true
	}
	return 0, false
}

// rawMap is a decoded msgpack map with keys left as whatever concrete
// type the decoder produced (string or an integer kind), so callers can
// match them against fieldKey without committing to one key shape.
type rawMap map[interface{}]interface{}

func (m rawMap) get(fk fieldKey) (interface{}, bool) {
	for k, v := range m {
		if keyMatches(k, fk) {
			return v, true
		}
	}
	return nil, false
}

// decodeAny decodes one arbitrary msgpack value, preserving maps as
// rawMap and arrays as []interface{} so nested lookups stay key-shape
// tolerant all the way down.
func decodeAny(dec *vmsgpack.Decoder) (interface{}, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}
	switch {
	case code == 0xdf || code == 0xde || (code >= 0x80 && code <= 0x8f):
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		m := make(rawMap, n)
		for i := 0; i < n; i++ {
			k, err := decodeAny(dec)
			if err != nil {
				return nil, err
			}
			v, err := decodeAny(dec)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case code == 0xdc || code == 0xdd || (code >= 0x90 && code <= 0x9f):
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			v, err := decodeAny(dec)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return dec.DecodeInterface()
	}
}

func asMap(v interface{}) (rawMap, bool) {
	m, ok := v.(rawMap)
	return m, ok
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

func requireMap(parent rawMap, fk fieldKey, what string) (rawMap, error) {
	v, ok := parent.get(fk)
	if !ok {
		return nil, fmt.Errorf("msgpack: missing %s: %w", what, scansegment.ErrMissingField)
	}
	m, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("msgpack: %s is not a map: %w", what, scansegment.ErrTypeMismatch)
	}
	return m, nil
}

func requireUint64(m rawMap, fk fieldKey, what string) (uint64, error) {
	v, ok := m.get(fk)
	if !ok {
		return 0, fmt.Errorf("msgpack: missing %s: %w", what, scansegment.ErrMissingField)
	}
	n, ok := asUint64(v)
	if !ok {
		return 0, fmt.Errorf("msgpack: %s is not an integer: %w", what, scansegment.ErrTypeMismatch)
	}
	return n, nil
}

func optUint32(m rawMap, fk fieldKey) uint32 {
	v, ok := m.get(fk)
	if !ok {
		return 0
	}
	n, ok := asUint64(v)
	if !ok {
		return 0
	}
	return uint32(n)
}

func optFloat32(m rawMap, fk fieldKey) float32 {
	v, ok := m.get(fk)
	if !ok {
		return 0
	}
	f, _ := asFloat32(v)
	return f
}

// Decode parses one complete MSGPACK telegram body plus its trailing
// 4-byte CRC into a Segment.
func Decode(tele []byte) (*scansegment.Segment, error) {
	if len(tele) < crcSize {
		return nil, fmt.Errorf("msgpack: telegram shorter than crc (%d bytes): %w", len(tele), scansegment.ErrMalformedTelegram)
	}
	body := tele[:len(tele)-crcSize]

	wantCRC := order.Uint32(tele[len(tele)-crcSize:])
	gotCRC := scansegment.CRC32(body)
	if gotCRC != wantCRC {
		return nil, fmt.Errorf("msgpack: crc 0x%08X != wire 0x%08X: %w", gotCRC, wantCRC, scansegment.ErrCrcMismatch)
	}

	dec := vmsgpack.NewDecoder(bytes.NewReader(body))
	top, err := decodeAny(dec)
	if err != nil {
		return nil, fmt.Errorf("msgpack: %v: %w", err, scansegment.ErrMalformedTelegram)
	}
	outer, ok := asMap(top)
	if !ok || len(outer) != 1 {
		return nil, fmt.Errorf("msgpack: outer value is not a one-entry map: %w", scansegment.ErrMalformedTelegram)
	}
	inner, err := requireMap(outer, keyOuter, "outer map's key-1 value")
	if err != nil {
		return nil, err
	}

	telegramCounter, err := requireUint64(inner, keyTelegramCounter, "TelegramCounter")
	if err != nil {
		return nil, err
	}
	timestampTransmit, err := requireUint64(inner, keyTimestampTransmit, "TimestampTransmit")
	if err != nil {
		return nil, err
	}

	seg := &scansegment.Segment{
		TelegramCounter:   telegramCounter,
		TimestampTransmit: timestampTransmit,
		SegmentCounter:    optUint32(inner, keySegmentCounter),
		FrameNumber:       optUint32(inner, keyFrameNumber),
		SenderID:          optUint32(inner, keySenderID),
		Availability:      uint8(optUint32(inner, keyAvailability)),
	}

	segmentDataV, ok := inner.get(keySegmentData)
	if !ok {
		return nil, fmt.Errorf("msgpack: missing SegmentData: %w", scansegment.ErrMissingField)
	}
	scanList, ok := asSlice(segmentDataV)
	if !ok {
		return nil, fmt.Errorf("msgpack: SegmentData is not an array: %w", scansegment.ErrTypeMismatch)
	}

	for i, sv := range scanList {
		scanMap, ok := asMap(sv)
		if !ok {
			return nil, fmt.Errorf("msgpack: SegmentData[%d] is not a map: %w", i, scansegment.ErrTypeMismatch)
		}
		scan, err := decodeScan(scanMap)
		if err != nil {
			return nil, fmt.Errorf("msgpack: SegmentData[%d]: %w", i, err)
		}
		seg.Scans = append(seg.Scans, *scan)
	}

	if len(seg.Scans) == 0 {
		return nil, fmt.Errorf("msgpack: telegram carries no scans: %w", scansegment.ErrMalformedTelegram)
	}

	return seg, nil
}

func decodeScan(m rawMap) (*scansegment.Scan, error) {
	timestampStart, err := requireUint64(m, keyTimestampStart, "TimestampStart")
	if err != nil {
		return nil, err
	}
	timestampStop, err := requireUint64(m, keyTimestampStop, "TimestampStop")
	if err != nil {
		return nil, err
	}

	scan := &scansegment.Scan{
		TimestampStart: timestampStart,
		TimestampStop:  timestampStop,
		ThetaStart:     optFloat32(m, keyThetaStart),
		ThetaStop:      optFloat32(m, keyThetaStop),
		Phi:            optFloat32(m, keyPhi),
		BeamCount:      optUint32(m, keyBeamCount),
		EchoCount:      optUint32(m, keyEchoCount),
		ScanNumber:     optUint32(m, keyScanNumber),
		ModuleID:       optUint32(m, keyModuleID),
		LayerID:        optUint32(m, keyLayerID),
	}

	if v, ok := m.get(keyDistance); ok {
		rows, err := decodeFloat32Matrix(v)
		if err != nil {
			return nil, fmt.Errorf("Distance: %w", err)
		}
		scan.Distance = rows
	}
	if v, ok := m.get(keyRSSI); ok {
		rows, err := decodeFloat32Matrix(v)
		if err != nil {
			return nil, fmt.Errorf("Rssi: %w", err)
		}
		scan.RSSI = rows
	}
	if v, ok := m.get(keyProperties); ok {
		props, err := decodeUint8Vector(v)
		if err != nil {
			return nil, fmt.Errorf("Properties: %w", err)
		}
		scan.Properties = props
	}
	if v, ok := m.get(keyChannelTheta); ok {
		theta, err := decodeFloat32Vector(v)
		if err != nil {
			return nil, fmt.Errorf("ChannelTheta: %w", err)
		}
		scan.ChannelTheta = theta
	}

	return scan, nil
}

func decodeFloat32Matrix(v interface{}) ([][]float32, error) {
	outer, ok := asSlice(v)
	if !ok {
		return nil, scansegment.ErrTypeMismatch
	}
	rows := make([][]float32, len(outer))
	for i, rv := range outer {
		row, err := decodeFloat32Vector(rv)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

func decodeFloat32Vector(v interface{}) ([]float32, error) {
	s, ok := asSlice(v)
	if !ok {
		return nil, scansegment.ErrTypeMismatch
	}
	out := make([]float32, len(s))
	for i, e := range s {
		f, ok := asFloat32(e)
		if !ok {
			return nil, scansegment.ErrTypeMismatch
		}
		out[i] = f
	}
	return out, nil
}

func decodeUint8Vector(v interface{}) ([]uint8, error) {
	// A byte vector may arrive as a msgpack bin value rather than an array.
	if b, ok := v.([]byte); ok {
		return append([]uint8(nil), b...), nil
	}
	s, ok := asSlice(v)
	if !ok {
		return nil, scansegment.ErrTypeMismatch
	}
	out := make([]uint8, len(s))
	for i, e := range s {
		n, ok := asUint64(e)
		if !ok {
			return nil, scansegment.ErrTypeMismatch
		}
		out[i] = uint8(n)
	}
	return out, nil
}
