package msgpack

import (
	"encoding/binary"

	"github.com/banshee-data/scansegment"
)

// lengthOrder is big-endian per spec 4.5's length prefix, distinct from
// the little-endian trailing CRC (spec 4.1) the same telegram carries.
var lengthOrder = binary.BigEndian

// State is the MSGPACK stream extractor's current position in its
// re-framing state machine (spec 4.5).
type State int

const (
	StateReadLength State = iota
	StateReadBody
	StateReadCrc
)

const lengthPrefixSize = 4

// DefaultMaxBodyLen bounds how large a single MSGPACK body is allowed to
// claim to be before the extractor treats the length prefix as bogus and
// resyncs, per spec 4.5's "exceeds a configured ceiling e.g. 16 MiB".
const DefaultMaxBodyLen = 16 * 1024 * 1024

// Extractor re-frames whole MSGPACK telegrams (length-prefixed body plus
// trailing CRC) out of an unbounded byte stream. Zero value is ready to
// use with DefaultMaxBodyLen; set MaxBodyLen before the first Feed to
// override it.
type Extractor struct {
	MaxBodyLen int
	// Stats, if set, is notified via AddResync each time the machine
	// discards a byte to recover from an implausible length prefix.
	// Optional; nil behaves like scansegment.NoopStats.
	Stats scansegment.Stats

	buf     []byte
	state   State
	bodyLen int
	pending [][]byte
}

func (e *Extractor) addResync() {
	if e.Stats != nil {
		e.Stats.AddResync()
	}
}

func (e *Extractor) maxBodyLen() int {
	if e.MaxBodyLen > 0 {
		return e.MaxBodyLen
	}
	return DefaultMaxBodyLen
}

// Feed appends newly received bytes and advances the state machine as far
// as the buffered data allows, queuing any telegrams it completes.
func (e *Extractor) Feed(data []byte) {
	e.buf = append(e.buf, data...)
	for e.step() {
	}
}

// Next pops the next fully re-framed telegram body+crc, if one is queued.
func (e *Extractor) Next() ([]byte, bool) {
	if len(e.pending) == 0 {
		return nil, false
	}
	tele := e.pending[0]
	e.pending = e.pending[1:]
	return tele, true
}

// State reports the extractor's current state.
func (e *Extractor) State() State {
	return e.state
}

func (e *Extractor) step() bool {
	switch e.state {
	case StateReadLength:
		return e.stepReadLength()
	case StateReadBody:
		return e.stepReadBody()
	case StateReadCrc:
		return e.stepReadCrc()
	}
	return false
}

func (e *Extractor) stepReadLength() bool {
	if len(e.buf) < lengthPrefixSize {
		return false
	}
	n := lengthOrder.Uint32(e.buf[0:lengthPrefixSize])
	if n == 0 || int(n) > e.maxBodyLen() {
		scansegment.Logf("msgpack extractor: resync, implausible length prefix %d", n)
		e.addResync()
		e.buf = e.buf[1:]
		return true
	}
	e.bodyLen = int(n)
	e.buf = e.buf[lengthPrefixSize:]
	e.state = StateReadBody
	return true
}

func (e *Extractor) stepReadBody() bool {
	if len(e.buf) < e.bodyLen {
		return false
	}
	e.state = StateReadCrc
	return true
}

func (e *Extractor) stepReadCrc() bool {
	total := e.bodyLen + crcSize
	if len(e.buf) < total {
		return false
	}
	tele := make([]byte, total)
	copy(tele, e.buf[:total])
	e.pending = append(e.pending, tele)

	e.buf = e.buf[total:]
	e.bodyLen = 0
	e.state = StateReadLength
	return true
}
