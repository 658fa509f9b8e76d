package compact

import (
	"bytes"

	"github.com/banshee-data/scansegment"
)

// State is the COMPACT stream extractor's current position in its
// re-framing state machine (spec 4.4).
type State int

const (
	StateSearchStart State = iota
	StateReadHeader
	StateReadModules
	StateReadCrc
)

var magicBytes = []byte{0x02, 0x02, 0x02, 0x02}

// Extractor re-frames whole COMPACT telegrams out of an unbounded byte
// stream. It tolerates partial reads, bogus bytes between telegrams, and
// corrupted length prefixes: a Feed call that doesn't complete a telegram
// simply leaves the machine in its current state with whatever bytes it
// has buffered, per spec 4.4/4.5's "partial reads merely leave the
// machine in its current state" rule. Zero value is ready to use.
type Extractor struct {
	// Stats, if set, is notified via AddResync each time the machine
	// discards a byte to recover from a corrupted or false-matched
	// header. Optional; nil behaves like scansegment.NoopStats.
	Stats scansegment.Stats

	buf   []byte
	state State

	// moduleStart is the offset within buf where the module currently
	// being sized begins.
	moduleStart int
	// totalRequired is the offset within buf at which the module section
	// is known to end, given every next_module_size discovered so far.
	totalRequired int

	pending [][]byte
}

func (e *Extractor) addResync() {
	if e.Stats != nil {
		e.Stats.AddResync()
	}
}

// Feed appends newly received bytes and advances the state machine as far
// as the buffered data allows, queuing any telegrams it completes.
func (e *Extractor) Feed(data []byte) {
	e.buf = append(e.buf, data...)
	for e.step() {
	}
}

// Next pops the next fully re-framed telegram, if one is queued.
func (e *Extractor) Next() ([]byte, bool) {
	if len(e.pending) == 0 {
		return nil, false
	}
	tele := e.pending[0]
	e.pending = e.pending[1:]
	return tele, true
}

// State reports the extractor's current state, mostly useful for tests
// asserting that a truncated telegram leaves the machine short of Emit.
func (e *Extractor) State() State {
	return e.state
}

// step attempts one state transition. It returns true if it made progress
// and should be called again immediately.
func (e *Extractor) step() bool {
	switch e.state {
	case StateSearchStart:
		return e.stepSearchStart()
	case StateReadHeader:
		return e.stepReadHeader()
	case StateReadModules:
		return e.stepReadModules()
	case StateReadCrc:
		return e.stepReadCrc()
	}
	return false
}

func (e *Extractor) stepSearchStart() bool {
	idx := bytes.Index(e.buf, magicBytes)
	if idx < 0 {
		// Keep the last 3 bytes: they might be the start of a magic
		// straddling the next Feed call.
		if len(e.buf) > 3 {
			e.buf = e.buf[len(e.buf)-3:]
		}
		return false
	}
	if idx > 0 {
		e.buf = e.buf[idx:]
	}
	e.state = StateReadHeader
	return true
}

func (e *Extractor) stepReadHeader() bool {
	if len(e.buf) < headerSize {
		return false
	}
	version := order.Uint32(e.buf[24:28])
	if version != supportedVersion {
		scansegment.Logf("compact extractor: resync, version %d at matched magic is not %d", version, supportedVersion)
		e.addResync()
		// Discard just the first byte of the bogus magic so a
		// recurring false match can't wedge the machine (spec 4.4).
		e.buf = e.buf[1:]
		e.state = StateSearchStart
		return true
	}
	sizeModule0 := order.Uint32(e.buf[28:32])
	if sizeModule0 < moduleFixedPrefix {
		scansegment.Logf("compact extractor: resync, size_module_0 %d smaller than module metadata prefix", sizeModule0)
		e.addResync()
		e.buf = e.buf[1:]
		e.state = StateSearchStart
		return true
	}
	e.moduleStart = headerSize
	e.totalRequired = headerSize + int(sizeModule0)
	e.state = StateReadModules
	return true
}

func (e *Extractor) stepReadModules() bool {
	if len(e.buf) < e.totalRequired {
		return false
	}
	lines, err := ModuleMetadataPrefix(e.buf[e.moduleStart:e.totalRequired])
	if err != nil {
		scansegment.Logf("compact extractor: resync, %v", err)
		e.addResync()
		e.buf = e.buf[1:]
		e.state = StateSearchStart
		return true
	}
	nextOffset := e.moduleStart + NextModuleSizeOffset(lines)
	if nextOffset+4 > e.totalRequired {
		scansegment.Logf("compact extractor: resync, next_module_size offset overruns declared module size")
		e.addResync()
		e.buf = e.buf[1:]
		e.state = StateSearchStart
		return true
	}
	next := order.Uint32(e.buf[nextOffset : nextOffset+4])
	if next == 0 {
		e.state = StateReadCrc
		return true
	}
	e.moduleStart = e.totalRequired
	e.totalRequired += int(next)
	return true
}

func (e *Extractor) stepReadCrc() bool {
	if len(e.buf) < e.totalRequired+crcSize {
		return false
	}
	tele := make([]byte, e.totalRequired+crcSize)
	copy(tele, e.buf[:e.totalRequired+crcSize])
	e.pending = append(e.pending, tele)

	e.buf = e.buf[e.totalRequired+crcSize:]
	e.moduleStart = 0
	e.totalRequired = 0
	e.state = StateSearchStart
	return true
}
