package compact

import (
	"math"

	"github.com/x448/float16"

	"github.com/banshee-data/scansegment"
)

// ModuleSpec is the input to Encode: the raw (unscaled) measurements for
// one module, plus the geometry metadata that accompanies it. Encode
// exists to build fixtures for the decoder's round-trip tests and is not
// part of the wire-facing contract spec.md describes, which only speaks
// of decoding telegrams a sensor produced.
type ModuleSpec struct {
	SegmentCounter uint32
	FrameNumber    uint32
	SenderID       uint32

	TimestampStart []uint64
	TimestampStop  []uint64
	Phi            []float32
	ThetaStart     []float32
	ThetaStop      []float32

	DistanceScalingFactor float32
	Content               scansegment.ChannelContent

	// RawDistance[line][echo][beam], pre-scaling.
	RawDistance [][][]uint16
	RSSI        [][][]uint16
	Properties  [][]uint8
	// ChannelTheta[line][beam] in radians; encoded to binary16.
	ChannelTheta [][]float32
}

// Encode assembles a complete COMPACT telegram (header, one or more
// modules, and a trailing CRC) from telegram-level fields and a list of
// module specs.
func Encode(telegramCounter, timestampTransmit uint64, commandID uint32, modules []ModuleSpec) []byte {
	if len(modules) == 0 {
		panic("compact: Encode requires at least one module")
	}

	var body []byte
	moduleBytes := make([][]byte, len(modules))
	for i, m := range modules {
		moduleBytes[i] = encodeModule(m, i)
	}
	// next_module_size is patched in after the fact since it must name the
	// size of the *following* module, mirroring the wire format's own
	// self-referential length-prefix scheme.
	for i := range moduleBytes {
		var next uint32
		if i+1 < len(moduleBytes) {
			next = uint32(len(moduleBytes[i+1]))
		}
		patchNextModuleSize(moduleBytes[i], modules[i], next)
		body = append(body, moduleBytes[i]...)
	}

	hdr := make([]byte, headerSize)
	order.PutUint32(hdr[0:4], startOfFrame)
	order.PutUint32(hdr[4:8], commandID)
	order.PutUint64(hdr[8:16], telegramCounter)
	order.PutUint64(hdr[16:24], timestampTransmit)
	order.PutUint32(hdr[24:28], supportedVersion)
	order.PutUint32(hdr[28:32], uint32(len(moduleBytes[0])))

	covered := append(hdr, body...)
	crc := scansegment.CRC32(covered)
	crcBytes := make([]byte, crcSize)
	order.PutUint32(crcBytes, crc)
	return append(covered, crcBytes...)
}

func patchNextModuleSize(buf []byte, spec ModuleSpec, next uint32) {
	lines := uint32(len(spec.Phi))
	off := NextModuleSizeOffset(lines)
	order.PutUint32(buf[off:off+4], next)
}

func encodeModule(m ModuleSpec, _ int) []byte {
	lines := len(m.Phi)
	beams := 0
	echos := 0
	if m.Content.Distance && len(m.RawDistance) > 0 {
		echos = len(m.RawDistance[0])
		if echos > 0 {
			beams = len(m.RawDistance[0][0])
		}
	} else if m.Content.RSSI && len(m.RSSI) > 0 {
		echos = len(m.RSSI[0])
		if echos > 0 {
			beams = len(m.RSSI[0][0])
		}
	} else if len(m.Properties) > 0 {
		beams = len(m.Properties[0])
	} else if len(m.ChannelTheta) > 0 {
		beams = len(m.ChannelTheta[0])
	}
	if echos == 0 {
		echos = 1
	}

	buf := make([]byte, 0, 256)
	u32 := make([]byte, 4)
	u64 := make([]byte, 8)

	put32 := func(v uint32) {
		order.PutUint32(u32, v)
		buf = append(buf, u32...)
	}
	put64 := func(v uint64) {
		order.PutUint64(u64, v)
		buf = append(buf, u64...)
	}
	putF32 := func(v float32) { put32(math.Float32bits(v)) }

	put32(m.SegmentCounter)
	put32(m.FrameNumber)
	put32(m.SenderID)
	put32(uint32(lines))
	put32(uint32(beams))
	put32(uint32(echos))

	for _, v := range m.TimestampStart {
		put64(v)
	}
	for _, v := range m.TimestampStop {
		put64(v)
	}
	for _, v := range m.Phi {
		putF32(v)
	}
	for _, v := range m.ThetaStart {
		putF32(v)
	}
	for _, v := range m.ThetaStop {
		putF32(v)
	}

	putF32(m.DistanceScalingFactor)
	put32(0) // next_module_size placeholder, patched by patchNextModuleSize
	buf = append(buf, 0)
	var contentEchos, contentBeams byte
	if m.Content.Distance {
		contentEchos |= bitDistance
	}
	if m.Content.RSSI {
		contentEchos |= bitRSSI
	}
	if m.Content.Properties {
		contentBeams |= bitProperties
	}
	if m.Content.ChannelTheta {
		contentBeams |= bitChannelTheta
	}
	buf = append(buf, contentEchos, contentBeams, 0)

	putU16 := func(v uint16) {
		b := make([]byte, 2)
		order.PutUint16(b, v)
		buf = append(buf, b...)
	}

	for li := 0; li < lines; li++ {
		if m.Content.Distance {
			for e := 0; e < echos; e++ {
				for b := 0; b < beams; b++ {
					putU16(m.RawDistance[li][e][b])
				}
			}
		}
		if m.Content.RSSI {
			for e := 0; e < echos; e++ {
				for b := 0; b < beams; b++ {
					putU16(m.RSSI[li][e][b])
				}
			}
		}
		if m.Content.Properties {
			buf = append(buf, m.Properties[li]...)
		}
		if m.Content.ChannelTheta {
			for b := 0; b < beams; b++ {
				putU16(float16.Fromfloat32(m.ChannelTheta[li][b]).Bits())
			}
		}
	}

	return buf
}
